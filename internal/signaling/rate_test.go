package signaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameLimiter(t *testing.T) {
	t.Run("allows up to the per-second budget", func(t *testing.T) {
		l := newFrameLimiter(3)
		now := time.Now()

		assert.True(t, l.Allow(now))
		assert.True(t, l.Allow(now))
		assert.True(t, l.Allow(now))
		assert.False(t, l.Allow(now))
	})

	t.Run("window resets after a second", func(t *testing.T) {
		l := newFrameLimiter(1)
		now := time.Now()

		assert.True(t, l.Allow(now))
		assert.False(t, l.Allow(now.Add(500*time.Millisecond)))
		assert.True(t, l.Allow(now.Add(time.Second)))
	})

	t.Run("disabled limiter allows everything", func(t *testing.T) {
		l := newFrameLimiter(0)
		assert.Nil(t, l)

		now := time.Now()
		for i := 0; i < 1000; i++ {
			assert.True(t, l.Allow(now))
		}
	})
}
