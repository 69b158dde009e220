package signaling

import "time"

// frameLimiter bounds inbound frames per connection with a one-second
// fixed window. perSecond <= 0 disables limiting (the constructor returns
// nil, and a nil limiter allows everything).
type frameLimiter struct {
	perSecond   int
	windowStart time.Time
	count       int
}

func newFrameLimiter(perSecond int) *frameLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &frameLimiter{perSecond: perSecond}
}

func (l *frameLimiter) Allow(now time.Time) bool {
	if l == nil {
		return true
	}
	if now.Sub(l.windowStart) >= time.Second {
		l.windowStart = now
		l.count = 0
	}
	l.count++
	return l.count <= l.perSecond
}
