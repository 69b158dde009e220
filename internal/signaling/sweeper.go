package signaling

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper expires sessions whose last activity is older than the timeout.
// It matters for the registration product variant, where sessions are
// long-lived available hosts kept alive by register_session heartbeats;
// call-setup deployments run without one.
type Sweeper struct {
	store    *Store
	router   *Router
	interval time.Duration
	timeout  time.Duration
	done     chan struct{}
}

func NewSweeper(store *Store, router *Router, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		router:   router,
		interval: interval,
		timeout:  timeout,
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
	log.Info().Dur("interval", s.interval).Dur("timeout", s.timeout).Msg("session sweeper started")
}

func (s *Sweeper) Stop() {
	close(s.done)
	log.Info().Msg("session sweeper stopped")
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep closes abandoned sockets and removes their sessions. Teardown goes
// through HandleDisconnect so expiry and explicit disconnect cannot diverge.
func (s *Sweeper) sweep() {
	now := time.Now()

	var expired []*Session
	s.store.ForEach(func(sess *Session) {
		sess.mu.Lock()
		if now.Sub(sess.lastActivity) > s.timeout {
			expired = append(expired, sess)
		}
		sess.mu.Unlock()
	})

	for _, sess := range expired {
		s.expire(sess, now)
	}
}

// expire tears one session down. Staleness is re-checked under the lock: a
// heartbeat that landed after the scan pass keeps the session alive.
func (s *Sweeper) expire(sess *Session, now time.Time) {
	sess.mu.Lock()
	if now.Sub(sess.lastActivity) <= s.timeout {
		sess.mu.Unlock()
		return
	}
	host := sess.host
	members := sess.members()
	sess.mu.Unlock()

	log.Info().Str("sessionId", sess.id).Msg("session expired")

	if host != nil {
		_ = host.Close()
		s.router.HandleDisconnect(host)
		return
	}
	s.store.Delete(sess.id)
	for _, m := range members {
		_ = m.Close()
		s.router.HandleDisconnect(m)
	}
}
