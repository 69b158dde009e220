package middleware

import (
	"net/http"
	"sync"
	"time"
)

// Login hands out a signed token and a fresh session code, so the endpoint
// is the natural brute-force target. Attempts are counted per client IP in
// a fixed one-minute window.
const (
	loginMaxAttempts    = 5
	loginWindowDuration = time.Minute
	loginCleanupPeriod  = 5 * time.Minute
)

type loginWindow struct {
	count   int
	started time.Time
}

type LoginRateLimiter struct {
	mu          sync.Mutex
	windows     map[string]*loginWindow
	lastCleanup time.Time
}

func NewLoginRateLimiter() *LoginRateLimiter {
	return &LoginRateLimiter{
		windows:     make(map[string]*loginWindow),
		lastCleanup: time.Now(),
	}
}

// cleanup drops windows that have lapsed so the map does not grow with
// every IP ever seen. Callers hold l.mu.
func (l *LoginRateLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < loginCleanupPeriod {
		return
	}
	l.lastCleanup = now

	for ip, w := range l.windows {
		if now.Sub(w.started) > loginWindowDuration {
			delete(l.windows, ip)
		}
	}
}

func (l *LoginRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.cleanup(now)

	w, ok := l.windows[ip]
	if !ok || now.Sub(w.started) > loginWindowDuration {
		l.windows[ip] = &loginWindow{count: 1, started: now}
		return true
	}

	if w.count >= loginMaxAttempts {
		return false
	}
	w.count++
	return true
}

func (l *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			ip = forwarded
		}

		if !l.allow(ip) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Too many login attempts. Please try again later.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
