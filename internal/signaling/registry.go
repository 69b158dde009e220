package signaling

import "sync"

// Registry tracks every live connection regardless of session membership.
// The discovery broadcast and server shutdown iterate it; per-session locks
// are never held while doing so.
type Registry struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[*Conn]struct{})}
}

func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
}

func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast writes a frame to every open connection.
func (r *Registry) Broadcast(data []byte) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.SendRaw(data)
	}
}

// CloseAll closes every tracked connection, used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[*Conn]struct{})
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
