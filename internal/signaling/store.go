package signaling

import (
	"sync"
	"time"
)

// Session is the unit of rendezvous, keyed by a session code. All mutation
// of a session happens with mu held, which is the serialization guarantee
// the routing logic relies on: no two handlers interleave on one session.
type Session struct {
	id string

	mu           sync.Mutex
	host         *Conn
	clients      map[string]*Conn
	pending      map[string]*Conn
	createdAt    time.Time
	lastActivity time.Time
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		clients:      make(map[string]*Conn),
		pending:      make(map[string]*Conn),
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) ID() string {
	return s.id
}

// touch records activity for the liveness sweeper. Callers hold s.mu.
func (s *Session) touch() {
	s.lastActivity = time.Now()
}

// empty reports the garbage condition: no host, no clients, no pending
// entries. Callers hold s.mu.
func (s *Session) empty() bool {
	return s.host == nil && len(s.clients) == 0 && len(s.pending) == 0
}

// members returns every client and pending client. Callers hold s.mu.
func (s *Session) members() []*Conn {
	out := make([]*Conn, 0, len(s.clients)+len(s.pending))
	for _, c := range s.clients {
		out = append(out, c)
	}
	for _, c := range s.pending {
		out = append(out, c)
	}
	return out
}

// claimedID reports whether id is taken inside clients ∪ pending by a
// connection other than c. Callers hold s.mu.
func (s *Session) claimedID(id string, c *Conn) bool {
	if other, ok := s.clients[id]; ok && other != c {
		return true
	}
	if other, ok := s.pending[id]; ok && other != c {
		return true
	}
	return false
}

// Store owns the session map. Creation is idempotent per session code:
// concurrent GetOrCreate calls for one code resolve to a single record.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

func (st *Store) GetOrCreate(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s, false
	}
	s := newSession(id)
	st.sessions[id] = s
	return s, true
}

func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// ForEach calls fn for every session in a snapshot taken under the store
// lock. fn runs without the store lock held, so it may delete sessions.
func (st *Store) ForEach(fn func(*Session)) {
	st.mu.RLock()
	snapshot := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		snapshot = append(snapshot, s)
	}
	st.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
