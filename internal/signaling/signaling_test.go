package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deskviewer/relay-server-go/internal/config"
)

// fakeSocket records every frame written to it.
type fakeSocket struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("socket closed")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// messages decodes every recorded frame.
func (f *fakeSocket) messages(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]any, 0, len(f.frames))
	for _, frame := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(frame, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeSocket) types(t *testing.T) []string {
	t.Helper()
	msgs := f.messages(t)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m["type"].(string))
	}
	return out
}

func (f *fakeSocket) countType(t *testing.T, msgType string) int {
	t.Helper()
	n := 0
	for _, typ := range f.types(t) {
		if typ == msgType {
			n++
		}
	}
	return n
}

func (f *fakeSocket) lastOfType(t *testing.T, msgType string) map[string]any {
	t.Helper()
	var found map[string]any
	for _, m := range f.messages(t) {
		if m["type"] == msgType {
			found = m
		}
	}
	return found
}

type testRelay struct {
	store    *Store
	registry *Registry
	router   *Router
}

func newTestRelay(opts Options) *testRelay {
	if opts.RolePolicy == "" {
		opts.RolePolicy = config.RolePolicyExplicit
	}
	if opts.JoinPolicy == "" {
		opts.JoinPolicy = config.JoinPolicyStrict
	}
	store := NewStore()
	registry := NewRegistry()
	return &testRelay{
		store:    store,
		registry: registry,
		router:   NewRouter(store, registry, nil, opts),
	}
}

// dial simulates a new transport connection.
func (tr *testRelay) dial() (*Conn, *fakeSocket) {
	sock := &fakeSocket{}
	conn := NewConn(sock, "test")
	tr.registry.Add(conn)
	return conn, sock
}

// send routes a client frame built from a map.
func (tr *testRelay) send(t *testing.T, conn *Conn, frame map[string]any) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	tr.router.Route(conn, raw)
}
