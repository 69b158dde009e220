package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleDisconnect(t *testing.T) {
	t.Run("host disconnect tears down session and notifies members", func(t *testing.T) {
		tr := newTestRelay(Options{})
		host, _ := tr.dial()
		client, clientSock := tr.dial()

		tr.send(t, host, map[string]any{"type": "create_session", "sessionId": "42"})
		tr.send(t, client, map[string]any{"type": "join_session", "sessionId": "42", "clientId": "c1"})

		tr.router.HandleDisconnect(host)

		require.NotNil(t, clientSock.lastOfType(t, "host_disconnected"))
		assert.Nil(t, tr.store.Get("42"))
		assert.Equal(t, 1, tr.registry.Len())
	})

	t.Run("client disconnect notifies host and keeps session", func(t *testing.T) {
		tr := newTestRelay(Options{})
		host, hostSock := tr.dial()
		client, _ := tr.dial()

		tr.send(t, host, map[string]any{"type": "create_session", "sessionId": "42"})
		tr.send(t, client, map[string]any{"type": "join_session", "sessionId": "42", "clientId": "c1"})

		tr.router.HandleDisconnect(client)

		left := hostSock.lastOfType(t, "client_left")
		require.NotNil(t, left)
		assert.Equal(t, "c1", left["clientId"])
		require.NotNil(t, tr.store.Get("42"))
	})

	t.Run("pending entry is removed silently", func(t *testing.T) {
		tr := newTestRelay(Options{})
		host, hostSock := tr.dial()
		viewer, _ := tr.dial()

		tr.send(t, host, map[string]any{"type": "register_session", "sessionId": "1111111111"})
		tr.send(t, viewer, map[string]any{
			"type":            "request_connection",
			"targetSessionId": "1111111111",
			"fromSessionId":   "2222222222",
		})

		before := len(hostSock.messages(t))
		tr.router.HandleDisconnect(viewer)

		assert.Len(t, hostSock.messages(t), before)
		sess := tr.store.Get("1111111111")
		require.NotNil(t, sess)
		assert.Empty(t, sess.pending)
	})

	t.Run("scan covers every session the connection appears in", func(t *testing.T) {
		tr := newTestRelay(Options{RolePolicy: "connection_order"})
		conn, _ := tr.dial()
		otherHost, otherHostSock := tr.dial()

		// Host of one session, stale pending entry in another.
		tr.send(t, conn, map[string]any{"type": "connect_to_session", "sessionId": "100"})
		tr.send(t, otherHost, map[string]any{"type": "connect_to_session", "sessionId": "200"})
		other := tr.store.Get("200")
		require.NotNil(t, other)
		other.mu.Lock()
		other.pending["stale"] = conn
		other.mu.Unlock()

		tr.router.HandleDisconnect(conn)

		assert.Nil(t, tr.store.Get("100"))
		other.mu.Lock()
		assert.Empty(t, other.pending)
		other.mu.Unlock()
		assert.Nil(t, otherHostSock.lastOfType(t, "client_left"))
	})

	t.Run("empty session left behind is removed", func(t *testing.T) {
		tr := newTestRelay(Options{})
		host, _ := tr.dial()
		client, _ := tr.dial()

		tr.send(t, host, map[string]any{"type": "create_session", "sessionId": "42"})
		tr.send(t, client, map[string]any{"type": "join_session", "sessionId": "42", "clientId": "c1"})

		// Host slot vacated without reconcile, then the last client leaves.
		sess := tr.store.Get("42")
		sess.mu.Lock()
		sess.host = nil
		sess.mu.Unlock()

		tr.router.HandleDisconnect(client)

		assert.Nil(t, tr.store.Get("42"))
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		tr := newTestRelay(Options{})
		host, _ := tr.dial()
		client, clientSock := tr.dial()

		tr.send(t, host, map[string]any{"type": "create_session", "sessionId": "42"})
		tr.send(t, client, map[string]any{"type": "join_session", "sessionId": "42", "clientId": "c1"})

		tr.router.HandleDisconnect(host)
		tr.router.HandleDisconnect(host)

		assert.Equal(t, 1, clientSock.countType(t, "host_disconnected"))
	})
}
