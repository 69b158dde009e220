package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnSend(t *testing.T) {
	t.Run("send writes a json text frame", func(t *testing.T) {
		sock := &fakeSocket{}
		conn := NewConn(sock, "test")

		conn.Send(serverMsg{Type: TypeSessionCreated, SessionID: "42"})

		msgs := sock.messages(t)
		require.Len(t, msgs, 1)
		assert.Equal(t, "session_created", msgs[0]["type"])
		assert.Equal(t, "42", msgs[0]["sessionId"])
	})

	t.Run("omitted fields stay off the wire", func(t *testing.T) {
		sock := &fakeSocket{}
		conn := NewConn(sock, "test")

		conn.Send(serverMsg{Type: TypeSessionCreated, SessionID: "42"})

		msg := sock.messages(t)[0]
		assert.NotContains(t, msg, "clientId")
		assert.NotContains(t, msg, "error")
		assert.NotContains(t, msg, "role")
	})

	t.Run("send to closed connection is skipped", func(t *testing.T) {
		sock := &fakeSocket{}
		conn := NewConn(sock, "test")
		conn.MarkClosed()

		conn.Send(serverMsg{Type: TypeSessionCreated})

		assert.Empty(t, sock.frames)
	})

	t.Run("write failure marks the connection closed", func(t *testing.T) {
		sock := &fakeSocket{}
		require.NoError(t, sock.Close())
		conn := NewConn(sock, "test")

		assert.True(t, conn.IsOpen())
		conn.SendRaw([]byte(`{}`))
		assert.False(t, conn.IsOpen())
	})
}

func TestConnIdentity(t *testing.T) {
	t.Run("first assignment wins", func(t *testing.T) {
		conn := NewConn(&fakeSocket{}, "test")

		assert.Equal(t, "", conn.ClientID())
		assert.Equal(t, "c1", conn.SetClientID("c1"))
		assert.Equal(t, "c1", conn.SetClientID("c2"))
		assert.Equal(t, "c1", conn.ClientID())
	})

	t.Run("generated ids are well formed and distinct", func(t *testing.T) {
		a := newClientID()
		b := newClientID()
		assert.Len(t, a, 16)
		assert.NotEqual(t, a, b)
	})
}

func TestConnReconcile(t *testing.T) {
	conn := NewConn(&fakeSocket{}, "test")

	assert.True(t, conn.beginReconcile())
	assert.False(t, conn.beginReconcile())
}

func TestRegistry(t *testing.T) {
	t.Run("broadcast reaches every open connection", func(t *testing.T) {
		reg := NewRegistry()
		a := &fakeSocket{}
		b := &fakeSocket{}
		reg.Add(NewConn(a, "a"))
		reg.Add(NewConn(b, "b"))

		reg.Broadcast([]byte(`{"type":"session_creation_request"}`))

		assert.Len(t, a.frames, 1)
		assert.Len(t, b.frames, 1)
	})

	t.Run("removed connection stops receiving", func(t *testing.T) {
		reg := NewRegistry()
		sock := &fakeSocket{}
		conn := NewConn(sock, "a")
		reg.Add(conn)
		reg.Remove(conn)

		reg.Broadcast([]byte(`{}`))

		assert.Empty(t, sock.frames)
		assert.Equal(t, 0, reg.Len())
	})

	t.Run("close all closes sockets", func(t *testing.T) {
		reg := NewRegistry()
		sock := &fakeSocket{}
		reg.Add(NewConn(sock, "a"))

		reg.CloseAll()

		assert.True(t, sock.closed)
	})
}
