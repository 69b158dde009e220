package signaling

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Socket is the transport surface the relay needs from a connection.
// *websocket.Conn satisfies it.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Conn wraps one live transport connection. The relay holds only non-owning
// references to it from session state; the transport layer owns the socket.
type Conn struct {
	sock   Socket
	remote string

	writeMu    sync.Mutex
	closed     atomic.Bool
	reconciled atomic.Bool

	idMu     sync.Mutex
	clientID string
}

func NewConn(sock Socket, remote string) *Conn {
	return &Conn{sock: sock, remote: remote}
}

func (c *Conn) Remote() string {
	return c.remote
}

// IsOpen reports whether writes to the connection are still worthwhile.
func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

// MarkClosed flags the connection so further writes are skipped.
func (c *Conn) MarkClosed() {
	c.closed.Store(true)
}

// beginReconcile returns true exactly once per connection, making disconnect
// reconciliation idempotent even when close races an in-flight handler.
func (c *Conn) beginReconcile() bool {
	return c.reconciled.CompareAndSwap(false, true)
}

func (c *Conn) Close() error {
	c.MarkClosed()
	return c.sock.Close()
}

// ClientID returns the identity assigned on first association with a
// session, or "" if none has been assigned yet.
func (c *Conn) ClientID() string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	return c.clientID
}

// SetClientID assigns the connection identity. The first assignment wins;
// the id is stable for the connection's lifetime.
func (c *Conn) SetClientID(id string) string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	if c.clientID == "" {
		c.clientID = id
	}
	return c.clientID
}

// Send marshals v and writes it as a text frame. Writes are best-effort:
// a closed connection is skipped and write failures only mark the
// connection closed, they never propagate.
func (c *Conn) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal outbound frame")
		return
	}
	c.SendRaw(data)
}

// SendRaw writes a pre-encoded frame verbatim.
func (c *Conn) SendRaw(data []byte) {
	if !c.IsOpen() {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Str("remote", c.remote).Msg("write failed, marking connection closed")
		c.MarkClosed()
	}
}

// newClientID generates an identity for connections that join without
// supplying one.
func newClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure is unrecoverable for anything else anyway
		panic(err)
	}
	return hex.EncodeToString(b)
}
