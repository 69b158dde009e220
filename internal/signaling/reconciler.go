package signaling

import (
	"github.com/rs/zerolog/log"
)

// HandleDisconnect removes a closed connection from every session it
// appears in, in any role. The scan always runs to completion: a connection
// can legitimately be host of one session and simultaneously hold a stale
// pending entry in another, and stopping at the first match would leak it.
// Calling this more than once for the same connection is a no-op.
func (r *Router) HandleDisconnect(conn *Conn) {
	if !conn.beginReconcile() {
		return
	}
	conn.MarkClosed()
	r.registry.Remove(conn)

	type peerNotice struct {
		to  *Conn
		msg serverMsg
	}
	var notices []peerNotice
	var remove []string

	r.store.ForEach(func(sess *Session) {
		sess.mu.Lock()
		defer sess.mu.Unlock()

		if sess.host == conn {
			for _, m := range sess.members() {
				notices = append(notices, peerNotice{m, serverMsg{
					Type:      TypeHostDisconnected,
					SessionID: sess.id,
				}})
			}
			sess.host = nil
			remove = append(remove, sess.id)
			log.Info().Str("sessionId", sess.id).Msg("host disconnected")
			return
		}

		for id, c := range sess.clients {
			if c != conn {
				continue
			}
			delete(sess.clients, id)
			log.Info().Str("sessionId", sess.id).Str("clientId", id).Msg("client disconnected")
			if sess.host != nil {
				notices = append(notices, peerNotice{sess.host, serverMsg{
					Type:      TypeClientLeft,
					SessionID: sess.id,
					ClientID:  id,
				}})
			}
		}

		// Pending entries go quietly: the request never completed, so the
		// host has nothing to be told.
		for id, c := range sess.pending {
			if c == conn {
				delete(sess.pending, id)
			}
		}

		if sess.empty() {
			remove = append(remove, sess.id)
		}
	})

	for _, id := range remove {
		r.store.Delete(id)
	}
	for _, n := range notices {
		n.to.Send(n.msg)
	}
}
