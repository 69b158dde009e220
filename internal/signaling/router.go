package signaling

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/deskviewer/relay-server-go/internal/config"
)

// Options fixes the role-assignment policy for a deployment. The two
// policies express incompatible semantics for the same wire vocabulary, so
// messages belonging to the inactive policy get a typed error reply instead
// of being interpreted.
type Options struct {
	RolePolicy string
	JoinPolicy string
}

// Router classifies inbound frames and applies the routing rules. It is the
// only component that writes to live sockets. Nothing it does is fatal to
// the process: protocol errors are logged and dropped, policy errors become
// typed error replies, and routing misses are silently dropped.
type Router struct {
	store    *Store
	registry *Registry
	broker   *Broker
	opts     Options
}

func NewRouter(store *Store, registry *Registry, broker *Broker, opts Options) *Router {
	return &Router{
		store:    store,
		registry: registry,
		broker:   broker,
		opts:     opts,
	}
}

// Route dispatches one inbound frame. raw is kept verbatim for forwarded
// categories; only the envelope is ever decoded.
func (r *Router) Route(conn *Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Error().Err(err).Str("remote", conn.Remote()).Msg("malformed frame dropped")
		return
	}
	if env.Type == "" {
		log.Error().Str("remote", conn.Remote()).Msg("frame missing type dropped")
		return
	}

	// mouse_move is high-frequency and exempt from per-frame logging.
	if env.Type != TypeMouseMove {
		log.Debug().
			Str("type", env.Type).
			Str("sessionId", env.SessionID).
			Msg("frame received")
	}

	switch {
	case env.Type == TypeCreateSession:
		r.handleCreateSession(conn, env)
	case env.Type == TypeJoinSession:
		r.handleJoinSession(conn, env)
	case env.Type == TypeConnectToSession:
		r.handleConnectToSession(conn, env)
	case env.Type == TypeRegisterSession:
		r.handleRegisterSession(conn, env)
	case env.Type == TypeLeaveSession:
		r.handleLeaveSession(conn, env)
	case env.Type == TypeRequestConnection:
		r.handleRequestConnection(conn, env)
	case env.Type == TypeConnectionResponse:
		r.handleConnectionResponse(conn, env)
	case isSignalingType(env.Type):
		r.forwardUnicast(conn, env, raw)
	case isControlType(env.Type):
		r.forwardControl(conn, env, raw)
	case isPermissionType(env.Type):
		r.forwardPermission(conn, env, raw)
	default:
		log.Warn().Str("type", env.Type).Msg("unknown message type dropped")
	}
}

// requireExplicit rejects explicit-lifecycle messages when the deployment
// runs the connection-order policy, and vice versa via requireConnectionOrder.
func (r *Router) requireExplicit(conn *Conn, env Envelope) bool {
	if r.opts.RolePolicy == config.RolePolicyExplicit {
		return true
	}
	conn.Send(serverMsg{
		Type:      TypeSessionError,
		SessionID: env.SessionID,
		Error:     "Unsupported message type for this relay",
	})
	return false
}

func (r *Router) requireConnectionOrder(conn *Conn, env Envelope) bool {
	if r.opts.RolePolicy == config.RolePolicyConnectionOrder {
		return true
	}
	conn.Send(serverMsg{
		Type:      TypeSessionError,
		SessionID: env.SessionID,
		Error:     "Unsupported message type for this relay",
	})
	return false
}

func (r *Router) handleCreateSession(conn *Conn, env Envelope) {
	if !r.requireExplicit(conn, env) {
		return
	}
	if env.SessionID == "" {
		conn.Send(serverMsg{Type: TypeSessionError, Error: "sessionId is required"})
		return
	}

	if sess := r.store.Get(env.SessionID); sess != nil {
		sess.mu.Lock()
		switch {
		case sess.host != nil && sess.host.IsOpen():
			sess.mu.Unlock()
			conn.Send(serverMsg{
				Type:      TypeSessionError,
				SessionID: env.SessionID,
				Error:     "Session already exists",
			})
			return

		case sess.host == nil && len(sess.pending) > 0:
			// Discovery placeholder: clients are queued waiting for a host.
			// The creator claims the code and each queued client is
			// presented for the host-gated accept handshake.
			sess.host = conn
			sess.touch()
			pendingIDs := make([]string, 0, len(sess.pending))
			for id := range sess.pending {
				pendingIDs = append(pendingIDs, id)
			}
			sess.mu.Unlock()

			conn.Send(serverMsg{Type: TypeSessionCreated, SessionID: env.SessionID})
			for _, id := range pendingIDs {
				conn.Send(serverMsg{
					Type:      TypeConnectionRequest,
					SessionID: env.SessionID,
					ClientID:  id,
				})
			}
			log.Info().Str("sessionId", env.SessionID).Int("pending", len(pendingIDs)).
				Msg("pending session claimed by host")
			return

		default:
			// Stale host: the code is reclaimed. Remaining members are told
			// the old host is gone and the session record is replaced.
			members := sess.members()
			sess.mu.Unlock()

			for _, m := range members {
				m.Send(serverMsg{Type: TypeHostDisconnected, SessionID: env.SessionID})
			}
			r.store.Delete(env.SessionID)
			log.Info().Str("sessionId", env.SessionID).Msg("reclaimed session with stale host")
		}
	}

	sess, _ := r.store.GetOrCreate(env.SessionID)
	sess.mu.Lock()
	if sess.host != nil && sess.host.IsOpen() && sess.host != conn {
		// Lost the creation race to a concurrent create for the same code.
		sess.mu.Unlock()
		conn.Send(serverMsg{
			Type:      TypeSessionError,
			SessionID: env.SessionID,
			Error:     "Session already exists",
		})
		return
	}
	sess.host = conn
	sess.touch()
	sess.mu.Unlock()

	log.Info().Str("sessionId", env.SessionID).Msg("session created")
	conn.Send(serverMsg{Type: TypeSessionCreated, SessionID: env.SessionID})
}

func (r *Router) handleJoinSession(conn *Conn, env Envelope) {
	if !r.requireExplicit(conn, env) {
		return
	}
	if env.SessionID == "" {
		conn.Send(serverMsg{Type: TypeSessionError, Error: "sessionId is required"})
		return
	}

	clientID := env.ClientID
	if clientID == "" {
		clientID = newClientID()
	}

	sess := r.store.Get(env.SessionID)
	if sess == nil {
		if r.opts.JoinPolicy == config.JoinPolicyStrict {
			conn.Send(serverMsg{
				Type:      TypeSessionError,
				SessionID: env.SessionID,
				Error:     "Session not found",
			})
			return
		}
		r.queueForDiscovery(conn, env.SessionID, clientID)
		return
	}

	sess.mu.Lock()
	if sess.host == conn {
		sess.mu.Unlock()
		conn.Send(serverMsg{
			Type:      TypeSessionError,
			SessionID: env.SessionID,
			Error:     "Cannot join a session you are hosting",
		})
		return
	}
	if sess.claimedID(clientID, conn) {
		sess.mu.Unlock()
		conn.Send(serverMsg{
			Type:      TypeSessionError,
			SessionID: env.SessionID,
			Error:     "Client ID already in use",
		})
		return
	}

	host := sess.host
	if host == nil || !host.IsOpen() {
		// No live host yet; queue until one claims the code or the
		// stale host's disconnect reconciliation finishes.
		sess.pending[clientID] = conn
		sess.touch()
		sess.mu.Unlock()

		conn.SetClientID(clientID)
		conn.Send(serverMsg{
			Type:      TypeSessionPending,
			SessionID: env.SessionID,
			ClientID:  clientID,
		})
		return
	}

	delete(sess.pending, clientID)
	sess.clients[clientID] = conn
	sess.touch()
	sess.mu.Unlock()

	conn.SetClientID(clientID)
	log.Info().Str("sessionId", env.SessionID).Str("clientId", clientID).Msg("client joined session")

	conn.Send(serverMsg{
		Type:      TypeSessionJoined,
		SessionID: env.SessionID,
		ClientID:  clientID,
	})
	host.Send(serverMsg{
		Type:      TypeClientJoined,
		SessionID: env.SessionID,
		ClientID:  clientID,
	})
}

// queueForDiscovery creates a pending placeholder session for an unknown
// code and asks every connected socket whether it wants to host it.
func (r *Router) queueForDiscovery(conn *Conn, sessionID, clientID string) {
	sess, created := r.store.GetOrCreate(sessionID)

	sess.mu.Lock()
	if sess.claimedID(clientID, conn) {
		sess.mu.Unlock()
		conn.Send(serverMsg{
			Type:      TypeSessionError,
			SessionID: sessionID,
			Error:     "Client ID already in use",
		})
		return
	}
	if host := sess.host; host != nil && host.IsOpen() {
		// A concurrent create claimed the code between the lookup and here.
		// Take the normal join path: queueing now would leave the client
		// pending with a host that was never told about it.
		delete(sess.pending, clientID)
		sess.clients[clientID] = conn
		sess.touch()
		sess.mu.Unlock()

		conn.SetClientID(clientID)
		log.Info().Str("sessionId", sessionID).Str("clientId", clientID).Msg("client joined session")

		conn.Send(serverMsg{
			Type:      TypeSessionJoined,
			SessionID: sessionID,
			ClientID:  clientID,
		})
		host.Send(serverMsg{
			Type:      TypeClientJoined,
			SessionID: sessionID,
			ClientID:  clientID,
		})
		return
	}
	sess.pending[clientID] = conn
	sess.touch()
	sess.mu.Unlock()

	conn.SetClientID(clientID)
	conn.Send(serverMsg{
		Type:      TypeSessionPending,
		SessionID: sessionID,
		ClientID:  clientID,
	})

	if created {
		log.Info().Str("sessionId", sessionID).Str("clientId", clientID).
			Msg("queued client for undiscovered session")
	}
	r.broadcastDiscovery(serverMsg{
		Type:      TypeSessionCreationRequest,
		SessionID: sessionID,
		ClientID:  clientID,
	})
}

// broadcastDiscovery fans the request out to all sockets. With a broker the
// frame travels through redis so every relay instance rebroadcasts it;
// without one it reaches local connections only. No session lock is held
// while iterating global connection state.
func (r *Router) broadcastDiscovery(msg serverMsg) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal discovery broadcast")
		return
	}
	if r.broker != nil {
		if err := r.broker.Publish(data); err == nil {
			return
		}
		log.Warn().Msg("discovery publish failed, falling back to local broadcast")
	}
	r.registry.Broadcast(data)
}

func (r *Router) handleConnectToSession(conn *Conn, env Envelope) {
	if !r.requireConnectionOrder(conn, env) {
		return
	}
	if env.SessionID == "" {
		conn.Send(serverMsg{Type: TypeSessionError, Error: "sessionId is required"})
		return
	}

	sess, _ := r.store.GetOrCreate(env.SessionID)

	sess.mu.Lock()
	if sess.host == conn {
		sess.touch()
		sess.mu.Unlock()
		conn.Send(serverMsg{
			Type:      TypeSessionConnected,
			SessionID: env.SessionID,
			Role:      RoleHost,
		})
		return
	}

	if sess.host != nil && !sess.host.IsOpen() {
		members := sess.members()
		sess.host = nil
		sess.mu.Unlock()
		for _, m := range members {
			m.Send(serverMsg{Type: TypeHostDisconnected, SessionID: env.SessionID})
		}
		sess.mu.Lock()
	}

	if sess.host == nil {
		// First connection in wins the host role.
		sess.host = conn
		sess.touch()
		sess.mu.Unlock()

		log.Info().Str("sessionId", env.SessionID).Msg("connection assigned host role")
		conn.Send(serverMsg{
			Type:      TypeSessionConnected,
			SessionID: env.SessionID,
			Role:      RoleHost,
		})
		return
	}

	clientID := env.ClientID
	if clientID == "" {
		if existing := conn.ClientID(); existing != "" {
			clientID = existing
		} else {
			clientID = newClientID()
		}
	}
	if sess.claimedID(clientID, conn) {
		sess.mu.Unlock()
		conn.Send(serverMsg{
			Type:      TypeSessionError,
			SessionID: env.SessionID,
			Error:     "Client ID already in use",
		})
		return
	}

	host := sess.host
	sess.clients[clientID] = conn
	sess.touch()
	sess.mu.Unlock()

	conn.SetClientID(clientID)
	log.Info().Str("sessionId", env.SessionID).Str("clientId", clientID).
		Msg("connection assigned client role")

	conn.Send(serverMsg{
		Type:      TypeSessionConnected,
		SessionID: env.SessionID,
		ClientID:  clientID,
		Role:      RoleClient,
	})
	host.Send(serverMsg{
		Type:      TypeClientJoined,
		SessionID: env.SessionID,
		ClientID:  clientID,
	})
}

func (r *Router) handleRegisterSession(conn *Conn, env Envelope) {
	if !r.requireExplicit(conn, env) {
		return
	}
	if env.SessionID == "" {
		conn.Send(serverMsg{Type: TypeRegistrationError, Error: "sessionId is required"})
		return
	}

	sess, _ := r.store.GetOrCreate(env.SessionID)

	sess.mu.Lock()
	switch {
	case sess.host == nil || sess.host == conn || !sess.host.IsOpen():
		// New registration, heartbeat, or takeover of a dead registration.
		sess.host = conn
		sess.touch()
		sess.mu.Unlock()
	default:
		sess.mu.Unlock()
		conn.Send(serverMsg{
			Type:      TypeRegistrationError,
			SessionID: env.SessionID,
			Error:     "Session code already registered",
		})
		return
	}

	conn.Send(serverMsg{Type: TypeSessionRegistered, SessionID: env.SessionID})
}

func (r *Router) handleLeaveSession(conn *Conn, env Envelope) {
	sess := r.store.Get(env.SessionID)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	if sess.host == conn {
		members := sess.members()
		sess.mu.Unlock()

		log.Info().Str("sessionId", env.SessionID).Msg("host left session")
		for _, m := range members {
			m.Send(serverMsg{Type: TypeHostDisconnected, SessionID: env.SessionID})
		}
		r.store.Delete(env.SessionID)
		return
	}

	clientID := env.ClientID
	if clientID == "" {
		clientID = conn.ClientID()
	}
	left := false
	if c, ok := sess.clients[clientID]; ok && c == conn {
		delete(sess.clients, clientID)
		left = true
	}
	if c, ok := sess.pending[clientID]; ok && c == conn {
		delete(sess.pending, clientID)
	}
	host := sess.host
	garbage := sess.empty()
	sess.mu.Unlock()

	if left && host != nil {
		log.Info().Str("sessionId", env.SessionID).Str("clientId", clientID).Msg("client left session")
		host.Send(serverMsg{
			Type:      TypeClientLeft,
			SessionID: env.SessionID,
			ClientID:  clientID,
		})
	}
	if garbage {
		r.store.Delete(env.SessionID)
	}
}

func (r *Router) handleRequestConnection(conn *Conn, env Envelope) {
	if env.TargetSessionID == "" || env.FromSessionID == "" {
		conn.Send(serverMsg{
			Type:            TypeConnectionError,
			TargetSessionID: env.TargetSessionID,
			Error:           "targetSessionId and fromSessionId are required",
		})
		return
	}

	sess := r.store.Get(env.TargetSessionID)
	if sess == nil {
		conn.Send(serverMsg{
			Type:            TypeConnectionError,
			TargetSessionID: env.TargetSessionID,
			Error:           "Session not found",
		})
		return
	}

	sess.mu.Lock()
	host := sess.host
	if host == nil || !host.IsOpen() {
		sess.mu.Unlock()
		conn.Send(serverMsg{
			Type:            TypeConnectionError,
			TargetSessionID: env.TargetSessionID,
			Error:           "Session not found",
		})
		return
	}
	if host == conn {
		// A host queued against its own session would end up both host and
		// client once accepted, echoing its own input events back at itself.
		sess.mu.Unlock()
		conn.Send(serverMsg{
			Type:            TypeConnectionError,
			TargetSessionID: env.TargetSessionID,
			Error:           "Cannot request a connection to your own session",
		})
		return
	}
	sess.pending[env.FromSessionID] = conn
	sess.touch()
	sess.mu.Unlock()

	conn.SetClientID(env.FromSessionID)
	host.Send(serverMsg{
		Type:            TypeIncomingConnectionRequest,
		TargetSessionID: env.TargetSessionID,
		FromSessionID:   env.FromSessionID,
	})
}

// handleConnectionResponse settles a pending join. Two addressing shapes
// share this path: the cross-session request_connection flow
// (targetSessionId/fromSessionId) and the host-gated join flow
// (sessionId/clientId). A response for a connection that is no longer
// pending, including a second answer for the same pair, is a no-op.
func (r *Router) handleConnectionResponse(conn *Conn, env Envelope) {
	sessionID := env.TargetSessionID
	key := env.FromSessionID
	crossSession := true
	if sessionID == "" {
		sessionID = env.SessionID
		key = env.ClientID
		crossSession = false
	}
	if sessionID == "" || key == "" || env.Accepted == nil {
		log.Warn().Msg("connection_response missing addressing fields, dropped")
		return
	}

	sess := r.store.Get(sessionID)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	if sess.host != conn {
		sess.mu.Unlock()
		log.Debug().Str("sessionId", sessionID).Msg("connection_response from non-host ignored")
		return
	}
	requester, ok := sess.pending[key]
	if !ok {
		sess.mu.Unlock()
		return
	}
	if requester == sess.host {
		// The host is never promoted into its own client set.
		delete(sess.pending, key)
		sess.mu.Unlock()
		return
	}
	delete(sess.pending, key)
	accepted := *env.Accepted
	if accepted {
		sess.clients[key] = requester
	}
	sess.touch()
	garbage := sess.empty()
	sess.mu.Unlock()

	if accepted {
		log.Info().Str("sessionId", sessionID).Str("clientId", key).Msg("connection accepted")
		if crossSession {
			requester.Send(serverMsg{
				Type:            TypeConnectionAccepted,
				TargetSessionID: sessionID,
				FromSessionID:   key,
			})
			conn.Send(serverMsg{
				Type:      TypeStartScreenSharing,
				SessionID: sessionID,
				ClientID:  key,
			})
		} else {
			requester.Send(serverMsg{
				Type:      TypeSessionJoined,
				SessionID: sessionID,
				ClientID:  key,
			})
			conn.Send(serverMsg{
				Type:      TypeClientJoined,
				SessionID: sessionID,
				ClientID:  key,
			})
		}
		return
	}

	log.Info().Str("sessionId", sessionID).Str("clientId", key).Msg("connection declined")
	if crossSession {
		requester.Send(serverMsg{
			Type:            TypeConnectionDeclined,
			TargetSessionID: sessionID,
			FromSessionID:   key,
		})
	} else {
		requester.Send(serverMsg{
			Type:      TypeConnectionRejected,
			SessionID: sessionID,
			ClientID:  key,
		})
	}
	if garbage {
		r.store.Delete(sessionID)
	}
}

// forwardUnicast relays signaling payloads verbatim: host to the addressed
// client, client to the host. A missing session or target drops the frame
// silently, matching the best-effort delivery of a non-transactional relay.
func (r *Router) forwardUnicast(conn *Conn, env Envelope, raw []byte) {
	sess := r.resolveSession(env)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	var target *Conn
	if sess.host == conn {
		if c, ok := sess.clients[env.ClientID]; ok {
			target = c
		} else if c, ok := sess.pending[env.ClientID]; ok {
			target = c
		}
	} else {
		target = sess.host
	}
	sess.touch()
	sess.mu.Unlock()

	if target != nil {
		target.SendRaw(raw)
	}
}

// forwardControl relays input events: host to all open clients, client to
// the host. Clients with closed sockets are skipped, never an error.
func (r *Router) forwardControl(conn *Conn, env Envelope, raw []byte) {
	sess := r.resolveSession(env)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	var targets []*Conn
	if sess.host == conn {
		for _, c := range sess.clients {
			if c.IsOpen() {
				targets = append(targets, c)
			}
		}
	} else if sess.host != nil && sess.host.IsOpen() {
		targets = append(targets, sess.host)
	}
	sess.touch()
	sess.mu.Unlock()

	for _, t := range targets {
		t.SendRaw(raw)
	}
}

func (r *Router) forwardPermission(conn *Conn, env Envelope, raw []byte) {
	if env.Type == TypePermissionResponse && env.Granted != nil {
		log.Info().
			Str("sessionId", env.SessionID).
			Str("clientId", env.ClientID).
			Bool("granted", *env.Granted).
			Msg("permission response")
	}
	r.forwardUnicast(conn, env, raw)
}

func (r *Router) resolveSession(env Envelope) *Session {
	id := env.TargetSessionID
	if id == "" {
		id = env.SessionID
	}
	if id == "" {
		return nil
	}
	return r.store.Get(id)
}
