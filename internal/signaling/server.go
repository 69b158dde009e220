package signaling

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/deskviewer/relay-server-go/internal/config"
)

const wsWriteWait = 1 * time.Second

// Server upgrades HTTP requests to WebSocket connections and runs the read
// loop that feeds the router. A single connection's failure never affects
// other sessions: every error path ends at HandleDisconnect for that
// connection only.
type Server struct {
	router     *Router
	registry   *Registry
	msgsPerSec int
	upgrader   websocket.Upgrader
}

func NewServer(router *Router, registry *Registry, msgsPerSec int) *Server {
	return &Server{
		router:     router,
		registry:   registry,
		msgsPerSec: msgsPerSec,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := NewConn(ws, r.RemoteAddr)
	s.registry.Add(conn)
	log.Debug().Str("remote", conn.Remote()).Msg("websocket connection established")

	defer func() {
		s.router.HandleDisconnect(conn)
		_ = ws.Close()
		log.Debug().Str("remote", conn.Remote()).Msg("websocket connection closed")
	}()

	ws.SetReadLimit(config.MaxSignalingFrameBytes)
	limiter := newFrameLimiter(s.msgsPerSec)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			log.Warn().Str("remote", conn.Remote()).Msg("non-text frame dropped")
			continue
		}
		if !limiter.Allow(time.Now()) {
			writeClose(ws, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		s.router.Route(conn, data)
	}
}

func writeClose(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(wsWriteWait)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
