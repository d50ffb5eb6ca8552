// Package web serves live odometry state (pose, local map) to browser
// clients over a websocket endpoint.
package web

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	goutils "go.viam.com/utils"
)

// FrameUpdate is one per-frame message pushed to every connected client.
type FrameUpdate struct {
	Frame       int          `json:"frame"`
	Translation [3]float64   `json:"translation"`
	Quaternion  [4]float64   `json:"quaternion"` // w, x, y, z
	MapPoints   int          `json:"map_points"`
	Map         [][3]float64 `json:"map,omitempty"`
}

// Server broadcasts frame updates to websocket subscribers on /ws.
type Server struct {
	logger   golog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewServer returns an idle server; Start brings up the listener.
func NewServer(logger golog.Logger) *Server {
	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			// the viewer is served from anywhere (file://, localhost:...)
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[*websocket.Conn]struct{}{},
	}
}

// Start serves the websocket endpoint on addr in a background goroutine.
func (s *Server) Start(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWs)
	s.logger.Infow("live view listening", "addr", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			s.logger.Errorw("live view server error", "error", err)
		}
	}()
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	goutils.PanicCapturingGo(func() { s.readPump(conn) })
}

// readPump discards inbound messages while servicing close and ping control
// frames, unregistering the client once the connection errors out.
func (s *Server) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.mu.Lock()
			if _, ok := s.conns[conn]; ok {
				s.logger.Debugw("websocket client disconnected", "error", err)
				//nolint:errcheck
				conn.Close()
				delete(s.conns, conn)
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Broadcast sends the update to every connected client, dropping clients
// whose connection has gone away.
func (s *Server) Broadcast(update FrameUpdate) {
	raw, err := json.Marshal(update)
	if err != nil {
		s.logger.Errorw("cannot marshal frame update", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			s.logger.Debugw("dropping websocket client", "error", err)
			//nolint:errcheck // already failing, nothing to do about a close error
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		//nolint:errcheck
		conn.Close()
		delete(s.conns, conn)
	}
}
