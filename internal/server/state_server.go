// Package server exposes replay state snapshots over HTTP and WebSocket so
// external consumers such as a UI can follow a running backtest.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/backcast-lab/backcast/internal/logger"
	"github.com/backcast-lab/backcast/internal/types"
	"github.com/backcast-lab/backcast/pkg/errors"
)

// StateServer serves the most recently published state snapshot over REST
// and streams every published snapshot to connected WebSocket clients.
type StateServer struct {
	mu sync.RWMutex

	log *logger.Logger

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader

	latest    types.StateSnapshot
	published bool

	conns   map[*websocket.Conn]bool
	connsMu sync.RWMutex
}

// NewStateServer creates a state server. Call Start to begin listening.
func NewStateServer(log *logger.Logger) *StateServer {
	return &StateServer{
		mu:  sync.RWMutex{},
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		httpServer: nil,
		listener:   nil,
		latest:     types.StateSnapshot{},
		published:  false,
		conns:      make(map[*websocket.Conn]bool),
		connsMu:    sync.RWMutex{},
	}
}

// Start begins serving on the given address. If address is empty or ":0",
// a random available port is used; Address reports the bound address.
func (s *StateServer) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInternal, err, "failed to listen on %s", address)
	}

	s.listener = listener

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/state", s.handleState).Methods("GET")
	router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/v1/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			s.log.Error("state server stopped", zap.Error(err))
		}
	}()

	s.log.Info("state server listening", zap.String("address", s.Address()))

	return nil
}

// Address returns the address the server is listening on.
func (s *StateServer) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Publish stores the snapshot as the latest state and pushes it to every
// connected WebSocket client. Clients whose write fails are dropped.
func (s *StateServer) Publish(snapshot types.StateSnapshot) {
	s.mu.Lock()
	s.latest = snapshot
	s.published = true
	s.mu.Unlock()

	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	for conn := range s.conns {
		if err := conn.WriteJSON(snapshot); err != nil {
			s.log.Debug("dropping websocket client", zap.Error(err))
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

// Shutdown closes all WebSocket connections and stops the HTTP server.
func (s *StateServer) Shutdown(ctx context.Context) error {
	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}

	s.conns = make(map[*websocket.Conn]bool)
	s.connsMu.Unlock()

	if s.httpServer == nil {
		return nil
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to shut down state server", err)
	}

	return nil
}

// handleState handles GET /api/v1/state.
func (s *StateServer) handleState(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	snapshot, published := s.latest, s.published
	s.mu.RUnlock()

	if !published {
		http.Error(w, "no snapshot published yet", http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.log.Error("failed to encode snapshot", zap.Error(err))
	}
}

// handleHealth handles GET /api/v1/health.
func (s *StateServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		s.log.Error("failed to encode health response", zap.Error(err))
	}
}

// handleWebSocket handles WS /api/v1/ws. A newly connected client receives
// the latest snapshot immediately, then every snapshot as it is published.
func (s *StateServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// The initial write and the registration share the broadcast lock so a
	// concurrent Publish can never write to this connection at the same time.
	s.connsMu.Lock()

	s.mu.RLock()
	snapshot, published := s.latest, s.published
	s.mu.RUnlock()

	if published {
		if err := conn.WriteJSON(snapshot); err != nil {
			s.connsMu.Unlock()
			conn.Close()

			return
		}
	}

	s.conns[conn] = true
	s.connsMu.Unlock()

	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		conn.Close()
	}()

	// Block until the client disconnects; inbound messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
