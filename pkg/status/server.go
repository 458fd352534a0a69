// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Server offers a Board's Snapshots over HTTP and WebSockets.
type Server struct {
	board    *Board
	router   *mux.Router
	upgrader websocket.Upgrader
}

// NewServer for a Board. The Server itself is a http.Handler.
func NewServer(board *Board) (s *Server) {
	s = &Server{
		board:    board,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{},
	}

	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket)

	return
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe binds this Server to an address until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.WithField("address", addr).Info("Starting status server")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleStats processes /stats GET requests.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snapshot, ok := s.board.Latest()
	if !ok {
		http.Error(w, "no statistics published yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		log.WithError(err).Warn("Failed to write statistics response")
	}
}

// handleWebSocket pushes each Snapshot to a client until it disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, connErr := s.upgrader.Upgrade(w, r, nil)
	if connErr != nil {
		log.WithError(connErr).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}
	defer conn.Close()

	updates := s.board.Subscribe()
	defer s.board.Unsubscribe(updates)

	// Incoming messages are discarded, a read error indicates a closed connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if snapshot, ok := s.board.Latest(); ok {
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}
	}

	for {
		select {
		case snapshot := <-updates:
			if err := conn.WriteJSON(snapshot); err != nil {
				log.WithError(err).WithField("client", conn.RemoteAddr()).Debug("Writing to WebSocket client errored")
				return
			}

		case <-closed:
			return
		}
	}
}
