// Package api serves the status and metrics endpoints of a running stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beamcast/beamcast/internal/gm12u320"
	"github.com/beamcast/beamcast/internal/logger"
)

// Snapshot is the stats document served over the API.
type Snapshot struct {
	Engine          gm12u320.Stats `json:"engine"`
	FramesPublished uint64         `json:"frames_published"`
	FramesDropped   uint64         `json:"frames_dropped"`
}

// Server exposes pipeline health, a stats snapshot, a websocket stats feed
// and the Prometheus metrics endpoint.
type Server struct {
	router   *mux.Router
	server   *http.Server
	snapshot func() Snapshot
	upgrader websocket.Upgrader
}

// NewServer builds the API around a stats snapshot function.
func NewServer(snapshot func() Snapshot) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/stats/stream", s.handleStatsStream)

	s.router.Handle("/metrics", promhttp.Handler())
}

// Start serves the API until Stop is called.
func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	logger.WithComponent("api").Info().Int("port", port).Msg("status API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot())
}

// handleStatsStream pushes a stats snapshot roughly once a second until the
// client goes away.
func (s *Server) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(s.snapshot()); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("response encoding failed")
	}
}
