package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mercator-hq/meridian/pkg/balancer"
	"mercator-hq/meridian/pkg/config"
	"mercator-hq/meridian/pkg/geo"
	"mercator-hq/meridian/pkg/shard"
)

// Server is the admin HTTP server.
type Server struct {
	config   *config.ServerConfig
	manager  *shard.Manager
	balancer *balancer.CrossRegionBalancer

	httpServer *http.Server
	mu         sync.Mutex
	isRunning  bool
}

// NewServer creates an admin server over the given manager and balancer.
func NewServer(cfg *config.ServerConfig, manager *shard.Manager, lb *balancer.CrossRegionBalancer) *Server {
	return &Server{
		config:   cfg,
		manager:  manager,
		balancer: lb,
	}
}

// Start starts the HTTP server and blocks until the context is cancelled
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.routes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("admin server listening", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin server failed: %w", err)
		}
		return nil
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	s.isRunning = false

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("admin server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

// routes builds the handler mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.manager.Collector().Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/stats/region", s.handleRegionStats)
	mux.HandleFunc("/select", s.handleSelect)
	mux.HandleFunc("/report", s.handleReport)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.AllStats())
}

func (s *Server) handleRegionStats(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("region")
	region, err := geo.ParseRegion(name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.manager.RegionStats(region))
}

// handleSelect returns a proxy endpoint for a target domain. Ordinary
// unavailability is a 503, not an error payload surprise: callers retry
// or fail their outer request.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")

	ep := s.balancer.GetProxy(domain)
	if ep == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no proxy available",
		})
		return
	}
	writeJSON(w, http.StatusOK, ep.Snapshot())
}

// handleReport accepts an end-to-end outcome for a previously selected
// endpoint.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	var req struct {
		ProxyID   string `json:"proxy_id"`
		Region    string `json:"region"`
		Success   bool   `json:"success"`
		LatencyMs int    `json:"latency_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	region, err := geo.ParseRegion(req.Region)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.manager.ReportResult(req.ProxyID, region, req.Success, req.LatencyMs)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
