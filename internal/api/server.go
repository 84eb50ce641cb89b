package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"txengine/internal/orchestrator"
)

// Server represents the read-only observability HTTP server
// Provides endpoints for Prometheus metrics, health checks, and engine state
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	engine     *orchestrator.Orchestrator
	port       int
}

// NewServer creates a new API server instance around the engine
func NewServer(port int, engine *orchestrator.Orchestrator) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:    mux,
		engine: engine,
		port:   port,
	}

	// Register all HTTP routes
	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())

	// Engine state endpoints
	s.mux.HandleFunc("/queues", s.handleQueues)
	s.mux.HandleFunc("/performance", s.handlePerformance)
	s.mux.HandleFunc("/operations/", s.handleOperationRoutes)
	s.mux.HandleFunc("/accounts/", s.handleAccountRoutes)
}

// handleOperationRoutes routes operation sub-endpoints
func (s *Server) handleOperationRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/operations/")
	parts := strings.Split(path, "/")

	// GET /operations/{id}
	if len(parts) == 1 && parts[0] != "" {
		s.handleGetOperation(w, r, parts[0])
		return
	}

	s.sendError(w, "Endpoint not found", http.StatusNotFound)
}

// handleAccountRoutes routes account sub-endpoints
func (s *Server) handleAccountRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/accounts/")
	parts := strings.Split(path, "/")

	// GET /accounts/{id}/rate?network=...
	if len(parts) == 2 && parts[1] == "rate" {
		s.handleGetAccountRate(w, r, parts[0])
		return
	}

	s.sendError(w, "Endpoint not found", http.StatusNotFound)
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/queues", "/performance"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
