package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleIndex describes the service
// GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.sendError(w, "Endpoint not found", http.StatusNotFound)
		return
	}

	info := map[string]interface{}{
		"service": "txengine",
		"endpoints": []string{
			"/health",
			"/metrics",
			"/queues",
			"/performance",
			"/operations/{id}",
			"/accounts/{id}/rate?network={network}",
		},
	}
	s.sendJSON(w, info, http.StatusOK)
}

// handleHealth returns health status
// GET /health - Health check for monitoring systems
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "txengine",
	}
	s.sendJSON(w, health, http.StatusOK)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// handleQueues returns the queue depth per priority
// GET /queues
func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.sendJSON(w, s.engine.GetQueueStats(), http.StatusOK)
}

// handlePerformance returns the running execution metrics
// GET /performance
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.sendJSON(w, s.engine.GetPerformanceMetrics(), http.StatusOK)
}

// handleGetOperation returns one operation record
// GET /operations/{id}
func (s *Server) handleGetOperation(w http.ResponseWriter, _ *http.Request, idStr string) {
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		s.sendError(w, "Invalid operation id", http.StatusBadRequest)
		return
	}

	op, ok := s.engine.GetOperation(id)
	if !ok {
		s.sendError(w, "Operation not found", http.StatusNotFound)
		return
	}
	s.sendJSON(w, op, http.StatusOK)
}

// handleGetAccountRate returns an account's admission counters on a network
// GET /accounts/{id}/rate?network=testnet
func (s *Server) handleGetAccountRate(w http.ResponseWriter, r *http.Request, account string) {
	network := r.URL.Query().Get("network")
	if network == "" {
		s.sendError(w, "network query parameter required", http.StatusBadRequest)
		return
	}
	s.sendJSON(w, s.engine.GetAccountRateState(account, network), http.StatusOK)
}

// sendJSON writes a JSON response with the given status code
func (s *Server) sendJSON(w http.ResponseWriter, payload interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// sendError writes a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	})
}
