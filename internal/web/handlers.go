package web

import (
	"net/http"
)

// handleIndex answers liveness checks and bare visits.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Service is running."))
}

// handleHealth reports export capacity for load balancers and dashboards.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"exports": s.service.LimiterStatus(),
	})
}
