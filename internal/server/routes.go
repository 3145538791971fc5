package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Service endpoints; "/" doubles as the 404 fallback
	mux.HandleFunc("/", s.app.APIHandler.RootHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/version", s.app.APIHandler.VersionHandler)

	// Job management
	mux.HandleFunc("/jobs/submit", s.app.JobHandler.SubmitHandler)
	mux.HandleFunc("/jobs/stats", s.app.JobHandler.StatsHandler)
	mux.HandleFunc("/jobs", s.app.JobHandler.ListHandler)
	mux.HandleFunc("/jobs/", s.handleJobRoutes) // /{id}/status, /{id}/results, DELETE /{id}

	// WebSocket progress fan-out
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)
	mux.HandleFunc("/ws/jobs/", s.app.WSHandler.HandleJobWebSocket)

	return mux
}

// handleJobRoutes dispatches /jobs/{id} subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/")
	if path == "" {
		s.app.JobHandler.ListHandler(w, r)
		return
	}

	parts := strings.Split(path, "/")
	jobID := parts[0]

	switch {
	case len(parts) == 1:
		s.app.JobHandler.CancelHandler(w, r, jobID)
	case len(parts) == 2 && parts[1] == "status":
		s.app.JobHandler.StatusHandler(w, r, jobID)
	case len(parts) == 2 && parts[1] == "results":
		s.app.JobHandler.ResultsHandler(w, r, jobID)
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
