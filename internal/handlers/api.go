package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
)

// APIHandler serves the service-level endpoints
type APIHandler struct {
	logger    arbor.ILogger
	startedAt time.Time
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		logger:    logger,
		startedAt: time.Now(),
	}
}

// RootHandler describes the service and its endpoints
func (h *APIHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		h.NotFoundHandler(w, r)
		return
	}
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service": "colligo",
		"version": common.GetVersion(),
		"endpoints": []string{
			"POST /jobs/submit",
			"GET /jobs",
			"GET /jobs/stats",
			"GET /jobs/{id}/status",
			"GET /jobs/{id}/results",
			"DELETE /jobs/{id}",
			"GET /health",
			"GET /version",
			"WS /ws",
			"WS /ws/jobs/{id}",
		},
	})
}

// HealthHandler reports liveness
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// VersionHandler reports build information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// NotFoundHandler is the fallback for unknown paths
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "Not found")
}
