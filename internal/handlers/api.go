package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/queue"
)

// QueueStatus reports scheduler load
type QueueStatus interface {
	Status(ctx context.Context) (queue.Status, error)
}

type APIHandler struct {
	logger arbor.ILogger
	queue  QueueStatus
	hub    *WebSocketHandler
}

func NewAPIHandler(status QueueStatus, hub *WebSocketHandler, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		logger: logger,
		queue:  status,
		hub:    hub,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusHandler handles GET /api/status
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	st, err := h.queue.Status(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read queue status")
		WriteError(w, http.StatusServiceUnavailable, "Queue unavailable")
		return
	}

	resp := map[string]interface{}{
		"queue_length": st.QueueLength,
		"processing":   st.Processing,
		"version":      common.GetVersion(),
		"goroutines":   common.GetGoroutineCount(),
	}
	if st.CurrentID != "" {
		resp["current_id"] = st.CurrentID
	}
	if h.hub != nil {
		resp["observers"] = h.hub.ClientCount()
		resp["server_instance_id"] = h.hub.ServerInstanceID()
	}
	WriteJSON(w, http.StatusOK, resp)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
