package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/interfaces"
)

// GamesHandler lists generated documents
type GamesHandler struct {
	artifacts interfaces.ArtifactService
	logger    arbor.ILogger
}

// NewGamesHandler creates a new GamesHandler
func NewGamesHandler(artifacts interfaces.ArtifactService, logger arbor.ILogger) *GamesHandler {
	return &GamesHandler{
		artifacts: artifacts,
		logger:    logger,
	}
}

// ListHandler handles GET /api/games
func (h *GamesHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	games, err := h.artifacts.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list games")
		WriteError(w, http.StatusInternalServerError, "Failed to list games")
		return
	}

	page, pageSize, paged := GetPaginationParams(r)
	if !paged {
		WriteJSON(w, http.StatusOK, games)
		return
	}

	start, end, pagination := Paginate(len(games), page, pageSize)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"games":      games[start:end],
		"pagination": pagination,
	})
}
