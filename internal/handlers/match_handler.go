package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"code-duel/internal/services"
	"code-duel/internal/status"
)

type MatchHandler struct {
	matches *services.MatchManager
}

func NewMatchHandler(matches *services.MatchManager) *MatchHandler {
	return &MatchHandler{matches: matches}
}

// GetMatch - current view of a live or recently finished match. With a
// playerId query parameter the view is personalised for that participant.
func (h *MatchHandler) GetMatch(e *core.RequestEvent) error {
	view, err := h.matches.View(e.Request.PathValue("matchId"))
	if err != nil {
		return respondError(e, err)
	}

	if playerID := e.Request.URL.Query().Get("playerId"); playerID != "" {
		if !view.Has(playerID) {
			return respondError(e, status.ErrNotParticipant)
		}
		view = view.For(playerID)
	}

	return e.JSON(http.StatusOK, map[string]any{"match": view})
}
