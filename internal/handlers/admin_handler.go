package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"code-duel/internal/services"
	"code-duel/internal/status"
	"code-duel/models"
)

type AdminHandler struct {
	registry *services.ConnectionRegistry
	queue    *services.MatchmakingQueue
	rooms    *services.RoomRegistry
	matches  *services.MatchManager
	notifier services.Notifier
}

func NewAdminHandler(registry *services.ConnectionRegistry, queue *services.MatchmakingQueue, rooms *services.RoomRegistry, matches *services.MatchManager, notifier services.Notifier) *AdminHandler {
	return &AdminHandler{
		registry: registry,
		queue:    queue,
		rooms:    rooms,
		matches:  matches,
		notifier: notifier,
	}
}

func requireSuperuser(e *core.RequestEvent) error {
	if e.Auth == nil || e.Auth.Collection().Name != core.CollectionNameSuperusers {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}
	return nil
}

// GetDashboard - Queue buckets, rooms, matches and connections at a glance
func (h *AdminHandler) GetDashboard(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	buckets := h.queue.Snapshot()
	queued := 0
	for _, b := range buckets {
		queued += b.Waiting
	}

	return e.JSON(http.StatusOK, map[string]any{
		"buckets":      buckets,
		"queued":       queued,
		"waitingRooms": h.rooms.Waiting(),
		"liveMatches":  h.matches.LiveCount(),
		"connections":  h.registry.Count(),
		"serverTime":   time.Now().UTC(),
	})
}

// RemoveFromQueue - Drop a player's matchmaking ticket (admin action)
func (h *AdminHandler) RemoveFromQueue(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	var req struct {
		PlayerID string `json:"playerId"`
		Reason   string `json:"reason"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.PlayerID == "" {
		return respondError(e, status.ErrInvalidPlayer)
	}

	slog.Info("admin removing player from matchmaking", "admin", e.Auth.Id, "playerID", req.PlayerID, "reason", req.Reason)

	if !h.queue.Leave(req.PlayerID) {
		return e.JSON(http.StatusOK, map[string]any{"removed": false})
	}
	h.notifier.Notify(req.PlayerID, models.EventMatchmakingLeft, map[string]string{"reason": req.Reason})

	return e.JSON(http.StatusOK, map[string]any{"removed": true})
}

// ForceSweep - Run the room and match sweeps now instead of waiting for the scheduler
func (h *AdminHandler) ForceSweep(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	rooms := h.rooms.PurgeExpired()
	matches := h.matches.PurgeFinished()
	slog.Info("admin forced sweep", "admin", e.Auth.Id, "rooms", rooms, "matches", matches)

	return e.JSON(http.StatusOK, map[string]any{
		"roomsPurged":   rooms,
		"matchesPurged": matches,
	})
}
