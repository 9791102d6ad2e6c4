package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"code-duel/internal/services"
	"code-duel/internal/status"
)

type RoomHandler struct {
	rooms *services.RoomRegistry
}

func NewRoomHandler(rooms *services.RoomRegistry) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// CreateRoom - open a private room and hand back its code
func (h *RoomHandler) CreateRoom(e *core.RequestEvent) error {
	var req struct {
		TimeLimitMinutes int    `json:"timeLimitMinutes"`
		CreatorID        string `json:"creatorId"`
		CreatorName      string `json:"creatorName"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	room, err := h.rooms.Create(req.CreatorID, req.CreatorName, req.TimeLimitMinutes)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"roomCode": room.RoomCode,
		"room":     room,
	})
}

// JoinRoom - claim a waiting room and start the private match
func (h *RoomHandler) JoinRoom(e *core.RequestEvent) error {
	var req struct {
		RoomCode   string `json:"roomCode"`
		PlayerID   string `json:"playerId"`
		PlayerName string `json:"playerName"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.RoomCode == "" {
		return respondError(e, status.ErrRoomNotFound)
	}

	view, err := h.rooms.Join(e.Request.Context(), req.RoomCode, req.PlayerID, req.PlayerName)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"match": view})
}

// GetRoom - status of a room code
func (h *RoomHandler) GetRoom(e *core.RequestEvent) error {
	room, ok := h.rooms.Get(e.Request.PathValue("code"))
	if !ok {
		return respondError(e, status.ErrRoomNotFound)
	}
	return e.JSON(http.StatusOK, map[string]any{"room": room})
}

// respondError writes a rejection with its reason code. Unmapped errors are
// logged and reported as internal.
func respondError(e *core.RequestEvent, err error) error {
	code := status.HTTPStatus(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "path", e.Request.URL.Path, "error", err)
	}

	return e.JSON(code, map[string]string{
		"error":  err.Error(),
		"reason": status.Reason(err),
	})
}
