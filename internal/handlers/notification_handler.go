package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"code-duel/internal/services"
	"code-duel/internal/status"
)

type NotificationHandler struct {
	pubnub   services.Pubnub
	presence services.Presence
}

// NewNotificationHandler accepts a nil pubnub, in which case tokens are
// reported as unavailable.
func NewNotificationHandler(pubnub services.Pubnub, presence services.Presence) *NotificationHandler {
	return &NotificationHandler{pubnub: pubnub, presence: presence}
}

// GetToken - PubNub grant for reading the player's outcome channel. The
// caller proves the identity with the connection id from its authenticated
// acknowledgement.
func (h *NotificationHandler) GetToken(e *core.RequestEvent) error {
	if h.pubnub == nil {
		return e.JSON(http.StatusServiceUnavailable, map[string]string{
			"error":  "notifications are not configured",
			"reason": status.ReasonInternal,
		})
	}

	query := e.Request.URL.Query()
	playerID := query.Get("playerId")
	if playerID == "" {
		return respondError(e, status.ErrInvalidPlayer)
	}
	conn, ok := h.presence.Lookup(playerID)
	if !ok || conn.ID() != query.Get("connectionId") {
		return respondError(e, status.ErrNotAuthenticated)
	}

	token, err := h.pubnub.GenGrantToken(e.Request.Context(), playerID)
	if err != nil {
		slog.Error("failed to grant notification token", "playerID", playerID, "error", err)
		return apis.NewBadRequestError("Failed to grant token", err)
	}

	return e.JSON(http.StatusOK, map[string]string{
		"token":   token,
		"channel": services.PlayerChannel(playerID),
	})
}
