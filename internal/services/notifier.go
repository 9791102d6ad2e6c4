package services

import (
	"context"
	"log/slog"
	"time"

	"code-duel/models"
)

// mirroredEvents are also published to the player's PubNub channel so a
// client that lost its socket still learns how the match ended.
var mirroredEvents = map[string]bool{
	models.EventMatchWon:             true,
	models.EventMatchLost:            true,
	models.EventMatchTimeout:         true,
	models.EventOpponentDisconnected: true,
}

const mirrorPublishTimeout = 5 * time.Second

// Notifier delivers events to players through their registered connection.
type Notifier interface {
	Notify(playerID, event string, payload any) bool
}

type Fanout struct {
	registry *ConnectionRegistry
	mirror   Pubnub
}

// NewFanout builds the notification fanout. mirror may be nil.
func NewFanout(registry *ConnectionRegistry, mirror Pubnub) *Fanout {
	return &Fanout{
		registry: registry,
		mirror:   mirror,
	}
}

// Notify sends event to playerID's current connection. It reports false
// when the player has no connection or the write failed; the event is
// then dropped.
func (f *Fanout) Notify(playerID, event string, payload any) bool {
	if f.mirror != nil && mirroredEvents[event] {
		go f.publish(playerID, event, payload)
	}

	conn, ok := f.registry.Lookup(playerID)
	if !ok {
		slog.Debug("dropping event for absent player", "playerID", playerID, "event", event)
		return false
	}

	if err := conn.Send(event, payload); err != nil {
		slog.Warn("failed to deliver event", "playerID", playerID, "event", event, "conn", conn.ID(), "error", err)
		return false
	}
	return true
}

func (f *Fanout) publish(playerID, event string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorPublishTimeout)
	defer cancel()

	message := map[string]any{
		"type": event,
		"data": payload,
	}
	if _, err := f.mirror.Publish(ctx, playerID, message); err != nil {
		slog.Warn("failed to mirror event to pubnub", "playerID", playerID, "event", event, "error", err)
	}
}
