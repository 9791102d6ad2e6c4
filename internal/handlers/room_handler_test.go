package handlers

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code-duel/internal/status"
	"code-duel/models"
)

func createRoom(t *testing.T, h *RoomHandler, creatorID string) string {
	t.Helper()

	e, rec := newRequestEvent(http.MethodPost, "/api/v1/rooms", map[string]any{
		"timeLimitMinutes": 10,
		"creatorId":        creatorID,
		"creatorName":      "Cleo",
	})
	require.NoError(t, h.CreateRoom(e))
	require.Equal(t, http.StatusCreated, rec.Code)

	code, _ := decodeBody(t, rec)["roomCode"].(string)
	require.NotEmpty(t, code)
	return code
}

func TestRoomHandler_CreateRoom(t *testing.T) {
	env := setupTestEnv(t)
	env.connect("C")
	h := NewRoomHandler(env.rooms)

	code := createRoom(t, h, "C")

	assert.Len(t, code, env.cfg.RoomCodeLength)
	room, ok := env.rooms.Get(code)
	require.True(t, ok)
	assert.Equal(t, models.RoomWaiting, room.Status)
	assert.Equal(t, 10, room.TimeLimitMinutes)
}

func TestRoomHandler_CreateRoom_Rejections(t *testing.T) {
	env := setupTestEnv(t)
	env.connect("C")
	h := NewRoomHandler(env.rooms)

	tests := []struct {
		name   string
		body   map[string]any
		code   int
		reason string
	}{
		{"missing creator", map[string]any{"timeLimitMinutes": 10}, http.StatusBadRequest, status.ReasonInvalidRequest},
		{"bad time limit", map[string]any{"timeLimitMinutes": 7, "creatorId": "C"}, http.StatusBadRequest, status.ReasonInvalidTimeLimit},
		{"not connected", map[string]any{"timeLimitMinutes": 10, "creatorId": "ghost"}, http.StatusUnauthorized, status.ReasonNotAuthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec := newRequestEvent(http.MethodPost, "/api/v1/rooms", tt.body)
			require.NoError(t, h.CreateRoom(e))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.reason, decodeBody(t, rec)["reason"])
		})
	}
	assert.Zero(t, env.rooms.Waiting())
}

func TestRoomHandler_JoinRoom(t *testing.T) {
	env := setupTestEnv(t)
	creator := env.connect("C")
	joiner := env.connect("J")
	h := NewRoomHandler(env.rooms)
	code := createRoom(t, h, "C")

	e, rec := newRequestEvent(http.MethodPost, "/api/v1/rooms/join", map[string]any{
		"roomCode":   code,
		"playerId":   "J",
		"playerName": "Jo",
	})
	require.NoError(t, h.JoinRoom(e))
	require.Equal(t, http.StatusOK, rec.Code)

	match, ok := decodeBody(t, rec)["match"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(models.MatchPrivate), match["kind"])
	opponent, _ := match["opponent"].(map[string]any)
	assert.Equal(t, "C", opponent["playerId"])

	assert.Contains(t, creator.Names(), models.EventPrivateMatchFound)
	assert.Contains(t, joiner.Names(), models.EventPrivateMatchCreated)

	// a second claim loses
	e, rec = newRequestEvent(http.MethodPost, "/api/v1/rooms/join", map[string]any{
		"roomCode": code,
		"playerId": "K",
	})
	require.NoError(t, h.JoinRoom(e))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, status.ReasonAlreadyClaimed, decodeBody(t, rec)["reason"])
}

func TestRoomHandler_JoinRoom_Rejections(t *testing.T) {
	env := setupTestEnv(t)
	env.connect("C")
	h := NewRoomHandler(env.rooms)
	code := createRoom(t, h, "C")

	tests := []struct {
		name   string
		body   map[string]any
		code   int
		reason string
	}{
		{"empty code", map[string]any{"playerId": "J"}, http.StatusNotFound, status.ReasonNotFound},
		{"unknown code", map[string]any{"roomCode": "ZZZZZZ", "playerId": "J"}, http.StatusNotFound, status.ReasonNotFound},
		{"self join", map[string]any{"roomCode": code, "playerId": "C"}, http.StatusBadRequest, status.ReasonSelfJoin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec := newRequestEvent(http.MethodPost, "/api/v1/rooms/join", tt.body)
			require.NoError(t, h.JoinRoom(e))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.reason, decodeBody(t, rec)["reason"])
		})
	}

	room, ok := env.rooms.Get(code)
	require.True(t, ok)
	assert.Equal(t, models.RoomWaiting, room.Status)
}

func TestRoomHandler_MalformedBody(t *testing.T) {
	env := setupTestEnv(t)
	h := NewRoomHandler(env.rooms)

	e, _ := newRequestEvent(http.MethodPost, "/api/v1/rooms", nil)
	e.Request.Body = io.NopCloser(strings.NewReader("{"))

	assert.Error(t, h.CreateRoom(e))
	assert.Zero(t, env.rooms.Waiting())
}

func TestRoomHandler_GetRoom(t *testing.T) {
	env := setupTestEnv(t)
	env.connect("C")
	h := NewRoomHandler(env.rooms)
	code := createRoom(t, h, "C")

	e, rec := newRequestEvent(http.MethodGet, "/api/v1/rooms/"+code, nil)
	e.Request.SetPathValue("code", code)
	require.NoError(t, h.GetRoom(e))
	require.Equal(t, http.StatusOK, rec.Code)
	room, _ := decodeBody(t, rec)["room"].(map[string]any)
	assert.Equal(t, code, room["roomCode"])
	assert.Equal(t, string(models.RoomWaiting), room["status"])

	e, rec = newRequestEvent(http.MethodGet, "/api/v1/rooms/NOPE00", nil)
	e.Request.SetPathValue("code", "NOPE00")
	require.NoError(t, h.GetRoom(e))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
