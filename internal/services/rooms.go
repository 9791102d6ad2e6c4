package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"code-duel/config"
	"code-duel/internal/status"
	"code-duel/models"
	"code-duel/monitoring"
	"code-duel/utils"
)

const (
	maxRoomCodeAttempts = 10

	// claimed rooms stay visible for a while so late joiners are told the
	// room was claimed rather than that it never existed
	claimedRoomRetention = time.Minute
)

type roomEntry struct {
	mu        sync.Mutex
	room      models.Room
	claimedAt time.Time
}

// RoomRegistry holds private rooms by code. The index lock guards the maps;
// each room has its own lock serializing claim and expiry. A room lock may
// be held while taking the index lock, never the other way round.
type RoomRegistry struct {
	cfg      *config.Config
	matches  MatchCreator
	presence Presence
	monitor  *monitoring.Monitor

	mu        sync.RWMutex
	rooms     map[string]*roomEntry
	byCreator map[string]string

	now      func() time.Time
	generate func(length int) (string, error)
}

func NewRoomRegistry(cfg *config.Config, matches MatchCreator, presence Presence, monitor *monitoring.Monitor) *RoomRegistry {
	return &RoomRegistry{
		cfg:       cfg,
		matches:   matches,
		presence:  presence,
		monitor:   monitor,
		rooms:     make(map[string]*roomEntry),
		byCreator: make(map[string]string),
		now:       time.Now,
		generate:  utils.GenerateRoomCode,
	}
}

// NormalizeRoomCode is applied to every code received from a client.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create opens a waiting room for creatorID. A creator holds at most one
// waiting room; an older one is expired.
func (r *RoomRegistry) Create(creatorID, creatorName string, timeLimit int) (models.Room, error) {
	if creatorID == "" {
		return models.Room{}, status.ErrInvalidPlayer
	}
	if !r.cfg.TimeLimitAllowed(timeLimit) {
		r.monitor.TrackQueueOperation("room_create", "rejected")
		return models.Room{}, status.ErrInvalidTimeLimit
	}
	if _, ok := r.presence.Lookup(creatorID); !ok {
		return models.Room{}, status.ErrNotAuthenticated
	}
	if r.matches.InMatch(creatorID) {
		r.monitor.TrackQueueOperation("room_create", "rejected")
		return models.Room{}, status.ErrAlreadyInMatch
	}

	r.CancelByCreator(creatorID)

	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	for attempt := 0; ; attempt++ {
		if attempt == maxRoomCodeAttempts {
			return models.Room{}, fmt.Errorf("Create: no free room code after %d attempts", maxRoomCodeAttempts)
		}
		candidate, err := r.generate(r.cfg.RoomCodeLength)
		if err != nil {
			return models.Room{}, fmt.Errorf("Create: %w", err)
		}
		if _, taken := r.rooms[candidate]; !taken {
			code = candidate
			break
		}
	}

	room := models.Room{
		RoomCode:         code,
		CreatorID:        creatorID,
		CreatorName:      creatorName,
		TimeLimitMinutes: timeLimit,
		CreatedAt:        r.now(),
		Status:           models.RoomWaiting,
	}
	r.rooms[code] = &roomEntry{room: room}
	r.byCreator[creatorID] = code

	r.monitor.TrackQueueOperation("room_create", "success")
	slog.Info("room created", "roomCode", code, "creatorID", creatorID, "timeLimitMinutes", timeLimit)

	return room, nil
}

func (r *RoomRegistry) entry(code string) (*roomEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[code]
	return e, ok
}

// Join claims the room for playerID and starts the private match. Only
// one join per room can ever succeed.
func (r *RoomRegistry) Join(ctx context.Context, code, playerID, playerName string) (models.MatchView, error) {
	if playerID == "" {
		return models.MatchView{}, status.ErrInvalidPlayer
	}
	code = NormalizeRoomCode(code)

	e, ok := r.entry(code)
	if !ok {
		r.monitor.TrackQueueOperation("room_join", "not_found")
		return models.MatchView{}, status.ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.room.Status {
	case models.RoomClaimed:
		r.monitor.TrackQueueOperation("room_join", "claimed")
		return models.MatchView{}, status.ErrRoomClaimed
	case models.RoomExpired:
		r.monitor.TrackQueueOperation("room_join", "not_found")
		return models.MatchView{}, status.ErrRoomNotFound
	}
	if r.now().Sub(e.room.CreatedAt) > r.cfg.RoomWaitTimeout {
		r.expireLocked(e, "timed out")
		r.monitor.TrackQueueOperation("room_join", "not_found")
		return models.MatchView{}, status.ErrRoomNotFound
	}
	if e.room.CreatorID == playerID {
		r.monitor.TrackQueueOperation("room_join", "rejected")
		return models.MatchView{}, status.ErrSelfJoin
	}
	if _, ok := r.presence.Lookup(playerID); !ok {
		return models.MatchView{}, status.ErrNotAuthenticated
	}

	creator := models.PlayerRef{PlayerID: e.room.CreatorID, DisplayName: e.room.CreatorName}
	joiner := models.PlayerRef{PlayerID: playerID, DisplayName: playerName}

	view, err := r.matches.CreateMatch(ctx, creator, joiner, e.room.TimeLimitMinutes, models.MatchPrivate)
	if err != nil {
		r.monitor.TrackQueueOperation("room_join", "failed")
		return models.MatchView{}, fmt.Errorf("Join: %w", err)
	}

	e.room.Status = models.RoomClaimed
	e.room.MatchID = view.MatchID
	e.claimedAt = r.now()

	r.mu.Lock()
	if r.byCreator[e.room.CreatorID] == code {
		delete(r.byCreator, e.room.CreatorID)
	}
	r.mu.Unlock()

	r.monitor.TrackQueueOperation("room_join", "success")
	slog.Info("room claimed", "roomCode", code, "creatorID", creator.PlayerID, "joinerID", playerID, "matchID", view.MatchID)

	return view.For(playerID), nil
}

// expireLocked marks a waiting room expired and drops it from the index. It
// must be called with e.mu held.
func (r *RoomRegistry) expireLocked(e *roomEntry, why string) {
	e.room.Status = models.RoomExpired

	r.mu.Lock()
	if r.rooms[e.room.RoomCode] == e {
		delete(r.rooms, e.room.RoomCode)
	}
	if r.byCreator[e.room.CreatorID] == e.room.RoomCode {
		delete(r.byCreator, e.room.CreatorID)
	}
	r.mu.Unlock()

	slog.Info("room expired", "roomCode", e.room.RoomCode, "creatorID", e.room.CreatorID, "reason", why)
}

// CancelByCreator expires the waiting room of creatorID, if any.
func (r *RoomRegistry) CancelByCreator(creatorID string) {
	r.mu.RLock()
	code, ok := r.byCreator[creatorID]
	var e *roomEntry
	if ok {
		e = r.rooms[code]
	}
	r.mu.RUnlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room.Status == models.RoomWaiting {
		r.expireLocked(e, "cancelled by creator")
	}
}

// Get returns the current state of a room.
func (r *RoomRegistry) Get(code string) (models.Room, bool) {
	e, ok := r.entry(NormalizeRoomCode(code))
	if !ok {
		return models.Room{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room, true
}

// PurgeExpired expires waiting rooms past the wait bound and forgets
// claimed rooms past their retention.
func (r *RoomRegistry) PurgeExpired() int {
	r.mu.RLock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	now := r.now()
	purged := 0
	for _, e := range entries {
		e.mu.Lock()
		switch {
		case e.room.Status == models.RoomWaiting && now.Sub(e.room.CreatedAt) > r.cfg.RoomWaitTimeout:
			r.expireLocked(e, "timed out")
			purged++
		case e.room.Status == models.RoomClaimed && now.Sub(e.claimedAt) > claimedRoomRetention:
			r.mu.Lock()
			if r.rooms[e.room.RoomCode] == e {
				delete(r.rooms, e.room.RoomCode)
			}
			r.mu.Unlock()
			purged++
		}
		e.mu.Unlock()
	}
	return purged
}

// Waiting is the number of rooms still open for a joiner.
func (r *RoomRegistry) Waiting() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCreator)
}
