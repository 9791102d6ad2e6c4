package services

import (
	"log/slog"
	"sync"
	"time"

	"code-duel/models"
)

// Conn is a live, persistent connection to one player.
type Conn interface {
	ID() string
	Send(event string, payload any) error
	Close() error
}

type session struct {
	conn        Conn
	displayName string
	connectedAt time.Time
}

// ConnectionRegistry binds player identities to their live connection. It
// is the only place connections are looked up from.
type ConnectionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	byConn   map[string]string

	hooksMu         sync.RWMutex
	registerHooks   []func(playerID string)
	disconnectHooks []func(playerID string)
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		sessions: make(map[string]*session),
		byConn:   make(map[string]string),
	}
}

// OnRegistered adds a hook fired after every successful Register.
func (r *ConnectionRegistry) OnRegistered(hook func(playerID string)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.registerHooks = append(r.registerHooks, hook)
}

// OnDisconnected adds a hook fired when a player's current connection drops.
func (r *ConnectionRegistry) OnDisconnected(hook func(playerID string)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.disconnectHooks = append(r.disconnectHooks, hook)
}

// Register binds conn to playerID, replacing and closing any previous
// connection for the same player. Registering the same connection twice is
// a no-op apart from refreshing the display name.
func (r *ConnectionRegistry) Register(playerID, displayName string, conn Conn) {
	r.mu.Lock()
	var replaced Conn
	if prev, ok := r.sessions[playerID]; ok && prev.conn.ID() != conn.ID() {
		replaced = prev.conn
		delete(r.byConn, prev.conn.ID())
	}
	// a connection re-authenticating as someone else leaves its old identity
	var switched string
	if prevPlayer, ok := r.byConn[conn.ID()]; ok && prevPlayer != playerID {
		delete(r.sessions, prevPlayer)
		switched = prevPlayer
	}
	r.sessions[playerID] = &session{
		conn:        conn,
		displayName: displayName,
		connectedAt: time.Now(),
	}
	r.byConn[conn.ID()] = playerID
	r.mu.Unlock()

	if replaced != nil {
		slog.Info("replacing player connection", "playerID", playerID, "oldConn", replaced.ID(), "newConn", conn.ID())
		if err := replaced.Close(); err != nil {
			slog.Warn("closing replaced connection", "playerID", playerID, "error", err)
		}
	}

	if switched != "" {
		slog.Info("connection switched identity", "conn", conn.ID(), "from", switched, "to", playerID)
		r.fireDisconnected(switched)
	}

	r.hooksMu.RLock()
	hooks := r.registerHooks
	r.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(playerID)
	}
}

func (r *ConnectionRegistry) fireDisconnected(playerID string) {
	r.hooksMu.RLock()
	hooks := r.disconnectHooks
	r.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(playerID)
	}
}

func (r *ConnectionRegistry) Lookup(playerID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[playerID]
	if !ok {
		return nil, false
	}
	return s.conn, true
}

// PlayerFor returns the identity bound to conn, if any.
func (r *ConnectionRegistry) PlayerFor(conn Conn) (models.PlayerRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	playerID, ok := r.byConn[conn.ID()]
	if !ok {
		return models.PlayerRef{}, false
	}
	return models.PlayerRef{
		PlayerID:     playerID,
		DisplayName:  r.sessions[playerID].displayName,
		ConnectionID: conn.ID(),
	}, true
}

// OnDisconnect is called by the transport when conn drops. It returns the
// player whose current connection it was; a connection that had already
// been replaced by a reconnect resolves to nothing and fires no hooks.
func (r *ConnectionRegistry) OnDisconnect(conn Conn) (string, bool) {
	r.mu.Lock()
	playerID, ok := r.byConn[conn.ID()]
	if ok {
		delete(r.byConn, conn.ID())
		delete(r.sessions, playerID)
	}
	r.mu.Unlock()

	if !ok {
		return "", false
	}

	slog.Info("player disconnected", "playerID", playerID, "conn", conn.ID())
	r.fireDisconnected(playerID)

	return playerID, true
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// BindConnectionLifecycle wires connection events into the queue, the room
// registry and the match manager. A player who enters a match by any route
// gives up their queue ticket.
func BindConnectionLifecycle(registry *ConnectionRegistry, queue *MatchmakingQueue, rooms *RoomRegistry, matches *MatchManager) {
	matches.OnMatchCreated(func(view models.MatchView) {
		for _, p := range view.Players {
			queue.Leave(p.PlayerID)
		}
	})
	registry.OnRegistered(matches.Resume)
	registry.OnDisconnected(func(playerID string) { queue.Leave(playerID) })
	registry.OnDisconnected(rooms.CancelByCreator)
	registry.OnDisconnected(matches.PlayerDisconnected)
}
