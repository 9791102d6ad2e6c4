package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"code-duel/internal/status"
	"code-duel/models"
	"code-duel/monitoring"
)

const (
	msgMatchWon             = "You solved it first. You win!"
	msgMatchLost            = "Your opponent solved the problem first."
	msgMatchTimeout         = "Time is up. The match ended in a draw."
	msgOpponentDisconnected = "Your opponent disconnected. You win!"
)

// ProblemPicker chooses the problem for a new match. MarkSeen is only
// called for picks that ended up in a registered match.
type ProblemPicker interface {
	PickProblem(ctx context.Context, playerIDs []string) (models.Problem, error)
	MarkSeen(ctx context.Context, problemID string, playerIDs []string)
}

// Presence reports whether a player currently holds a live connection.
type Presence interface {
	Lookup(playerID string) (Conn, bool)
}

type match struct {
	mu sync.Mutex

	id        string
	kind      models.MatchKind
	players   [2]models.PlayerRef
	problem   models.Problem
	timeLimit int
	start     time.Time
	end       time.Time
	status    models.MatchStatus
	outcome   models.Outcome
	decidedAt time.Time
	timer     *time.Timer
}

// participant only reads player ids, which never change after creation.
func (m *match) participant(playerID string) (int, bool) {
	for i := range m.players {
		if m.players[i].PlayerID == playerID {
			return i, true
		}
	}
	return -1, false
}

// view must be called with m.mu held.
func (m *match) view(now time.Time) models.MatchView {
	v := models.MatchView{
		MatchID:          m.id,
		Kind:             m.kind,
		Players:          m.players,
		Problem:          m.problem,
		TimeLimitMinutes: m.timeLimit,
		StartTime:        m.start,
		EndTime:          m.end,
		ServerTime:       now,
		RemainingSeconds: models.RemainingSeconds(now, m.end),
		Status:           m.status,
	}
	if m.outcome.Decided() {
		outcome := m.outcome
		v.Outcome = &outcome
		v.RemainingSeconds = 0
	}
	return v
}

// MatchManager owns every match from creation to its single outcome.
type MatchManager struct {
	problems  ProblemPicker
	notifier  Notifier
	presence  Presence
	monitor   *monitoring.Monitor
	retention time.Duration

	mu       sync.RWMutex
	matches  map[string]*match
	byPlayer map[string]*match

	hooksMu      sync.RWMutex
	createdHooks []func(models.MatchView)

	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
}

func NewMatchManager(problems ProblemPicker, notifier Notifier, presence Presence, monitor *monitoring.Monitor, retention time.Duration) *MatchManager {
	return &MatchManager{
		problems:  problems,
		notifier:  notifier,
		presence:  presence,
		monitor:   monitor,
		retention: retention,
		matches:   make(map[string]*match),
		byPlayer:  make(map[string]*match),
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
}

// OnMatchCreated adds a hook fired once a match is registered, before the
// players are notified.
func (mm *MatchManager) OnMatchCreated(hook func(models.MatchView)) {
	mm.hooksMu.Lock()
	defer mm.hooksMu.Unlock()
	mm.createdHooks = append(mm.createdHooks, hook)
}

// CreateMatch starts a match between a and b. For private matches a is the
// room creator. Both players are notified and the timeout is scheduled
// before it returns.
func (mm *MatchManager) CreateMatch(ctx context.Context, a, b models.PlayerRef, timeLimitMinutes int, kind models.MatchKind) (models.MatchView, error) {
	if a.PlayerID == "" || b.PlayerID == "" {
		return models.MatchView{}, status.ErrInvalidPlayer
	}
	if a.PlayerID == b.PlayerID {
		return models.MatchView{}, status.ErrSamePlayer
	}
	if timeLimitMinutes <= 0 {
		return models.MatchView{}, status.ErrInvalidTimeLimit
	}
	if mm.InMatch(a.PlayerID) || mm.InMatch(b.PlayerID) {
		return models.MatchView{}, status.ErrAlreadyInMatch
	}

	problem, err := mm.problems.PickProblem(ctx, []string{a.PlayerID, b.PlayerID})
	if err != nil {
		return models.MatchView{}, fmt.Errorf("CreateMatch: pick problem: %w", err)
	}

	players := [2]models.PlayerRef{a, b}
	for i := range players {
		if conn, ok := mm.presence.Lookup(players[i].PlayerID); ok {
			players[i].ConnectionID = conn.ID()
		}
	}

	start := mm.now()
	m := &match{
		id:        uuid.NewString(),
		kind:      kind,
		players:   players,
		problem:   problem,
		timeLimit: timeLimitMinutes,
		start:     start,
		end:       models.EndTimeFor(start, timeLimitMinutes),
		status:    models.MatchActive,
	}

	mm.mu.Lock()
	if mm.byPlayer[a.PlayerID] != nil || mm.byPlayer[b.PlayerID] != nil {
		mm.mu.Unlock()
		return models.MatchView{}, status.ErrAlreadyInMatch
	}
	mm.matches[m.id] = m
	mm.byPlayer[a.PlayerID] = m
	mm.byPlayer[b.PlayerID] = m
	mm.mu.Unlock()

	m.mu.Lock()
	if m.status == models.MatchActive {
		m.timer = mm.afterFunc(m.end.Sub(start), func() { mm.OnTimeout(m.id) })
	}
	view := m.view(mm.now())
	m.mu.Unlock()

	mm.problems.MarkSeen(ctx, problem.ID, []string{a.PlayerID, b.PlayerID})

	mm.hooksMu.RLock()
	hooks := mm.createdHooks
	mm.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(view)
	}

	slog.Info("match created",
		"matchID", m.id,
		"kind", kind,
		"playerA", a.PlayerID,
		"playerB", b.PlayerID,
		"problemID", problem.ID,
		"timeLimitMinutes", timeLimitMinutes,
		"endTime", m.end)

	eventA, eventB := models.EventMatchFound, models.EventMatchFound
	if kind == models.MatchPrivate {
		eventA, eventB = models.EventPrivateMatchFound, models.EventPrivateMatchCreated
	}
	mm.notifier.Notify(a.PlayerID, eventA, models.MatchPayload{Match: view.For(a.PlayerID)})
	mm.notifier.Notify(b.PlayerID, eventB, models.MatchPayload{Match: view.For(b.PlayerID)})

	// a player who dropped while the match was being set up forfeits it
	for _, p := range players {
		if _, ok := mm.presence.Lookup(p.PlayerID); !ok {
			mm.OnPlayerDisconnected(m.id, p.PlayerID)
			break
		}
	}

	return view, nil
}

// decide writes the outcome once. It reports false, together with the
// outcome already in place, when the match had been decided before.
func (mm *MatchManager) decide(m *match, outcome models.Outcome) (models.Outcome, bool) {
	m.mu.Lock()
	if m.status == models.MatchFinished {
		decided := m.outcome
		m.mu.Unlock()
		return decided, false
	}
	now := mm.now()
	m.outcome = outcome
	m.status = models.MatchFinished
	m.decidedAt = now
	if m.timer != nil {
		m.timer.Stop()
	}
	players := m.players
	elapsed := now.Sub(m.start)
	m.mu.Unlock()

	mm.mu.Lock()
	for _, p := range players {
		if mm.byPlayer[p.PlayerID] == m {
			delete(mm.byPlayer, p.PlayerID)
		}
	}
	mm.mu.Unlock()

	mm.monitor.TrackMatchOutcome(string(outcome.Kind), elapsed)
	slog.Info("match decided", "matchID", m.id, "outcome", outcome.Kind, "playerID", outcome.PlayerID, "elapsed", elapsed)

	return outcome, true
}

func (mm *MatchManager) get(matchID string) (*match, bool) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	m, ok := mm.matches[matchID]
	return m, ok
}

// RecordSubmissionOutcome handles a judge verdict. Only the first accepted
// verdict of a match wins it; the returned bool reports whether this call
// decided the match.
func (mm *MatchManager) RecordSubmissionOutcome(matchID, playerID string, accepted bool) (models.Outcome, bool, error) {
	m, ok := mm.get(matchID)
	if !ok {
		return models.Outcome{}, false, status.ErrMatchNotFound
	}
	idx, ok := m.participant(playerID)
	if !ok {
		return models.Outcome{}, false, status.ErrNotParticipant
	}

	if !accepted {
		m.mu.Lock()
		current := m.outcome
		m.mu.Unlock()
		return current, false, nil
	}

	outcome, won := mm.decide(m, models.Won(playerID))
	if !won {
		slog.Debug("late accepted submission ignored", "matchID", matchID, "playerID", playerID, "outcome", outcome.Kind)
		return outcome, false, nil
	}

	payload := models.OutcomePayload{MatchID: matchID, Outcome: outcome}
	payload.Message = msgMatchWon
	mm.notifier.Notify(playerID, models.EventMatchWon, payload)
	payload.Message = msgMatchLost
	mm.notifier.Notify(m.players[1-idx].PlayerID, models.EventMatchLost, payload)

	return outcome, true, nil
}

// OnTimeout ends an undecided match in a draw. It runs from the match timer.
func (mm *MatchManager) OnTimeout(matchID string) {
	m, ok := mm.get(matchID)
	if !ok {
		return
	}

	outcome, decided := mm.decide(m, models.Draw())
	if !decided {
		return
	}

	payload := models.OutcomePayload{MatchID: matchID, Message: msgMatchTimeout, Outcome: outcome}
	for i := range m.players {
		mm.notifier.Notify(m.players[i].PlayerID, models.EventMatchTimeout, payload)
	}
}

// OnPlayerDisconnected awards an undecided match to the player who stayed.
func (mm *MatchManager) OnPlayerDisconnected(matchID, playerID string) {
	m, ok := mm.get(matchID)
	if !ok {
		return
	}
	idx, ok := m.participant(playerID)
	if !ok {
		return
	}

	outcome, decided := mm.decide(m, models.Disconnect(playerID))
	if !decided {
		return
	}

	mm.notifier.Notify(m.players[1-idx].PlayerID, models.EventOpponentDisconnected, models.OutcomePayload{
		MatchID: matchID,
		Message: msgOpponentDisconnected,
		Outcome: outcome,
	})
}

// PlayerDisconnected resolves the live match of playerID, if any.
func (mm *MatchManager) PlayerDisconnected(playerID string) {
	mm.mu.RLock()
	m, ok := mm.byPlayer[playerID]
	mm.mu.RUnlock()
	if !ok {
		return
	}
	mm.OnPlayerDisconnected(m.id, playerID)
}

// Resume re-sends the live match to a player who reconnected and points the
// match at the new connection.
func (mm *MatchManager) Resume(playerID string) {
	mm.mu.RLock()
	m, ok := mm.byPlayer[playerID]
	mm.mu.RUnlock()
	if !ok {
		return
	}

	m.mu.Lock()
	if m.status != models.MatchActive {
		m.mu.Unlock()
		return
	}
	if idx, ok := m.participant(playerID); ok {
		if conn, ok := mm.presence.Lookup(playerID); ok {
			m.players[idx].ConnectionID = conn.ID()
		}
	}
	view := m.view(mm.now())
	m.mu.Unlock()

	slog.Info("resuming match", "matchID", m.id, "playerID", playerID)
	mm.notifier.Notify(playerID, models.EventMatchResumed, models.MatchPayload{Match: view.For(playerID)})
}

func (mm *MatchManager) InMatch(playerID string) bool {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	_, ok := mm.byPlayer[playerID]
	return ok
}

// LiveMatchFor returns the active match of playerID.
func (mm *MatchManager) LiveMatchFor(playerID string) (models.MatchView, bool) {
	mm.mu.RLock()
	m, ok := mm.byPlayer[playerID]
	mm.mu.RUnlock()
	if !ok {
		return models.MatchView{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view(mm.now()).For(playerID), true
}

// View returns a snapshot of a live or recently finished match.
func (mm *MatchManager) View(matchID string) (models.MatchView, error) {
	m, ok := mm.get(matchID)
	if !ok {
		return models.MatchView{}, status.ErrMatchNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view(mm.now()), nil
}

// Clock reports the authoritative timing of a match to one of its players.
func (mm *MatchManager) Clock(matchID, playerID string) (models.ClockPayload, error) {
	m, ok := mm.get(matchID)
	if !ok {
		return models.ClockPayload{}, status.ErrMatchNotFound
	}
	if _, ok := m.participant(playerID); !ok {
		return models.ClockPayload{}, status.ErrNotParticipant
	}

	now := mm.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := models.RemainingSeconds(now, m.end)
	if m.status == models.MatchFinished {
		remaining = 0
	}
	return models.ClockPayload{
		MatchID:          m.id,
		ServerTime:       now,
		EndTime:          m.end,
		RemainingSeconds: remaining,
	}, nil
}

// ActiveProblem returns the problem of a match that playerID may still
// submit to.
func (mm *MatchManager) ActiveProblem(matchID, playerID string) (models.Problem, error) {
	m, ok := mm.get(matchID)
	if !ok {
		return models.Problem{}, status.ErrMatchNotFound
	}
	if _, ok := m.participant(playerID); !ok {
		return models.Problem{}, status.ErrNotParticipant
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != models.MatchActive {
		return models.Problem{}, status.ErrMatchFinished
	}
	return m.problem, nil
}

// PurgeFinished drops matches decided longer than the retention ago.
func (mm *MatchManager) PurgeFinished() int {
	cutoff := mm.now().Add(-mm.retention)

	mm.mu.RLock()
	candidates := make([]*match, 0, len(mm.matches))
	for _, m := range mm.matches {
		candidates = append(candidates, m)
	}
	mm.mu.RUnlock()

	var expired []string
	for _, m := range candidates {
		m.mu.Lock()
		if m.status == models.MatchFinished && m.decidedAt.Before(cutoff) {
			expired = append(expired, m.id)
		}
		m.mu.Unlock()
	}
	if len(expired) == 0 {
		return 0
	}

	mm.mu.Lock()
	for _, id := range expired {
		delete(mm.matches, id)
	}
	mm.mu.Unlock()

	return len(expired)
}

// LiveCount is the number of active matches.
func (mm *MatchManager) LiveCount() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	live := make(map[*match]struct{}, len(mm.byPlayer)/2)
	for _, m := range mm.byPlayer {
		live[m] = struct{}{}
	}
	return len(live)
}

// Shutdown stops every pending timeout.
func (mm *MatchManager) Shutdown() {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	for _, m := range mm.matches {
		m.mu.Lock()
		if m.timer != nil {
			m.timer.Stop()
		}
		m.mu.Unlock()
	}
}
