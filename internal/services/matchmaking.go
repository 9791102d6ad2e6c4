package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"code-duel/config"
	"code-duel/internal/status"
	"code-duel/models"
	"code-duel/monitoring"
)

// MatchCreator is the part of the match manager the queue and the room
// registry depend on.
type MatchCreator interface {
	CreateMatch(ctx context.Context, a, b models.PlayerRef, timeLimitMinutes int, kind models.MatchKind) (models.MatchView, error)
	InMatch(playerID string) bool
}

type bucket struct {
	mu      sync.Mutex
	tickets []models.Ticket
}

// MatchmakingQueue pairs waiting players of the same time limit in FIFO
// order. Each time limit has its own bucket and lock; lock order is bucket
// first, then the ticket index.
type MatchmakingQueue struct {
	cfg      *config.Config
	matches  MatchCreator
	notifier Notifier
	monitor  *monitoring.Monitor

	bucketsMu sync.Mutex
	buckets   map[int]*bucket

	ticketsMu sync.Mutex
	tickets   map[string]int

	now func() time.Time
}

func NewMatchmakingQueue(cfg *config.Config, matches MatchCreator, notifier Notifier, monitor *monitoring.Monitor) *MatchmakingQueue {
	return &MatchmakingQueue{
		cfg:      cfg,
		matches:  matches,
		notifier: notifier,
		monitor:  monitor,
		buckets:  make(map[int]*bucket),
		tickets:  make(map[string]int),
		now:      time.Now,
	}
}

func (q *MatchmakingQueue) bucket(timeLimit int) *bucket {
	q.bucketsMu.Lock()
	defer q.bucketsMu.Unlock()

	b, ok := q.buckets[timeLimit]
	if !ok {
		b = &bucket{}
		q.buckets[timeLimit] = b
	}
	return b
}

// Join enqueues a ticket and pairs the bucket. The joiner receives
// matchmaking-joined before any match-found produced by the pairing.
func (q *MatchmakingQueue) Join(ctx context.Context, playerID, displayName string, timeLimit int) (models.JoinResult, error) {
	if playerID == "" {
		return "", status.ErrInvalidPlayer
	}
	if !q.cfg.TimeLimitAllowed(timeLimit) {
		q.monitor.TrackQueueOperation("join", "rejected")
		return "", status.ErrInvalidTimeLimit
	}
	if q.matches.InMatch(playerID) {
		q.monitor.TrackQueueOperation("join", "rejected")
		return models.JoinAlreadyInMatch, status.ErrAlreadyInMatch
	}

	b := q.bucket(timeLimit)

	b.mu.Lock()
	q.ticketsMu.Lock()
	if _, queued := q.tickets[playerID]; queued {
		q.ticketsMu.Unlock()
		b.mu.Unlock()
		q.monitor.TrackQueueOperation("join", "rejected")
		return models.JoinAlreadyQueued, status.ErrAlreadyQueued
	}
	q.tickets[playerID] = timeLimit
	q.ticketsMu.Unlock()

	b.tickets = append(b.tickets, models.Ticket{
		PlayerID:         playerID,
		DisplayName:      displayName,
		TimeLimitMinutes: timeLimit,
		EnqueuedAt:       q.now(),
	})
	pairs := q.takePairs(b)
	b.mu.Unlock()

	q.monitor.TrackQueueOperation("join", "success")
	slog.Info("player joined matchmaking", "playerID", playerID, "timeLimitMinutes", timeLimit)

	q.notifier.Notify(playerID, models.EventMatchmakingJoined, struct{}{})

	// the pairs are out of the bucket; a request ending now must not drop them
	pairCtx := context.WithoutCancel(ctx)
	for _, pair := range pairs {
		q.startMatch(pairCtx, b, pair)
	}

	return models.JoinEnqueued, nil
}

// takePairs removes the two oldest tickets while at least two wait. It must
// be called with b.mu held.
func (q *MatchmakingQueue) takePairs(b *bucket) [][2]models.Ticket {
	var pairs [][2]models.Ticket
	for len(b.tickets) >= 2 {
		pair := [2]models.Ticket{b.tickets[0], b.tickets[1]}
		b.tickets = b.tickets[2:]

		q.ticketsMu.Lock()
		delete(q.tickets, pair[0].PlayerID)
		delete(q.tickets, pair[1].PlayerID)
		q.ticketsMu.Unlock()

		pairs = append(pairs, pair)
	}
	return pairs
}

func (q *MatchmakingQueue) startMatch(ctx context.Context, b *bucket, pair [2]models.Ticket) {
	a := models.PlayerRef{PlayerID: pair[0].PlayerID, DisplayName: pair[0].DisplayName}
	c := models.PlayerRef{PlayerID: pair[1].PlayerID, DisplayName: pair[1].DisplayName}

	_, err := q.matches.CreateMatch(ctx, a, c, pair[0].TimeLimitMinutes, models.MatchPublic)
	if err == nil {
		q.monitor.TrackQueueOperation("pair", "success")
		return
	}

	q.monitor.TrackQueueOperation("pair", "failed")

	if errors.Is(err, status.ErrAlreadyInMatch) {
		// whoever got into a match elsewhere loses the ticket; the other
		// keeps their place at the head of the bucket
		requeued := false
		for _, t := range pair {
			if !q.matches.InMatch(t.PlayerID) && q.requeue(b, t) {
				requeued = true
			}
		}
		slog.Info("pairing skipped busy player", "playerA", a.PlayerID, "playerB", c.PlayerID)
		if !requeued {
			return
		}

		// someone may have joined while the pair was out of the bucket
		b.mu.Lock()
		pairs := q.takePairs(b)
		b.mu.Unlock()
		for _, next := range pairs {
			q.startMatch(ctx, b, next)
		}
		return
	}

	slog.Error("failed to create match from queue", "playerA", a.PlayerID, "playerB", c.PlayerID, "error", err)
	payload := models.ErrorPayload{Reason: status.Reason(err), Message: "could not start the match, please queue again"}
	for _, t := range pair {
		q.notifier.Notify(t.PlayerID, models.EventError, payload)
	}
}

// requeue puts t back into b in enqueue order and reports whether it did.
// A player who queued again in the meantime keeps the newer ticket.
func (q *MatchmakingQueue) requeue(b *bucket, t models.Ticket) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	q.ticketsMu.Lock()
	if _, queued := q.tickets[t.PlayerID]; queued {
		q.ticketsMu.Unlock()
		return false
	}
	q.tickets[t.PlayerID] = t.TimeLimitMinutes
	q.ticketsMu.Unlock()

	b.tickets = append(b.tickets, t)
	sort.SliceStable(b.tickets, func(i, j int) bool {
		return b.tickets[i].EnqueuedAt.Before(b.tickets[j].EnqueuedAt)
	})
	return true
}

// Leave removes the player's ticket. It reports whether a ticket existed;
// leaving twice is harmless.
func (q *MatchmakingQueue) Leave(playerID string) bool {
	q.ticketsMu.Lock()
	timeLimit, ok := q.tickets[playerID]
	q.ticketsMu.Unlock()
	if !ok {
		return false
	}

	b := q.bucket(timeLimit)
	b.mu.Lock()
	defer b.mu.Unlock()

	q.ticketsMu.Lock()
	current, ok := q.tickets[playerID]
	if !ok || current != timeLimit {
		q.ticketsMu.Unlock()
		return false
	}
	delete(q.tickets, playerID)
	q.ticketsMu.Unlock()

	for i, t := range b.tickets {
		if t.PlayerID == playerID {
			b.tickets = append(b.tickets[:i], b.tickets[i+1:]...)
			break
		}
	}

	q.monitor.TrackQueueOperation("leave", "success")
	slog.Info("player left matchmaking", "playerID", playerID, "timeLimitMinutes", timeLimit)
	return true
}

// Queued reports whether playerID holds a ticket.
func (q *MatchmakingQueue) Queued(playerID string) bool {
	q.ticketsMu.Lock()
	defer q.ticketsMu.Unlock()
	_, ok := q.tickets[playerID]
	return ok
}

// Snapshot reports the waiting tickets per bucket.
func (q *MatchmakingQueue) Snapshot() []models.BucketMetrics {
	q.bucketsMu.Lock()
	limits := make([]int, 0, len(q.buckets))
	for limit := range q.buckets {
		limits = append(limits, limit)
	}
	q.bucketsMu.Unlock()
	sort.Ints(limits)

	now := q.now()
	metrics := make([]models.BucketMetrics, 0, len(limits))
	for _, limit := range limits {
		b := q.bucket(limit)
		b.mu.Lock()
		m := models.BucketMetrics{
			TimeLimitMinutes: limit,
			Waiting:          len(b.tickets),
			LastUpdated:      now,
		}
		if len(b.tickets) > 0 {
			m.OldestWait = now.Sub(b.tickets[0].EnqueuedAt).Seconds()
		}
		b.mu.Unlock()
		metrics = append(metrics, m)
	}
	return metrics
}
