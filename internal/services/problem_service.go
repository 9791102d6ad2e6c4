package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"code-duel/internal/status"
	"code-duel/models"
)

const problemsCollection = "problems"

// ProblemStore is the catalogue of problems a match can be played on.
type ProblemStore interface {
	ActiveProblemIDs(ctx context.Context) ([]string, error)
	FindProblem(ctx context.Context, id string) (models.Problem, error)
}

// PocketBaseProblemStore reads problems from the pocketbase "problems"
// collection.
type PocketBaseProblemStore struct {
	app core.App
}

func NewPocketBaseProblemStore(app core.App) *PocketBaseProblemStore {
	return &PocketBaseProblemStore{app: app}
}

func (s *PocketBaseProblemStore) ActiveProblemIDs(ctx context.Context) ([]string, error) {
	var rows []struct {
		ID string `db:"id"`
	}
	err := s.app.DB().
		NewQuery("SELECT id FROM problems WHERE active = {:active}").
		Bind(dbx.Params{"active": true}).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("ActiveProblemIDs: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (s *PocketBaseProblemStore) FindProblem(ctx context.Context, id string) (models.Problem, error) {
	record, err := s.app.FindRecordById(problemsCollection, id)
	if err != nil {
		return models.Problem{}, fmt.Errorf("FindProblem: %w", err)
	}

	problem := models.Problem{
		ID:         record.Id,
		Title:      record.GetString("title"),
		Slug:       record.GetString("slug"),
		Difficulty: record.GetString("difficulty"),
		Statement:  record.GetString("statement"),
	}
	if err := record.UnmarshalJSONField("starter_code", &problem.StarterCode); err != nil {
		slog.Warn("problem has malformed starter code", "problemID", id, "error", err)
	}
	return problem, nil
}

// ProblemHistory remembers the problems each player saw recently, as one
// sorted set per player scored by the time the problem was assigned.
type ProblemHistory struct {
	client *redis.Client
	window int
	ttl    time.Duration
}

func NewProblemHistory(client *redis.Client, window int, ttl time.Duration) *ProblemHistory {
	return &ProblemHistory{
		client: client,
		window: window,
		ttl:    ttl,
	}
}

func historyKey(playerID string) string {
	return fmt.Sprintf("player:seen:%s", playerID)
}

// RecentlySeen returns the union of recent problems of all players.
func (h *ProblemHistory) RecentlySeen(ctx context.Context, playerIDs ...string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	for _, playerID := range playerIDs {
		ids, err := h.client.ZRevRange(ctx, historyKey(playerID), 0, int64(h.window-1)).Result()
		if err != nil {
			return nil, fmt.Errorf("RecentlySeen: %w", err)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	return seen, nil
}

// MarkSeen records problemID for every player, keeping only the newest
// window entries.
func (h *ProblemHistory) MarkSeen(ctx context.Context, problemID string, at time.Time, playerIDs ...string) error {
	for _, playerID := range playerIDs {
		key := historyKey(playerID)
		if err := h.client.ZAdd(ctx, key, redis.Z{Score: float64(at.Unix()), Member: problemID}).Err(); err != nil {
			return fmt.Errorf("MarkSeen: zadd: %w", err)
		}
		if err := h.client.ZRemRangeByRank(ctx, key, 0, int64(-h.window-1)).Err(); err != nil {
			return fmt.Errorf("MarkSeen: trim: %w", err)
		}
		if err := h.client.Expire(ctx, key, h.ttl).Err(); err != nil {
			return fmt.Errorf("MarkSeen: expire: %w", err)
		}
	}
	return nil
}

// ProblemService picks a problem neither player has seen recently, falling
// back to any active problem. History is optional.
type ProblemService struct {
	store   ProblemStore
	history *ProblemHistory
	intn    func(n int) int
	now     func() time.Time
}

func NewProblemService(store ProblemStore, history *ProblemHistory) *ProblemService {
	return &ProblemService{
		store:   store,
		history: history,
		intn:    rand.IntN,
		now:     time.Now,
	}
}

func (s *ProblemService) PickProblem(ctx context.Context, playerIDs []string) (models.Problem, error) {
	ids, err := s.store.ActiveProblemIDs(ctx)
	if err != nil {
		return models.Problem{}, fmt.Errorf("PickProblem: %w", err)
	}
	if len(ids) == 0 {
		return models.Problem{}, status.ErrNoProblem
	}

	candidates := ids
	if s.history != nil {
		seen, err := s.history.RecentlySeen(ctx, playerIDs...)
		if err != nil {
			slog.Warn("problem history unavailable, picking uniformly", "error", err)
		} else {
			fresh := make([]string, 0, len(ids))
			for _, id := range ids {
				if _, ok := seen[id]; !ok {
					fresh = append(fresh, id)
				}
			}
			if len(fresh) > 0 {
				candidates = fresh
			}
		}
	}

	problem, err := s.store.FindProblem(ctx, candidates[s.intn(len(candidates))])
	if err != nil {
		return models.Problem{}, fmt.Errorf("PickProblem: %w", err)
	}

	return problem, nil
}

// MarkSeen records that the players were assigned problemID. Callers invoke
// it only once the match is registered.
func (s *ProblemService) MarkSeen(ctx context.Context, problemID string, playerIDs []string) {
	if s.history == nil {
		return
	}
	if err := s.history.MarkSeen(ctx, problemID, s.now(), playerIDs...); err != nil {
		slog.Warn("failed to record problem history", "problemID", problemID, "error", err)
	}
}
