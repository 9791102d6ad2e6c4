package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"code-duel/config"
	"code-duel/models"
)

type sentEvent struct {
	Event   string
	Payload any
}

type fakeConn struct {
	id string

	mu      sync.Mutex
	events  []sentEvent
	closed  bool
	sendErr error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, sentEvent{Event: event, Payload: payload})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events returns the payloads sent under name, oldest first.
func (c *fakeConn) Events(name string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []any
	for _, e := range c.events {
		if e.Event == name {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (c *fakeConn) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.events))
	for _, e := range c.events {
		names = append(names, e.Event)
	}
	return names
}

func (c *fakeConn) Count(names ...string) int {
	n := 0
	for _, name := range names {
		n += len(c.Events(name))
	}
	return n
}

var outcomeEvents = []string{
	models.EventMatchWon,
	models.EventMatchLost,
	models.EventMatchTimeout,
	models.EventOpponentDisconnected,
}

var testProblem = models.Problem{
	ID:         "two-sum",
	Title:      "Two Sum",
	Slug:       "two-sum",
	Difficulty: "easy",
}

type fakeProblems struct {
	problem models.Problem
	err     error
	calls   atomic.Int32
	// picked, when set, runs after every pick before it is returned
	picked func()

	mu   sync.Mutex
	seen []string
}

func (f *fakeProblems) PickProblem(context.Context, []string) (models.Problem, error) {
	f.calls.Add(1)
	if f.picked != nil {
		f.picked()
	}
	if f.err != nil {
		return models.Problem{}, f.err
	}
	return f.problem, nil
}

func (f *fakeProblems) MarkSeen(_ context.Context, problemID string, playerIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range playerIDs {
		f.seen = append(f.seen, id+":"+problemID)
	}
}

func (f *fakeProblems) Seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

type fakeJudge struct {
	mu       sync.Mutex
	verdict  models.Verdict
	err      error
	requests []JudgeRequest
	// started, when set, receives once per Evaluate call
	started chan struct{}
	// gate, when set, blocks Evaluate until closed
	gate chan struct{}
}

func (j *fakeJudge) Evaluate(ctx context.Context, req JudgeRequest) (models.Verdict, error) {
	if j.started != nil {
		j.started <- struct{}{}
	}
	if j.gate != nil {
		select {
		case <-j.gate:
		case <-ctx.Done():
			return models.Verdict{}, ctx.Err()
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.requests = append(j.requests, req)
	return j.verdict, j.err
}

func (j *fakeJudge) Requests() []JudgeRequest {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]JudgeRequest(nil), j.requests...)
}

func testConfig() *config.Config {
	return &config.Config{
		AllowedTimeLimits:      []int{5, 10, 15, 30},
		RoomCodeLength:         6,
		RoomWaitTimeout:        10 * time.Minute,
		RoomSweepInterval:      time.Minute,
		FinishedMatchRetention: 2 * time.Minute,
		MetricsCollectInterval: time.Minute,
	}
}

var connSeq atomic.Int64

type testEnv struct {
	cfg      *config.Config
	problems *fakeProblems
	registry *ConnectionRegistry
	fanout   *Fanout
	matches  *MatchManager
	queue    *MatchmakingQueue
	rooms    *RoomRegistry

	mu    sync.Mutex
	conns map[string]*fakeConn
}

func setupTestEnv(t testing.TB) *testEnv {
	t.Helper()

	cfg := testConfig()
	problems := &fakeProblems{problem: testProblem}
	registry := NewConnectionRegistry()
	fanout := NewFanout(registry, nil)
	matches := NewMatchManager(problems, fanout, registry, nil, cfg.FinishedMatchRetention)
	queue := NewMatchmakingQueue(cfg, matches, fanout, nil)
	rooms := NewRoomRegistry(cfg, matches, registry, nil)
	BindConnectionLifecycle(registry, queue, rooms, matches)

	t.Cleanup(matches.Shutdown)

	return &testEnv{
		cfg:      cfg,
		problems: problems,
		registry: registry,
		fanout:   fanout,
		matches:  matches,
		queue:    queue,
		rooms:    rooms,
		conns:    make(map[string]*fakeConn),
	}
}

// connect registers a fresh fake connection for playerID.
func (e *testEnv) connect(playerID string) *fakeConn {
	conn := newFakeConn(fmt.Sprintf("conn-%s-%d", playerID, connSeq.Add(1)))
	e.mu.Lock()
	e.conns[playerID] = conn
	e.mu.Unlock()
	e.registry.Register(playerID, "Player "+playerID, conn)
	return conn
}

func (e *testEnv) conn(playerID string) *fakeConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns[playerID]
}

// createMatch starts a public 5 minute match between a and b, both
// connected.
func (e *testEnv) createMatch(t testing.TB, a, b string) models.MatchView {
	t.Helper()

	e.connect(a)
	e.connect(b)
	view, err := e.matches.CreateMatch(context.Background(),
		models.PlayerRef{PlayerID: a, DisplayName: "Player " + a},
		models.PlayerRef{PlayerID: b, DisplayName: "Player " + b},
		5, models.MatchPublic)
	if err != nil {
		t.Fatalf("createMatch: %v", err)
	}
	return view
}

// movableClock returns a clock and a function advancing it.
func movableClock(at time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := at
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		}
}
