package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/core"

	"code-duel/config"
	"code-duel/internal/services"
	"code-duel/models"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []models.Envelope
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, models.Envelope{Event: event, Data: data})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
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

// Last decodes the most recent event named name into dst.
func (c *fakeConn) Last(name string, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Event == name {
			return json.Unmarshal(c.events[i].Data, dst) == nil
		}
	}
	return false
}

type fakeProblems struct{}

func (fakeProblems) PickProblem(context.Context, []string) (models.Problem, error) {
	return models.Problem{ID: "two-sum", Title: "Two Sum", Slug: "two-sum", Difficulty: "easy"}, nil
}

func (fakeProblems) MarkSeen(context.Context, string, []string) {}

type fakeJudge struct {
	verdict models.Verdict
	err     error
}

func (j *fakeJudge) Evaluate(context.Context, services.JudgeRequest) (models.Verdict, error) {
	return j.verdict, j.err
}

type fakePubnub struct {
	err error
}

func (p *fakePubnub) Publish(context.Context, string, any) (string, error) {
	return "1", p.err
}

func (p *fakePubnub) GenGrantToken(_ context.Context, playerID string) (string, error) {
	return "token-" + playerID, p.err
}

type testEnv struct {
	cfg         *config.Config
	registry    *services.ConnectionRegistry
	fanout      *services.Fanout
	matches     *services.MatchManager
	queue       *services.MatchmakingQueue
	rooms       *services.RoomRegistry
	judge       *fakeJudge
	submissions *services.SubmissionService
	gateway     *Gateway
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		AllowedTimeLimits:      []int{5, 10, 15, 30},
		RoomCodeLength:         6,
		RoomWaitTimeout:        10 * time.Minute,
		FinishedMatchRetention: 2 * time.Minute,
		WSWriteTimeout:         time.Second,
		WSPongWait:             5 * time.Second,
	}
	registry := services.NewConnectionRegistry()
	fanout := services.NewFanout(registry, nil)
	matches := services.NewMatchManager(fakeProblems{}, fanout, registry, nil, cfg.FinishedMatchRetention)
	queue := services.NewMatchmakingQueue(cfg, matches, fanout, nil)
	rooms := services.NewRoomRegistry(cfg, matches, registry, nil)
	services.BindConnectionLifecycle(registry, queue, rooms, matches)
	judge := &fakeJudge{verdict: models.Verdict{Accepted: true, Status: "Accepted"}}
	submissions := services.NewSubmissionService(matches, judge, fanout)

	t.Cleanup(matches.Shutdown)

	return &testEnv{
		cfg:         cfg,
		registry:    registry,
		fanout:      fanout,
		matches:     matches,
		queue:       queue,
		rooms:       rooms,
		judge:       judge,
		submissions: submissions,
		gateway:     NewGateway(cfg, registry, queue, matches, submissions),
	}
}

func (env *testEnv) connect(playerID string) *fakeConn {
	conn := newFakeConn("conn-" + playerID)
	env.registry.Register(playerID, "Player "+playerID, conn)
	return conn
}

func newRequestEvent(method, target string, body any) (*core.RequestEvent, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	return e, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return body
}

func superuser() *core.Record {
	record := core.NewRecord(core.NewAuthCollection(core.CollectionNameSuperusers))
	record.Id = "admin1"
	return record
}
