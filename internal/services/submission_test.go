package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code-duel/internal/status"
	"code-duel/models"
)

func setupTestSubmissions(t *testing.T, judge *fakeJudge) (*testEnv, *SubmissionService, models.MatchView) {
	t.Helper()

	env := setupTestEnv(t)
	view := env.createMatch(t, "p1", "p2")
	return env, NewSubmissionService(env.matches, judge, env.fanout), view
}

func TestSubmissionService_AcceptedSubmissionWins(t *testing.T) {
	judge := &fakeJudge{verdict: models.Verdict{Accepted: true, Status: "Accepted"}}
	env, svc, view := setupTestSubmissions(t, judge)

	err := svc.Submit(context.Background(), "p1", models.CodePayload{MatchID: view.MatchID, Code: "x", Language: "go"})
	require.NoError(t, err)

	requests := judge.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, JudgeSubmit, requests[0].Mode)
	assert.Equal(t, testProblem.ID, requests[0].ProblemID)

	results := env.conn("p1").Events(models.EventSubmissionResult)
	require.Len(t, results, 1)
	assert.True(t, results[0].(models.SubmissionResultPayload).Verdict.Accepted)

	assert.Equal(t, []string{models.EventMatchFound, models.EventSubmissionResult, models.EventMatchWon}, env.conn("p1").Names())
	assert.Len(t, env.conn("p2").Events(models.EventMatchLost), 1)
	assert.False(t, env.matches.InMatch("p1"))
}

func TestSubmissionService_RejectedSubmissionKeepsMatchOpen(t *testing.T) {
	judge := &fakeJudge{verdict: models.Verdict{Accepted: false, Status: "Wrong Answer", PassedTests: 3, TotalTests: 10}}
	env, svc, view := setupTestSubmissions(t, judge)

	err := svc.Submit(context.Background(), "p2", models.CodePayload{MatchID: view.MatchID, Code: "x", Language: "go"})
	require.NoError(t, err)

	assert.Len(t, env.conn("p2").Events(models.EventSubmissionResult), 1)
	assert.Zero(t, env.conn("p2").Count(outcomeEvents...))
	assert.True(t, env.matches.InMatch("p2"))
}

func TestSubmissionService_RunNeverDecides(t *testing.T) {
	judge := &fakeJudge{verdict: models.Verdict{Accepted: true, Stdout: "42\n"}}
	env, svc, view := setupTestSubmissions(t, judge)

	err := svc.Run(context.Background(), "p1", models.CodePayload{MatchID: view.MatchID, Code: "x", Language: "go", Stdin: "6 7"})
	require.NoError(t, err)

	requests := judge.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, JudgeRun, requests[0].Mode)
	assert.Equal(t, "6 7", requests[0].Stdin)

	assert.Len(t, env.conn("p1").Events(models.EventRunResult), 1)
	assert.Zero(t, env.conn("p1").Count(models.EventSubmissionResult))
	assert.True(t, env.matches.InMatch("p1"))
}

func TestSubmissionService_JudgeFailureIsReportedToSubmitterOnly(t *testing.T) {
	judge := &fakeJudge{err: fmt.Errorf("%w: connection refused", status.ErrJudgeUnavailable)}
	env, svc, view := setupTestSubmissions(t, judge)

	err := svc.Submit(context.Background(), "p1", models.CodePayload{MatchID: view.MatchID, Code: "x", Language: "go"})
	require.NoError(t, err)

	errs := env.conn("p1").Events(models.EventSubmissionError)
	require.Len(t, errs, 1)
	assert.Equal(t, status.ReasonJudgeUnavailable, errs[0].(map[string]any)["reason"])
	assert.Zero(t, env.conn("p2").Count(models.EventSubmissionError))
	assert.True(t, env.matches.InMatch("p1"))
}

func TestSubmissionService_Rejections(t *testing.T) {
	judge := &fakeJudge{verdict: models.Verdict{Accepted: true}}
	env, svc, view := setupTestSubmissions(t, judge)
	ctx := context.Background()

	err := svc.Submit(ctx, "stranger", models.CodePayload{MatchID: view.MatchID})
	assert.ErrorIs(t, err, status.ErrNotParticipant)

	err = svc.Submit(ctx, "p1", models.CodePayload{MatchID: "missing"})
	assert.ErrorIs(t, err, status.ErrMatchNotFound)

	env.matches.OnTimeout(view.MatchID)
	err = svc.Submit(ctx, "p1", models.CodePayload{MatchID: view.MatchID})
	assert.ErrorIs(t, err, status.ErrMatchFinished)

	assert.Empty(t, judge.Requests())
}

func TestSubmissionService_SimultaneousAcceptedSubmissions(t *testing.T) {
	judge := &fakeJudge{
		verdict: models.Verdict{Accepted: true},
		started: make(chan struct{}, 2),
		gate:    make(chan struct{}),
	}
	env, svc, view := setupTestSubmissions(t, judge)

	var wg sync.WaitGroup
	for _, p := range []string{"p1", "p2"} {
		wg.Add(1)
		go func(playerID string) {
			defer wg.Done()
			assert.NoError(t, svc.Submit(context.Background(), playerID, models.CodePayload{MatchID: view.MatchID}))
		}(p)
	}
	// both evaluations are in flight before either verdict lands
	<-judge.started
	<-judge.started
	close(judge.gate)
	wg.Wait()

	won := env.conn("p1").Count(models.EventMatchWon) + env.conn("p2").Count(models.EventMatchWon)
	lost := env.conn("p1").Count(models.EventMatchLost) + env.conn("p2").Count(models.EventMatchLost)
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
}

func TestSubmissionService_JudgeRunsWithoutBlockingMatchState(t *testing.T) {
	judge := &fakeJudge{
		verdict: models.Verdict{Accepted: true},
		started: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	env, svc, view := setupTestSubmissions(t, judge)

	done := make(chan error)
	go func() {
		done <- svc.Submit(context.Background(), "p1", models.CodePayload{MatchID: view.MatchID})
	}()
	<-judge.started

	// while the judge is busy the match can still be resolved elsewhere
	env.matches.OnPlayerDisconnected(view.MatchID, "p2")
	close(judge.gate)
	require.NoError(t, <-done)

	got, err := env.matches.View(view.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.Disconnect("p2"), *got.Outcome)
	assert.Zero(t, env.conn("p1").Count(models.EventMatchWon))
}
