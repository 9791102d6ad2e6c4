package services

import (
	"context"
	"log/slog"

	"code-duel/internal/status"
	"code-duel/models"
)

// SubmissionService relays code to the judge on behalf of a player in a
// live match. The judge call happens without any match or queue lock held.
type SubmissionService struct {
	matches  *MatchManager
	judge    Judge
	notifier Notifier
}

func NewSubmissionService(matches *MatchManager, judge Judge, notifier Notifier) *SubmissionService {
	return &SubmissionService{
		matches:  matches,
		judge:    judge,
		notifier: notifier,
	}
}

// Run evaluates code against the sample input only. It never decides the
// match.
func (s *SubmissionService) Run(ctx context.Context, playerID string, p models.CodePayload) error {
	return s.evaluate(ctx, playerID, p, JudgeRun)
}

// Submit evaluates code against the full test set; an accepted verdict
// claims the win.
func (s *SubmissionService) Submit(ctx context.Context, playerID string, p models.CodePayload) error {
	return s.evaluate(ctx, playerID, p, JudgeSubmit)
}

func (s *SubmissionService) evaluate(ctx context.Context, playerID string, p models.CodePayload, mode JudgeMode) error {
	problem, err := s.matches.ActiveProblem(p.MatchID, playerID)
	if err != nil {
		return err
	}

	verdict, err := s.judge.Evaluate(ctx, JudgeRequest{
		Mode:      mode,
		ProblemID: problem.ID,
		Code:      p.Code,
		Language:  p.Language,
		Stdin:     p.Stdin,
	})
	if err != nil {
		slog.Warn("judge evaluation failed", "matchID", p.MatchID, "playerID", playerID, "mode", mode, "error", err)
		s.notifier.Notify(playerID, models.EventSubmissionError, map[string]any{
			"matchId": p.MatchID,
			"reason":  status.ReasonJudgeUnavailable,
			"message": "the judge could not evaluate your code, please try again",
		})
		return nil
	}

	result := models.SubmissionResultPayload{
		MatchID:  p.MatchID,
		PlayerID: playerID,
		Language: p.Language,
		Verdict:  verdict,
	}

	if mode == JudgeRun {
		s.notifier.Notify(playerID, models.EventRunResult, result)
		return nil
	}

	s.notifier.Notify(playerID, models.EventSubmissionResult, result)
	slog.Info("submission judged", "matchID", p.MatchID, "playerID", playerID, "accepted", verdict.Accepted, "status", verdict.Status)

	if !verdict.Accepted {
		return nil
	}
	_, _, err = s.matches.RecordSubmissionOutcome(p.MatchID, playerID, true)
	return err
}
