package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"code-duel/internal/status"
	"code-duel/models"
	"code-duel/monitoring"
	"code-duel/utils"
)

type JudgeMode string

const (
	JudgeRun    JudgeMode = "run"
	JudgeSubmit JudgeMode = "submit"
)

type JudgeRequest struct {
	Mode      JudgeMode `json:"mode"`
	ProblemID string    `json:"problemId"`
	Code      string    `json:"code"`
	Language  string    `json:"language"`
	Stdin     string    `json:"stdin,omitempty"`
}

type judgeResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    models.Verdict `json:"data"`
}

// Judge evaluates code against a problem's tests.
type Judge interface {
	Evaluate(ctx context.Context, req JudgeRequest) (models.Verdict, error)
}

type JudgeClient struct {
	// baseURL is the base url of the judge backend.
	baseURL string

	// breaker stops calling the judge while it keeps failing.
	breaker *utils.CircuitBreaker

	monitor *monitoring.Monitor

	// hc is the http client.
	hc *http.Client
}

func NewJudgeClient(baseURL string, timeout time.Duration, monitor *monitoring.Monitor) *JudgeClient {
	return &JudgeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		breaker: utils.NewCircuitBreaker("judge", utils.DefaultBreakerSettings()),
		monitor: monitor,
		hc: &http.Client{
			Timeout: timeout,
		},
	}
}

// Evaluate sends code to the judge. Every failure, including an open
// breaker, is reported as status.ErrJudgeUnavailable.
func (c *JudgeClient) Evaluate(ctx context.Context, req JudgeRequest) (models.Verdict, error) {
	start := time.Now()

	var verdict models.Verdict
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := c.evaluate(ctx, req)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})

	result := "success"
	if err != nil {
		result = "failed"
	}
	c.monitor.TrackJudgeRequest(string(req.Mode), result, time.Since(start))

	if err != nil {
		return models.Verdict{}, fmt.Errorf("%w: %w", status.ErrJudgeUnavailable, err)
	}
	return verdict, nil
}

func (c *JudgeClient) evaluate(ctx context.Context, req JudgeRequest) (models.Verdict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("evaluate: json.Marshal: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("evaluate: http.NewRequestWithContext: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("evaluate: http.Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Verdict{}, fmt.Errorf("evaluate: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out judgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Verdict{}, fmt.Errorf("evaluate: decode response: %v", err)
	}
	if out.Status != "" && out.Status != "success" {
		return models.Verdict{}, fmt.Errorf("evaluate: judge error: %s", out.Message)
	}

	return out.Data, nil
}
