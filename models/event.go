package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Inbound websocket events.
const (
	EventAuthenticate     = "authenticate"
	EventJoinMatchmaking  = "join-matchmaking"
	EventLeaveMatchmaking = "leave-matchmaking"
	EventPlayerWon        = "player-won"
	EventSubmitCode       = "submit-code"
	EventRunCode          = "run-code"
	EventSyncClock        = "sync-clock"
)

// Outbound websocket events.
const (
	EventAuthenticated        = "authenticated"
	EventMatchmakingJoined    = "matchmaking-joined"
	EventMatchmakingLeft      = "matchmaking-left"
	EventMatchFound           = "match-found"
	EventPrivateMatchFound    = "private-match-found"
	EventPrivateMatchCreated  = "private-match-created"
	EventMatchResumed         = "match-resumed"
	EventMatchWon             = "match-won"
	EventMatchLost            = "match-lost"
	EventMatchTimeout         = "match-timeout"
	EventOpponentDisconnected = "opponent-disconnected"
	EventRunResult            = "run-result"
	EventSubmissionResult     = "submission-result"
	EventSubmissionError      = "submission-error"
	EventClock                = "clock"
	EventError                = "error"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type AuthenticatePayload struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

type JoinMatchmakingPayload struct {
	TimeLimitMinutes int    `json:"timeLimitMinutes"`
	PlayerID         string `json:"playerId"`
	DisplayName      string `json:"displayName"`
}

type LeaveMatchmakingPayload struct {
	TimeLimitMinutes int    `json:"timeLimitMinutes"`
	PlayerID         string `json:"playerId"`
}

type PlayerWonPayload struct {
	MatchID  string `json:"matchId"`
	PlayerID string `json:"playerId"`
}

type CodePayload struct {
	MatchID  string `json:"matchId"`
	Code     string `json:"code"`
	Language string `json:"language"`
	Stdin    string `json:"stdin,omitempty"`
}

type SyncClockPayload struct {
	MatchID string `json:"matchId"`
}

type MatchPayload struct {
	Match MatchView `json:"match"`
}

type OutcomePayload struct {
	MatchID string  `json:"matchId"`
	Message string  `json:"message"`
	Outcome Outcome `json:"outcome"`
}

type ClockPayload struct {
	MatchID          string    `json:"matchId"`
	ServerTime       time.Time `json:"serverTime"`
	EndTime          time.Time `json:"endTime"`
	RemainingSeconds int64     `json:"remainingSeconds"`
}

type ErrorPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Verdict is what the judge reports back for one evaluation.
type Verdict struct {
	Accepted       bool            `json:"accepted"`
	Status         string          `json:"status"`
	PassedTests    int             `json:"passedTests"`
	TotalTests     int             `json:"totalTests"`
	RuntimeSeconds decimal.Decimal `json:"runtimeSeconds"`
	MemoryKB       int64           `json:"memoryKb"`
	Stdout         string          `json:"stdout,omitempty"`
	Stderr         string          `json:"stderr,omitempty"`
	CompileOutput  string          `json:"compileOutput,omitempty"`
}

type SubmissionResultPayload struct {
	MatchID  string  `json:"matchId"`
	PlayerID string  `json:"playerId"`
	Language string  `json:"language"`
	Verdict  Verdict `json:"verdict"`
}
