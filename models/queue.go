package models

import (
	"time"
)

type Ticket struct {
	PlayerID         string    `json:"playerId"`
	DisplayName      string    `json:"displayName"`
	TimeLimitMinutes int       `json:"timeLimitMinutes"`
	EnqueuedAt       time.Time `json:"enqueuedAt"`
}

type BucketMetrics struct {
	TimeLimitMinutes int       `json:"timeLimitMinutes"`
	Waiting          int       `json:"waiting"`
	OldestWait       float64   `json:"oldestWaitSeconds"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

type JoinResult string

const (
	JoinEnqueued       JoinResult = "enqueued"
	JoinAlreadyQueued  JoinResult = "alreadyQueued"
	JoinAlreadyInMatch JoinResult = "alreadyInMatch"
)
