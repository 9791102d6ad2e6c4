package models

import (
	"time"
)

type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomClaimed RoomStatus = "claimed"
	RoomExpired RoomStatus = "expired"
)

type Room struct {
	RoomCode         string     `json:"roomCode"`
	CreatorID        string     `json:"creatorId"`
	CreatorName      string     `json:"creatorName"`
	TimeLimitMinutes int        `json:"timeLimitMinutes"`
	CreatedAt        time.Time  `json:"createdAt"`
	Status           RoomStatus `json:"status"`
	MatchID          string     `json:"matchId,omitempty"`
}
