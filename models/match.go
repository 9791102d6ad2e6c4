package models

import (
	"time"
)

type PlayerRef struct {
	PlayerID     string `json:"playerId"`
	DisplayName  string `json:"displayName"`
	ConnectionID string `json:"connectionId,omitempty"`
}

// Problem is the descriptor handed out by the problem store. The match
// core only carries it to the clients and back to the judge.
type Problem struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Slug        string            `json:"slug"`
	Difficulty  string            `json:"difficulty"`
	Statement   string            `json:"statement"`
	StarterCode map[string]string `json:"starterCode,omitempty"`
}

type MatchStatus string

const (
	MatchActive   MatchStatus = "active"
	MatchFinished MatchStatus = "finished"
)

type MatchKind string

const (
	MatchPublic  MatchKind = "public"
	MatchPrivate MatchKind = "private"
)

type OutcomeKind string

const (
	OutcomeNone       OutcomeKind = ""
	OutcomeWon        OutcomeKind = "won"
	OutcomeDraw       OutcomeKind = "draw"
	OutcomeDisconnect OutcomeKind = "disconnect"
)

// Outcome is the terminal result of a match. PlayerID is the winner for
// OutcomeWon and the player who dropped for OutcomeDisconnect.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	PlayerID string      `json:"playerId,omitempty"`
}

func Won(playerID string) Outcome        { return Outcome{Kind: OutcomeWon, PlayerID: playerID} }
func Draw() Outcome                      { return Outcome{Kind: OutcomeDraw} }
func Disconnect(playerID string) Outcome { return Outcome{Kind: OutcomeDisconnect, PlayerID: playerID} }

func (o Outcome) Decided() bool {
	return o.Kind != OutcomeNone
}

// Winner returns the winning player of a decided match given its two
// participants. Draws and undecided matches have no winner.
func (o Outcome) Winner(players [2]PlayerRef) (string, bool) {
	switch o.Kind {
	case OutcomeWon:
		return o.PlayerID, true
	case OutcomeDisconnect:
		for _, p := range players {
			if p.PlayerID != o.PlayerID {
				return p.PlayerID, true
			}
		}
	}
	return "", false
}

// MatchView is the snapshot of a match sent to clients and returned by the
// HTTP API.
type MatchView struct {
	MatchID          string       `json:"matchId"`
	Kind             MatchKind    `json:"kind"`
	Players          [2]PlayerRef `json:"players"`
	Opponent         *PlayerRef   `json:"opponent,omitempty"`
	Problem          Problem      `json:"problem"`
	TimeLimitMinutes int          `json:"timeLimitMinutes"`
	StartTime        time.Time    `json:"startTime"`
	EndTime          time.Time    `json:"endTime"`
	ServerTime       time.Time    `json:"serverTime"`
	RemainingSeconds int64        `json:"remainingSeconds"`
	Status           MatchStatus  `json:"status"`
	Outcome          *Outcome     `json:"outcome,omitempty"`
}

// EndTimeFor returns start shifted by the match time limit.
func EndTimeFor(start time.Time, timeLimitMinutes int) time.Time {
	return start.Add(time.Duration(timeLimitMinutes) * time.Minute)
}

// RemainingSeconds is the whole number of seconds left before end, never
// negative.
func RemainingSeconds(now, end time.Time) int64 {
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}
	return int64(left.Round(time.Second) / time.Second)
}

// For returns the view as seen by playerID, with Opponent filled in.
func (v MatchView) For(playerID string) MatchView {
	v.Opponent = nil
	for i, p := range v.Players {
		if p.PlayerID == playerID {
			opponent := v.Players[1-i]
			v.Opponent = &opponent
			break
		}
	}
	return v
}

// Has reports whether playerID is one of the two participants.
func (v MatchView) Has(playerID string) bool {
	return v.Players[0].PlayerID == playerID || v.Players[1].PlayerID == playerID
}
