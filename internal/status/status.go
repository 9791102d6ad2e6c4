package status

import (
	"errors"
	"net/http"
)

var (
	ErrAlreadyQueued    = errors.New("matchmaking: player already queued")
	ErrAlreadyInMatch   = errors.New("matchmaking: player already in a match")
	ErrInvalidTimeLimit = errors.New("matchmaking: time limit not allowed")
	ErrInvalidPlayer    = errors.New("matchmaking: player id must not be empty")
	ErrSamePlayer       = errors.New("matchmaking: player cannot be paired with themself")

	ErrRoomNotFound = errors.New("room: room code not found")
	ErrRoomClaimed  = errors.New("room: room already claimed")
	ErrSelfJoin     = errors.New("room: creator cannot join own room")

	ErrMatchNotFound  = errors.New("match: match not found")
	ErrNotParticipant = errors.New("match: player is not a participant")
	ErrMatchFinished  = errors.New("match: match already finished")

	ErrNoProblem        = errors.New("problem: no problem available")
	ErrJudgeUnavailable = errors.New("judge: judge unavailable")

	ErrNotAuthenticated = errors.New("session: connection not authenticated")
	ErrUnknownEvent     = errors.New("session: unknown event")
	ErrMalformedEvent   = errors.New("session: malformed event")
)

// Reason codes sent to clients alongside a rejection.
const (
	ReasonAlreadyQueued    = "alreadyQueued"
	ReasonAlreadyInMatch   = "alreadyInMatch"
	ReasonInvalidTimeLimit = "invalidTimeLimit"
	ReasonInvalidRequest   = "invalidRequest"
	ReasonNotFound         = "notFound"
	ReasonAlreadyClaimed   = "alreadyClaimed"
	ReasonSelfJoin         = "selfJoin"
	ReasonNotParticipant   = "notParticipant"
	ReasonMatchFinished    = "matchFinished"
	ReasonJudgeUnavailable = "judgeUnavailable"
	ReasonNotAuthenticated = "notAuthenticated"
	ReasonUnknownEvent     = "unknownEvent"
	ReasonInternal         = "internal"
)

var reasons = []struct {
	err    error
	reason string
	code   int
}{
	{ErrAlreadyQueued, ReasonAlreadyQueued, http.StatusConflict},
	{ErrAlreadyInMatch, ReasonAlreadyInMatch, http.StatusConflict},
	{ErrInvalidTimeLimit, ReasonInvalidTimeLimit, http.StatusBadRequest},
	{ErrInvalidPlayer, ReasonInvalidRequest, http.StatusBadRequest},
	{ErrSamePlayer, ReasonSelfJoin, http.StatusBadRequest},
	{ErrRoomNotFound, ReasonNotFound, http.StatusNotFound},
	{ErrRoomClaimed, ReasonAlreadyClaimed, http.StatusConflict},
	{ErrSelfJoin, ReasonSelfJoin, http.StatusBadRequest},
	{ErrMatchNotFound, ReasonNotFound, http.StatusNotFound},
	{ErrNotParticipant, ReasonNotParticipant, http.StatusForbidden},
	{ErrMatchFinished, ReasonMatchFinished, http.StatusConflict},
	{ErrJudgeUnavailable, ReasonJudgeUnavailable, http.StatusServiceUnavailable},
	{ErrNotAuthenticated, ReasonNotAuthenticated, http.StatusUnauthorized},
	{ErrUnknownEvent, ReasonUnknownEvent, http.StatusBadRequest},
	{ErrMalformedEvent, ReasonInvalidRequest, http.StatusBadRequest},
}

// Reason maps err to the client-facing reason code.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInternal
}

// HTTPStatus maps err to the response status used by the HTTP handlers.
func HTTPStatus(err error) int {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return http.StatusInternalServerError
}
