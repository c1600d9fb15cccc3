package leagues

import (
	"errors"
	"fmt"
)

// Season match statuses.
const (
	StatusScheduled = "scheduled"
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusDisputed  = "disputed"
)

type ScoreEvent string

const (
	EventSubmit  ScoreEvent = "submit"
	EventConfirm ScoreEvent = "confirm"
	EventDispute ScoreEvent = "dispute"
	EventResolve ScoreEvent = "resolve"
)

var ErrInvalidTransition = errors.New("invalid score transition")

var scoreTransitions = map[string]map[ScoreEvent]string{
	StatusScheduled: {
		EventSubmit:  StatusPending,
		EventResolve: StatusConfirmed,
	},
	StatusPending: {
		EventConfirm: StatusConfirmed,
		EventDispute: StatusDisputed,
		EventResolve: StatusConfirmed,
	},
	StatusDisputed: {
		EventSubmit:  StatusPending,
		EventResolve: StatusConfirmed,
	},
}

// NextMatchStatus returns the status a season match moves to after event.
func NextMatchStatus(current string, event ScoreEvent) (string, error) {
	next, ok := scoreTransitions[current][event]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s a %s match", ErrInvalidTransition, event, current)
	}
	return next, nil
}

// RespondingTeam returns the team whose admins may confirm or dispute a
// submission made by submittingTeamID.
func RespondingTeam(homeTeamID, awayTeamID, submittingTeamID int64) (int64, error) {
	switch submittingTeamID {
	case homeTeamID:
		return awayTeamID, nil
	case awayTeamID:
		return homeTeamID, nil
	default:
		return 0, fmt.Errorf("team %d is not part of this match", submittingTeamID)
	}
}
