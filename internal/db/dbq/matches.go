package dbq

import (
	"context"
	"time"
)

const matchSelect = `
	SELECT m.id, m.team_id, t.name AS team_name, m.opponent_name, m.opponent_team_id, m.location,
	       m.starts_at, m.is_home, m.status, m.team_score, m.opponent_score, m.notes,
	       m.created_by, m.created_at
	FROM matches m
	JOIN teams t ON t.id = m.team_id`

const (
	ScopeUpcoming = "upcoming"
	ScopePast     = "past"
	ScopeAll      = "all"
)

type CreateMatchParams struct {
	TeamID         int64
	OpponentName   string
	OpponentTeamID *int64
	Location       string
	StartsAt       time.Time
	IsHome         bool
	Notes          string
	CreatedBy      int64
}

func (q *Queries) CreateMatch(ctx context.Context, arg CreateMatchParams) (Match, error) {
	var id int64
	err := q.get(ctx, &id, `
		INSERT INTO matches (team_id, opponent_name, opponent_team_id, location, starts_at, is_home, notes, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		arg.TeamID, arg.OpponentName, arg.OpponentTeamID, arg.Location, arg.StartsAt.UTC(),
		arg.IsHome, arg.Notes, arg.CreatedBy, now(),
	)
	if err != nil {
		return Match{}, err
	}
	return q.GetMatch(ctx, id)
}

func (q *Queries) GetMatch(ctx context.Context, id int64) (Match, error) {
	var m Match
	err := q.get(ctx, &m, matchSelect+` WHERE m.id = ?`, id)
	return m, err
}

type UpdateMatchParams struct {
	ID             int64
	OpponentName   string
	OpponentTeamID *int64
	Location       string
	StartsAt       time.Time
	IsHome         bool
	Notes          string
	Status         string
}

func (q *Queries) UpdateMatch(ctx context.Context, arg UpdateMatchParams) (Match, error) {
	err := q.execOne(ctx, `
		UPDATE matches
		SET opponent_name = ?, opponent_team_id = ?, location = ?, starts_at = ?, is_home = ?, notes = ?, status = ?
		WHERE id = ?`,
		arg.OpponentName, arg.OpponentTeamID, arg.Location, arg.StartsAt.UTC(), arg.IsHome, arg.Notes, arg.Status, arg.ID,
	)
	if err != nil {
		return Match{}, err
	}
	return q.GetMatch(ctx, arg.ID)
}

func (q *Queries) SetMatchResult(ctx context.Context, id, teamScore, opponentScore int64) (Match, error) {
	err := q.execOne(ctx, `
		UPDATE matches SET team_score = ?, opponent_score = ?, status = 'completed'
		WHERE id = ?`,
		teamScore, opponentScore, id,
	)
	if err != nil {
		return Match{}, err
	}
	return q.GetMatch(ctx, id)
}

func (q *Queries) DeleteMatch(ctx context.Context, id int64) error {
	return q.execOne(ctx, `DELETE FROM matches WHERE id = ?`, id)
}

type ListMatchesParams struct {
	TeamIDs []int64
	Scope   string
	Now     time.Time
}

// ListMatches returns fixtures of the given teams. Upcoming is ascending by
// kickoff, past and all are descending.
func (q *Queries) ListMatches(ctx context.Context, arg ListMatchesParams) ([]Match, error) {
	if len(arg.TeamIDs) == 0 {
		return nil, nil
	}
	query := matchSelect + ` WHERE m.team_id IN (?)`
	args := []any{arg.TeamIDs}
	switch arg.Scope {
	case ScopeUpcoming:
		query += ` AND m.starts_at >= ? ORDER BY m.starts_at ASC, m.id ASC`
		args = append(args, arg.Now.UTC())
	case ScopePast:
		query += ` AND m.starts_at < ? ORDER BY m.starts_at DESC, m.id DESC`
		args = append(args, arg.Now.UTC())
	default:
		query += ` ORDER BY m.starts_at DESC, m.id DESC`
	}

	var matches []Match
	err := q.selectIn(ctx, &matches, query, args...)
	return matches, err
}

// ListMatchesStartingBetween returns scheduled fixtures with kickoff in [from, to).
func (q *Queries) ListMatchesStartingBetween(ctx context.Context, from, to time.Time) ([]Match, error) {
	var matches []Match
	err := q.selectAll(ctx, &matches, matchSelect+`
		WHERE m.status = 'scheduled' AND m.starts_at >= ? AND m.starts_at < ?
		ORDER BY m.starts_at, m.id`,
		from.UTC(), to.UTC(),
	)
	return matches, err
}
