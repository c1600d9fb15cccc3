package dbq

import (
	"context"
	"time"
)

const practiceSelect = `
	SELECT p.id, p.team_id, t.name AS team_name, p.title, p.location, p.starts_at, p.ends_at,
	       p.notes, p.status, p.created_at
	FROM practices p
	JOIN teams t ON t.id = p.team_id`

type CreatePracticeParams struct {
	TeamID   int64
	Title    string
	Location string
	StartsAt time.Time
	EndsAt   time.Time
	Notes    string
}

func (q *Queries) CreatePractice(ctx context.Context, arg CreatePracticeParams) (Practice, error) {
	var id int64
	err := q.get(ctx, &id, `
		INSERT INTO practices (team_id, title, location, starts_at, ends_at, notes, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'scheduled', ?)
		RETURNING id`,
		arg.TeamID, arg.Title, arg.Location, arg.StartsAt.UTC(), arg.EndsAt.UTC(), arg.Notes, now(),
	)
	if err != nil {
		return Practice{}, err
	}
	return q.GetPractice(ctx, id)
}

func (q *Queries) GetPractice(ctx context.Context, id int64) (Practice, error) {
	var p Practice
	err := q.get(ctx, &p, practiceSelect+` WHERE p.id = ?`, id)
	return p, err
}

type UpdatePracticeParams struct {
	ID       int64
	Title    string
	Location string
	StartsAt time.Time
	EndsAt   time.Time
	Notes    string
}

func (q *Queries) UpdatePractice(ctx context.Context, arg UpdatePracticeParams) (Practice, error) {
	err := q.execOne(ctx, `
		UPDATE practices SET title = ?, location = ?, starts_at = ?, ends_at = ?, notes = ?
		WHERE id = ?`,
		arg.Title, arg.Location, arg.StartsAt.UTC(), arg.EndsAt.UTC(), arg.Notes, arg.ID,
	)
	if err != nil {
		return Practice{}, err
	}
	return q.GetPractice(ctx, arg.ID)
}

func (q *Queries) SetPracticeStatus(ctx context.Context, id int64, status string) (Practice, error) {
	if err := q.execOne(ctx, `UPDATE practices SET status = ? WHERE id = ?`, status, id); err != nil {
		return Practice{}, err
	}
	return q.GetPractice(ctx, id)
}

func (q *Queries) DeletePractice(ctx context.Context, id int64) error {
	return q.execOne(ctx, `DELETE FROM practices WHERE id = ?`, id)
}

type ListPracticesParams struct {
	TeamIDs []int64
	Scope   string
	Now     time.Time
}

func (q *Queries) ListPractices(ctx context.Context, arg ListPracticesParams) ([]Practice, error) {
	if len(arg.TeamIDs) == 0 {
		return nil, nil
	}
	query := practiceSelect + ` WHERE p.team_id IN (?)`
	args := []any{arg.TeamIDs}
	switch arg.Scope {
	case ScopeUpcoming:
		query += ` AND p.ends_at >= ? ORDER BY p.starts_at ASC, p.id ASC`
		args = append(args, arg.Now.UTC())
	case ScopePast:
		query += ` AND p.ends_at < ? ORDER BY p.starts_at DESC, p.id DESC`
		args = append(args, arg.Now.UTC())
	default:
		query += ` ORDER BY p.starts_at DESC, p.id DESC`
	}

	var practices []Practice
	err := q.selectIn(ctx, &practices, query, args...)
	return practices, err
}

func (q *Queries) ListPracticesStartingBetween(ctx context.Context, from, to time.Time) ([]Practice, error) {
	var practices []Practice
	err := q.selectAll(ctx, &practices, practiceSelect+`
		WHERE p.status = 'scheduled' AND p.starts_at >= ? AND p.starts_at < ?
		ORDER BY p.starts_at, p.id`,
		from.UTC(), to.UTC(),
	)
	return practices, err
}
