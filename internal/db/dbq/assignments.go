package dbq

import (
	"context"
	"time"
)

const assignmentSelect = `
	SELECT a.id, a.match_id, a.user_id, u.display_name, a.position, a.status, a.responded_at, a.created_at,
	       m.team_id, m.opponent_name, m.starts_at AS match_starts_at
	FROM assignments a
	JOIN users u ON u.id = a.user_id
	JOIN matches m ON m.id = a.match_id`

type CreateAssignmentParams struct {
	MatchID  int64
	UserID   int64
	Position string
}

func (q *Queries) CreateAssignment(ctx context.Context, arg CreateAssignmentParams) (Assignment, error) {
	var id int64
	err := q.get(ctx, &id, `
		INSERT INTO assignments (match_id, user_id, position, status, created_at)
		VALUES (?, ?, ?, 'pending', ?)
		RETURNING id`,
		arg.MatchID, arg.UserID, arg.Position, now(),
	)
	if err != nil {
		return Assignment{}, err
	}
	return q.GetAssignment(ctx, id)
}

func (q *Queries) GetAssignment(ctx context.Context, id int64) (Assignment, error) {
	var a Assignment
	err := q.get(ctx, &a, assignmentSelect+` WHERE a.id = ?`, id)
	return a, err
}

func (q *Queries) AssignmentExists(ctx context.Context, matchID, userID int64) (bool, error) {
	return q.exists(ctx, `SELECT 1 FROM assignments WHERE match_id = ? AND user_id = ?`, matchID, userID)
}

func (q *Queries) ListAssignmentsForMatch(ctx context.Context, matchID int64) ([]Assignment, error) {
	var out []Assignment
	err := q.selectAll(ctx, &out, assignmentSelect+` WHERE a.match_id = ? ORDER BY a.position, u.display_name, a.id`, matchID)
	return out, err
}

// ListAssignmentsForUser filters by status when status is non-empty.
func (q *Queries) ListAssignmentsForUser(ctx context.Context, userID int64, status string) ([]Assignment, error) {
	var out []Assignment
	err := q.selectAll(ctx, &out, assignmentSelect+`
		WHERE a.user_id = ? AND (? = '' OR a.status = ?)
		ORDER BY m.starts_at, a.id`,
		userID, status, status,
	)
	return out, err
}

func (q *Queries) RespondAssignment(ctx context.Context, id int64, status string, at time.Time) (Assignment, error) {
	if err := q.execOne(ctx, `UPDATE assignments SET status = ?, responded_at = ? WHERE id = ?`, status, at.UTC(), id); err != nil {
		return Assignment{}, err
	}
	return q.GetAssignment(ctx, id)
}

func (q *Queries) DeleteAssignment(ctx context.Context, id int64) error {
	return q.execOne(ctx, `DELETE FROM assignments WHERE id = ?`, id)
}
