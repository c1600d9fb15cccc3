package dbq

import (
	"context"
	"time"
)

const submissionColumns = `id, season_match_id, submitted_by_team_id, submitted_by_user_id, home_score, away_score,
	status, responded_by_user_id, dispute_reason, created_at, responded_at`

const (
	SubmissionPending    = "PENDING"
	SubmissionConfirmed  = "CONFIRMED"
	SubmissionDisputed   = "DISPUTED"
	SubmissionSuperseded = "SUPERSEDED"
)

type CreateScoreSubmissionParams struct {
	SeasonMatchID     int64
	SubmittedByTeamID int64
	SubmittedByUserID int64
	HomeScore         int64
	AwayScore         int64
}

func (q *Queries) CreateScoreSubmission(ctx context.Context, arg CreateScoreSubmissionParams) (ScoreSubmission, error) {
	var s ScoreSubmission
	err := q.get(ctx, &s, `
		INSERT INTO score_submissions (season_match_id, submitted_by_team_id, submitted_by_user_id, home_score, away_score, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'PENDING', ?)
		RETURNING `+submissionColumns,
		arg.SeasonMatchID, arg.SubmittedByTeamID, arg.SubmittedByUserID, arg.HomeScore, arg.AwayScore, now(),
	)
	return s, err
}

func (q *Queries) GetScoreSubmission(ctx context.Context, id int64) (ScoreSubmission, error) {
	var s ScoreSubmission
	err := q.get(ctx, &s, `SELECT `+submissionColumns+` FROM score_submissions WHERE id = ?`, id)
	return s, err
}

func (q *Queries) ListScoreSubmissions(ctx context.Context, seasonMatchID int64) ([]ScoreSubmission, error) {
	var out []ScoreSubmission
	err := q.selectAll(ctx, &out, `SELECT `+submissionColumns+` FROM score_submissions WHERE season_match_id = ? ORDER BY id DESC`, seasonMatchID)
	return out, err
}

func (q *Queries) HasPendingSubmission(ctx context.Context, seasonMatchID int64) (bool, error) {
	return q.exists(ctx, `SELECT 1 FROM score_submissions WHERE season_match_id = ? AND status = 'PENDING' LIMIT 1`, seasonMatchID)
}

type RespondScoreSubmissionParams struct {
	ID                int64
	Status            string
	RespondedByUserID *int64
	DisputeReason     string
	At                time.Time
}

// RespondScoreSubmission moves a PENDING submission to its final status.
// It returns sql.ErrNoRows when the submission is no longer pending.
func (q *Queries) RespondScoreSubmission(ctx context.Context, arg RespondScoreSubmissionParams) error {
	return q.execOne(ctx, `
		UPDATE score_submissions
		SET status = ?, responded_by_user_id = ?, dispute_reason = ?, responded_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		arg.Status, arg.RespondedByUserID, arg.DisputeReason, arg.At.UTC(), arg.ID,
	)
}

func (q *Queries) SupersedePendingSubmissions(ctx context.Context, seasonMatchID int64, at time.Time) (int64, error) {
	return q.exec(ctx, `
		UPDATE score_submissions SET status = 'SUPERSEDED', responded_at = ?
		WHERE season_match_id = ? AND status = 'PENDING'`,
		at.UTC(), seasonMatchID,
	)
}

func (q *Queries) ListPendingSubmissionsBefore(ctx context.Context, cutoff time.Time) ([]ScoreSubmission, error) {
	var out []ScoreSubmission
	err := q.selectAll(ctx, &out, `
		SELECT `+submissionColumns+` FROM score_submissions
		WHERE status = 'PENDING' AND created_at < ?
		ORDER BY created_at, id`,
		cutoff.UTC(),
	)
	return out, err
}
