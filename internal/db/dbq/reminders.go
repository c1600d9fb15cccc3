package dbq

import "context"

const (
	ReminderMatch       = "match"
	ReminderPractice    = "practice"
	ReminderSeasonMatch = "season_match"
)

// RecordReminder stores that a reminder was sent. It reports false when the
// reminder had already been recorded.
func (q *Queries) RecordReminder(ctx context.Context, kind string, refID, userID int64) (bool, error) {
	n, err := q.exec(ctx, `
		INSERT INTO reminder_log (kind, ref_id, user_id, sent_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, ref_id, user_id) DO NOTHING`,
		kind, refID, userID, now(),
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
