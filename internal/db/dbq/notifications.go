package dbq

import (
	"context"
	"time"
)

const notificationColumns = `id, user_id, kind, title, body, link, read_at, created_at`

type CreateNotificationParams struct {
	UserID int64
	Kind   string
	Title  string
	Body   string
	Link   string
}

func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error) {
	var n Notification
	err := q.get(ctx, &n, `
		INSERT INTO notifications (user_id, kind, title, body, link, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+notificationColumns,
		arg.UserID, arg.Kind, arg.Title, arg.Body, arg.Link, now(),
	)
	return n, err
}

type ListNotificationsParams struct {
	UserID     int64
	UnreadOnly bool
	Limit      int64
}

func (q *Queries) ListNotifications(ctx context.Context, arg ListNotificationsParams) ([]Notification, error) {
	var out []Notification
	err := q.selectAll(ctx, &out, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = ? AND (? = 0 OR read_at IS NULL)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		arg.UserID, arg.UnreadOnly, arg.Limit,
	)
	return out, err
}

func (q *Queries) CountUnreadNotifications(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`, userID)
	return n, err
}

// MarkNotificationRead keeps the first read time when called twice.
func (q *Queries) MarkNotificationRead(ctx context.Context, id, userID int64, at time.Time) error {
	return q.execOne(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, ?)
		WHERE id = ? AND user_id = ?`,
		at.UTC(), id, userID,
	)
}

func (q *Queries) MarkAllNotificationsRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	return q.exec(ctx, `UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`, at.UTC(), userID)
}

func (q *Queries) DeleteNotification(ctx context.Context, id, userID int64) error {
	return q.execOne(ctx, `DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
}
