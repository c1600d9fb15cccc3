package dbq

import (
	"context"
	"slices"
	"time"
)

const chatSelect = `
	SELECT c.id, c.channel_kind, c.channel_id, c.user_id, u.display_name, c.body, c.created_at
	FROM chat_messages c
	JOIN users u ON u.id = c.user_id`

type CreateChatMessageParams struct {
	ChannelKind string
	ChannelID   int64
	UserID      int64
	Body        string
}

func (q *Queries) CreateChatMessage(ctx context.Context, arg CreateChatMessageParams) (ChatMessage, error) {
	var id int64
	err := q.get(ctx, &id, `
		INSERT INTO chat_messages (channel_kind, channel_id, user_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		arg.ChannelKind, arg.ChannelID, arg.UserID, arg.Body, now(),
	)
	if err != nil {
		return ChatMessage{}, err
	}
	var m ChatMessage
	err = q.get(ctx, &m, chatSelect+` WHERE c.id = ?`, id)
	return m, err
}

type ListChatMessagesParams struct {
	ChannelKind string
	ChannelID   int64
	AfterID     int64
	Limit       int64
}

// ListChatMessagesAfter returns messages with id > AfterID, oldest first.
func (q *Queries) ListChatMessagesAfter(ctx context.Context, arg ListChatMessagesParams) ([]ChatMessage, error) {
	var out []ChatMessage
	err := q.selectAll(ctx, &out, chatSelect+`
		WHERE c.channel_kind = ? AND c.channel_id = ? AND c.id > ?
		ORDER BY c.id ASC
		LIMIT ?`,
		arg.ChannelKind, arg.ChannelID, arg.AfterID, arg.Limit,
	)
	return out, err
}

// ListLatestChatMessages returns the newest Limit messages, oldest first.
func (q *Queries) ListLatestChatMessages(ctx context.Context, arg ListChatMessagesParams) ([]ChatMessage, error) {
	var out []ChatMessage
	err := q.selectAll(ctx, &out, chatSelect+`
		WHERE c.channel_kind = ? AND c.channel_id = ?
		ORDER BY c.id DESC
		LIMIT ?`,
		arg.ChannelKind, arg.ChannelID, arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (q *Queries) DeleteChatMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return q.exec(ctx, `DELETE FROM chat_messages WHERE created_at < ?`, cutoff.UTC())
}
