package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/vovakirdan/campus-server/internal/store"
)

// ==== ChannelStore implementation ====

// GetChannelBySlug retrieves a channel by slug.
func (q *queries) GetChannelBySlug(ctx context.Context, slug string) (*store.Channel, error) {
	var ch store.Channel
	if err := q.get(ctx, &ch, `SELECT id, slug, is_readonly FROM channels WHERE slug = ?`, slug); err != nil {
		return nil, mapErr("query channel", err)
	}
	return &ch, nil
}

// CreateChannel inserts a channel.
func (q *queries) CreateChannel(ctx context.Context, slug string, readOnly bool) (*store.Channel, error) {
	ch := store.Channel{Slug: slug, ReadOnly: readOnly}
	query := `
		INSERT INTO channels (slug, is_readonly)
		VALUES (?, ?)
		RETURNING id
	`
	if err := q.get(ctx, &ch.ID, query, ch.Slug, ch.ReadOnly); err != nil {
		return nil, mapErr("insert channel", err)
	}
	return &ch, nil
}

// ==== MessageStore implementation ====

const messageColumns = `id, channel_id, user_id, parent_id, text, attachments, pinned, deleted_at, created_at`

// InsertMessage persists msg and fills in its ID and CreatedAt.
func (q *queries) InsertMessage(ctx context.Context, msg *store.Message) error {
	if msg.Attachments == nil {
		msg.Attachments = store.Attachments{}
	}
	msg.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO messages (channel_id, user_id, parent_id, text, attachments, pinned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := q.get(ctx, &msg.ID, query,
		msg.ChannelID,
		msg.UserID,
		msg.ParentID,
		msg.Text,
		msg.Attachments,
		msg.Pinned,
		msg.CreatedAt,
	)
	if err != nil {
		return mapErr("insert message", err)
	}
	return nil
}

// GetMessage retrieves a message by ID, including soft-deleted ones.
func (q *queries) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	var msg store.Message
	if err := q.get(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id); err != nil {
		return nil, mapErr("query message", err)
	}
	return &msg, nil
}

// MarkMessageDeleted sets deleted_at. The row itself is never removed.
func (q *queries) MarkMessageDeleted(ctx context.Context, id int64, at time.Time) (*store.Message, error) {
	if err := q.updateMessage(ctx, `UPDATE messages SET deleted_at = ? WHERE id = ?`, at.UTC(), id); err != nil {
		return nil, err
	}
	return q.GetMessage(ctx, id)
}

// SetMessagePinned sets the pinned flag.
func (q *queries) SetMessagePinned(ctx context.Context, id int64, pinned bool) (*store.Message, error) {
	if err := q.updateMessage(ctx, `UPDATE messages SET pinned = ? WHERE id = ?`, pinned, id); err != nil {
		return nil, err
	}
	return q.GetMessage(ctx, id)
}

func (q *queries) updateMessage(ctx context.Context, query string, args ...any) error {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return mapErr("update message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update message: %w", store.ErrNotFound)
	}
	return nil
}
