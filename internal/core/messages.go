package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/campus-server/internal/store"
)

// Messages applies chat mutations to a channel. It holds no state of its own;
// every call runs against the Queries it is handed, usually a transaction.
type Messages struct {
	now func() time.Time
}

// NewMessages builds the message service using the wall clock.
func NewMessages() *Messages {
	return &Messages{now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a message authored by authorID into ch.
func (m *Messages) Create(ctx context.Context, q store.MessageStore, ch *store.Channel, authorID int64, cmd CreateMessage) (*store.Message, error) {
	if ch.ReadOnly {
		return nil, ErrChannelReadOnly
	}

	if cmd.ParentID != nil {
		if _, err := m.lookup(ctx, q, ch, *cmd.ParentID); err != nil {
			if errors.Is(err, ErrMessageNotFound) {
				return nil, badRequest("parent message not found in channel")
			}
			return nil, err
		}
	}

	msg := &store.Message{
		ChannelID:   ch.ID,
		UserID:      authorID,
		ParentID:    cmd.ParentID,
		Text:        cmd.Text,
		Attachments: store.Attachments(cmd.Attachments),
	}
	if err := q.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// SoftDelete marks a message of ch as deleted. Deleting twice is allowed and
// moves deleted_at forward.
func (m *Messages) SoftDelete(ctx context.Context, q store.MessageStore, ch *store.Channel, id int64) (*store.Message, error) {
	if _, err := m.lookup(ctx, q, ch, id); err != nil {
		return nil, err
	}
	msg, err := q.MarkMessageDeleted(ctx, id, m.now())
	if err != nil {
		return nil, fmt.Errorf("mark deleted: %w", err)
	}
	return msg, nil
}

// SetPinned sets the pinned flag of a message of ch.
func (m *Messages) SetPinned(ctx context.Context, q store.MessageStore, ch *store.Channel, id int64, pinned bool) (*store.Message, error) {
	if _, err := m.lookup(ctx, q, ch, id); err != nil {
		return nil, err
	}
	msg, err := q.SetMessagePinned(ctx, id, pinned)
	if err != nil {
		return nil, fmt.Errorf("set pinned: %w", err)
	}
	return msg, nil
}

// lookup loads a message and hides messages of other channels.
func (m *Messages) lookup(ctx context.Context, q store.MessageStore, ch *store.Channel, id int64) (*store.Message, error) {
	msg, err := q.GetMessage(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg.ChannelID != ch.ID {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}
