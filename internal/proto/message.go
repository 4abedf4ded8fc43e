// Package proto defines the JSON frames exchanged over the chat WebSocket.
package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for frames coming from the client.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const (
	InboundTypeCreate = "message.create"
	InboundTypeDelete = "message.delete"
	InboundTypePin    = "message.pin"

	EventTypeCreated = "message.created"
	EventTypeDeleted = "message.deleted"
	EventTypePinned  = "message.pinned"
)

// CreatePayload asks for a new message in the session's channel.
type CreatePayload struct {
	Text        string            `json:"text"`
	ParentID    *int64            `json:"parent_id,omitempty"`
	Attachments []json.RawMessage `json:"attachments,omitempty"`
}

// DeletePayload asks for a message to be soft-deleted.
type DeletePayload struct {
	ID int64 `json:"id"`
}

// PinPayload asks for a message to be pinned or unpinned.
// Pinned defaults to true when omitted.
type PinPayload struct {
	ID     int64 `json:"id"`
	Pinned *bool `json:"pinned,omitempty"`
}

// Outbound is the envelope for frames sent to the client. It mirrors the
// bus event so published events are forwarded verbatim.
type Outbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MessageCreated is the payload of a message.created event.
type MessageCreated struct {
	ID          int64             `json:"id"`
	ChannelID   int64             `json:"channel_id"`
	UserID      int64             `json:"user_id"`
	ParentID    *int64            `json:"parent_id"`
	Text        string            `json:"text"`
	Attachments []json.RawMessage `json:"attachments"`
	Pinned      bool              `json:"pinned"`
	CreatedAt   time.Time         `json:"created_at"`
}

// MessageDeleted is the payload of a message.deleted event.
type MessageDeleted struct {
	ID        int64     `json:"id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// MessagePinned is the payload of a message.pinned event.
type MessagePinned struct {
	ID     int64 `json:"id"`
	Pinned bool  `json:"pinned"`
}
