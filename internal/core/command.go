package core

import (
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/vovakirdan/campus-server/internal/proto"
)

// MaxTextLength is the maximum message length in characters.
const MaxTextLength = 2000

// Command is an action requested by a client. The set is closed: only the
// types in this file implement it.
type Command interface {
	// Name is the inbound frame type the command was decoded from.
	Name() string
	isCommand()
}

// CreateMessage posts a new message to the session's channel.
type CreateMessage struct {
	Text        string
	ParentID    *int64
	Attachments []json.RawMessage
}

// DeleteMessage soft-deletes a message of the session's channel.
type DeleteMessage struct {
	ID int64
}

// SetPin pins or unpins a message of the session's channel. Admin only.
type SetPin struct {
	ID     int64
	Pinned bool
}

func (CreateMessage) Name() string { return proto.InboundTypeCreate }
func (DeleteMessage) Name() string { return proto.InboundTypeDelete }
func (SetPin) Name() string        { return proto.InboundTypePin }

func (CreateMessage) isCommand() {}
func (DeleteMessage) isCommand() {}
func (SetPin) isCommand()        {}

// Validate implements validation.Validatable.
func (c CreateMessage) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Text, validation.RuneLength(0, MaxTextLength)),
		validation.Field(&c.ParentID, validation.NilOrNotEmpty, validation.Min(int64(1))),
		validation.Field(&c.Attachments, validation.Each(validation.By(jsonObject))),
	)
}

// Validate implements validation.Validatable.
func (c DeleteMessage) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required, validation.Min(int64(1))),
	)
}

// Validate implements validation.Validatable.
func (c SetPin) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required, validation.Min(int64(1))),
	)
}

func jsonObject(value any) error {
	raw, _ := value.(json.RawMessage)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return validation.NewError("validation_is_object", "must be a JSON object")
	}
	return nil
}

// Decode turns an inbound frame into a validated command. Unknown types and
// invalid payloads yield recoverable errors.
func Decode(in proto.Inbound) (Command, error) {
	var cmd interface {
		Command
		validation.Validatable
	}

	switch in.Type {
	case proto.InboundTypeCreate:
		var p proto.CreatePayload
		if err := decodePayload(in.Payload, &p); err != nil {
			return nil, err
		}
		cmd = CreateMessage{Text: p.Text, ParentID: p.ParentID, Attachments: p.Attachments}

	case proto.InboundTypeDelete:
		var p proto.DeletePayload
		if err := decodePayload(in.Payload, &p); err != nil {
			return nil, err
		}
		cmd = DeleteMessage{ID: p.ID}

	case proto.InboundTypePin:
		var p proto.PinPayload
		if err := decodePayload(in.Payload, &p); err != nil {
			return nil, err
		}
		pinned := true
		if p.Pinned != nil {
			pinned = *p.Pinned
		}
		cmd = SetPin{ID: p.ID, Pinned: pinned}

	default:
		return nil, coreError(ErrCodeUnknownCommand, fmt.Sprintf("unknown command %q", in.Type))
	}

	if err := cmd.Validate(); err != nil {
		return nil, badRequest(fmt.Sprintf("%s: %v", in.Type, err))
	}
	return cmd, nil
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return badRequest(fmt.Sprintf("invalid payload: %v", err))
	}
	return nil
}
