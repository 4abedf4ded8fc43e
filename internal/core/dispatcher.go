package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/campus-server/internal/bus"
	"github.com/vovakirdan/campus-server/internal/metrics"
	"github.com/vovakirdan/campus-server/internal/proto"
	"github.com/vovakirdan/campus-server/internal/store"
)

// Actor is the authenticated user behind a session.
type Actor struct {
	UserID int64
	Role   store.Role
}

// Dispatcher executes commands: it authorizes, mutates the store inside a
// transaction and publishes the resulting event once the transaction commits.
type Dispatcher struct {
	store    store.Store
	bus      bus.Bus
	messages *Messages
	metrics  *metrics.Metrics
	log      *zerolog.Logger
}

// NewDispatcher wires a dispatcher. m may be nil.
func NewDispatcher(st store.Store, b bus.Bus, m *metrics.Metrics, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		bus:      b,
		messages: NewMessages(),
		metrics:  m,
		log:      logger,
	}
}

// Execute runs cmd on behalf of actor in channel ch. A nil return with no
// event is possible: pin commands from non-admins are ignored.
func (d *Dispatcher) Execute(ctx context.Context, actor Actor, ch *store.Channel, cmd Command) error {
	if _, ok := cmd.(SetPin); ok && !actor.Role.AtLeast(store.RoleAdmin) {
		d.log.Debug().Int64("user_id", actor.UserID).Str("channel", ch.Slug).Msg("pin ignored for non-admin")
		d.metrics.Command(cmd.Name(), "ignored")
		return nil
	}

	var ev bus.Event

	err := d.store.WithinTx(ctx, func(q store.Queries) error {
		var err error
		switch c := cmd.(type) {
		case CreateMessage:
			ev, err = d.create(ctx, q, actor, ch, c)
		case DeleteMessage:
			ev, err = d.delete(ctx, q, ch, c)
		case SetPin:
			ev, err = d.pin(ctx, q, ch, c)
		default:
			err = coreError(ErrCodeUnknownCommand, fmt.Sprintf("unsupported command %T", cmd))
		}
		return err
	})
	if err != nil {
		d.metrics.Command(cmd.Name(), ErrorCode(err))
		return err
	}

	if err := d.bus.Publish(ctx, bus.Topic(ch.Slug), ev); err != nil {
		d.metrics.Command(cmd.Name(), "bus_error")
		return fmt.Errorf("%w: publish %s: %w", ErrBus, ev.Type, err)
	}
	d.metrics.Published(ev.Type)
	d.metrics.Command(cmd.Name(), "ok")
	return nil
}

func (d *Dispatcher) create(ctx context.Context, q store.Queries, actor Actor, ch *store.Channel, c CreateMessage) (bus.Event, error) {
	msg, err := d.messages.Create(ctx, q, ch, actor.UserID, c)
	if err != nil {
		return bus.Event{}, err
	}
	attachments := []json.RawMessage(msg.Attachments)
	if attachments == nil {
		attachments = []json.RawMessage{}
	}
	return bus.NewEvent(proto.EventTypeCreated, proto.MessageCreated{
		ID:          msg.ID,
		ChannelID:   msg.ChannelID,
		UserID:      msg.UserID,
		ParentID:    msg.ParentID,
		Text:        msg.Text,
		Attachments: attachments,
		Pinned:      msg.Pinned,
		CreatedAt:   msg.CreatedAt,
	})
}

func (d *Dispatcher) delete(ctx context.Context, q store.Queries, ch *store.Channel, c DeleteMessage) (bus.Event, error) {
	msg, err := d.messages.SoftDelete(ctx, q, ch, c.ID)
	if err != nil {
		return bus.Event{}, err
	}
	return bus.NewEvent(proto.EventTypeDeleted, proto.MessageDeleted{
		ID:        msg.ID,
		DeletedAt: *msg.DeletedAt,
	})
}

func (d *Dispatcher) pin(ctx context.Context, q store.Queries, ch *store.Channel, c SetPin) (bus.Event, error) {
	msg, err := d.messages.SetPinned(ctx, q, ch, c.ID, c.Pinned)
	if err != nil {
		return bus.Event{}, err
	}
	return bus.NewEvent(proto.EventTypePinned, proto.MessagePinned{
		ID:     msg.ID,
		Pinned: msg.Pinned,
	})
}
