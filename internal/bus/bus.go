// Package bus carries chat events between sessions. A topic is a named
// broadcast stream; delivery is at-most-once to the subscribers registered
// at publish time, in publish order.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrClosed is returned when operating on a closed subscription or bus.
var ErrClosed = errors.New("bus: closed")

// DefaultBuffer is the per-subscriber event buffer when none is configured.
const DefaultBuffer = 64

// Event is the envelope published on a topic.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an Event of the given type.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: data}, nil
}

// Bus publishes events to topics and hands out subscriptions.
type Bus interface {
	// Publish broadcasts ev to the current subscribers of topic. No ack, no retry.
	Publish(ctx context.Context, topic string, ev Event) error

	// Subscribe registers interest in topic. It returns once the registration
	// is live, so every event published afterwards is delivered.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription is a live registration on one topic.
type Subscription interface {
	// Events yields events in publish order. The channel is closed once the
	// subscription ends, either through Close or a bus failure.
	Events() <-chan Event

	// Close ends the subscription. Safe to call more than once.
	Close() error
}

// Options tunes a bus implementation.
type Options struct {
	// Buffer is the number of events queued per subscriber before drops.
	Buffer int
	// OnDrop is called for every event dropped on a slow subscriber.
	OnDrop func(topic string)
}

func (o Options) buffer() int {
	if o.Buffer <= 0 {
		return DefaultBuffer
	}
	return o.Buffer
}

func (o Options) dropped(topic string) {
	if o.OnDrop != nil {
		o.OnDrop(topic)
	}
}

// Topic returns the bus topic of a chat channel.
func Topic(slug string) string {
	return "channel:" + slug
}
