package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a Bus backed by Redis PUBLISH/SUBSCRIBE, shared by every process
// connected to the same server.
type Redis struct {
	client *redis.Client
	opts   Options
	logger *zerolog.Logger
}

// NewRedis wraps an existing client. The caller owns the client.
func NewRedis(client *redis.Client, logger *zerolog.Logger, opts Options) *Redis {
	return &Redis{client: client, opts: opts, logger: logger}
}

// Publish sends the JSON envelope of ev to topic.
func (r *Redis) Publish(ctx context.Context, topic string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a pub/sub connection on topic and waits for the server to
// confirm the subscription before returning.
func (r *Redis) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	sub := &redisSub{
		ps:     ps,
		topic:  topic,
		events: make(chan Event, r.opts.buffer()),
		done:   make(chan struct{}),
	}
	go sub.pump(r, ps.Channel())
	return sub, nil
}

type redisSub struct {
	ps     *redis.PubSub
	topic  string
	events chan Event
	done   chan struct{}
	once   sync.Once
	err    error
}

// pump decodes pub/sub messages into events until the subscription closes.
func (s *redisSub) pump(r *Redis, in <-chan *redis.Message) {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn().Err(err).Str("topic", s.topic).Msg("dropping malformed event")
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			default:
				r.opts.dropped(s.topic)
			}
		}
	}
}

func (s *redisSub) Events() <-chan Event {
	return s.events
}

func (s *redisSub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
	})
	return s.err
}
