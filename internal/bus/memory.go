package bus

import (
	"context"
	"sync"
)

// Memory is an in-process Bus. It serves single-node deployments and tests.
type Memory struct {
	mu     sync.RWMutex
	topics map[string]*topicSubs
	opts   Options
}

// topicSubs groups subscriptions to the same topic.
type topicSubs struct {
	mu   sync.Mutex
	subs map[*memorySub]struct{}
}

// NewMemory constructs an empty in-process bus.
func NewMemory(opts Options) *Memory {
	return &Memory{
		topics: make(map[string]*topicSubs),
		opts:   opts,
	}
}

// Publish fans ev out to every subscriber of topic. A subscriber whose
// buffer is full loses the event; the others are unaffected.
func (m *Memory) Publish(ctx context.Context, topic string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.topics[topic]
	if !ok {
		return nil
	}

	// Serialize fan-out per topic so all subscribers observe the same order.
	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		select {
		case sub.events <- ev:
		default:
			m.opts.dropped(topic)
		}
	}
	return nil
}

// Subscribe registers a new subscriber on topic.
func (m *Memory) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &memorySub{
		bus:    m,
		topic:  topic,
		events: make(chan Event, m.opts.buffer()),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.topics[topic]
	if !ok {
		t = &topicSubs{subs: make(map[*memorySub]struct{})}
		m.topics[topic] = t
	}
	t.subs[sub] = struct{}{}
	return sub, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.topics[topic]
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (m *Memory) remove(sub *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.topics[sub.topic]
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.subs, sub)
	empty := len(t.subs) == 0
	t.mu.Unlock()
	if empty {
		delete(m.topics, sub.topic)
	}
	// Publish holds the read lock while sending, so closing here cannot race a send.
	close(sub.events)
}

type memorySub struct {
	bus    *Memory
	topic  string
	events chan Event
	once   sync.Once
}

func (s *memorySub) Events() <-chan Event {
	return s.events
}

func (s *memorySub) Close() error {
	s.once.Do(func() { s.bus.remove(s) })
	return nil
}
