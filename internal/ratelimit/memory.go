package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory keeps window counters in process memory. Limits are per process.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count   int64
	resetAt time.Time
}

// NewMemory builds an empty in-process limiter.
func NewMemory() *Memory {
	return &Memory{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check records a hit for key in its current window.
func (m *Memory) Check(_ context.Context, key string, limit int, win time.Duration) (Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(win)}
		m.windows[key] = w
	}
	w.count++

	retryAfter := time.Duration(0)
	if w.count > int64(limit) {
		retryAfter = w.resetAt.Sub(now)
	}
	return result(w.count, limit, retryAfter), nil
}

// StartSweeper drops expired windows every interval until stop is closed.
func (m *Memory) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()
}

func (m *Memory) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
		}
	}
}

func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
