package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is an unbounded in-process Queue.
type Memory struct {
	mu    sync.Mutex
	items []string
	ready chan struct{}
}

// NewMemory creates an empty in-process queue.
func NewMemory() *Memory {
	return &Memory{ready: make(chan struct{}, 1)}
}

func (m *Memory) Push(ctx context.Context, item string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()
	m.signal()
	return nil
}

func (m *Memory) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if item, ok := m.take(); ok {
			return item, nil
		}
		select {
		case <-m.ready:
		case <-expired:
			if item, ok := m.take(); ok {
				return item, nil
			}
			return "", ErrTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// take pops the head and, if more remain, wakes another waiter.
func (m *Memory) take() (string, bool) {
	m.mu.Lock()
	if len(m.items) == 0 {
		m.mu.Unlock()
		return "", false
	}
	item := m.items[0]
	m.items[0] = ""
	m.items = m.items[1:]
	more := len(m.items) > 0
	m.mu.Unlock()

	if more {
		m.signal()
	}
	return item, true
}

func (m *Memory) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}
