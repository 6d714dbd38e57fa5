package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/velemoonkon/sonar/pkg/input"
	"github.com/velemoonkon/sonar/pkg/queue"
)

// Consumer reads alive hosts published by a Detector, possibly in another
// process.
type Consumer struct {
	q        queue.Queue
	parse    func(string) (Host, error)
	finished atomic.Bool
}

// NewConsumer creates a consumer of q. parse turns a queue entry back into
// a Host; nil parses IP literals with input.ParseHost.
func NewConsumer(q queue.Queue, parse func(string) (Host, error)) *Consumer {
	if parse == nil {
		parse = parseHost
	}
	return &Consumer{q: q, parse: parse}
}

func parseHost(s string) (Host, error) {
	h, err := input.ParseHost(s)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Next blocks until an alive host is available and returns it.
//
// It returns ErrNoHost when timeout elapses first (detection may still be
// running) and ErrFinished once the finish sentinel has been taken, on this
// call and every later one. A timeout <= 0 waits until ctx is done.
// Entries that do not parse are logged and skipped.
func (c *Consumer) Next(ctx context.Context, timeout time.Duration) (Host, error) {
	if c.finished.Load() {
		return nil, ErrFinished
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		var wait time.Duration
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				return nil, ErrNoHost
			}
		}

		item, err := c.q.Pop(ctx, wait)
		switch {
		case errors.Is(err, queue.ErrTimeout):
			return nil, ErrNoHost
		case err != nil:
			return nil, fmt.Errorf("failed to pop alive host: %w", err)
		case item == queue.Finish:
			c.finished.Store(true)
			return nil, ErrFinished
		}

		host, err := c.parse(item)
		if err != nil {
			slog.Warn("skipping malformed queue entry", "entry", item, "error", err)
			continue
		}
		return host, nil
	}
}

// Finished reports whether the sentinel has been consumed.
func (c *Consumer) Finished() bool {
	return c.finished.Load()
}
