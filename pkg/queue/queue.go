// Package queue carries alive hosts from the detector to its consumers.
package queue

import (
	"context"
	"errors"
	"time"
)

// Finish is pushed once, after every alive host, to tell consumers that
// detection is over. It is never a host identifier.
const Finish = "finish"

// DefaultKey is the list holding alive hosts inside a session database.
const DefaultKey = "alive_detection"

// ErrTimeout is returned by Pop when nothing arrived in time.
var ErrTimeout = errors.New("queue: pop timed out")

// Queue is an ordered, goroutine-safe FIFO of strings.
type Queue interface {
	// Push appends item at the tail.
	Push(ctx context.Context, item string) error

	// Pop removes the head, waiting up to timeout for one to arrive.
	// A timeout <= 0 waits until ctx is done.
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}
