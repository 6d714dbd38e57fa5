package scanner

import (
	"errors"
	"fmt"
)

var (
	// ErrFinished is returned by Consumer.Next once detection has ended.
	ErrFinished = errors.New("scanner: alive detection finished")
	// ErrNoHost is returned by Consumer.Next when no host arrived in time.
	ErrNoHost = errors.New("scanner: no alive host available yet")
	// ErrRunning is returned by Detector.Run while another Run is in progress.
	ErrRunning = errors.New("scanner: detection already running")

	errNoSocket = errors.New("scanner: send socket unavailable")
)

// CaptureError reports a capture task that ended before it was stopped.
type CaptureError struct {
	Phase string
	Err   error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%s phase capture: %v", e.Phase, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
