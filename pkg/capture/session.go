// Package capture runs a filtered live packet capture until it is told to
// stop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	// ErrOpen is returned when the capture device cannot be opened.
	ErrOpen = errors.New("capture: cannot open device")
	// ErrFilterCompile is returned when the BPF expression does not compile.
	ErrFilterCompile = errors.New("capture: cannot compile filter")
	// ErrFilterInstall is returned when a compiled filter cannot be attached.
	ErrFilterInstall = errors.New("capture: cannot install filter")
	// ErrExhausted is returned by Run when the packet source has no more
	// packets to give.
	ErrExhausted = errors.New("capture: packet source exhausted")
	// ErrReadTimeout is returned by a PacketSource whose bounded read
	// expired without a packet. Run treats it as a chance to check for stop.
	ErrReadTimeout = errors.New("capture: read timeout")
)

// PacketSource is a live or replayed stream of link-layer frames.
// ReadPacketData must return within a bounded time, using ErrReadTimeout
// when nothing arrived and io.EOF when the stream has ended.
type PacketSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Close()
}

// Config holds capture settings.
type Config struct {
	Interface    string        // Device name; empty captures on every interface ("any")
	Filter       string        // BPF expression
	SnapLen      int           // Bytes kept per frame
	Promiscuous  bool          // Put the device in promiscuous mode; ignored on "any"
	PollInterval time.Duration // Upper bound on one read, and so on stop latency
}

// DefaultConfig returns the capture settings used for alive detection.
func DefaultConfig() Config {
	return Config{
		SnapLen:      1500,
		Promiscuous:  true,
		PollInterval: 100 * time.Millisecond,
	}
}

// Session is one capture, read by a single goroutine through Run.
type Session struct {
	src       PacketSource
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// NewSession wraps src. The session takes ownership of src.
func NewSession(src PacketSource) *Session {
	return &Session{
		src:  src,
		stop: make(chan struct{}),
	}
}

// LinkType returns the link layer of captured frames.
func (s *Session) LinkType() layers.LinkType {
	return s.src.LinkType()
}

// Run reads frames and hands each to fn until Stop is called or ctx is
// done, both of which return nil. Source exhaustion returns ErrExhausted and
// any other read failure is returned wrapped. fn runs on the calling
// goroutine and must not retain the frame.
func (s *Session) Run(ctx context.Context, fn func(frame []byte)) error {
	for {
		select {
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		data, _, err := s.src.ReadPacketData()
		switch {
		case err == nil:
			fn(data)
		case errors.Is(err, ErrReadTimeout):
			continue
		case errors.Is(err, io.EOF):
			return ErrExhausted
		default:
			return fmt.Errorf("failed to read packet: %w", err)
		}
	}
}

// Stop asks Run to return. It is safe to call from any goroutine and more
// than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Close stops the session and releases the source. Call it after Run has
// returned.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.Stop()
		s.src.Close()
	})
	return nil
}
