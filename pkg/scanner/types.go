package scanner

import (
	"net/netip"
	"time"

	"github.com/velemoonkon/sonar/pkg/capture"
	"github.com/velemoonkon/sonar/pkg/queue"
)

// Host is a detection target. Its identity is the text form of Addr.
type Host interface {
	Addr() netip.Addr
	String() string
}

// State is the detector's position in a run.
type State int32

const (
	StateInit State = iota
	StateICMPScan
	StateTCPScan
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateICMPScan:
		return "icmp_scan"
	case StateTCPScan:
		return "tcp_scan"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Config contains detector configuration
type Config struct {
	WaitWindow    time.Duration  // Listening time after the last probe of a phase
	FinishTimeout time.Duration  // Bound on publishing the finish sentinel
	Capture       capture.Config // Device, snapshot length and poll interval; the filter is fixed
}

// DefaultConfig returns default detector configuration
func DefaultConfig() Config {
	return Config{
		WaitWindow:    3 * time.Second,
		FinishTimeout: 10 * time.Second,
		Capture:       capture.DefaultConfig(),
	}
}

// Sender puts a complete IPv4 datagram on the wire.
type Sender interface {
	Send(dst netip.Addr, pkt []byte) error
	Close() error
}

// SourceResolver picks the source address of probes toward dst.
type SourceResolver interface {
	Source(dst netip.Addr) (netip.Addr, error)
}

// Deps are the detector's collaborators. Only Queue is required; the rest
// default to the raw socket, live capture and interface-based source
// selection.
type Deps struct {
	Queue       queue.Queue
	Source      SourceResolver
	OpenSender  func() (Sender, error)
	OpenCapture func(capture.Config) (*capture.Session, error)
}

// PhaseStats summarizes one phase of a run
type PhaseStats struct {
	Name          string         `json:"name"`
	Targets       int            `json:"targets"`   // Unconfirmed hosts when the phase started
	Probes        int            `json:"probes"`    // Packets attempted
	Failed        int            `json:"failed"`    // Packets the socket refused
	Skipped       int            `json:"skipped"`   // Hosts not probed (IPv6, no source address)
	Confirmed     int            `json:"confirmed"` // Hosts removed from the target set afterwards
	CaptureError  string         `json:"capture_error,omitzero"`
	Duration      time.Duration  `json:"duration"`
	ProbesPerHost map[string]int `json:"-"`
}

// Report is the outcome of one Detector.Run
type Report struct {
	Targets   int           `json:"targets"`
	Phases    []PhaseStats  `json:"phases"`
	Alive     []string      `json:"alive"`     // In publication order
	Remaining []string      `json:"remaining"` // Never confirmed
	States    []State       `json:"-"`         // Every state entered, in order
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
}
