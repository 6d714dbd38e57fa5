package scanner

import (
	"net/netip"
)

// Phase is one probing round of alive detection. Every host still
// unconfirmed when the phase starts is sent the packets Probes returns.
type Phase interface {
	// Name returns the phase identifier (e.g., "icmp", "tcp")
	Name() string

	// State is the detector state while the phase runs
	State() State

	// Probes builds the datagrams sent from src to dst
	Probes(src, dst netip.Addr) ([][]byte, error)
}

// PhaseFunc is a function adapter for the Phase interface
type PhaseFunc struct {
	name     string
	state    State
	probesFn func(src, dst netip.Addr) ([][]byte, error)
}

// NewPhaseFunc creates a Phase from a function
func NewPhaseFunc(name string, state State, fn func(src, dst netip.Addr) ([][]byte, error)) Phase {
	return &PhaseFunc{name: name, state: state, probesFn: fn}
}

func (p *PhaseFunc) Name() string {
	return p.name
}

func (p *PhaseFunc) State() State {
	return p.state
}

func (p *PhaseFunc) Probes(src, dst netip.Addr) ([][]byte, error) {
	return p.probesFn(src, dst)
}

// PhaseRegistry holds phases in the order they run
type PhaseRegistry struct {
	phases []Phase
}

// NewPhaseRegistry creates an empty phase registry
func NewPhaseRegistry() *PhaseRegistry {
	return &PhaseRegistry{
		phases: make([]Phase, 0),
	}
}

// Register appends a phase
func (r *PhaseRegistry) Register(phase Phase) {
	r.phases = append(r.phases, phase)
}

// All returns all registered phases in run order
func (r *PhaseRegistry) All() []Phase {
	return r.phases
}

// Count returns the number of registered phases
func (r *PhaseRegistry) Count() int {
	return len(r.phases)
}
