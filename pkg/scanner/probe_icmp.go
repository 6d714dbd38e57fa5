package scanner

import (
	"net/netip"

	"github.com/velemoonkon/sonar/pkg/packet"
)

// ICMPPhase sends a single echo request to each target
type ICMPPhase struct{}

// NewICMPPhase creates the echo request phase
func NewICMPPhase() *ICMPPhase {
	return &ICMPPhase{}
}

// Name returns the phase identifier
func (p *ICMPPhase) Name() string {
	return "icmp"
}

func (p *ICMPPhase) State() State {
	return StateICMPScan
}

// Probes returns one echo request
func (p *ICMPPhase) Probes(src, dst netip.Addr) ([][]byte, error) {
	pkt, err := packet.BuildICMPEcho(src, dst)
	if err != nil {
		return nil, err
	}
	return [][]byte{pkt}, nil
}
