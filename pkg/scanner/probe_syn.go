package scanner

import (
	"net/netip"

	"github.com/velemoonkon/sonar/pkg/packet"
)

// SYNPhase sends a TCP SYN to each port of a ladder, back to back. Either
// a SYN-ACK or a RST proves the host is up.
type SYNPhase struct {
	ports []uint16
}

// NewSYNPhase creates a SYN phase over ports, in order
func NewSYNPhase(ports []uint16) *SYNPhase {
	return &SYNPhase{ports: ports}
}

// Name returns the phase identifier
func (p *SYNPhase) Name() string {
	return "tcp"
}

func (p *SYNPhase) State() State {
	return StateTCPScan
}

// Probes returns one SYN per ladder port
func (p *SYNPhase) Probes(src, dst netip.Addr) ([][]byte, error) {
	pkts := make([][]byte, 0, len(p.ports))
	for _, port := range p.ports {
		pkt, err := packet.BuildTCPSYN(src, dst, port)
		if err != nil {
			return nil, err
		}
		pkts = append(pkts, pkt)
	}
	return pkts, nil
}
