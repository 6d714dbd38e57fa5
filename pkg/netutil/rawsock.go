package netutil

import (
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
)

// RawSocket sends fully formed IPv4 datagrams. The kernel does not add a
// header of its own; every packet handed to Send must start with one.
type RawSocket struct {
	conn *net.IPConn
	raw  *ipv4.RawConn
}

// ListenRaw opens a send-only IPv4 raw socket with header inclusion
// enabled. Requires root or CAP_NET_RAW.
func ListenRaw() (*RawSocket, error) {
	c, err := net.ListenPacket("ip4:255", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("failed to open raw socket: %w", err)
	}

	// NewRawConn sets IP_HDRINCL on the socket.
	raw, err := ipv4.NewRawConn(c)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to enable header inclusion: %w", err)
	}

	return &RawSocket{conn: c.(*net.IPConn), raw: raw}, nil
}

// Send writes pkt toward dst.
func (s *RawSocket) Send(dst netip.Addr, pkt []byte) error {
	_, err := s.conn.WriteToIP(pkt, &net.IPAddr{IP: dst.Unmap().AsSlice()})
	return err
}

// Close releases the socket.
func (s *RawSocket) Close() error {
	return s.raw.Close()
}
