package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
)

// FilterPort is the TCP source port of every SYN probe. Replies to it are
// what the capture filter matches.
const FilterPort = 9910

// Filter is the BPF expression installed on every capture session.
const Filter = "ip and (icmp or dst port 9910)"

// PortLadder is the fixed, ordered list of destination ports tried during
// the TCP phase.
var PortLadder = []uint16{
	139, 135, 445, 80, 22, 515, 23, 21, 6000, 1025,
	25, 111, 1028, 9100, 1029, 79, 497, 548, 5000, 1917,
	53, 161, 9001, 65535, 443, 113, 993, 8080,
}

// ErrNotIPv4 is returned when a builder is handed a non-IPv4 address.
var ErrNotIPv4 = errors.New("packet: address is not IPv4")

const (
	ipv4HeaderLen = ipv4.HeaderLen
	icmpEchoLen   = 8
	tcpHeaderLen  = 20

	protoICMP = 1
	protoTCP  = 6

	defaultTTL = 64
	synWindow  = 2048
	tcpFlagSYN = 0x02
	icmpEcho   = 8

	// ICMPEchoLen and TCPSYNLen are the total lengths of the built probes.
	ICMPEchoLen = ipv4HeaderLen + icmpEchoLen
	TCPSYNLen   = ipv4HeaderLen + tcpHeaderLen
)

// BuildICMPEcho returns a complete IPv4 datagram carrying an ICMP echo
// request from src to dst. The identifier is random and the sequence is 0.
func BuildICMPEcho(src, dst netip.Addr) ([]byte, error) {
	src, dst, err := checkIPv4(src, dst)
	if err != nil {
		return nil, err
	}

	hdr, err := marshalIPv4(src, dst, protoICMP, ICMPEchoLen)
	if err != nil {
		return nil, err
	}

	echo := make([]byte, icmpEchoLen)
	echo[0] = icmpEcho
	binary.BigEndian.PutUint16(echo[4:6], uint16(rand.Uint32()))
	binary.BigEndian.PutUint16(echo[2:4], Checksum(echo))

	return append(hdr, echo...), nil
}

// BuildTCPSYN returns a complete IPv4 datagram carrying a bare TCP SYN from
// src:FilterPort to dst:dport.
func BuildTCPSYN(src, dst netip.Addr, dport uint16) ([]byte, error) {
	src, dst, err := checkIPv4(src, dst)
	if err != nil {
		return nil, err
	}

	hdr, err := marshalIPv4(src, dst, protoTCP, TCPSYNLen)
	if err != nil {
		return nil, err
	}

	seg := make([]byte, tcpHeaderLen)
	binary.BigEndian.PutUint16(seg[0:2], FilterPort)
	binary.BigEndian.PutUint16(seg[2:4], dport)
	binary.BigEndian.PutUint32(seg[4:8], rand.Uint32())
	seg[12] = (tcpHeaderLen / 4) << 4
	seg[13] = tcpFlagSYN
	binary.BigEndian.PutUint16(seg[14:16], synWindow)
	binary.BigEndian.PutUint16(seg[16:18], TCPChecksum(src, dst, seg))

	return append(hdr, seg...), nil
}

// TCPChecksum computes the TCP checksum of segment over the IPv4
// pseudo-header. The checksum field inside segment is treated as zero.
func TCPChecksum(src, dst netip.Addr, segment []byte) uint16 {
	buf := make([]byte, 12+len(segment))
	s4, d4 := src.As4(), dst.As4()
	copy(buf[0:4], s4[:])
	copy(buf[4:8], d4[:])
	buf[9] = protoTCP
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(segment)))
	copy(buf[12:], segment)
	if len(segment) >= 18 {
		buf[12+16], buf[12+17] = 0, 0
	}
	return Checksum(buf)
}

func marshalIPv4(src, dst netip.Addr, proto, total int) ([]byte, error) {
	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4HeaderLen,
		TotalLen: total,
		ID:       int(rand.Uint32() & 0xffff),
		TTL:      defaultTTL,
		Protocol: proto,
		Src:      net.IP(src.AsSlice()),
		Dst:      net.IP(dst.AsSlice()),
	}
	b, err := h.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal IPv4 header: %w", err)
	}
	binary.BigEndian.PutUint16(b[10:12], Checksum(b))
	return b, nil
}

func checkIPv4(src, dst netip.Addr) (netip.Addr, netip.Addr, error) {
	src, dst = src.Unmap(), dst.Unmap()
	if !src.Is4() {
		return src, dst, fmt.Errorf("%w: source %s", ErrNotIPv4, src)
	}
	if !dst.Is4() {
		return src, dst, fmt.Errorf("%w: destination %s", ErrNotIPv4, dst)
	}
	return src, dst, nil
}
