package packet

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrNoIPv4Layer is returned when a captured frame carries no IPv4 header.
var ErrNoIPv4Layer = errors.New("packet: frame has no IPv4 layer")

// SourceIPv4 decodes frame according to its link type and returns the
// source address of the IPv4 header it carries.
//
// The link header length is taken from the real link layer (Ethernet with
// optional VLAN tags, Linux cooked capture, BSD loopback, raw IP) rather
// than assumed.
func SourceIPv4(link layers.LinkType, frame []byte) (netip.Addr, error) {
	pkt := gopacket.NewPacket(frame, link, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		if el := pkt.ErrorLayer(); el != nil {
			return netip.Addr{}, fmt.Errorf("failed to decode %s frame: %w", link, el.Error())
		}
		return netip.Addr{}, ErrNoIPv4Layer
	}

	addr, ok := netip.AddrFromSlice(ip.SrcIP)
	if !ok {
		return netip.Addr{}, fmt.Errorf("invalid IPv4 source %v", ip.SrcIP)
	}
	return addr.Unmap(), nil
}
