// Package netutil selects source addresses for outgoing probes and owns the
// raw socket they are sent through.
package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
)

// ErrNoSourceAddr is returned when no local IPv4 address can be used as a
// probe source.
var ErrNoSourceAddr = errors.New("netutil: no usable IPv4 source address")

// AddrsFunc enumerates interface addresses. net.InterfaceAddrs satisfies it.
type AddrsFunc func() ([]net.Addr, error)

// IsLocal reports whether addr belongs to this machine: the unspecified
// address, anything in 127.0.0.0/8, or an address assigned to a local
// interface. Only IPv4 is considered. When interfaces cannot be enumerated
// the answer is unknown and IsLocal returns false with the error.
func IsLocal(addr netip.Addr) (bool, error) {
	return isLocal(addr, net.InterfaceAddrs)
}

func isLocal(addr netip.Addr, addrs AddrsFunc) (bool, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return false, nil
	}
	if addr.IsUnspecified() || addr.IsLoopback() {
		return true, nil
	}

	list, err := addrs()
	if err != nil {
		return false, fmt.Errorf("failed to enumerate interface addresses: %w", err)
	}
	for _, a := range list {
		if ip, ok := ipv4Of(a); ok && ip == addr {
			return true, nil
		}
	}
	return false, nil
}

// Resolver picks the source address for probes toward a destination.
// The zero value uses the kernel's interface list with no preference.
type Resolver struct {
	// Preferred wins over interface enumeration for non-local destinations.
	Preferred netip.Addr

	// Interface names an interface whose first IPv4 address is used when
	// Preferred is unset.
	Interface string

	// Addrs and InterfaceAddrs replace interface enumeration in tests.
	Addrs          AddrsFunc
	InterfaceAddrs func(name string) ([]net.Addr, error)
}

// Source returns the IPv4 source address for a probe to dst.
//
// A local destination is probed from itself. Otherwise the preferred
// address, then the preferred interface, then the first non-loopback IPv4
// address of any interface is used, falling back to a loopback address
// when nothing else exists.
func (r *Resolver) Source(dst netip.Addr) (netip.Addr, error) {
	dst = dst.Unmap()
	if !dst.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: destination %s is not IPv4", ErrNoSourceAddr, dst)
	}

	local, err := isLocal(dst, r.addrs())
	if err != nil {
		slog.Debug("locality of destination unknown", "dst", dst, "error", err)
	}
	if local {
		return dst, nil
	}

	if r.Preferred.IsValid() && !r.Preferred.IsUnspecified() {
		return r.Preferred.Unmap(), nil
	}

	if r.Interface != "" {
		list, err := r.interfaceAddrs(r.Interface)
		if err != nil {
			slog.Warn("preferred interface unavailable", "interface", r.Interface, "error", err)
		} else if src, ok := firstIPv4(list); ok {
			return src, nil
		}
	}

	list, err := r.addrs()()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to enumerate interface addresses: %w", err)
	}
	if src, ok := firstIPv4(list); ok {
		return src, nil
	}
	return netip.Addr{}, ErrNoSourceAddr
}

func (r *Resolver) addrs() AddrsFunc {
	if r.Addrs != nil {
		return r.Addrs
	}
	return net.InterfaceAddrs
}

func (r *Resolver) interfaceAddrs(name string) ([]net.Addr, error) {
	if r.InterfaceAddrs != nil {
		return r.InterfaceAddrs(name)
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return iface.Addrs()
}

// firstIPv4 prefers non-loopback addresses and falls back to the first
// loopback one.
func firstIPv4(list []net.Addr) (netip.Addr, bool) {
	var loopback netip.Addr
	for _, a := range list {
		ip, ok := ipv4Of(a)
		if !ok {
			continue
		}
		if !ip.IsLoopback() {
			return ip, true
		}
		if !loopback.IsValid() {
			loopback = ip
		}
	}
	return loopback, loopback.IsValid()
}

func ipv4Of(a net.Addr) (netip.Addr, bool) {
	var ip net.IP
	switch v := a.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	default:
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	addr = addr.Unmap()
	return addr, addr.Is4()
}
