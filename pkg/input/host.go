package input

import (
	"fmt"
	"net/netip"
)

// Host is one detection target: an address, and the name it was resolved
// from when the user gave a hostname.
type Host struct {
	addr netip.Addr
	name string
}

// NewHost returns a Host for addr with no name.
func NewHost(addr netip.Addr) Host {
	return Host{addr: addr.Unmap()}
}

// NewNamedHost returns a Host for addr that was resolved from name.
func NewNamedHost(addr netip.Addr, name string) Host {
	return Host{addr: addr.Unmap(), name: name}
}

// ParseHost parses an IP literal, as found on the alive-host queue.
func ParseHost(s string) (Host, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Host{}, fmt.Errorf("invalid IP address %q: %w", s, err)
	}
	return NewHost(addr), nil
}

// Addr returns the host address.
func (h Host) Addr() netip.Addr { return h.addr }

// Name returns the hostname the address was resolved from, if any.
func (h Host) Name() string { return h.name }

// String returns the canonical identifier: the address text.
func (h Host) String() string { return h.addr.String() }
