package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"strings"
)

// maxExpand caps how many addresses one CIDR or range may produce.
const maxExpand = 1 << 20

// ErrNoResolver is returned for a hostname target when no Resolver was given.
var ErrNoResolver = errors.New("input: hostname given but no resolver configured")

// Resolver turns a hostname into addresses.
type Resolver interface {
	LookupHost(ctx context.Context, name string) ([]netip.Addr, error)
}

// ParseTargets parses command-line targets: IPs, CIDRs, dash ranges
// ("10.0.0.1-20" or "10.0.0.1-10.0.0.20"), hostnames, and comma-separated
// lists of these. Duplicates are dropped, first occurrence wins. res may be
// nil when no hostnames are expected.
func ParseTargets(ctx context.Context, targets []string, res Resolver) ([]Host, error) {
	var c collector

	for _, target := range targets {
		for part := range strings.SplitSeq(target, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if err := c.add(ctx, part, res); err != nil {
				return nil, err
			}
		}
	}

	return c.hosts, nil
}

// ParseFile reads targets from a file, one or more per line. Blank lines and
// lines starting with '#' are skipped.
func ParseFile(ctx context.Context, filename string, res Resolver) ([]Host, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var c collector
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		for part := range strings.SplitSeq(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if err := c.add(ctx, part, res); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return c.hosts, nil
}

type collector struct {
	hosts []Host
	seen  map[netip.Addr]struct{}
}

func (c *collector) push(h Host) {
	if c.seen == nil {
		c.seen = make(map[netip.Addr]struct{})
	}
	if _, dup := c.seen[h.addr]; dup {
		return
	}
	c.seen[h.addr] = struct{}{}
	c.hosts = append(c.hosts, h)
}

func (c *collector) add(ctx context.Context, part string, res Resolver) error {
	switch {
	case strings.Contains(part, "/"):
		seq, err := IPRange(part)
		if err != nil {
			return fmt.Errorf("invalid CIDR %s: %w", part, err)
		}
		for addr := range seq {
			c.push(NewHost(addr))
		}
		return nil

	case strings.Contains(part, "-") && !strings.Contains(part, ":"):
		if seq, err := DashRange(part); err == nil {
			for addr := range seq {
				c.push(NewHost(addr))
			}
			return nil
		} else if looksNumeric(part) {
			return fmt.Errorf("invalid range %s: %w", part, err)
		}
	}

	if addr, err := netip.ParseAddr(part); err == nil {
		c.push(NewHost(addr))
		return nil
	}
	if looksNumeric(part) {
		return fmt.Errorf("invalid IP address: %s", part)
	}

	if res == nil {
		return fmt.Errorf("%w: %s", ErrNoResolver, part)
	}
	addrs, err := res.LookupHost(ctx, part)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", part, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("failed to resolve %s: no addresses", part)
	}
	c.push(NewNamedHost(pickAddr(addrs), part))
	return nil
}

// pickAddr prefers the first IPv4 answer; IPv6 targets are only reported.
func pickAddr(addrs []netip.Addr) netip.Addr {
	for _, a := range addrs {
		if a.Unmap().Is4() {
			return a
		}
	}
	return addrs[0]
}

func looksNumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

// IPRange returns an iterator over the host addresses of an IPv4 CIDR.
// The network and broadcast addresses are left out unless the prefix is
// /31 or /32.
func IPRange(cidr string) (iter.Seq[netip.Addr], error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, err
	}
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("IPv6 ranges are not supported")
	}

	bits := prefix.Bits()
	if 32-bits > 20 {
		return nil, fmt.Errorf("/%d expands to more than %d addresses", bits, maxExpand)
	}

	first := prefix.Addr()
	size := uint32(1) << (32 - bits)
	count := size
	if bits < 31 {
		first = first.Next()
		count = size - 2
	}

	return func(yield func(netip.Addr) bool) {
		addr := first
		for range count {
			if !yield(addr) {
				return
			}
			addr = addr.Next()
		}
	}, nil
}

// DashRange returns an iterator over an inclusive IPv4 range written as
// "a.b.c.d-e" or "a.b.c.d-w.x.y.z".
func DashRange(s string) (iter.Seq[netip.Addr], error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return nil, fmt.Errorf("missing '-'")
	}
	start, err := netip.ParseAddr(strings.TrimSpace(lo))
	if err != nil || !start.Is4() {
		return nil, fmt.Errorf("invalid range start %q", lo)
	}

	hi = strings.TrimSpace(hi)
	var end netip.Addr
	if strings.Contains(hi, ".") {
		end, err = netip.ParseAddr(hi)
		if err != nil || !end.Is4() {
			return nil, fmt.Errorf("invalid range end %q", hi)
		}
	} else {
		last, err := strconv.Atoi(hi)
		if err != nil || last < 0 || last > 255 {
			return nil, fmt.Errorf("invalid range end %q", hi)
		}
		b := start.As4()
		b[3] = byte(last)
		end = netip.AddrFrom4(b)
	}

	if end.Less(start) {
		return nil, fmt.Errorf("range end %s before start %s", end, start)
	}
	if span(start, end) >= maxExpand {
		return nil, fmt.Errorf("range expands to more than %d addresses", maxExpand)
	}

	return func(yield func(netip.Addr) bool) {
		for addr := start; addr.IsValid() && !end.Less(addr); addr = addr.Next() {
			if !yield(addr) {
				return
			}
		}
	}, nil
}

// ExpandCIDR expands a CIDR range into individual addresses.
// For streaming use cases, prefer IPRange() to avoid allocating the full slice.
func ExpandCIDR(cidr string) ([]netip.Addr, error) {
	seq, err := IPRange(cidr)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

func span(a, b netip.Addr) uint32 {
	x, y := a.As4(), b.As4()
	u := uint32(x[0])<<24 | uint32(x[1])<<16 | uint32(x[2])<<8 | uint32(x[3])
	v := uint32(y[0])<<24 | uint32(y[1])<<16 | uint32(y[2])<<8 | uint32(y[3])
	return v - u
}
