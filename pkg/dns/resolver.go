// Package dns resolves target hostnames to addresses.
package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// DefaultResolvConf is where system nameservers are read from.
const DefaultResolvConf = "/etc/resolv.conf"

// ErrNoAnswer is returned when every server answered without an address.
var ErrNoAnswer = errors.New("dns: no address records")

// Resolver looks up A and AAAA records against a fixed list of servers,
// trying them in order.
type Resolver struct {
	servers []string
	opts    QueryOptions
}

// NewResolver creates a resolver for servers ("host" or "host:port").
func NewResolver(servers []string, opts QueryOptions) *Resolver {
	return &Resolver{servers: servers, opts: opts}
}

// NewSystemResolver creates a resolver from the nameservers in path.
func NewSystemResolver(path string, opts QueryOptions) (*Resolver, error) {
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("no nameservers in %s", path)
	}

	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	return NewResolver(servers, opts), nil
}

// Servers returns the configured nameservers.
func (r *Resolver) Servers() []string {
	return r.servers
}

// LookupHost returns the IPv4 addresses of name followed by its IPv6
// addresses.
func (r *Resolver) LookupHost(ctx context.Context, name string) ([]netip.Addr, error) {
	var (
		addrs   []netip.Addr
		lastErr error
	)

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := r.lookup(ctx, name, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		addrs = append(addrs, found...)
	}

	if len(addrs) > 0 {
		return addrs, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w for %s", ErrNoAnswer, name)
}

func (r *Resolver) lookup(ctx context.Context, name string, qtype uint16) ([]netip.Addr, error) {
	var lastErr error

	for _, server := range r.servers {
		resp, rtt, err := r.query(ctx, server, name, qtype)
		if err != nil {
			slog.Debug("DNS query error", "server", server, "name", name, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		slog.Debug("DNS answer", "server", server, "name", name,
			"type", dns.TypeToString[qtype], "rcode", dns.RcodeToString[resp.Rcode], "rtt", rtt)

		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, fmt.Errorf("%s: %s", name, dns.RcodeToString[resp.Rcode])
		default:
			lastErr = fmt.Errorf("%s from %s: %s", name, server, dns.RcodeToString[resp.Rcode])
			continue
		}

		var addrs []netip.Addr
		for _, rr := range resp.Answer {
			var ip net.IP
			switch v := rr.(type) {
			case *dns.A:
				ip = v.A
			case *dns.AAAA:
				ip = v.AAAA
			default:
				continue
			}
			if addr, ok := netip.AddrFromSlice(ip); ok {
				addrs = append(addrs, addr.Unmap())
			}
		}
		return addrs, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no nameservers configured")
	}
	return nil, lastErr
}

func (r *Resolver) query(ctx context.Context, server, name string, qtype uint16) (*dns.Msg, time.Duration, error) {
	if r.opts.Transport == TransportTLS {
		return QueryDoT(ctx, server, name, qtype, r.opts)
	}
	return QueryUDP(ctx, server, name, qtype, r.opts)
}
