package dns

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// QueryUDP performs a UDP DNS query, retrying over TCP when the answer was
// truncated.
func QueryUDP(ctx context.Context, server string, domain string, qtype uint16, opts QueryOptions) (*dns.Msg, time.Duration, error) {
	msg := newQuery(domain, qtype, opts)

	// Ensure server has port
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	client := &dns.Client{
		Net:     "udp",
		Timeout: opts.Timeout,
	}

	resp, rtt, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, 0, fmt.Errorf("UDP query failed: %w", err)
	}
	if resp == nil {
		return nil, 0, fmt.Errorf("empty response")
	}

	if resp.Truncated {
		client.Net = "tcp"
		resp, rtt, err = client.ExchangeContext(ctx, msg, server)
		if err != nil {
			return nil, 0, fmt.Errorf("TCP retry failed: %w", err)
		}
	}

	return resp, rtt, nil
}
