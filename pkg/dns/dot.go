package dns

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// QueryDoT performs a DNS over TLS query. The certificate is always
// verified, against opts.TLSConfig.ServerName or else the server host.
func QueryDoT(ctx context.Context, server string, domain string, qtype uint16, opts QueryOptions) (*dns.Msg, time.Duration, error) {
	msg := newQuery(domain, qtype, opts)

	// Ensure server has port
	host, _, err := net.SplitHostPort(server)
	if err != nil {
		host = server
		server = net.JoinHostPort(server, "853")
	}

	var tlsConfig *tls.Config
	if opts.TLSConfig != nil {
		tlsConfig = opts.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = host
	}

	client := &dns.Client{
		Net:       "tcp-tls",
		Timeout:   opts.Timeout,
		TLSConfig: tlsConfig,
	}

	resp, rtt, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, 0, fmt.Errorf("DoT query failed: %w", err)
	}
	if resp == nil {
		return nil, 0, fmt.Errorf("empty response")
	}

	return resp, rtt, nil
}
