package dns

import (
	"crypto/tls"
	"time"

	"github.com/miekg/dns"
)

// Transport selects how queries reach the nameservers
type Transport string

const (
	TransportUDP Transport = "udp" // UDP with TCP retry on truncation
	TransportTLS Transport = "tls" // DNS over TLS, port 853 by default
)

// QueryOptions contains options for DNS queries
type QueryOptions struct {
	Timeout          time.Duration
	RecursionDesired bool
	UseEDNS          bool
	EDNSBufferSize   uint16
	Transport        Transport
	TLSConfig        *tls.Config // Base TLS settings for TransportTLS; ServerName defaults to the server host
}

// DefaultQueryOptions returns default query options
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		Timeout:          3 * time.Second,
		RecursionDesired: true,
		UseEDNS:          true,
		EDNSBufferSize:   4096,
		Transport:        TransportUDP,
	}
}

// newQuery constructs the question message for domain
func newQuery(domain string, qtype uint16, opts QueryOptions) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qtype)
	msg.RecursionDesired = opts.RecursionDesired

	// Add EDNS if requested
	if opts.UseEDNS {
		opt := new(dns.OPT)
		opt.Hdr.Name = "."
		opt.Hdr.Rrtype = dns.TypeOPT
		opt.SetUDPSize(opts.EDNSBufferSize)
		msg.Extra = append(msg.Extra, opt)
	}
	return msg
}
