package main

import (
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/velemoonkon/sonar/pkg/capture"
	"github.com/velemoonkon/sonar/pkg/dns"
	"github.com/velemoonkon/sonar/pkg/input"
	"github.com/velemoonkon/sonar/pkg/netutil"
	"github.com/velemoonkon/sonar/pkg/queue"
	"github.com/velemoonkon/sonar/pkg/scanner"
)

// DetectFlags represents the CLI flags for a detection run
type DetectFlags struct {
	Source           string // Preferred source address
	SourceInterface  string // Interface whose address is preferred as source
	CaptureInterface string
	SnapLen          int
	Wait             time.Duration
	FinishTimeout    time.Duration
	PollInterval     time.Duration
	Promiscuous      bool
}

// QueueFlags represents the CLI flags selecting the Redis session queue
type QueueFlags struct {
	RedisAddr     string
	RedisPassword string
	Session       int
	Key           string
}

// ResolveDetectConfig resolves CLI flags to detector configuration and
// source address selection
func ResolveDetectConfig(flags DetectFlags) (scanner.Config, *netutil.Resolver, error) {
	res := &netutil.Resolver{Interface: flags.SourceInterface}
	if flags.Source != "" {
		addr, err := netip.ParseAddr(flags.Source)
		if err != nil {
			return scanner.Config{}, nil, fmt.Errorf("invalid source address %q: %w", flags.Source, err)
		}
		if !addr.Unmap().Is4() {
			return scanner.Config{}, nil, fmt.Errorf("source address %s is not IPv4", addr)
		}
		res.Preferred = addr.Unmap()
	}

	cfg := scanner.Config{
		WaitWindow:    flags.Wait,
		FinishTimeout: flags.FinishTimeout,
		Capture: capture.Config{
			Interface:    flags.CaptureInterface,
			SnapLen:      flags.SnapLen,
			Promiscuous:  flags.Promiscuous,
			PollInterval: flags.PollInterval,
		},
	}
	return cfg, res, nil
}

// ResolveQueueConfig resolves CLI flags to a Redis queue configuration.
// ok is false when no Redis address was given.
func ResolveQueueConfig(flags QueueFlags) (cfg queue.RedisConfig, ok bool, err error) {
	if flags.RedisAddr == "" {
		return queue.RedisConfig{}, false, nil
	}
	if flags.Session < 0 {
		return queue.RedisConfig{}, false, fmt.Errorf("invalid session id %d", flags.Session)
	}
	return queue.RedisConfig{
		Addr:     flags.RedisAddr,
		Password: flags.RedisPassword,
		DB:       flags.Session,
		Key:      flags.Key,
	}, true, nil
}

// parseServers splits a comma-separated nameserver list
func parseServers(servers string) []string {
	var result []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			result = append(result, s)
		}
	}
	return result
}

// newHostResolver returns the resolver for hostname targets: the given
// servers, or the system nameservers. A nil result makes hostname targets
// fail to parse.
func newHostResolver(servers, transport string, timeout time.Duration) (input.Resolver, error) {
	opts := dns.DefaultQueryOptions()
	if timeout > 0 {
		opts.Timeout = timeout
	}

	switch dns.Transport(strings.ToLower(transport)) {
	case dns.TransportUDP, "":
	case dns.TransportTLS:
		opts.Transport = dns.TransportTLS
	default:
		return nil, fmt.Errorf("unsupported DNS transport %q", transport)
	}

	if list := parseServers(servers); len(list) > 0 {
		return dns.NewResolver(list, opts), nil
	}
	if opts.Transport == dns.TransportTLS {
		return nil, fmt.Errorf("DNS over TLS requires --dns servers")
	}

	res, err := dns.NewSystemResolver(dns.DefaultResolvConf, opts)
	if err != nil {
		slog.Warn("no nameservers, hostname targets will be rejected", "error", err)
		return nil, nil
	}
	return res, nil
}
