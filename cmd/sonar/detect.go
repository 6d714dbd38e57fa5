package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/velemoonkon/sonar/pkg/config"
	"github.com/velemoonkon/sonar/pkg/input"
	"github.com/velemoonkon/sonar/pkg/netutil"
	"github.com/velemoonkon/sonar/pkg/output"
	"github.com/velemoonkon/sonar/pkg/queue"
	"github.com/velemoonkon/sonar/pkg/scanner"
)

var (
	inputFile    string
	outputFile   string
	outputFormat string
	reportFile   string
	reportFormat string
	dnsServers   string
	dnsTransport string

	detectFlags DetectFlags
	queueFlags  QueueFlags
)

var detectCmd = &cobra.Command{
	Use:   "detect [flags] <target>...",
	Short: "Probe targets and publish the ones that are up",
	Long: `Probe targets with ICMP echo, then TCP SYN, and publish every host that
replies. Requires root (raw sockets and packet capture).

Targets are IPv4 addresses, CIDR ranges, dash ranges, comma-separated
lists or hostnames. With --redis the alive hosts are pushed to the Redis
session queue for a separate "sonar consume"; otherwise they are written
directly to -o.`,

	Example: `  # Single host and a /24, JSONL on stdout
  sudo sonar detect 10.0.0.1 10.0.1.0/24

  # Read targets from file, keep a Parquet file of alive hosts
  sudo sonar detect -f targets.txt --format parquet -o alive.parquet

  # Publish to Redis session 5 for another process
  sudo sonar detect 192.168.1.0/24 --redis localhost:6379 --session 5

  # Prefer eth1 as source and write a run report
  sudo sonar detect scanme.example.com --source-interface eth1 --report run.md --report-format markdown`,

	Args: func(cmd *cobra.Command, args []string) error {
		if inputFile == "" && len(args) == 0 {
			return fmt.Errorf("requires target(s) or -f/--file")
		}
		return nil
	},
	RunE: runDetect,
}

func init() {
	f := detectCmd.Flags()

	// Input
	f.StringVarP(&inputFile, "file", "f", "", "Read targets from file (one per line)")
	f.StringVar(&dnsServers, "dns", config.DNS.Servers, "Nameservers for hostname targets, comma-separated (default: /etc/resolv.conf)")
	f.StringVar(&dnsTransport, "dns-transport", config.DNS.Transport, "Hostname resolution transport: udp, tls")

	// Probing
	f.StringVar(&detectFlags.Source, "source", config.Probe.SourceAddr, "Source address of probes")
	f.StringVar(&detectFlags.SourceInterface, "source-interface", config.Probe.SourceInterface, "Use the address of this interface as source")
	f.DurationVar(&detectFlags.Wait, "wait", config.Probe.WaitWindow, "Listening time after the last probe of each phase")
	f.DurationVar(&detectFlags.FinishTimeout, "finish-timeout", config.Probe.FinishTimeout, "Bound on publishing the finish entry")

	// Capture
	f.StringVar(&detectFlags.CaptureInterface, "capture-interface", config.Capture.Interface, "Capture device")
	f.IntVar(&detectFlags.SnapLen, "snaplen", config.Capture.SnapLen, "Capture snapshot length")
	f.DurationVar(&detectFlags.PollInterval, "poll", config.Capture.PollInterval, "Capture read timeout")
	f.BoolVar(&detectFlags.Promiscuous, "promisc", config.Capture.Promiscuous, "Capture in promiscuous mode")

	// Queue
	addQueueFlags(detectCmd)

	// Output
	f.StringVarP(&outputFile, "output", "o", "-", "Alive-host output file, - for stdout (without --redis)")
	f.StringVar(&outputFormat, "format", "jsonl", "Output format: jsonl, parquet")
	f.StringVar(&reportFile, "report", "", "Write a run report to this file, - for stdout")
	f.StringVar(&reportFormat, "report-format", "json", "Report format: json, markdown")
}

func addQueueFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&queueFlags.RedisAddr, "redis", config.Queue.RedisAddr, "Redis address of the alive-host queue")
	f.StringVar(&queueFlags.RedisPassword, "redis-password", config.Queue.RedisPassword, "Redis password")
	f.IntVar(&queueFlags.Session, "session", config.Queue.SessionID, "Detection session id (Redis database)")
	f.StringVar(&queueFlags.Key, "key", config.Queue.Key, "Queue key")
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, source, err := ResolveDetectConfig(detectFlags)
	if err != nil {
		return err
	}
	redisCfg, useRedis, err := ResolveQueueConfig(queueFlags)
	if err != nil {
		return err
	}

	hosts, err := parseTargets(ctx, args)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		return fmt.Errorf("no valid targets found")
	}

	targets := make([]scanner.Host, 0, len(hosts))
	names := make(map[string]string)
	for _, h := range hosts {
		targets = append(targets, h)
		if h.Name() != "" {
			names[h.String()] = h.Name()
		}
	}

	var report *scanner.Report
	if useRedis {
		report, err = detectToRedis(ctx, cfg, source, redisCfg, targets)
	} else {
		report, err = detectToOutput(ctx, cfg, source, targets, names)
	}
	if err != nil {
		return err
	}

	if reportFile != "" {
		if err := writeReport(report); err != nil {
			return err
		}
	}
	return nil
}

func parseTargets(ctx context.Context, args []string) ([]input.Host, error) {
	res, err := newHostResolver(dnsServers, dnsTransport, config.DNS.Timeout)
	if err != nil {
		return nil, err
	}
	if inputFile != "" {
		slog.Debug("reading targets", "file", inputFile)
		return input.ParseFile(ctx, inputFile, res)
	}
	return input.ParseTargets(ctx, args, res)
}

func detectToRedis(ctx context.Context, cfg scanner.Config, source *netutil.Resolver, redisCfg queue.RedisConfig, targets []scanner.Host) (*scanner.Report, error) {
	q, err := queue.NewRedis(ctx, redisCfg)
	if err != nil {
		return nil, err
	}
	defer q.Close()

	slog.Info("publishing to redis", "addr", redisCfg.Addr, "session", redisCfg.DB, "key", redisCfg.Key)

	d := scanner.NewDetector(cfg, scanner.Deps{Queue: q, Source: source})
	return d.Run(ctx, targets)
}

// detectToOutput runs the detector against an in-process queue and writes
// alive hosts as they are published.
func detectToOutput(ctx context.Context, cfg scanner.Config, source *netutil.Resolver, targets []scanner.Host, names map[string]string) (*scanner.Report, error) {
	w, err := createOutputWriter(outputFile, outputFormat)
	if err != nil {
		return nil, err
	}

	q := queue.NewMemory()
	d := scanner.NewDetector(cfg, scanner.Deps{Queue: q, Source: source})
	c := scanner.NewConsumer(q, func(s string) (scanner.Host, error) {
		h, err := input.ParseHost(s)
		if err != nil {
			return nil, err
		}
		if name, ok := names[s]; ok {
			return input.NewNamedHost(h.Addr(), name), nil
		}
		return h, nil
	})

	// The finish entry arrives even on interrupt, so draining ignores the
	// signal and ends with it.
	drainCtx, stopDrain := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDrain()

	var (
		g      errgroup.Group
		report *scanner.Report
		count  int
	)
	g.Go(func() error {
		var err error
		report, err = d.Run(ctx, targets)
		if err != nil {
			stopDrain()
		}
		return err
	})
	g.Go(func() error {
		var err error
		count, err = drainAlive(drainCtx, c, w, queueFlags.Session, config.Queue.PopTimeout)
		return err
	})

	runErr := g.Wait()
	if closeErr := w.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		return report, runErr
	}

	slog.Info("alive hosts written", "count", count)
	return report, nil
}

func writeReport(report *scanner.Report) error {
	rw, err := output.NewReportWriter(reportFile, reportFormat)
	if err != nil {
		return err
	}
	if err := rw.WriteReport(report); err != nil {
		rw.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return rw.Close()
}
