// Package scanner confirms which hosts are up by probing them with ICMP
// echo and then TCP SYN while a packet capture listens for any reply.
// Each host is published on a queue the moment its first reply is seen,
// and a finish sentinel follows the last one.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/velemoonkon/sonar/pkg/capture"
	"github.com/velemoonkon/sonar/pkg/netutil"
	"github.com/velemoonkon/sonar/pkg/packet"
	"github.com/velemoonkon/sonar/pkg/queue"
)

// Detector runs alive detection. A Detector runs one detection at a time;
// overlapping calls to Run fail with ErrRunning.
type Detector struct {
	config  Config
	deps    Deps
	phases  *PhaseRegistry
	state   atomic.Int32
	running atomic.Bool
	sendLog rate.Sometimes
}

// NewDetector creates a detector. deps.Queue must be set.
func NewDetector(cfg Config, deps Deps) *Detector {
	def := DefaultConfig()
	if cfg.WaitWindow <= 0 {
		cfg.WaitWindow = def.WaitWindow
	}
	if cfg.FinishTimeout <= 0 {
		cfg.FinishTimeout = def.FinishTimeout
	}
	if cfg.Capture.SnapLen <= 0 {
		cfg.Capture.SnapLen = def.Capture.SnapLen
	}
	if cfg.Capture.PollInterval <= 0 {
		cfg.Capture.PollInterval = def.Capture.PollInterval
	}
	cfg.Capture.Filter = packet.Filter

	if deps.Source == nil {
		deps.Source = &netutil.Resolver{}
	}
	if deps.OpenSender == nil {
		deps.OpenSender = openRawSocket
	}
	if deps.OpenCapture == nil {
		deps.OpenCapture = capture.Open
	}

	phases := NewPhaseRegistry()
	phases.Register(NewICMPPhase())
	phases.Register(NewSYNPhase(packet.PortLadder))

	return &Detector{
		config:  cfg,
		deps:    deps,
		phases:  phases,
		sendLog: rate.Sometimes{First: 5, Interval: time.Second},
	}
}

func openRawSocket() (Sender, error) {
	s, err := netutil.ListenRaw()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// State returns the current state.
func (d *Detector) State() State {
	return State(d.state.Load())
}

func (d *Detector) transition(r *Report, to State) {
	from := State(d.state.Swap(int32(to)))
	r.States = append(r.States, to)
	slog.Debug("detector state", "from", from, "to", to)
}

// Run probes hosts and publishes every one that replies. It always walks
// all phases and always publishes queue.Finish last, also when ctx is
// cancelled or the socket and capture cannot be opened; in those cases
// the phases simply confirm nothing. The only errors returned are a failure
// to publish the sentinel and ErrRunning, when another Run has not returned
// yet; that call neither probes nor publishes anything.
func (d *Detector) Run(ctx context.Context, hosts []Host) (*Report, error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, ErrRunning
	}
	defer d.running.Store(false)

	report := &Report{Started: time.Now()}
	d.state.Store(int32(StateInit))
	report.States = append(report.States, StateInit)

	targets := newTargetSet(hosts)
	seen := newSeenSet()
	pub := &publisher{ctx: ctx, q: d.deps.Queue}
	report.Targets = targets.Len()

	slog.Info("starting alive detection", "targets", report.Targets, "wait", d.config.WaitWindow)

	sender, err := d.deps.OpenSender()
	if err != nil {
		slog.Error("failed to open send socket, probes will not be sent", "error", err)
		sender = nil
	} else {
		defer sender.Close()
	}

	for _, phase := range d.phases.All() {
		d.transition(report, phase.State())
		stats := d.runPhase(ctx, phase, sender, targets, seen, pub)
		report.Phases = append(report.Phases, stats)
	}

	d.transition(report, StateFinished)
	report.Alive = pub.Alive()
	report.Remaining = targets.Keys()
	report.Duration = time.Since(report.Started)

	slog.Info("alive detection finished",
		"targets", report.Targets,
		"alive", len(report.Alive),
		"remaining", len(report.Remaining),
		"duration", report.Duration.Round(time.Millisecond))

	// The sentinel must go out even when the run was cancelled.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.FinishTimeout)
	defer cancel()
	if err := d.deps.Queue.Push(pushCtx, queue.Finish); err != nil {
		return report, fmt.Errorf("failed to publish finish sentinel: %w", err)
	}
	return report, nil
}

// runPhase captures while probing the remaining targets, waits for late
// replies, then drops every host seen so far from the target set.
func (d *Detector) runPhase(ctx context.Context, phase Phase, sender Sender, targets *targetSet, seen *seenSet, pub *publisher) PhaseStats {
	start := time.Now()
	hosts := targets.Snapshot()
	stats := PhaseStats{
		Name:          phase.Name(),
		Targets:       len(hosts),
		ProbesPerHost: make(map[string]int, len(hosts)),
	}

	var g errgroup.Group
	session, err := d.deps.OpenCapture(d.config.Capture)
	if err != nil {
		slog.Warn("capture unavailable, probing without listening", "phase", phase.Name(), "error", err)
		stats.CaptureError = err.Error()
		session = nil
	} else {
		h := &replyHandler{link: session.LinkType(), targets: targets, seen: seen, pub: pub}
		g.Go(func() error {
			if err := session.Run(ctx, h.handle); err != nil {
				return &CaptureError{Phase: phase.Name(), Err: err}
			}
			return nil
		})
	}

	d.sendProbes(ctx, phase, sender, hosts, &stats)
	awaitReplies(ctx, d.config.WaitWindow)

	if session != nil {
		session.Stop()
		if err := g.Wait(); err != nil {
			var ce *CaptureError
			if errors.As(err, &ce) && errors.Is(ce.Err, capture.ErrExhausted) {
				slog.Debug("capture source exhausted", "phase", phase.Name())
			} else {
				slog.Warn("capture ended early", "phase", phase.Name(), "error", err)
			}
			stats.CaptureError = err.Error()
		}
		session.Close()
	}

	stats.Confirmed = targets.Exclude(seen.Keys())
	stats.Duration = time.Since(start)

	slog.Info("phase complete",
		"phase", stats.Name,
		"probes", stats.Probes,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"confirmed", stats.Confirmed,
		"remaining", targets.Len())

	return stats
}

func (d *Detector) sendProbes(ctx context.Context, phase Phase, sender Sender, hosts []Host, stats *PhaseStats) {
	for _, host := range hosts {
		if ctx.Err() != nil {
			slog.Debug("probing cancelled", "phase", phase.Name())
			return
		}

		key := hostKey(host)
		dst := host.Addr().Unmap()
		if !dst.Is4() {
			slog.Debug("skipping IPv6 target", "host", key)
			stats.Skipped++
			continue
		}

		src, err := d.deps.Source.Source(dst)
		if err != nil {
			slog.Warn("no source address for target", "host", key, "error", err)
			stats.Skipped++
			continue
		}

		pkts, err := phase.Probes(src, dst)
		if err != nil {
			slog.Warn("failed to build probes", "phase", phase.Name(), "host", key, "error", err)
			stats.Skipped++
			continue
		}

		for _, pkt := range pkts {
			stats.Probes++
			stats.ProbesPerHost[key]++

			err := errNoSocket
			if sender != nil {
				err = sender.Send(dst, pkt)
			}
			if err != nil {
				stats.Failed++
				d.sendLog.Do(func() {
					slog.Warn("failed to send probe", "phase", phase.Name(), "host", key, "error", err)
				})
			}
		}
	}
}

// awaitReplies blocks for window, or less if ctx ends first.
func awaitReplies(ctx context.Context, window time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	<-ctx.Done()
}
