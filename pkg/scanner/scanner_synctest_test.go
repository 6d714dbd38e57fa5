//go:build go1.25

package scanner

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velemoonkon/sonar/pkg/packet"
	"github.com/velemoonkon/sonar/pkg/queue"
)

// =============================================================================
// Detection Flow Tests
// =============================================================================

// TestDetectorNoReplies runs a silent target through both phases
func TestDetectorNoReplies(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		start := time.Now()
		report, err := d.Run(t.Context(), hostsOf("10.0.0.5"))
		elapsed := time.Since(start)
		require.NoError(t, err)

		assert.Equal(t, []string{queue.Finish}, drain(q))
		assert.Empty(t, report.Alive)
		assert.Equal(t, []string{"10.0.0.5"}, report.Remaining)

		require.Len(t, report.Phases, 2)
		assert.Equal(t, 1, report.Phases[0].Probes)
		assert.Equal(t, len(packet.PortLadder), report.Phases[1].Probes)
		assert.Equal(t, 1, n.probesTo("10.0.0.5", 1))
		assert.Equal(t, 28, n.probesTo("10.0.0.5", 6))

		// Two wait windows, plus at most one poll each for the capture to stop
		assert.GreaterOrEqual(t, elapsed, 6*time.Second)
		assert.LessOrEqual(t, elapsed, 6*time.Second+2*testPoll)

		assert.Equal(t, StateFinished, d.State())
	})
}

// TestDetectorStateSequence verifies every state is entered in order
func TestDetectorStateSequence(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		d := newTestDetector(n, queue.NewMemory())
		assert.Equal(t, StateInit, d.State())

		report, err := d.Run(t.Context(), hostsOf("10.0.0.1"))
		require.NoError(t, err)
		assert.Equal(t, []State{StateInit, StateICMPScan, StateTCPScan, StateFinished}, report.States)
	})
}

// TestDetectorICMPConfirmedSkipTCP checks that hosts answering the echo
// are not probed again
func TestDetectorICMPConfirmedSkipTCP(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		n.answerEcho("10.0.0.5", 1)
		n.answerSYN("10.0.0.6", 443)
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		report, err := d.Run(t.Context(), hostsOf("10.0.0.5", "10.0.0.6", "10.0.0.7"))
		require.NoError(t, err)

		assert.Equal(t, []string{"10.0.0.5", "10.0.0.6", queue.Finish}, drain(q))
		assert.Equal(t, []string{"10.0.0.5", "10.0.0.6"}, report.Alive)
		assert.Equal(t, []string{"10.0.0.7"}, report.Remaining)

		assert.Equal(t, 0, n.probesTo("10.0.0.5", 6), "ICMP-confirmed host must get no SYNs")
		assert.NotContains(t, report.Phases[1].ProbesPerHost, "10.0.0.5")
		assert.Equal(t, 28, report.Phases[1].ProbesPerHost["10.0.0.6"])
		assert.Equal(t, 28, report.Phases[1].ProbesPerHost["10.0.0.7"])

		assert.Equal(t, 1, report.Phases[0].Confirmed)
		assert.Equal(t, 1, report.Phases[1].Confirmed)
		assert.Equal(t, 2, report.Phases[1].Targets)
	})
}

// TestDetectorPublishesOnce verifies deduplication across repeated replies
func TestDetectorPublishesOnce(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		n.answerEcho("10.0.0.8", 3)
		n.answerSYN("10.0.0.9", 0) // answers all 28 ports
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		_, err := d.Run(t.Context(), hostsOf("10.0.0.8", "10.0.0.9"))
		require.NoError(t, err)

		assert.Equal(t, []string{"10.0.0.8", "10.0.0.9", queue.Finish}, drain(q))
	})
}

// TestDetectorIgnoresNonTargets verifies unsolicited replies are not published
func TestDetectorIgnoresNonTargets(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		n.inject("10.9.9.9")
		n.inject("10.0.0.3")
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		report, err := d.Run(t.Context(), hostsOf("10.0.0.3", "10.0.0.4"))
		require.NoError(t, err)

		// 10.0.0.3 was seen before any probe went out and still counts.
		assert.Equal(t, []string{"10.0.0.3", queue.Finish}, drain(q))
		assert.Equal(t, []string{"10.0.0.4"}, report.Remaining)
	})
}

// TestDetectorLoopbackSource checks that local targets probe themselves
func TestDetectorLoopbackSource(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		d := newTestDetector(n, queue.NewMemory())

		_, err := d.Run(t.Context(), hostsOf("127.0.0.1", "203.0.113.9"))
		require.NoError(t, err)

		for _, p := range n.probes() {
			switch p.dst.String() {
			case "127.0.0.1":
				assert.Equal(t, "127.0.0.1", p.src.String())
			case "203.0.113.9":
				assert.Equal(t, "192.0.2.1", p.src.String())
			}
		}
	})
}

// TestDetectorSkipsIPv6 verifies IPv6 targets are never probed
func TestDetectorSkipsIPv6(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		report, err := d.Run(t.Context(), hostsOf("2001:db8::1"))
		require.NoError(t, err)

		assert.Empty(t, n.probes())
		assert.Equal(t, 1, report.Phases[0].Skipped)
		assert.Equal(t, 1, report.Phases[1].Skipped)
		assert.Equal(t, []string{"2001:db8::1"}, report.Remaining)
		assert.Equal(t, []string{queue.Finish}, drain(q))
	})
}

// TestDetectorCaptureFilter verifies each phase opens its own filtered capture
func TestDetectorCaptureFilter(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		d := newTestDetector(n, queue.NewMemory())

		_, err := d.Run(t.Context(), hostsOf("10.0.0.1"))
		require.NoError(t, err)

		require.Len(t, n.captureCfgs, 2)
		for _, cfg := range n.captureCfgs {
			assert.Equal(t, "ip and (icmp or dst port 9910)", cfg.Filter)
			assert.Equal(t, 1500, cfg.SnapLen)
		}
	})
}

// =============================================================================
// Failure Handling Tests
// =============================================================================

// TestDetectorSocketFailure verifies the run completes without a send socket
func TestDetectorSocketFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		q := queue.NewMemory()
		d := NewDetector(testConfig(), Deps{
			Queue:       q,
			Source:      testResolver(),
			OpenSender:  func() (Sender, error) { return nil, errors.New("operation not permitted") },
			OpenCapture: n.openCapture,
		})

		report, err := d.Run(t.Context(), hostsOf("10.0.0.1", "10.0.0.2"))
		require.NoError(t, err)

		assert.Equal(t, 2, report.Phases[0].Failed)
		assert.Equal(t, 56, report.Phases[1].Failed)
		assert.Equal(t, []string{queue.Finish}, drain(q))
		assert.Equal(t, StateFinished, d.State())
	})
}

// TestDetectorSendErrors verifies per-packet failures are counted, not retried
func TestDetectorSendErrors(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		n.sendErr = errors.New("no route to host")
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		report, err := d.Run(t.Context(), hostsOf("10.0.0.1"))
		require.NoError(t, err)

		assert.Len(t, n.probes(), 29)
		assert.Equal(t, report.Phases[0].Probes, report.Phases[0].Failed)
		assert.Equal(t, report.Phases[1].Probes, report.Phases[1].Failed)
		assert.Equal(t, []string{queue.Finish}, drain(q))
	})
}

// TestDetectorCaptureOpenFailure verifies phases still send without capture
func TestDetectorCaptureOpenFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		n.captureErr = errors.New("capture: cannot open device any: permission denied")
		n.answerEcho("10.0.0.1", 1)
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		report, err := d.Run(t.Context(), hostsOf("10.0.0.1"))
		require.NoError(t, err)

		assert.Equal(t, 29, len(n.probes()))
		assert.NotEmpty(t, report.Phases[0].CaptureError)
		assert.Equal(t, []string{queue.Finish}, drain(q))
	})
}

// TestDetectorCaptureReadFailure verifies a dying capture is reported and
// the run goes on
func TestDetectorCaptureReadFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		n.readErr = errors.New("interface went down")
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		report, err := d.Run(t.Context(), hostsOf("10.0.0.1"))
		require.NoError(t, err)

		for _, phase := range report.Phases {
			assert.Contains(t, phase.CaptureError, "interface went down")
			assert.Contains(t, phase.CaptureError, phase.Name+" phase capture")
		}
		assert.Equal(t, []string{queue.Finish}, drain(q))
	})
}

// TestDetectorCancelled verifies the sentinel is published after cancellation
func TestDetectorCancelled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		start := time.Now()
		report, err := d.Run(ctx, hostsOf("10.0.0.1"))
		require.NoError(t, err)

		assert.Less(t, time.Since(start), time.Second)
		assert.Empty(t, n.probes())
		assert.Equal(t, []State{StateInit, StateICMPScan, StateTCPScan, StateFinished}, report.States)
		assert.Equal(t, []string{queue.Finish}, drain(q))
	})
}

// TestDetectorCancelledMidWait verifies cancellation cuts the wait window short
func TestDetectorCancelledMidWait(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()

		start := time.Now()
		_, err := d.Run(ctx, hostsOf("10.0.0.1"))
		require.NoError(t, err)

		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Equal(t, 1, n.probesTo("10.0.0.1", 1))
		assert.Equal(t, 0, n.probesTo("10.0.0.1", 6))
		assert.Equal(t, []string{queue.Finish}, drain(q))
	})
}

// TestDetectorFinishPushFailure verifies the only error Run returns
func TestDetectorFinishPushFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		n.answerEcho("10.0.0.1", 1)
		q := &failingQueue{Memory: queue.NewMemory(), reject: queue.Finish}
		d := newTestDetector(n, q)

		report, err := d.Run(t.Context(), hostsOf("10.0.0.1"))
		require.Error(t, err)
		require.NotNil(t, report)
		assert.Equal(t, []string{"10.0.0.1"}, report.Alive)
		assert.Equal(t, []string{"10.0.0.1"}, drain(q.Memory))
	})
}

// =============================================================================
// Streaming Tests
// =============================================================================

// TestConsumerSeesHostsBeforeFinish verifies hosts stream out while
// detection is still running
func TestConsumerSeesHostsBeforeFinish(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		n.answerEcho("10.0.0.1", 1)
		n.answerSYN("10.0.0.2", 22)
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		runDone := make(chan time.Time, 1)
		go func() {
			_, err := d.Run(context.Background(), hostsOf("10.0.0.1", "10.0.0.2", "10.0.0.3"))
			assert.NoError(t, err)
			runDone <- time.Now()
		}()

		c := NewConsumer(q, nil)
		var (
			got     []string
			firstAt time.Time
		)
		for {
			h, err := c.Next(t.Context(), time.Second)
			if errors.Is(err, ErrNoHost) {
				continue
			}
			if errors.Is(err, ErrFinished) {
				break
			}
			require.NoError(t, err)
			if firstAt.IsZero() {
				firstAt = time.Now()
			}
			got = append(got, h.String())
		}

		finishedAt := <-runDone
		assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, got)
		assert.True(t, firstAt.Before(finishedAt.Add(-3*time.Second)), "first host should arrive during the ICMP phase")
	})
}

// TestDetectorRejectsOverlappingRun checks that a second Run is refused
// while the first is waiting for replies, and allowed afterwards
func TestDetectorRejectsOverlappingRun(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		n := newFakeNet()
		q := queue.NewMemory()
		d := newTestDetector(n, q)

		first := make(chan error, 1)
		go func() {
			_, err := d.Run(t.Context(), hostsOf("10.0.0.1"))
			first <- err
		}()

		time.Sleep(time.Second)
		require.Equal(t, StateICMPScan, d.State())

		report, err := d.Run(t.Context(), hostsOf("10.0.0.2"))
		assert.ErrorIs(t, err, ErrRunning)
		assert.Nil(t, report)
		assert.Zero(t, n.probesTo("10.0.0.2", 1))

		require.NoError(t, <-first)
		assert.Equal(t, []string{queue.Finish}, drain(q))

		_, err = d.Run(t.Context(), hostsOf("10.0.0.2"))
		require.NoError(t, err)
		assert.Equal(t, 1, n.probesTo("10.0.0.2", 1))
		assert.Equal(t, []string{queue.Finish}, drain(q))
	})
}
