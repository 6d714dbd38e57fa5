package scanner

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/velemoonkon/sonar/pkg/capture"
	"github.com/velemoonkon/sonar/pkg/input"
	"github.com/velemoonkon/sonar/pkg/netutil"
	"github.com/velemoonkon/sonar/pkg/packet"
	"github.com/velemoonkon/sonar/pkg/queue"
)

const testPoll = 100 * time.Millisecond

type sentProbe struct {
	dst   netip.Addr
	src   netip.Addr
	proto byte
	port  uint16
}

// fakeNet plays the network: it records every probe and, for hosts marked
// up, answers with a reply frame on the capture side.
type fakeNet struct {
	mu          sync.Mutex
	echo        map[string]int    // replies per echo request
	ports       map[string]uint16 // port answering SYNs; 0 means every port
	sent        []sentProbe
	sendErr     error
	captureErr  error
	readErr     error
	captureCfgs []capture.Config
	frames      chan []byte
}

func newFakeNet() *fakeNet {
	return &fakeNet{
		echo:   make(map[string]int),
		ports:  make(map[string]uint16),
		frames: make(chan []byte, 4096),
	}
}

func (n *fakeNet) answerEcho(addr string, times int)  { n.echo[addr] = times }
func (n *fakeNet) answerSYN(addr string, port uint16) { n.ports[addr] = port }

// inject delivers an unsolicited frame from addr.
func (n *fakeNet) inject(from string) {
	pkt, _ := packet.BuildICMPEcho(netip.MustParseAddr(from), netip.MustParseAddr("192.0.2.1"))
	n.frames <- pkt
}

func (n *fakeNet) Send(dst netip.Addr, pkt []byte) error {
	src, _ := netip.AddrFromSlice(pkt[12:16])
	p := sentProbe{dst: dst, src: src, proto: pkt[9]}
	if p.proto == 6 {
		p.port = binary.BigEndian.Uint16(pkt[22:24])
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, p)
	if n.sendErr != nil {
		return n.sendErr
	}

	key := dst.String()
	switch p.proto {
	case 1:
		for range n.echo[key] {
			reply, _ := packet.BuildICMPEcho(dst, src)
			n.frames <- reply
		}
	case 6:
		if port, ok := n.ports[key]; ok && (port == 0 || port == p.port) {
			reply, _ := packet.BuildTCPSYN(dst, src, packet.FilterPort)
			n.frames <- reply
		}
	}
	return nil
}

func (n *fakeNet) Close() error { return nil }

func (n *fakeNet) openSender() (Sender, error) { return n, nil }

func (n *fakeNet) openCapture(cfg capture.Config) (*capture.Session, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.captureCfgs = append(n.captureCfgs, cfg)
	if n.captureErr != nil {
		return nil, n.captureErr
	}
	return capture.NewSession(&fakeSource{net: n, readErr: n.readErr}), nil
}

func (n *fakeNet) probes() []sentProbe {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentProbe(nil), n.sent...)
}

func (n *fakeNet) probesTo(addr string, proto byte) int {
	count := 0
	for _, p := range n.probes() {
		if p.dst.String() == addr && p.proto == proto {
			count++
		}
	}
	return count
}

// fakeSource hands out reply frames as raw IPv4, timing out like a live
// device when idle.
type fakeSource struct {
	net     *fakeNet
	readErr error
}

func (s *fakeSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if s.readErr != nil {
		return nil, gopacket.CaptureInfo{}, s.readErr
	}
	select {
	case frame := <-s.net.frames:
		return frame, gopacket.CaptureInfo{CaptureLength: len(frame), Length: len(frame)}, nil
	case <-time.After(testPoll):
		return nil, gopacket.CaptureInfo{}, capture.ErrReadTimeout
	}
}

func (s *fakeSource) LinkType() layers.LinkType { return layers.LinkTypeRaw }

func (s *fakeSource) Close() {}

// testResolver gives every remote target 192.0.2.1 as source.
func testResolver() *netutil.Resolver {
	return &netutil.Resolver{
		Addrs: func() ([]net.Addr, error) {
			return []net.Addr{
				&net.IPNet{IP: net.IPv4(127, 0, 0, 1), Mask: net.CIDRMask(8, 32)},
				&net.IPNet{IP: net.IPv4(192, 0, 2, 1), Mask: net.CIDRMask(24, 32)},
			}, nil
		},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Capture.PollInterval = testPoll
	return cfg
}

func newTestDetector(n *fakeNet, q queue.Queue) *Detector {
	return NewDetector(testConfig(), Deps{
		Queue:       q,
		Source:      testResolver(),
		OpenSender:  n.openSender,
		OpenCapture: n.openCapture,
	})
}

func hostsOf(addrs ...string) []Host {
	hosts := make([]Host, 0, len(addrs))
	for _, a := range addrs {
		hosts = append(hosts, input.NewHost(netip.MustParseAddr(a)))
	}
	return hosts
}

// drain pops everything currently queued.
func drain(q *queue.Memory) []string {
	var items []string
	for q.Len() > 0 {
		item, err := q.Pop(context.Background(), time.Millisecond)
		if err != nil {
			break
		}
		items = append(items, item)
	}
	return items
}

// failingQueue refuses to publish one particular item.
type failingQueue struct {
	*queue.Memory
	reject string
}

func (q *failingQueue) Push(ctx context.Context, item string) error {
	if item == q.reject {
		return errors.New("queue unavailable")
	}
	return q.Memory.Push(ctx, item)
}
