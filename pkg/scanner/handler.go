package scanner

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/gopacket/layers"

	"github.com/velemoonkon/sonar/pkg/packet"
	"github.com/velemoonkon/sonar/pkg/queue"
)

// publisher pushes confirmed hosts to the queue and remembers them.
type publisher struct {
	ctx   context.Context
	q     queue.Queue
	mu    sync.Mutex
	alive []string
}

func (p *publisher) publish(key string) {
	if err := p.q.Push(p.ctx, key); err != nil {
		slog.Warn("failed to publish alive host", "host", key, "error", err)
		return
	}
	p.mu.Lock()
	p.alive = append(p.alive, key)
	p.mu.Unlock()
	slog.Info("host alive", "host", key)
}

func (p *publisher) Alive() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.alive)
}

// replyHandler turns captured frames into alive hosts. It runs on the
// capture goroutine only.
type replyHandler struct {
	link    layers.LinkType
	targets *targetSet
	seen    *seenSet
	pub     *publisher
}

func (h *replyHandler) handle(frame []byte) {
	addr, err := packet.SourceIPv4(h.link, frame)
	if err != nil {
		slog.Debug("dropping undecodable frame", "link", h.link, "len", len(frame), "error", err)
		return
	}

	key := addr.String()
	if !h.seen.Add(key) {
		return
	}
	if !h.targets.Contains(key) {
		return
	}
	h.pub.publish(key)
}
