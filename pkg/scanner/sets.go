package scanner

import (
	"sync"
)

func hostKey(h Host) string {
	return h.Addr().Unmap().String()
}

// targetSet holds the hosts not yet confirmed alive, in insertion order.
type targetSet struct {
	mu    sync.Mutex
	hosts map[string]Host
	order []string
}

func newTargetSet(hosts []Host) *targetSet {
	s := &targetSet{hosts: make(map[string]Host, len(hosts))}
	for _, h := range hosts {
		key := hostKey(h)
		if _, dup := s.hosts[key]; dup {
			continue
		}
		s.hosts[key] = h
		s.order = append(s.order, key)
	}
	return s
}

func (s *targetSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hosts[key]
	return ok
}

func (s *targetSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hosts)
}

// Snapshot returns the remaining hosts in insertion order.
func (s *targetSet) Snapshot() []Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Host, 0, len(s.hosts))
	for _, key := range s.order {
		if h, ok := s.hosts[key]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Keys returns the remaining identifiers in insertion order.
func (s *targetSet) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.hosts))
	for _, key := range s.order {
		if _, ok := s.hosts[key]; ok {
			out = append(out, key)
		}
	}
	return out
}

// Exclude removes every key in keys and returns how many were present.
func (s *targetSet) Exclude(keys []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, key := range keys {
		if _, ok := s.hosts[key]; ok {
			delete(s.hosts, key)
			removed++
		}
	}
	return removed
}

// seenSet records every address a reply was captured from. It only grows.
type seenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{keys: make(map[string]struct{})}
}

// Add inserts key and reports whether it was absent.
func (s *seenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *seenSet) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.keys))
	for key := range s.keys {
		out = append(out, key)
	}
	return out
}
