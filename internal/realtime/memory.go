package realtime

import (
	"context"
	"sync"
)

// MemoryChannel is an in-process hub. Publish blocks while a subscriber's
// buffer is full, so events are never dropped silently.
type MemoryChannel struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	buffer int
	closed bool
}

func NewMemoryChannel(buffer int) *MemoryChannel {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryChannel{subs: make(map[string]map[*memorySub]struct{}), buffer: buffer}
}

func (m *MemoryChannel) Publish(ctx context.Context, key string, ev Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrChannelClosed
	}
	for sub := range m.subs[key] {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *MemoryChannel) Subscribe(_ context.Context, key string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrChannelClosed
	}
	sub := &memorySub{hub: m, key: key, ch: make(chan Event, m.buffer), done: make(chan struct{})}
	if m.subs[key] == nil {
		m.subs[key] = make(map[*memorySub]struct{})
	}
	m.subs[key][sub] = struct{}{}
	return sub, nil
}

// Close ends every subscription.
func (m *MemoryChannel) Close() error {
	m.mu.RLock()
	var all []*memorySub
	for _, set := range m.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	m.mu.RUnlock()
	for _, sub := range all {
		_ = sub.Close()
	}
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

type memorySub struct {
	hub  *MemoryChannel
	key  string
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		// unblock publishers before taking the write lock
		close(s.done)
		s.hub.mu.Lock()
		delete(s.hub.subs[s.key], s)
		if len(s.hub.subs[s.key]) == 0 {
			delete(s.hub.subs, s.key)
		}
		s.hub.mu.Unlock()
		close(s.ch)
	})
	return nil
}
