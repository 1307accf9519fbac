package sse

import (
	"context"
	"sync"

	"github.com/p2pmarket/marketd/internal/domain/notification"
)

// Hub fans notifications out to in-process subscribers such as event streams.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*notification.Subscriber
}

var _ notification.Hub = (*Hub)(nil)

// NewHub creates an empty subscriber hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*notification.Subscriber),
	}
}

// Subscribe registers s, closing any subscriber already using its ID.
func (h *Hub) Subscribe(s *notification.Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.subscribers[s.ID]; ok {
		old.Close()
	}
	h.subscribers[s.ID] = s
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subscribers[id]; ok {
		s.Close()
		delete(h.subscribers, id)
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish never blocks. Subscribers with a full buffer miss the event and
// the last such miss is reported.
func (h *Hub) Publish(_ context.Context, n *notification.Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var err error
	for _, s := range h.subscribers {
		if !s.Wants(n) {
			continue
		}
		if !trySend(s, n) {
			err = notification.ErrChannelFull
		}
	}
	return err
}

// SendTo delivers n to a single subscriber regardless of its filters.
func (h *Hub) SendTo(id string, n *notification.Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.subscribers[id]
	if s == nil {
		return notification.ErrSubscriberNotFound
	}
	if !trySend(s, n) {
		return notification.ErrChannelFull
	}
	return nil
}

// Stop closes every subscriber.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subscribers {
		s.Close()
		delete(h.subscribers, id)
	}
}

func trySend(s *notification.Subscriber, n *notification.Notification) bool {
	select {
	case s.C <- n:
		return true
	default:
		return false
	}
}
