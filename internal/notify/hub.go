package notify

import (
	"context"
	"sync"
)

const subscriberBuffer = 16

// Hub fans screen events out to SSE subscribers, one stream per screen.
type Hub struct {
	mu      sync.RWMutex
	streams map[string][]chan Event
}

func NewHub() *Hub {
	return &Hub{streams: make(map[string][]chan Event)}
}

// Publish sends ev to every subscriber of stream without blocking. It reports whether at least
// one subscriber took the event.
func (h *Hub) Publish(stream string, ev Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := false
	for _, ch := range h.streams[stream] {
		select {
		case ch <- ev:
			sent = true
		default:
			// slow subscriber, drop
		}
	}
	return sent
}

// Subscribe registers a subscriber that is removed and closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, stream string) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.streams[stream] = append(h.streams[stream], ch)
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.unsubscribe(stream, ch)
	}()
	return ch
}

// CloseStream closes every subscriber of stream.
func (h *Hub) CloseStream(stream string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.streams[stream] {
		close(ch)
	}
	delete(h.streams, stream)
}

// CloseAll closes every subscriber of every stream.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for stream, subs := range h.streams {
		for _, ch := range subs {
			close(ch)
		}
		delete(h.streams, stream)
	}
}

// SubscriberCount returns the number of active subscribers for a stream.
func (h *Hub) SubscriberCount(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[stream])
}

func (h *Hub) unsubscribe(stream string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.streams[stream]
	for i, sub := range subs {
		if sub != ch {
			continue
		}
		h.streams[stream] = append(subs[:i], subs[i+1:]...)
		close(ch)
		if len(h.streams[stream]) == 0 {
			delete(h.streams, stream)
		}
		return
	}
}

// StreamRenderer publishes a screen's events to its hub stream.
type StreamRenderer struct {
	Hub    *Hub
	Stream string
}

func (s StreamRenderer) Notify(n Notification) {
	s.Hub.Publish(s.Stream, Event{Kind: KindNotification, Notification: &n})
}

func (s StreamRenderer) Navigate(nav Navigation) {
	s.Hub.Publish(s.Stream, Event{Kind: KindNavigation, Navigation: &nav})
}
