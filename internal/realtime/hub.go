// Package realtime fans domain events out to connected websocket clients.
package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"accesscontrol/internal/domain"
	"accesscontrol/internal/lib/sl"
)

// DefaultQueueSize is the per-subscriber buffer used when none is configured.
const DefaultQueueSize = 64

// Hub is an in-process domain.EventPublisher. Each subscriber owns a bounded queue; an event
// that does not fit is dropped for that subscriber only.
type Hub struct {
	mu        sync.RWMutex
	subs      map[*Subscription]struct{}
	closed    bool
	queueSize int
	logger    *slog.Logger
	now       func() time.Time
	dropped   atomic.Int64
}

// NewHub creates a hub whose subscribers buffer up to queueSize events.
func NewHub(logger *slog.Logger, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:      make(map[*Subscription]struct{}),
		queueSize: queueSize,
		logger:    logger.With(sl.Module("realtime.hub")),
		now:       time.Now,
	}
}

// Subscription receives events on C until it is cancelled or the hub closes.
type Subscription struct {
	C    <-chan domain.Event
	ch   chan domain.Event
	hub  *Hub
	once sync.Once
}

// Subscribe registers a new subscriber. On a closed hub the returned channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan domain.Event, h.queueSize)
	s := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(ch) })
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Cancel removes the subscription and closes C. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

// Publish stamps the event and offers it to every subscriber without blocking.
func (h *Hub) Publish(eventType domain.EventType, payload any) {
	event := domain.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Payload:    payload,
		OccurredAt: h.now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for s := range h.subs {
		select {
		case s.ch <- event:
		default:
			h.dropped.Add(1)
			h.logger.Warn("subscriber queue full, event dropped", "event_type", eventType, "event_id", event.ID)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were discarded because a queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes every subscription and turns Publish into a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
}
