// Package stream fans live result events out to connected observers.
package stream

import (
	"log/slog"
	"sync"
	"time"

	"paddock/internal/platform/metrics"
)

// Event is one message on the result stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const (
	EventConnected   = "connected"
	EventPing        = "ping"
	EventResultSaved = "result_saved"
)

const subscriberBuffer = 16

// Subscriber is one attached observer. Its channel is never closed; the
// done channel signals detachment so a send can never hit a closed
// channel.
type Subscriber struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Events is the stream the observer drains.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Done is closed when the subscriber is detached.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Hub is the broadcast fan-out. Subscribers attach and detach at any
// time; publishing never blocks on a slow observer.
type Hub struct {
	mu        sync.Mutex
	subs      map[*Subscriber]struct{}
	heartbeat time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewHub(heartbeat time.Duration, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Hub{
		subs:      make(map[*Subscriber]struct{}),
		heartbeat: heartbeat,
		metrics:   m,
		logger:    logger,
	}
}

// Subscribe attaches a new observer. The connection ack is enqueued
// before the subscriber is visible to Publish, so it is always the first
// event delivered. A per-subscriber heartbeat keeps idle connections
// alive until Unsubscribe stops it.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		events: make(chan Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
	sub.events <- Event{Type: EventConnected}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.StreamSubscribers.Set(float64(count))
	}
	go h.heartbeatLoop(sub)
	return sub
}

// Unsubscribe detaches an observer. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	sub.once.Do(func() {
		close(sub.done)

		h.mu.Lock()
		delete(h.subs, sub)
		count := len(h.subs)
		h.mu.Unlock()

		if h.metrics != nil {
			h.metrics.StreamSubscribers.Set(float64(count))
		}
	})
}

// Publish delivers the event to every subscriber. The registry is
// snapshotted under the lock and sends happen outside it; a subscriber
// whose buffer is full is pruned rather than allowed to stall the rest.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	snapshot := make([]*Subscriber, 0, len(h.subs))
	for sub := range h.subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.Unlock()

	for _, sub := range snapshot {
		select {
		case sub.events <- event:
			if h.metrics != nil {
				h.metrics.StreamEventsPublished.Inc()
			}
		default:
			if h.logger != nil {
				h.logger.Warn("pruning stream subscriber with full buffer", "event_type", event.Type)
			}
			h.Unsubscribe(sub)
		}
	}
}

// SubscriberCount reports the number of attached observers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) heartbeatLoop(sub *Subscriber) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			select {
			case sub.events <- Event{Type: EventPing}:
			default:
				// Buffer full; the next Publish prunes it.
			}
		}
	}
}
