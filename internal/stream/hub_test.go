package stream_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paddock/internal/platform/metrics"
	"paddock/internal/stream"
)

func newHub(t *testing.T, heartbeat time.Duration) *stream.Hub {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return stream.NewHub(heartbeat, metrics.NewWith(prometheus.NewRegistry()), logger)
}

func receive(t *testing.T, sub *stream.Subscriber) stream.Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return stream.Event{}
	}
}

func TestSubscribeDeliversConnectedFirst(t *testing.T) {
	hub := newHub(t, time.Hour)
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	hub.Publish(stream.Event{Type: stream.EventResultSaved})

	assert.Equal(t, stream.EventConnected, receive(t, sub).Type)
	assert.Equal(t, stream.EventResultSaved, receive(t, sub).Type)
}

func TestPublishFansOut(t *testing.T) {
	hub := newHub(t, time.Hour)
	first := hub.Subscribe()
	second := hub.Subscribe()
	defer hub.Unsubscribe(first)
	defer hub.Unsubscribe(second)

	receive(t, first)
	receive(t, second)

	hub.Publish(stream.Event{Type: stream.EventResultSaved, Data: "lap 3"})

	for _, sub := range []*stream.Subscriber{first, second} {
		event := receive(t, sub)
		assert.Equal(t, stream.EventResultSaved, event.Type)
		assert.Equal(t, "lap 3", event.Data)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := newHub(t, time.Hour)
	sub := hub.Subscribe()
	require.Equal(t, 1, hub.SubscriberCount())

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	assert.Equal(t, 0, hub.SubscriberCount())

	select {
	case <-sub.Done():
	default:
		t.Fatal("done channel should be closed")
	}

	// Publishing to an empty hub is a no-op.
	hub.Publish(stream.Event{Type: stream.EventResultSaved})
}

func TestPublishPrunesFullSubscriber(t *testing.T) {
	hub := newHub(t, time.Hour)
	stalled := hub.Subscribe()
	healthy := hub.Subscribe()
	defer hub.Unsubscribe(healthy)
	receive(t, healthy)

	// Fill the stalled subscriber's buffer; the ack already took one slot.
	for hub.SubscriberCount() == 2 {
		hub.Publish(stream.Event{Type: stream.EventResultSaved})
	}

	assert.Equal(t, 1, hub.SubscriberCount())
	select {
	case <-stalled.Done():
	default:
		t.Fatal("stalled subscriber should be detached")
	}
}

func TestHeartbeatPings(t *testing.T) {
	hub := newHub(t, 10*time.Millisecond)
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	require.Equal(t, stream.EventConnected, receive(t, sub).Type)
	assert.Equal(t, stream.EventPing, receive(t, sub).Type)
}
