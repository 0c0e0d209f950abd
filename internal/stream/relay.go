package stream

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Relay bridges hubs across instances over a Redis channel. Each relay
// carries a random origin id; messages that come back around with our own
// origin are dropped so a local publish is delivered exactly once.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	hub     *Hub
	logger  *slog.Logger
}

func NewRelay(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		hub:     hub,
		logger:  logger,
	}
}

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Publish delivers locally and forwards to peer instances. A Redis
// failure degrades to local-only delivery; it never fails the caller.
func (r *Relay) Publish(event Event) {
	r.hub.Publish(event)

	payload, err := json.Marshal(envelope{Origin: r.origin, Event: event})
	if err != nil {
		r.logger.Error("failed to marshal relay envelope", "error", err)
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, payload).Err(); err != nil {
		r.logger.Warn("failed to relay stream event", "channel", r.channel, "error", err)
	}
}

// Run consumes the peer channel until the context is cancelled. Intended
// to run in its own goroutine for the lifetime of the process.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("dropping malformed relay message", "channel", r.channel, "error", err)
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			r.hub.Publish(env.Event)
		}
	}
}
