// Package events emits audit records for privileged mutations so downstream
// consumers (compliance, analytics) can replay what changed and who did it.
package events

import (
	"context"
	"log/slog"
	"time"

	"paddock/pkg/requestcontext"
)

// Event is one audit record. Entity/EntityID identify the mutated record.
type Event struct {
	Action   string    `json:"action"`
	ActorID  string    `json:"actor_id,omitempty"`
	Entity   string    `json:"entity,omitempty"`
	EntityID string    `json:"entity_id,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher emits audit events for security-relevant operations.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Log records an audit event on both the structured logger and the
// publisher. Publisher failures are logged, never surfaced: audit delivery
// must not fail the triggering mutation.
func Log(ctx context.Context, logger *slog.Logger, publisher Publisher, action, entity, entityID string, attrs ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", action, "entity", entity, "entity_id", entityID, "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, action, args...)
	}

	if publisher == nil {
		return
	}
	ev := Event{
		Action:   action,
		ActorID:  requestcontext.UserID(ctx).String(),
		Entity:   entity,
		EntityID: entityID,
		At:       requestcontext.Now(ctx),
	}
	if err := publisher.Emit(ctx, ev); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", action, "error", err)
	}
}
