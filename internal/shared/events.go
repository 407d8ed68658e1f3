package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the engine for external notification dispatch.
const (
	EventProjectAccepted = "project.accepted"
	EventProjectClosed   = "project.closed"
	EventPaymentSettled  = "payment.settled"
	EventCorrectionAdded = "correction.added"
)

// Event is a logical domain event. Delivery is fire-and-forget: a failed
// emit never rolls back the state change that produced it.
type Event struct {
	ID       uuid.UUID      `json:"id"`
	Name     string         `json:"name"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// NewEvent constructs an Event with a fresh id and timestamp.
func NewEvent(name, entity, entityID string, meta map[string]any) Event {
	return Event{
		ID:       uuid.New(),
		Name:     name,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       time.Now().UTC(),
	}
}

// EventEmitter hands events to the external notifier.
type EventEmitter interface {
	Emit(ctx context.Context, evt Event)
}

// NopEmitter discards events. Used in tests and when no notifier is wired.
type NopEmitter struct{}

// Emit implements EventEmitter.
func (NopEmitter) Emit(context.Context, Event) {}
