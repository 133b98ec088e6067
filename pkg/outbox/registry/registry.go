// Package registry knows, for every outbox event type, which aggregate it
// belongs to, where it is routed and how its data decodes.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, routing key and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	RoutingKey     string
	PayloadFactory func() any
}

// ResolvedEvent is a stored row that passed validation, with its data decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// IsNonRetryable reports whether err, or anything it wraps, is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry builds the registry. Routing keys are "<prefix>.<event_type>".
func NewEventRegistry(routingPrefix string) (*EventRegistry, error) {
	if routingPrefix == "" {
		return nil, errors.New("routing prefix is required")
	}
	descriptors := []EventDescriptor{
		describe[payloads.LoanBorrowedEvent](enums.EventLoanBorrowed, enums.AggregateLoan),
		describe[payloads.LoanReturnedEvent](enums.EventLoanReturned, enums.AggregateLoan),
		describe[payloads.LoanOverdueEvent](enums.EventLoanOverdue, enums.AggregateLoan),
		describe[payloads.BookResizedEvent](enums.EventBookResized, enums.AggregateBook),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		desc.RoutingKey = routingPrefix + "." + string(desc.EventType)
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Descriptors lists every registered event type. Order is unspecified.
func (r *EventRegistry) Descriptors() []EventDescriptor {
	out := make([]EventDescriptor, 0, len(r.entries))
	for _, desc := range r.entries {
		out = append(out, desc)
	}
	return out
}

// Resolve validates the row and decodes its typed payload. Every failure is
// non-retryable since the row itself is at fault.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	env, err := outbox.OpenEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
