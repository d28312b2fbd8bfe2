package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event
type Event interface {
	ID() uuid.UUID
	AggregateID() string
	AggregateType() string
	EventType() string
	Version() int
	CreatedAt() time.Time
	Metadata() map[string]interface{}
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	id            uuid.UUID
	aggregateID   string
	aggregateType string
	eventType     string
	version       int
	createdAt     time.Time
	metadata      map[string]interface{}
}

// NewBaseEvent creates a new base event
func NewBaseEvent(aggregateID, aggregateType, eventType string, version int) BaseEvent {
	return BaseEvent{
		id:            uuid.New(),
		aggregateID:   aggregateID,
		aggregateType: aggregateType,
		eventType:     eventType,
		version:       version,
		createdAt:     time.Now().UTC(),
		metadata:      make(map[string]interface{}),
	}
}

// ID returns the event ID
func (e BaseEvent) ID() uuid.UUID {
	return e.id
}

// AggregateID returns the aggregate ID
func (e BaseEvent) AggregateID() string {
	return e.aggregateID
}

// AggregateType returns the aggregate type
func (e BaseEvent) AggregateType() string {
	return e.aggregateType
}

// EventType returns the event type
func (e BaseEvent) EventType() string {
	return e.eventType
}

// Version returns the event version
func (e BaseEvent) Version() int {
	return e.version
}

// CreatedAt returns the event creation time
func (e BaseEvent) CreatedAt() time.Time {
	return e.createdAt
}

// Metadata returns the event metadata
func (e BaseEvent) Metadata() map[string]interface{} {
	return e.metadata
}

// WithMetadata sets a metadata key and returns the event for chaining
func (e BaseEvent) WithMetadata(key string, value interface{}) BaseEvent {
	e.metadata[key] = value
	return e
}

// EventPublisher defines the interface for event publishing
type EventPublisher interface {
	PublishEvent(ctx context.Context, event Event) error
}

// Message is the transport envelope of an event
type Message struct {
	ID            uuid.UUID              `json:"id"`
	AggregateID   string                 `json:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type"`
	EventType     string                 `json:"event_type"`
	Version       int                    `json:"version"`
	Data          interface{}            `json:"data"`
	Metadata      map[string]interface{} `json:"metadata"`
	CreatedAt     time.Time              `json:"created_at"`
}

// NewMessage wraps event in a transport envelope
func NewMessage(event Event) *Message {
	return &Message{
		ID:            event.ID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		EventType:     event.EventType(),
		Version:       event.Version(),
		Data:          event,
		Metadata:      event.Metadata(),
		CreatedAt:     event.CreatedAt(),
	}
}
