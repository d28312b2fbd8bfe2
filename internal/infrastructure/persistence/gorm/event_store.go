package gorm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/narwhalmedia/segload/internal/domain/events"
)

// StoredEvent is one entry of the local event log
type StoredEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Version       int
	Data          json.RawMessage
	Metadata      map[string]interface{}
	CreatedAt     time.Time
}

// EventStore appends lifecycle events to the download_events table.
// It implements events.EventPublisher for the "store" events driver.
type EventStore struct {
	db *gorm.DB
}

// NewEventStore creates a new GORM event store
func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

// PublishEvent persists a single domain event
func (s *EventStore) PublishEvent(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return fmt.Errorf("failed to encode event metadata: %w", err)
	}

	model := EventModel{
		ID:            event.ID().String(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		EventType:     event.EventType(),
		Version:       event.Version(),
		Data:          data,
		Metadata:      metadata,
		CreatedAt:     event.CreatedAt(),
	}

	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// History returns the events of one task in the order they were recorded
func (s *EventStore) History(ctx context.Context, taskID string) ([]StoredEvent, error) {
	var models []EventModel
	result := s.db.WithContext(ctx).
		Where("aggregate_id = ?", taskID).
		Order("created_at ASC").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load events: %w", result.Error)
	}

	out := make([]StoredEvent, 0, len(models))
	for _, model := range models {
		var metadata map[string]interface{}
		if len(model.Metadata) > 0 {
			if err := json.Unmarshal(model.Metadata, &metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of event %s: %w", model.ID, err)
			}
		}
		out = append(out, StoredEvent{
			ID:            model.ID,
			AggregateID:   model.AggregateID,
			AggregateType: model.AggregateType,
			EventType:     model.EventType,
			Version:       model.Version,
			Data:          json.RawMessage(model.Data),
			Metadata:      metadata,
			CreatedAt:     model.CreatedAt,
		})
	}
	return out, nil
}

// Purge removes the events of one task
func (s *EventStore) Purge(ctx context.Context, taskID string) error {
	if err := s.db.WithContext(ctx).Where("aggregate_id = ?", taskID).Delete(&EventModel{}).Error; err != nil {
		return fmt.Errorf("failed to purge events: %w", err)
	}
	return nil
}
