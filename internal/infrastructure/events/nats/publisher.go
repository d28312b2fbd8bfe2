package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	domainevents "github.com/narwhalmedia/segload/internal/domain/events"
)

// Publisher implements events.EventPublisher using NATS JetStream
type Publisher struct {
	client *Client
	logger *zap.Logger
}

// NewPublisher creates a new NATS event publisher
func NewPublisher(client *Client, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.Named("publisher"),
	}
}

// PublishEvent publishes a domain event to download.<task id>.<event type>
func (p *Publisher) PublishEvent(ctx context.Context, event domainevents.Event) error {
	subject := Subject(event)

	data, err := json.Marshal(domainevents.NewMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ack, err := p.client.JetStream().Publish(pubCtx, subject, data,
		jetstream.WithMsgID(event.ID().String()),
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("event published",
		zap.String("event_id", event.ID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("subject", subject),
		zap.Uint64("sequence", ack.Sequence),
		zap.String("stream", ack.Stream),
	)
	return nil
}

// Subject returns the subject an event is published on. Characters with a
// meaning in subjects are replaced in the task id token.
func Subject(event domainevents.Event) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, subjectToken.Replace(event.AggregateID()), event.EventType())
}

var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
