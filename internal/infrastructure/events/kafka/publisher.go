package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/narwhalmedia/segload/internal/config"
	"github.com/narwhalmedia/segload/internal/domain/events"
)

// Publisher implements events.EventPublisher on a Kafka topic.
// Messages are keyed by task id so one task's events stay ordered.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewPublisher connects a synchronous producer to the configured brokers
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	sc := sarama.NewConfig()
	sc.ClientID = config.ServiceName
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}

	return NewPublisherWithProducer(producer, cfg.Topic), nil
}

// NewPublisherWithProducer wraps an existing producer
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
	}
}

// PublishEvent publishes an event to Kafka
func (p *Publisher) PublishEvent(ctx context.Context, event events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(events.NewMessage(event))
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.AggregateID()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(event.EventType()),
			},
			{
				Key:   []byte("aggregate_type"),
				Value: []byte(event.AggregateType()),
			},
		},
	}

	if _, _, err := p.producer.SendMessage(kafkaMsg); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	return p.producer.Close()
}
