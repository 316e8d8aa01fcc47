package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rental/backend/internal/domain/shared"
	"github.com/rental/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Kafka header names carried on every billing event message
const (
	HeaderEventType     = "event_type"
	HeaderEventID       = "event_id"
	HeaderAggregateType = "aggregate_type"
)

// NewSaramaConfig builds the producer configuration used for billing events.
// Every message waits for all in-sync replicas and successes are returned so
// SyncProducer can report the partition and offset.
func NewSaramaConfig(cfg config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Retry.Max = 3
	sc.Producer.Retry.Backoff = 250 * time.Millisecond
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	return sc
}

// NewSyncProducer connects a sarama SyncProducer to the configured brokers
func NewSyncProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("error creating Sarama SyncProducer: %w", err)
	}
	return producer, nil
}

// KafkaPublisher forwards domain events to a Kafka topic. It is subscribed to
// the in-memory bus as a wildcard handler, so every billing event published by
// the service is also written to Kafka keyed by its bill ID.
type KafkaPublisher struct {
	producer   sarama.SyncProducer
	topic      string
	serializer *EventSerializer
	logger     *zap.Logger
}

// NewKafkaPublisher creates a publisher writing to topic
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, serializer *EventSerializer, logger *zap.Logger) *KafkaPublisher {
	if serializer == nil {
		serializer = NewEventSerializer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		producer:   producer,
		topic:      topic,
		serializer: serializer,
		logger:     logger,
	}
}

// Handle writes one event to Kafka
func (p *KafkaPublisher) Handle(_ context.Context, event shared.DomainEvent) error {
	msg, err := p.message(event)
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send %s to kafka: %w", event.EventType(), err)
	}

	p.logger.Debug("billing event sent to kafka",
		zap.String("topic", p.topic),
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// EventTypes returns nil so the publisher receives every event
func (p *KafkaPublisher) EventTypes() []string {
	return nil
}

// Publish sends events as one batch
func (p *KafkaPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, event := range events {
		msg, err := p.message(event)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			return fmt.Errorf("failed to send %d of %d billing events to kafka: %w", len(perrs), len(msgs), err)
		}
		return fmt.Errorf("failed to send billing events to kafka: %w", err)
	}
	return nil
}

// Close closes the underlying producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func (p *KafkaPublisher) message(event shared.DomainEvent) (*sarama.ProducerMessage, error) {
	payload, err := p.serializer.Serialize(event)
	if err != nil {
		return nil, err
	}

	return &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.AggregateID().String()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(event.EventType())},
			{Key: []byte(HeaderEventID), Value: []byte(event.EventID().String())},
			{Key: []byte(HeaderAggregateType), Value: []byte(event.AggregateType())},
		},
		Timestamp: event.OccurredAt(),
	}, nil
}

var (
	_ shared.EventHandler   = (*KafkaPublisher)(nil)
	_ shared.EventPublisher = (*KafkaPublisher)(nil)
)
