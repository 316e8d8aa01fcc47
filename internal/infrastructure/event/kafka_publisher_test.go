package event

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTopic = "rental.billing.events"

func newMockProducer(t *testing.T) *mocks.SyncProducer {
	cfg := NewSaramaConfig(config.KafkaConfig{ClientID: "rental-billing-test"})
	return mocks.NewSyncProducer(t, cfg)
}

func headerValue(msg *sarama.ProducerMessage, key string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestNewSaramaConfig(t *testing.T) {
	cfg := NewSaramaConfig(config.KafkaConfig{ClientID: "rental-billing"})

	assert.Equal(t, "rental-billing", cfg.ClientID)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.True(t, cfg.Producer.Return.Successes)
	assert.NoError(t, cfg.Validate())
}

func TestKafkaPublisher_Handle(t *testing.T) {
	producer := newMockProducer(t)
	serializer := NewEventSerializer()
	publisher := NewKafkaPublisher(producer, testTopic, serializer, zap.NewNop())

	event := newCreatedEvent(t)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != testTopic {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != event.BillID.String() {
			return fmt.Errorf("message keyed by %s, want bill id", key)
		}
		if got := headerValue(msg, HeaderEventType); got != billing.EventTypeBillingRecordCreated {
			return fmt.Errorf("event_type header %q", got)
		}
		if got := headerValue(msg, HeaderEventID); got != event.EventID().String() {
			return fmt.Errorf("event_id header %q", got)
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		decoded, err := serializer.Deserialize(headerValue(msg, HeaderEventType), value)
		if err != nil {
			return err
		}
		if decoded.(*billing.BillingRecordCreatedEvent).BillingPeriod != "2026-02" {
			return errors.New("payload lost the billing period")
		}
		return nil
	})

	require.NoError(t, publisher.Handle(context.Background(), event))
	assert.Nil(t, publisher.EventTypes(), "publisher subscribes to every event")
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_Handle_SendFailure(t *testing.T) {
	producer := newMockProducer(t)
	publisher := NewKafkaPublisher(producer, testTopic, nil, nil)

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := publisher.Handle(context.Background(), newCreatedEvent(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Contains(t, err.Error(), billing.EventTypeBillingRecordCreated)
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := newMockProducer(t)
	publisher := NewKafkaPublisher(producer, testTopic, nil, zap.NewNop())

	bill := newTestBill(t)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	err := publisher.Publish(context.Background(),
		billing.NewBillingRecordCreatedEvent(bill, eventTime),
		billing.NewBillReminderRecordedEvent(bill, eventTime),
	)
	require.NoError(t, err)

	assert.NoError(t, publisher.Publish(context.Background()), "empty batch is a no-op")
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_SubscribedToBus(t *testing.T) {
	producer := newMockProducer(t)
	publisher := NewKafkaPublisher(producer, testTopic, nil, zap.NewNop())

	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(publisher)

	producer.ExpectSendMessageAndSucceed()
	require.NoError(t, bus.Publish(context.Background(), newCreatedEvent(t)))

	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	err := bus.Publish(context.Background(), newCreatedEvent(t))
	assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)

	require.NoError(t, publisher.Close())
}
