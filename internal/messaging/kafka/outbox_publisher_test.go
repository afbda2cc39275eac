package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, log.WithField("component", "test"))
	publisher := NewOutboxPublisher(producer, "")
	published := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	publisher.now = func() time.Time { return published }

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicLabEvents {
			t.Errorf("unexpected topic %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "ORD-003" {
			t.Errorf("expected aggregate id as key, got %s", key)
		}
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		if headers[HeaderEventType] != "order.status_changed" || headers[HeaderOutboxID] != "msg-1" {
			t.Errorf("unexpected headers %v", headers)
		}

		value, _ := msg.Value.Encode()
		env, err := DecodeEnvelope(value)
		if err != nil {
			return err
		}
		if env.EventType != "order.status_changed" || string(env.Payload) != `{"to":"Milling"}` {
			t.Errorf("unexpected envelope %+v", env)
		}
		if !env.PublishedAt.Equal(published) {
			t.Errorf("unexpected published_at %v", env.PublishedAt)
		}
		return nil
	})

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "msg-1",
		AggregateType: "order",
		AggregateID:   "ORD-003",
		EventType:     "order.status_changed",
		Payload:       []byte(`{"to":"Milling"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishFallsBackToMessageIDKey(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), TopicDeadLetterQueue)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "msg-7" {
			t.Errorf("expected message id as key, got %s", key)
		}
		if msg.Topic != TopicDeadLetterQueue {
			t.Errorf("unexpected topic %s", msg.Topic)
		}
		return nil
	})

	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "msg-7", EventType: "sync.failed"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_NotInitialized(t *testing.T) {
	t.Parallel()

	var publisher *OutboxTopicPublisher
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{}); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}
