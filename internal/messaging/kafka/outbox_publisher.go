package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный topic.
// Ключом сообщения служит идентификатор агрегата, поэтому события одного заказа
// попадают в одну партицию по порядку.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт паблишер ленты изменений.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicLabEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}

	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	value, err := json.Marshal(Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		OccurredAt:    msg.CreatedAt,
		PublishedAt:   p.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return p.producer.Send(ctx, p.topic, key, value, map[string]string{
		HeaderEventType:     msg.EventType,
		HeaderAggregateType: msg.AggregateType,
		HeaderOutboxID:      msg.ID,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
