package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics по умолчанию.
const (
	TopicLabEvents       = "crowngate.lab.events"
	TopicDeadLetterQueue = "crowngate.lab.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope — формат сообщения ленты изменений в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DecodeEnvelope разбирает значение сообщения.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return env, nil
}
