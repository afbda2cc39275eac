package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

type outboxState string

const (
	outboxPending outboxState = "pending"
	outboxSent    outboxState = "sent"
	outboxFailed  outboxState = "failed"
)

// outboxRecord хранит сообщение и служебные поля.
type outboxRecord struct {
	msg       domain.OutboxMessage
	state     outboxState
	seq       uint64
	updatedAt time.Time
}

// OutboxRepository — in-memory outbox для ленты изменений хранилища заказов.
// Сообщения выдаются в порядке постановки в очередь.
type OutboxRepository struct {
	mu      sync.RWMutex
	records map[string]*outboxRecord
	seq     uint64
	now     func() time.Time
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		records: make(map[string]*outboxRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue сохраняет событие со статусом pending.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := r.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	r.seq++
	r.records[msg.ID] = &outboxRecord{msg: msg, state: outboxPending, seq: r.seq, updatedAt: now}
	return msg, nil
}

// PullPending возвращает до limit самых старых сообщений со статусом pending.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.RLock()
	pending := make([]*outboxRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.state == outboxPending {
			pending = append(pending, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		msg := rec.msg
		msg.Payload = append([]byte(nil), rec.msg.Payload...)
		result = append(result, msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого сообщения.
func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, rec := range r.records {
		if rec.state != outboxPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.msg.CreatedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.msg.CreatedAt
		}
	}
	return stats, nil
}

// MarkSent фиксирует успешную публикацию.
func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxSent)
}

// MarkFailed фиксирует окончательную ошибку публикации.
func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxFailed)
}

func (r *OutboxRepository) mark(id string, state outboxState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.state = state
	record.updatedAt = r.now()
	return nil
}

// Pending возвращает все pending-сообщения в порядке постановки (используется в тестах).
func (r *OutboxRepository) Pending() []domain.OutboxMessage {
	r.mu.RLock()
	n := len(r.records)
	r.mu.RUnlock()
	msgs, _ := r.PullPending(context.Background(), n+1)
	return msgs
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
