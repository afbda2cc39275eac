package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

// Итоговые состояния записи ленты изменений; новая запись имеет state = 'pending'.
const (
	feedSent   = "sent"
	feedFailed = "failed"
)

const defaultFeedBatch = 100

const (
	feedInsertSQL = `
		INSERT INTO change_feed (id, collection, entity_id, event_type, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`

	feedPendingSQL = `
		SELECT id, collection, entity_id, event_type, payload, created_at
		FROM change_feed
		WHERE state = 'pending'
		ORDER BY seq
		LIMIT $1`

	feedBacklogSQL = `
		SELECT COUNT(*), MIN(created_at)
		FROM change_feed
		WHERE state = 'pending'`

	// Запись закрывается один раз: повторная отметка не меняет итог.
	feedSettleSQL = `
		UPDATE change_feed
		SET state = $2, attempts = attempts + 1, settled_at = $3
		WHERE id = $1 AND state = 'pending'`
)

// feedRepository хранит ленту изменений магазина заказов в таблице change_feed.
// Порядок выдачи совпадает с порядком вставки (seq).
type feedRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository поверх change_feed.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &feedRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *feedRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, feedInsertSQL,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.CreatedAt,
	)
	switch {
	case err == nil:
	case sqlState(err) == codeUniqueViolation:
		// Повторная доставка того же события.
	default:
		return domain.OutboxMessage{}, dbError("append "+msg.EventType+" to change feed", err)
	}
	return msg, nil
}

func (r *feedRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultFeedBatch
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, feedPendingSQL, limit)
	if err != nil {
		return nil, dbError("query pending change feed", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		msg, err := scanFeedRow(rows)
		if err != nil {
			return nil, err
		}
		batch = append(batch, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change feed: %w", err)
	}
	return batch, nil
}

func scanFeedRow(rows *sql.Rows) (domain.OutboxMessage, error) {
	var msg domain.OutboxMessage
	err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload, &msg.CreatedAt)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("scan change feed row: %w", err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

func (r *feedRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		pending int
		oldest  sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, feedBacklogSQL).Scan(&pending, &oldest); err != nil {
		return domain.OutboxStats{}, dbError("change feed backlog", err)
	}

	stats := domain.OutboxStats{PendingCount: pending}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *feedRepository) MarkSent(ctx context.Context, id string) error {
	return r.settle(ctx, id, feedSent)
}

func (r *feedRepository) MarkFailed(ctx context.Context, id string) error {
	return r.settle(ctx, id, feedFailed)
}

func (r *feedRepository) settle(ctx context.Context, id, state string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, feedSettleSQL, id, state, r.now())
	if err != nil {
		return dbError(fmt.Sprintf("settle change feed entry %s as %s", id, state), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle change feed entry %s: %w", id, err)
	}
	if n == 0 {
		// Неизвестный id или запись уже закрыта.
		return fmt.Errorf("change feed entry %s is not pending: %w", id, domain.ErrOutboxPublish)
	}
	return nil
}

var _ domain.OutboxRepository = (*feedRepository)(nil)
