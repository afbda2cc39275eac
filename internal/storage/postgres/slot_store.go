package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

// SlotStore хранит слоты резервного хранилища в таблице fallback_slots.
// Save перезаписывает все переданные слоты в одной транзакции.
type SlotStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSlotStore создаёт PostgreSQL-реализацию domain.SlotStore.
func NewSlotStore(store *Store) *SlotStore {
	return &SlotStore{db: store.DB(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *SlotStore) Load(ctx context.Context, slot domain.Slot) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload
		FROM fallback_slots
		WHERE slot = $1
	`, string(slot)).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, dbError(fmt.Sprintf("load slot %s", slot), err)
	}
	return payload, true, nil
}

func (s *SlotStore) Save(ctx context.Context, slots map[domain.Slot][]byte) (retErr error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now()
	// Фиксированный порядок слотов исключает взаимные блокировки параллельных транзакций.
	for _, slot := range domain.Slots() {
		payload, ok := slots[slot]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fallback_slots (slot, payload, revision, updated_at)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (slot) DO UPDATE
			SET payload = EXCLUDED.payload,
			    revision = fallback_slots.revision + 1,
			    updated_at = EXCLUDED.updated_at
		`, string(slot), payload, now); err != nil {
			return dbError(fmt.Sprintf("upsert slot %s", slot), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit slot tx: %w", err)
	}
	return nil
}

var _ domain.SlotStore = (*SlotStore)(nil)
