package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

// defaultIdempotencyTTL применяется, если вызывающий не указал срок жизни ключа.
const defaultIdempotencyTTL = 24 * time.Hour

// IdempotencyRepository хранит ключи идемпотентности POST /api/orders в памяти.
type IdempotencyRepository struct {
	mu    sync.RWMutex
	items map[string]domain.IdempotencyRecord
	now   func() time.Time
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() *IdempotencyRepository {
	return NewIdempotencyRepositoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewIdempotencyRepositoryWithClock позволяет подменить часы (тесты TTL).
func NewIdempotencyRepositoryWithClock(now func() time.Time) *IdempotencyRepository {
	return &IdempotencyRepository{
		items: make(map[string]domain.IdempotencyRecord),
		now:   now,
	}
}

func (r *IdempotencyRepository) CreateProcessing(_ context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Просроченный ключ, который ещё не убрал cleanup worker, считается свободным.
	if existing, ok := r.items[key]; ok && !existing.Expired(now) {
		if existing.RequestHash != requestHash {
			return cloneRecord(existing), domain.ErrIdempotencyHashMismatch
		}
		return cloneRecord(existing), domain.ErrIdempotencyKeyAlreadyExists
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.items[key] = record
	return cloneRecord(record), nil
}

func (r *IdempotencyRepository) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.items[key]
	if !ok || record.Expired(r.now()) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return cloneRecord(record), nil
}

func (r *IdempotencyRepository) MarkDone(_ context.Context, key string, resp domain.IdempotentResponse) error {
	return r.finish(key, domain.IdempotencyStatusDone, resp)
}

func (r *IdempotencyRepository) MarkFailed(_ context.Context, key string, resp domain.IdempotentResponse) error {
	return r.finish(key, domain.IdempotencyStatusFailed, resp)
}

// DeleteExpired удаляет до limit ключей с TTL не позже before (limit<=0: без ограничения).
func (r *IdempotencyRepository) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, record := range r.items {
		if !record.Expired(before) {
			continue
		}
		delete(r.items, key)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}
	return removed, nil
}

// Len возвращает количество хранимых ключей.
func (r *IdempotencyRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *IdempotencyRepository) finish(key string, status domain.IdempotencyStatus, resp domain.IdempotentResponse) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.ResponseBody = append([]byte(nil), resp.Body...)
	record.HTTPStatus = resp.HTTPStatus
	record.SyncState = resp.SyncState
	record.UpdatedAt = r.now()
	r.items[key] = record
	return nil
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrIdempotencyKeyRequired
	}
	return key, nil
}

func cloneRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.ResponseBody = append([]byte(nil), src.ResponseBody...)
	return dst
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
