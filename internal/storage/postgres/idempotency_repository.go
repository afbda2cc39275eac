package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

const defaultKeyTTL = 24 * time.Hour

const (
	// Ключ занимается, если его нет или он просрочен; RETURNING пуст, когда ключ занят живым запросом.
	keyClaimSQL = `
		INSERT INTO submission_keys (key, request_hash, state, expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
		ON CONFLICT (key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash,
		    state = EXCLUDED.state,
		    response_status = NULL,
		    response_body = NULL,
		    sync_state = NULL,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE submission_keys.expires_at <= $5
		RETURNING created_at`

	keySelectSQL = `
		SELECT key, request_hash, state, response_status, response_body, sync_state, expires_at, created_at, updated_at
		FROM submission_keys
		WHERE key = $1 AND expires_at > $2`

	keyFinishSQL = `
		UPDATE submission_keys
		SET state = $2, response_status = $3, response_body = $4, sync_state = $5, updated_at = $6
		WHERE key = $1`

	// LIMIT NULL в PostgreSQL снимает ограничение.
	keySweepSQL = `
		DELETE FROM submission_keys
		WHERE key IN (
			SELECT key FROM submission_keys
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)`
)

// keyRepository хранит ключи идемпотентной подачи заказов.
type keyRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository (таблица submission_keys).
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &keyRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *keyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultKeyTTL)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var createdAt time.Time
	err := r.db.QueryRowContext(ctx, keyClaimSQL,
		key, requestHash, string(domain.IdempotencyStatusProcessing), ttlAt, now,
	).Scan(&createdAt)
	switch {
	case err == nil:
		return domain.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			Status:      domain.IdempotencyStatusProcessing,
			TTLAt:       ttlAt,
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		}, nil
	case errors.Is(err, sql.ErrNoRows):
		return r.conflict(ctx, key, requestHash)
	default:
		return domain.IdempotencyRecord{}, dbError("claim submission key", err)
	}
}

// conflict объясняет, чем занят ключ: тем же запросом или другим телом.
func (r *keyRepository) conflict(ctx context.Context, key, requestHash string) (domain.IdempotencyRecord, error) {
	existing, err := r.Get(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *keyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		rec    domain.IdempotencyRecord
		state  string
		status    sql.NullInt64
		body      []byte
		syncState sql.NullString
	)
	err := r.db.QueryRowContext(ctx, keySelectSQL, key, r.now()).Scan(
		&rec.Key, &rec.RequestHash, &state, &status, &body, &syncState, &rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, dbError("load submission key", err)
	}

	rec.Status = domain.IdempotencyStatus(state)
	if !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("submission key %s has unknown state %q", key, state)
	}
	if status.Valid {
		rec.HTTPStatus = int(status.Int64)
	}
	rec.ResponseBody = append([]byte(nil), body...)
	rec.SyncState = syncState.String
	return rec, nil
}

func (r *keyRepository) MarkDone(ctx context.Context, key string, resp domain.IdempotentResponse) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, resp)
}

func (r *keyRepository) MarkFailed(ctx context.Context, key string, resp domain.IdempotentResponse) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, resp)
}

func (r *keyRepository) finish(ctx context.Context, key string, state domain.IdempotencyStatus, resp domain.IdempotentResponse) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, keyFinishSQL, key, string(state), resp.HTTPStatus, resp.Body,
		sql.NullString{String: resp.SyncState, Valid: resp.SyncState != ""}, r.now())
	if err != nil {
		return dbError("finish submission key "+key, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("finish submission key %s: %w", key, err)
	} else if n == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func (r *keyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}
	var capRows sql.NullInt64
	if limit > 0 {
		capRows = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, keySweepSQL, before, capRows)
	if err != nil {
		return 0, dbError("sweep expired submission keys", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired submission keys: %w", err)
	}
	return int(n), nil
}

var _ domain.IdempotencyRepository = (*keyRepository)(nil)
