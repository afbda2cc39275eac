package domain

import (
	"errors"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — запрос принят и ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — запрос выполнен, ответ сохранён для повторов.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — запрос завершился ошибкой, ответ с ошибкой сохранён.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

var (
	// ErrIdempotencyKeyRequired — пустой ключ.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — не посчитан хэш тела запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — ключа нет (или он уже удалён по TTL).
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different payload")
)

// IdempotencyRecord хранит состояние обработки запроса с Idempotency-Key.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	// SyncState — состояние синхронизации с таблицей на момент ответа (заголовок X-Sync-State).
	SyncState string
	Status    IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdempotentResponse — ответ, который сохраняется для повторов запроса.
type IdempotentResponse struct {
	HTTPStatus int
	Body       []byte
	SyncState  string
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Expired сообщает, истёк ли срок жизни записи к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// IsIdempotencyConflict проверяет, что ключ уже был использован.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
