package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/metrics"
)

// DefaultTTL — срок жизни ключа, если он не задан в конфигурации.
const DefaultTTL = 24 * time.Hour

// ErrRequestInProgress — запрос с тем же ключом ещё выполняется.
var ErrRequestInProgress = errors.New("request with this idempotency key is still in progress")

// Replay — сохранённый ответ на уже выполненный запрос.
type Replay struct {
	Status    int
	Body      []byte
	SyncState string
}

// Service решает, выполнять ли запрос или отдать сохранённый ответ.
type Service struct {
	repo    domain.IdempotencyRepository
	ttl     time.Duration
	logger  *log.Entry
	metrics *metrics.IdempotencyMetrics
	now     func() time.Time
}

// NewService создаёт сервис идемпотентности. ttl<=0 означает DefaultTTL.
func NewService(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry, m *metrics.IdempotencyMetrics) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	return &Service{
		repo:    repo,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HashRequest возвращает отпечаток тела запроса.
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Begin занимает ключ под новый запрос.
// Возвращает (nil, nil), если запрос нужно выполнить, и *Replay, если ответ уже есть.
// ErrRequestInProgress и domain.ErrIdempotencyHashMismatch сообщают о конфликте.
func (s *Service) Begin(ctx context.Context, key string, body []byte) (*Replay, error) {
	return s.begin(ctx, strings.TrimSpace(key), HashRequest(body), true)
}

func (s *Service) begin(ctx context.Context, key, hash string, retry bool) (*Replay, error) {
	_, err := s.repo.CreateProcessing(ctx, key, hash, s.now().Add(s.ttl))
	if err == nil {
		s.metrics.RecordDecision("new")
		return nil, nil
	}

	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		s.metrics.RecordDecision("mismatch")
		s.logger.WithField("idempotency_key", key).Warn("idempotency key reused with a different payload")
		return nil, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
	default:
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}

	record, err := s.repo.Get(ctx, key)
	if err != nil {
		if retry && errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			// Ключ истёк между двумя вызовами: пробуем занять ещё раз.
			return s.begin(ctx, key, hash, false)
		}
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}

	if record.Status == domain.IdempotencyStatusProcessing {
		s.metrics.RecordDecision("in_progress")
		return nil, ErrRequestInProgress
	}

	s.metrics.RecordDecision("replayed")
	return &Replay{Status: record.HTTPStatus, Body: record.ResponseBody, SyncState: record.SyncState}, nil
}

// Complete сохраняет ответ для повторов: 2xx как done, остальные как failed.
// syncState отдаётся повторам в заголовке X-Sync-State.
func (s *Service) Complete(ctx context.Context, key string, status int, body []byte, syncState string) {
	key = strings.TrimSpace(key)

	resp := domain.IdempotentResponse{HTTPStatus: status, Body: body, SyncState: syncState}
	var err error
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		err = s.repo.MarkDone(ctx, key, resp)
	} else {
		err = s.repo.MarkFailed(ctx, key, resp)
	}
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}
