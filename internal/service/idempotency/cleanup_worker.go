// Package idempotency реализует повторяемую отправку заказов по Idempotency-Key.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

// CleanupOptions задаёт параметры воркера очистки.
type CleanupOptions struct {
	Logger    *log.Entry
	Metrics   *metrics.IdempotencyMetrics
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) { opts.Logger = logger }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.IdempotencyMetrics) CleanupOption {
	return func(opts *CleanupOptions) { opts.Metrics = m }
}

// WithInterval задаёт интервал между циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) { opts.Interval = interval }
}

// WithBatchSize задаёт размер одного удаления.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) { opts.BatchSize = batchSize }
}

// CleanupWorker периодически удаляет просроченные ключи.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	metrics   *metrics.IdempotencyMetrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewCleanupWorker создаёт воркер очистки ключей идемпотентности.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "idempotency-cleanup")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &CleanupWorker{
		repo:      repo,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		now:       opts.Now,
	}
}

// Run чистит ключи сразу и затем раз в interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	w.cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.now())
	if errors.Is(err, context.Canceled) {
		return
	}
	w.metrics.RecordCleanup(deleted, err)
	if err != nil {
		w.logger.WithError(err).Warn("idempotency cleanup run failed")
		return
	}
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("idempotency cleanup completed")
	}
}

// DeleteExpired удаляет все записи с ttl <= before порциями batchSize.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteExpired(ctx, before, w.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		w.metrics.AddDeleted(deleted)

		if deleted < w.batchSize {
			return total, nil
		}
	}
}
