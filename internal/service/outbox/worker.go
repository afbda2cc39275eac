// Package outbox доставляет ленту изменений хранилища заказов во внешний брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/metrics"
)

const (
	defaultPollInterval  = time.Second
	defaultBatchSize     = 100
	defaultMaxAttempts   = 3
	defaultRetryDelay    = 50 * time.Millisecond
	defaultMaxRetryDelay = 5 * time.Second
)

// DeadLetter — содержимое сообщения, отправленного в DLQ.
type DeadLetter struct {
	OutboxID      string          `json:"outboxId"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	Error         string          `json:"error"`
	FailedAt      time.Time       `json:"failedAt"`
}

type workerOptions struct {
	logger        *log.Entry
	dlq           domain.OutboxPublisher
	metrics       *metrics.OutboxMetrics
	pollInterval  time.Duration
	batchSize     int
	maxAttempts   int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	now           func() time.Time
}

// Option настраивает Worker.
type Option func(*workerOptions)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(o *workerOptions) { o.logger = logger }
}

// WithDLQPublisher задаёт получателя сообщений, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(o *workerOptions) { o.dlq = publisher }
}

// WithMetrics подключает метрики outbox.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(o *workerOptions) { o.metrics = m }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(o *workerOptions) { o.pollInterval = interval }
}

// WithBatchSize задаёт размер пачки.
func WithBatchSize(n int) Option {
	return func(o *workerOptions) { o.batchSize = n }
}

// WithMaxAttempts задаёт число попыток публикации до DLQ.
func WithMaxAttempts(n int) Option {
	return func(o *workerOptions) { o.maxAttempts = n }
}

// WithRetryDelay задаёт базовую задержку exponential backoff.
func WithRetryDelay(delay time.Duration) Option {
	return func(o *workerOptions) { o.retryDelay = delay }
}

// WithMaxRetryDelay ограничивает задержку между попытками сверху.
func WithMaxRetryDelay(delay time.Duration) Option {
	return func(o *workerOptions) { o.maxRetryDelay = delay }
}

// Worker публикует pending-сообщения outbox и помечает их sent/failed.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	opts      workerOptions
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := workerOptions{
		pollInterval:  defaultPollInterval,
		batchSize:     defaultBatchSize,
		maxAttempts:   defaultMaxAttempts,
		retryDelay:    defaultRetryDelay,
		maxRetryDelay: defaultMaxRetryDelay,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.logger == nil {
		opts.logger = log.WithField("component", "outbox-worker")
	}
	if opts.pollInterval <= 0 {
		opts.pollInterval = defaultPollInterval
	}
	if opts.batchSize <= 0 {
		opts.batchSize = defaultBatchSize
	}
	if opts.maxAttempts <= 0 {
		opts.maxAttempts = defaultMaxAttempts
	}
	if opts.retryDelay < 0 {
		opts.retryDelay = 0
	}
	if opts.maxRetryDelay < opts.retryDelay {
		opts.maxRetryDelay = opts.retryDelay
	}

	return &Worker{repo: repo, publisher: publisher, opts: opts}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.opts.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	w.opts.logger.WithFields(log.Fields{
		"poll_interval": w.opts.pollInterval.String(),
		"batch_size":    w.opts.batchSize,
	}).Info("outbox worker started")

	ticker := time.NewTicker(w.opts.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.opts.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce публикует одну пачку и возвращает число отправленных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	pending, err := w.repo.PullPending(ctx, w.opts.batchSize)
	if err != nil {
		w.opts.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	sent := 0
	for _, msg := range pending {
		if ctx.Err() != nil {
			break
		}
		entry := w.opts.logger.WithFields(log.Fields{
			"outbox_id":    msg.ID,
			"event_type":   msg.EventType,
			"aggregate_id": msg.AggregateID,
		})

		attempts, err := w.publishWithRetry(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				// Сообщение остаётся pending и уйдёт после рестарта.
				break
			}
			entry.WithError(err).Error("outbox publish failed after retries")
			w.opts.metrics.RecordAttempt("failed")
			w.deadLetter(ctx, msg, attempts, err, entry)
			if markErr := w.repo.MarkFailed(ctx, msg.ID); markErr != nil {
				entry.WithError(markErr).Warn("failed to mark outbox message as failed")
			}
			continue
		}

		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("failed to mark outbox message as sent")
			continue
		}
		sent++
	}

	w.refreshBacklog(ctx)
	return sent
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= w.opts.maxAttempts; attempt++ {
		err := w.publisher.Publish(ctx, msg)
		if err == nil {
			w.opts.metrics.RecordAttempt("sent")
			return attempt, nil
		}
		lastErr = err
		w.opts.metrics.RecordAttempt("retry_error")

		if attempt == w.opts.maxAttempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return w.opts.maxAttempts, fmt.Errorf("publish failed after %d attempts: %w", w.opts.maxAttempts, lastErr)
}

// backoff удваивает базовую задержку с каждой попыткой, не превышая maxRetryDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.opts.retryDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if delay >= w.opts.maxRetryDelay/2 {
			return w.opts.maxRetryDelay
		}
		delay *= 2
	}
	if delay > w.opts.maxRetryDelay {
		return w.opts.maxRetryDelay
	}
	return delay
}

func (w *Worker) deadLetter(ctx context.Context, msg domain.OutboxMessage, attempts int, publishErr error, entry *log.Entry) {
	if w.opts.dlq == nil {
		return
	}

	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(msg.Payload))
	}
	body, err := json.Marshal(DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		Attempts:      attempts,
		Error:         publishErr.Error(),
		FailedAt:      w.opts.now(),
	})
	if err != nil {
		entry.WithError(err).Warn("failed to encode dead letter")
		w.opts.metrics.RecordAttempt("dlq_failed")
		return
	}

	letter := msg
	letter.Payload = body
	if err := w.opts.dlq.Publish(ctx, letter); err != nil {
		entry.WithError(err).Warn("failed to publish to DLQ")
		w.opts.metrics.RecordAttempt("dlq_failed")
		return
	}
	w.opts.metrics.RecordAttempt("dlq")
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.opts.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	w.opts.metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt, w.opts.now())
}
