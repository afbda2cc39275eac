package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics — метрики публикации ленты изменений.
type OutboxMetrics struct {
	attempts   *prometheus.CounterVec
	pending    prometheus.Gauge
	oldestAge  prometheus.Gauge
	changefeed *prometheus.CounterVec
}

// NewOutboxMetrics регистрирует метрики outbox (nil: глобальный реестр).
func NewOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &OutboxMetrics{
		attempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crowngate_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "crowngate_outbox_pending_records",
			Help: "Current number of pending records in the change-feed outbox.",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "crowngate_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
		changefeed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crowngate_changefeed_events_total",
			Help: "Total number of store events translated into outbox messages.",
		}, []string{"event_type", "result"}),
	}
}

// RecordAttempt учитывает попытку публикации (sent, retry_error, failed, dlq, dlq_failed).
func (m *OutboxMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер и возраст backlog.
func (m *OutboxMetrics) SetBacklog(pending int, oldest time.Time, now time.Time) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	if pending == 0 || oldest.IsZero() {
		m.oldestAge.Set(0)
		return
	}
	age := now.Sub(oldest).Seconds()
	if age < 0 {
		age = 0
	}
	m.oldestAge.Set(age)
}

// RecordChangefeed учитывает событие хранилища, поставленное в outbox.
func (m *OutboxMetrics) RecordChangefeed(eventType string, err error) {
	if m == nil {
		return
	}
	m.changefeed.WithLabelValues(eventType, resultLabel(err)).Inc()
}

// IdempotencyMetrics — метрики ключей идемпотентности.
type IdempotencyMetrics struct {
	decisions   *prometheus.CounterVec
	cleanupRuns *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

// NewIdempotencyMetrics регистрирует метрики идемпотентности (nil: глобальный реестр).
func NewIdempotencyMetrics(registerer prometheus.Registerer) *IdempotencyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &IdempotencyMetrics{
		decisions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crowngate_idempotency_decisions_total",
			Help: "Total number of Idempotency-Key lookups grouped by outcome.",
		}, []string{"outcome"}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crowngate_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "crowngate_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records.",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "crowngate_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		}),
	}
}

// RecordDecision учитывает исход проверки ключа.
func (m *IdempotencyMetrics) RecordDecision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

// RecordCleanup учитывает завершённый цикл очистки.
func (m *IdempotencyMetrics) RecordCleanup(deleted int, err error) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return
	}
	m.lastDeleted.Set(float64(deleted))
}

// AddDeleted увеличивает счётчик удалённых записей.
func (m *IdempotencyMetrics) AddDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deleted.Add(float64(n))
}
