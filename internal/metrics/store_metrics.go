package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics содержит метрики хранилища заказов.
// Все методы безопасны для nil-получателя.
type StoreMetrics struct {
	// Изменения коллекций (фаза 1)
	mutations *prometheus.CounterVec

	// Оповещения подписчиков
	notifications   prometheus.Counter
	listenerPanics  prometheus.Counter
	subscribers     prometheus.Gauge
	syncFailures    *prometheus.CounterVec
	staleReads      *prometheus.CounterVec
	fallbackPersist *prometheus.CounterVec

	// Удалённый бэкенд
	remoteCalls    *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	inFlight       prometheus.Gauge
}

// NewStoreMetrics создаёт метрики хранилища в глобальном реестре.
func NewStoreMetrics() *StoreMetrics {
	return NewStoreMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStoreMetricsWithRegisterer создаёт метрики хранилища в указанном реестре.
func NewStoreMetricsWithRegisterer(registerer prometheus.Registerer) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StoreMetrics{
		mutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crowngate_store_mutations_total",
			Help: "Total number of in-memory mutations committed by the store",
		}, []string{"collection", "op"}),
		notifications: registerCounter(registerer, prometheus.CounterOpts{
			Name: "crowngate_store_notifications_total",
			Help: "Total number of notification passes delivered to subscribers",
		}),
		listenerPanics: registerCounter(registerer, prometheus.CounterOpts{
			Name: "crowngate_store_listener_panics_total",
			Help: "Total number of recovered subscriber panics",
		}),
		subscribers: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "crowngate_store_subscribers",
			Help: "Number of currently registered subscribers",
		}),
		syncFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crowngate_store_sync_failures_total",
			Help: "Total number of background remote writes that failed",
		}, []string{"action", "sheet"}),
		staleReads: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crowngate_store_stale_reads_total",
			Help: "Total number of reads answered from the cached collection after a remote failure",
		}, []string{"sheet"}),
		fallbackPersist: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crowngate_store_fallback_persist_total",
			Help: "Total number of local fallback snapshot writes",
		}, []string{"result"}),
		remoteCalls: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crowngate_remote_calls_total",
			Help: "Total number of remote backend calls",
		}, []string{"action", "sheet", "result"}),
		remoteDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "crowngate_remote_call_duration_seconds",
			Help:    "Duration of remote backend calls in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"action"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "crowngate_store_confirmations_in_flight",
			Help: "Number of background remote confirmations in progress",
		}),
	}
}

// RecordMutation учитывает изменение коллекции в памяти.
func (m *StoreMetrics) RecordMutation(collection, op string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(collection, op).Inc()
}

// RecordNotification учитывает проход оповещения подписчиков.
func (m *StoreMetrics) RecordNotification() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}

// RecordListenerPanic учитывает перехваченную панику подписчика.
func (m *StoreMetrics) RecordListenerPanic() {
	if m == nil {
		return
	}
	m.listenerPanics.Inc()
}

// SetSubscribers выставляет количество подписчиков.
func (m *StoreMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// RecordSyncFailure учитывает неудачное фоновое подтверждение записи.
func (m *StoreMetrics) RecordSyncFailure(action, sheet string) {
	if m == nil {
		return
	}
	m.syncFailures.WithLabelValues(action, sheet).Inc()
}

// RecordStaleRead учитывает чтение, обслуженное из кэша после сбоя бэкенда.
func (m *StoreMetrics) RecordStaleRead(sheet string) {
	if m == nil {
		return
	}
	m.staleReads.WithLabelValues(sheet).Inc()
}

// RecordFallbackPersist учитывает запись снимка в резервное хранилище.
func (m *StoreMetrics) RecordFallbackPersist(err error) {
	if m == nil {
		return
	}
	m.fallbackPersist.WithLabelValues(resultLabel(err)).Inc()
}

// RecordRemoteCall учитывает вызов удалённого бэкенда и его длительность.
func (m *StoreMetrics) RecordRemoteCall(action, sheet string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(action, sheet, resultLabel(err)).Inc()
	m.remoteDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// ConfirmationStarted увеличивает число подтверждений в полёте.
func (m *StoreMetrics) ConfirmationStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// ConfirmationFinished уменьшает число подтверждений в полёте.
func (m *StoreMetrics) ConfirmationFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
