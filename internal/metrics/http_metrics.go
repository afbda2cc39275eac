package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics — метрики HTTP API.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics создаёт метрики HTTP API в указанном реестре (nil: глобальный).
func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &HTTPMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "crowngate_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "code"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "crowngate_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "crowngate_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		}),
	}
}

// Begin отмечает начало обработки запроса.
func (m *HTTPMetrics) Begin() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// Observe фиксирует завершённый запрос.
func (m *HTTPMetrics) Observe(method, route, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.requests.WithLabelValues(method, route, code).Inc()
	m.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}
