package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/crowngate/internal/health"
	"github.com/vladislavdragonenkov/crowngate/internal/store"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = ""
	cfg.FallbackDriver = FallbackDriverMemory
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestOrder() domain.NewOrder {
	return domain.NewOrder{
		PatientName: "Diana Prince",
		DoctorName:  "Dr. Lee",
		ToothNumber: "21",
		Shade:       "B1",
		TypeOfWork:  "E-Max Veneer",
		DueDate:     "2026-11-20",
		Priority:    domain.PriorityNormal,
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.FallbackDriver = "invalid-driver"

	_, err := New(context.Background(), cfg, quietLogger())
	if err == nil || !strings.Contains(err.Error(), "unsupported fallback driver") {
		t.Fatalf("expected unsupported fallback driver error, got %v", err)
	}
}

func TestNew_LocalModeServesAPI(t *testing.T) {
	a, err := New(context.Background(), testConfig(), quietLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.close()

	if a.Store().Mode() != store.ModeLocal {
		t.Fatalf("expected local mode, got %s", a.Store().Mode())
	}

	body := `{"patientName":"Diana Prince","doctorName":"Dr. Lee","toothNumber":"21","shade":"B1",` +
		`"typeOfWork":"E-Max Veneer","dueDate":"2026-11-20","priority":"Normal"}`
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Sync-State"); got != "local" {
		t.Fatalf("expected X-Sync-State local, got %q", got)
	}
	if n := len(a.Store().Snapshot().Orders); n != 6 {
		t.Fatalf("expected 6 orders after submit, got %d", n)
	}
}

func TestNew_ConnectedModeUsesRemote(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer remote.Close()

	cfg := testConfig()
	cfg.RemoteURL = remote.URL
	a, err := New(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.close()

	if a.Store().Mode() != store.ModeConnected {
		t.Fatalf("expected connected mode, got %s", a.Store().Mode())
	}
	if orders := a.Store().GetOrders(context.Background()); len(orders) != 0 {
		t.Fatalf("remote returned no rows, cache must be replaced, got %d orders", len(orders))
	}

	resp := a.Health().Evaluate(context.Background())
	if resp.Checks["remote"].Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy remote, got %+v", resp.Checks["remote"])
	}
}

func TestRun_GracefulShutdownDrainsChangefeed(t *testing.T) {
	a, err := New(context.Background(), testConfig(), quietLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	order, _, err := a.Store().AddOrder(context.Background(), newTestOrder())
	if err != nil {
		t.Fatalf("AddOrder failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop in time")
	}

	if _, _, err := a.Store().AddOrder(context.Background(), newTestOrder()); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("expected ErrClosed after shutdown, got %v", err)
	}

	events, err := a.deps.timelineRepo.List(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("timeline list failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.TimelineOrderSubmitted {
		t.Fatalf("expected submitted timeline event, got %+v", events)
	}
}

func TestRemoteHealth(t *testing.T) {
	tests := []struct {
		name   string
		status store.RemoteStatus
		want   healthcheck.Status
	}{
		{"local", store.RemoteStatus{Mode: store.ModeLocal}, healthcheck.StatusHealthy},
		{"connected ok", store.RemoteStatus{Mode: store.ModeConnected}, healthcheck.StatusHealthy},
		{"connected failing", store.RemoteStatus{Mode: store.ModeConnected, ConsecutiveFailures: 3, LastError: "timeout"}, healthcheck.StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := remoteHealth(tt.status)
			if got != tt.want {
				t.Fatalf("expected %s, got %s (%s)", tt.want, got, msg)
			}
		})
	}
}

func TestMetricsMux_Endpoints(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "crowngate_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	health := healthcheck.NewHandler("test")
	health.RegisterChecker("fallback", healthcheck.NewFuncChecker("fallback", func(context.Context) error {
		return errors.New("disk is gone")
	}))
	mux := newMetricsMux(health, registry)

	cases := map[string]int{
		"/metrics": http.StatusOK,
		"/livez":   http.StatusOK,
		"/healthz": http.StatusServiceUnavailable,
		"/readyz":  http.StatusServiceUnavailable,
	}
	for path, want := range cases {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != want {
			t.Errorf("%s: expected %d, got %d", path, want, w.Code)
		}
		if path == "/metrics" && !strings.Contains(w.Body.String(), "crowngate_test_total 1") {
			t.Errorf("/metrics must expose registry contents, got %s", w.Body.String())
		}
	}
}
