package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/crowngate/internal/health"
	"github.com/vladislavdragonenkov/crowngate/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/crowngate/internal/metrics"
	"github.com/vladislavdragonenkov/crowngate/internal/remote/sheets"
	"github.com/vladislavdragonenkov/crowngate/internal/service/changefeed"
	"github.com/vladislavdragonenkov/crowngate/internal/service/httpapi"
	"github.com/vladislavdragonenkov/crowngate/internal/service/idempotency"
	"github.com/vladislavdragonenkov/crowngate/internal/service/outbox"
	"github.com/vladislavdragonenkov/crowngate/internal/store"
	"github.com/vladislavdragonenkov/crowngate/internal/version"
)

const (
	// outboxBacklogDegraded — размер backlog outbox, с которого сервис считается degraded.
	outboxBacklogDegraded  = 1000
	defaultShutdownTimeout = 10 * time.Second
)

// App — собранный сервис: хранилище заказов, фоновые воркеры, HTTP API и метрики.
type App struct {
	cfg      Config
	logger   *log.Entry
	registry *prometheus.Registry

	deps     *runtimeDependencies
	store    *store.Store
	producer *kafka.Producer

	feed        *changefeed.Feed
	unsubscribe func()
	outbox      *outbox.Worker
	cleanup     *idempotency.CleanupWorker
	reconciler  *store.Reconciler

	health *healthcheck.Handler
	api    *httpapi.Server
}

// New собирает зависимости по конфигурации. Ошибка Kafka не фатальна:
// сервис работает без публикации ленты изменений.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	entry := logger.WithField("component", "app")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps, err := initRuntimeDependencies(ctx, cfg, entry)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: entry, registry: registry, deps: deps}

	opts := store.Options{
		Fallback:       deps.fallback,
		LocalReadDelay: cfg.LocalReadDelay,
		Logger:         logger.WithField("component", "order-store"),
		Metrics:        metrics.NewStoreMetricsWithRegisterer(registry),
	}
	if cfg.RemoteURL != "" {
		client, err := sheets.NewClient(
			sheets.Config{URL: cfg.RemoteURL, Timeout: cfg.RemoteTimeout},
			sheets.WithLogger(logger.WithField("component", "sheets-client")),
		)
		if err != nil {
			_ = deps.Close()
			return nil, err
		}
		opts.Backend = client
	}
	a.store, err = store.New(ctx, opts)
	if err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("init order store: %w", err)
	}

	outboxMetrics := metrics.NewOutboxMetrics(registry)
	idemMetrics := metrics.NewIdempotencyMetrics(registry)

	// Ошибка Kafka уже залогирована, producer в этом случае nil.
	producer, _ := initKafkaProducer(cfg, entry)
	a.producer = producer

	var outboxRepo domain.OutboxRepository
	if producer != nil {
		outboxRepo = deps.outboxRepo
		a.outbox = outbox.NewWorker(
			outboxRepo,
			kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithMetrics(outboxMetrics),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryDelay(cfg.OutboxRetryDelay),
		)
	}

	a.feed = changefeed.New(outboxRepo, deps.timelineRepo,
		changefeed.WithLogger(logger.WithField("component", "changefeed")),
		changefeed.WithMetrics(outboxMetrics),
	)
	a.unsubscribe = a.store.Subscribe(a.feed.Listener())

	a.cleanup = idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(idemMetrics),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
	)
	a.reconciler = store.NewReconciler(a.store,
		store.WithReconcileLogger(logger.WithField("component", "store-reconciler")),
		store.WithReconcileInterval(cfg.ReconcileInterval),
	)

	a.health = newHealthHandler(a.store, deps, outboxRepo)
	a.api = httpapi.NewServer(cfg.HTTPAddr, httpapi.Dependencies{
		Store:       a.store,
		Timeline:    deps.timelineRepo,
		Idempotency: idempotency.NewService(deps.idempotencyRepo, cfg.IdempotencyTTL, logger.WithField("component", "idempotency"), idemMetrics),
		Metrics:     metrics.NewHTTPMetrics(registry),
		Logger:      logger.WithField("component", "http-api"),
	})

	entry.WithFields(log.Fields{
		"mode":            a.store.Mode(),
		"fallback_driver": cfg.FallbackDriver,
		"kafka":           producer != nil,
	}).Info("application assembled")
	return a, nil
}

// Store возвращает хранилище заказов.
func (a *App) Store() *store.Store {
	return a.store
}

// Handler возвращает обработчик HTTP API.
func (a *App) Handler() http.Handler {
	return a.api.Handler()
}

// Health возвращает агрегатор health-проверок.
func (a *App) Health() *healthcheck.Handler {
	return a.health
}

// Run обслуживает запросы до отмены ctx или падения HTTP-сервера, затем останавливает всё по порядку.
func (a *App) Run(ctx context.Context) error {
	if a.store.Mode() == store.ModeConnected {
		a.store.Refresh(ctx)
	}

	feedCtx, stopFeed := context.WithCancel(context.WithoutCancel(ctx))
	workersCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopFeed()
	defer stopWorkers()

	var feedWG, workersWG sync.WaitGroup
	feedWG.Add(1)
	go func() {
		defer feedWG.Done()
		a.feed.Run(feedCtx)
	}()
	runWorker := func(fn func(context.Context)) {
		workersWG.Add(1)
		go func() {
			defer workersWG.Done()
			fn(workersCtx)
		}()
	}
	runWorker(a.cleanup.Run)
	runWorker(a.reconciler.Run)
	if a.outbox != nil {
		runWorker(a.outbox.Run)
	}

	metricsSrv := startMetricsServer(a.cfg.MetricsAddr, a.logger, a.health, a.registry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.api.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		runErr = ctx.Err()
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("http api server: %w", err)
		}
	}

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.api.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.WithError(err).Warn("http api shutdown with error")
	}
	// Подтверждения бэкенда ещё могут прислать sync_failed, поэтому лента останавливается после.
	if err := a.store.Close(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("order store did not drain in time")
	}
	a.unsubscribe()
	stopFeed()
	feedWG.Wait()

	if a.outbox != nil {
		if n := a.outbox.ProcessOnce(shutdownCtx); n > 0 {
			a.logger.WithField("published", n).Info("outbox flushed before shutdown")
		}
	}
	stopWorkers()
	workersWG.Wait()

	a.close()
	shutdownHTTP(metricsSrv, a.logger)
	a.logger.Info("application stopped")
	return runErr
}

// close освобождает внешние соединения.
func (a *App) close() {
	closeKafka(a.producer, a.logger)
	if err := a.deps.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close storage")
	}
}

// Run собирает приложение и обслуживает запросы до отмены ctx.
func Run(ctx context.Context, cfg Config, logger *log.Logger) error {
	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func newHealthHandler(st *store.Store, deps *runtimeDependencies, outboxRepo domain.OutboxRepository) *healthcheck.Handler {
	h := healthcheck.NewHandler(version.Short())
	if deps.ping != nil {
		h.RegisterChecker("fallback", healthcheck.NewFuncChecker("fallback", deps.ping))
	}
	h.RegisterChecker("remote", healthcheck.NewStatusChecker("remote", func(context.Context) (healthcheck.Status, string) {
		return remoteHealth(st.RemoteStatus())
	}))
	if outboxRepo != nil {
		h.RegisterChecker("outbox", healthcheck.NewStatusChecker("outbox", func(ctx context.Context) (healthcheck.Status, string) {
			stats, err := outboxRepo.Stats(ctx)
			if err != nil {
				return healthcheck.StatusUnhealthy, err.Error()
			}
			if stats.PendingCount >= outboxBacklogDegraded {
				return healthcheck.StatusDegraded, fmt.Sprintf("%d events pending", stats.PendingCount)
			}
			return healthcheck.StatusHealthy, ""
		}))
	}
	return h
}

// remoteHealth: сбои удалённой таблицы не делают сервис unhealthy, он продолжает работать из кэша.
func remoteHealth(status store.RemoteStatus) (healthcheck.Status, string) {
	if status.Mode == store.ModeLocal {
		return healthcheck.StatusHealthy, "local mode"
	}
	if status.ConsecutiveFailures > 0 {
		return healthcheck.StatusDegraded, fmt.Sprintf("%d consecutive failures: %s", status.ConsecutiveFailures, status.LastError)
	}
	return healthcheck.StatusHealthy, ""
}

// startMetricsServer запускает /metrics и health-эндпоинты. Пустой addr отключает сервер.
func startMetricsServer(addr string, logger *log.Entry, health *healthcheck.Handler, gatherer prometheus.Gatherer) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMetricsMux(health, gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	return srv
}

func newMetricsMux(health *healthcheck.Handler, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)
	return mux
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
