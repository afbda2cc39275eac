package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/storage/file"
	"github.com/vladislavdragonenkov/crowngate/internal/storage/memory"
	"github.com/vladislavdragonenkov/crowngate/internal/storage/postgres"
	"github.com/vladislavdragonenkov/crowngate/internal/storage/redis"
	"github.com/vladislavdragonenkov/crowngate/internal/storage/s3"
	"github.com/vladislavdragonenkov/crowngate/internal/storage/sqlite"
)

// runtimeDependencies — хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	fallback        domain.SlotStore
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	// ping проверяет резервное хранилище для health; nil: проверять нечего.
	ping    func(ctx context.Context) error
	closers []func() error
}

// Close закрывает соединения в обратном порядке открытия.
func (d *runtimeDependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// initRuntimeDependencies открывает резервное хранилище. Для postgres в той же базе
// живут outbox, timeline и ключи идемпотентности; для остальных драйверов они в памяти.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{
		outboxRepo:      memory.NewOutboxRepository(),
		timelineRepo:    memory.NewTimelineRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
	}
	entry := logger.WithField("fallback_driver", cfg.FallbackDriver)

	switch cfg.FallbackDriver {
	case FallbackDriverMemory:
		deps.fallback = memory.NewSlotStore()

	case FallbackDriverFile:
		store, err := file.NewSlotStore(cfg.FallbackDir)
		if err != nil {
			return nil, fmt.Errorf("init file fallback: %w", err)
		}
		deps.fallback = store

	case FallbackDriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite fallback: %w", err)
		}
		deps.fallback = store
		deps.ping = store.Ping
		deps.closers = append(deps.closers, store.Close)

	case FallbackDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres dsn is required")
		}
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("init postgres fallback: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := pg.MigrateUp(ctx, 0, entry); err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		deps.fallback = postgres.NewSlotStore(pg)
		deps.outboxRepo = postgres.NewOutboxRepository(pg)
		deps.timelineRepo = postgres.NewTimelineRepository(pg)
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(pg)
		deps.ping = pg.Ping
		deps.closers = append(deps.closers, pg.Close)

	case FallbackDriverRedis:
		store, err := redis.New(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}, logger.WithField("component", "redis-fallback"))
		if err != nil {
			return nil, fmt.Errorf("init redis fallback: %w", err)
		}
		deps.fallback = store
		deps.ping = store.Ping
		deps.closers = append(deps.closers, store.Close)

	case FallbackDriverS3:
		store, err := s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			Prefix:    cfg.S3Prefix,
			PathStyle: cfg.S3PathStyle,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 fallback: %w", err)
		}
		deps.fallback = store
		deps.ping = store.Ping

	default:
		return nil, fmt.Errorf("unsupported fallback driver %q", cfg.FallbackDriver)
	}

	entry.Info("fallback storage initialized")
	return deps, nil
}
