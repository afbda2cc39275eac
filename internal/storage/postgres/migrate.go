package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// MigrationState — версия схемы и число применённых миграций.
type MigrationState struct {
	Version int64
	Applied int
	Total   int
}

func prepareGoose(logger *log.Entry) error {
	if logger == nil {
		logger = log.WithField("component", "postgres-migrate")
	}
	goose.SetLogger(logger)
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// MigrateUp применяет up-миграции. steps=0 означает «применить все доступные».
func (s *Store) MigrateUp(ctx context.Context, steps int, logger *log.Entry) error {
	if err := prepareGoose(logger); err != nil {
		return err
	}
	if steps <= 0 {
		if err := goose.UpContext(ctx, s.db, migrationsDir); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	}
	for i := 0; i < steps; i++ {
		if err := goose.UpByOneContext(ctx, s.db, migrationsDir); err != nil {
			if errors.Is(err, goose.ErrNoNextVersion) {
				return nil
			}
			return fmt.Errorf("migrate up step %d: %w", i+1, err)
		}
	}
	return nil
}

// MigrateDown откатывает миграции; steps<=0 интерпретируется как один шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int, logger *log.Entry) error {
	if err := prepareGoose(logger); err != nil {
		return err
	}
	if steps <= 0 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, s.db, migrationsDir); err != nil {
			return fmt.Errorf("migrate down step %d: %w", i+1, err)
		}
	}
	return nil
}

// MigrationStatus возвращает текущую версию схемы.
func (s *Store) MigrationStatus(ctx context.Context, logger *log.Entry) (MigrationState, error) {
	if err := prepareGoose(logger); err != nil {
		return MigrationState{}, err
	}

	migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return MigrationState{}, fmt.Errorf("collect migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, s.db)
	if err != nil {
		return MigrationState{}, fmt.Errorf("get db version: %w", err)
	}

	state := MigrationState{Version: version, Total: len(migrations)}
	for _, m := range migrations {
		if m.Version <= version {
			state.Applied++
		}
	}
	return state, nil
}
