package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// opTimeout ограничивает одиночный запрос репозитория.
const opTimeout = 5 * time.Second

// ErrSchemaMissing означает, что таблицы резервного хранилища не созданы (migrate up не выполнялся).
var ErrSchemaMissing = errors.New("postgres schema is missing, run migrations")

// SQLSTATE-коды, которые различает пакет.
const (
	codeUndefinedTable  = "42P01"
	codeUniqueViolation = "23505"
)

// pool — параметры пула соединений database/sql.
type pool struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
	pingTimeout time.Duration
}

// Пул рассчитан на один процесс crowngate: запись слотов и ленты изменений идёт короткими транзакциями.
var defaultPool = pool{
	maxOpen:     10,
	maxIdle:     5,
	maxLifetime: 30 * time.Minute,
	maxIdleTime: 5 * time.Minute,
	pingTimeout: 5 * time.Second,
}

// Store владеет подключением к PostgreSQL; репозитории и SlotStore строятся поверх него.
type Store struct {
	db          *sql.DB
	pingTimeout time.Duration
}

// Open подключается по DSN через драйвер pgx и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultPool.maxOpen)
	db.SetMaxIdleConns(defaultPool.maxIdle)
	db.SetConnMaxLifetime(defaultPool.maxLifetime)
	db.SetConnMaxIdleTime(defaultPool.maxIdleTime)

	s := &Store{db: db, pingTimeout: defaultPool.pingTimeout}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return s, nil
}

// NewStore оборачивает готовое подключение (sqlmock в тестах).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, pingTimeout: defaultPool.pingTimeout}
}

// DB возвращает подключение для goose и репозиториев.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется health-чекером резервного хранилища.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// dbError оборачивает ошибку запроса; отсутствие таблицы превращается в ErrSchemaMissing.
func dbError(op string, err error) error {
	if sqlState(err) == codeUndefinedTable {
		return fmt.Errorf("%s: %w: %v", op, ErrSchemaMissing, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
