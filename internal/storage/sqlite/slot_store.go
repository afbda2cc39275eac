// Package sqlite хранит слоты резервного хранилища в одной таблице SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

const defaultPath = "crowngate.db"

// SlotStore держит каждый слот строкой таблицы state(bucket, payload).
type SlotStore struct {
	db   *sql.DB
	path string
}

// Open открывает (или создаёт) файл базы и таблицу state.
func Open(ctx context.Context, path string) (*SlotStore, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Одно соединение: SQLite всё равно сериализует запись.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &SlotStore{db: db, path: path}, nil
}

// Path возвращает путь к файлу базы.
func (s *SlotStore) Path() string {
	return s.path
}

func (s *SlotStore) Load(ctx context.Context, slot domain.Slot) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = ?`, string(slot)).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select slot %s: %w", slot, err)
	}
	return payload, true, nil
}

func (s *SlotStore) Save(ctx context.Context, slots map[domain.Slot][]byte) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, slot := range domain.Slots() {
		data, ok := slots[slot]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
			string(slot), data,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", slot, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Ping проверяет, что файл базы доступен.
func (s *SlotStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает базу.
func (s *SlotStore) Close() error {
	return s.db.Close()
}

var _ domain.SlotStore = (*SlotStore)(nil)
