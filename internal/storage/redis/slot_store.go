// Package redis хранит слоты резервного хранилища в Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

const defaultPrefix = "crowngate:fallback"

// Config — параметры подключения к Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// SlotStore держит каждый слот под ключом <prefix>:<slot>.
// Save пишет все слоты в одной транзакции MULTI/EXEC.
type SlotStore struct {
	client *goredis.Client
	prefix string
	logger *log.Entry
}

// New подключается к Redis и проверяет доступность через PING.
func New(ctx context.Context, cfg Config, logger *log.Entry) (*SlotStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg.Prefix, logger), nil
}

// NewWithClient оборачивает готовый клиент.
func NewWithClient(client *goredis.Client, prefix string, logger *log.Entry) *SlotStore {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = log.StandardLogger().WithField("component", "redis-fallback")
	}
	logger.WithField("prefix", prefix).Info("redis fallback store ready")
	return &SlotStore{client: client, prefix: prefix, logger: logger}
}

// Key возвращает ключ Redis для слота.
func (s *SlotStore) Key(slot domain.Slot) string {
	return s.prefix + ":" + string(slot)
}

func (s *SlotStore) Load(ctx context.Context, slot domain.Slot) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.Key(slot)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", slot, err)
	}
	return data, true, nil
}

func (s *SlotStore) Save(ctx context.Context, slots map[domain.Slot][]byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, slot := range domain.Slots() {
			data, ok := slots[slot]
			if !ok {
				continue
			}
			pipe.Set(ctx, s.Key(slot), data, 0)
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).Warn("redis fallback save failed")
		return fmt.Errorf("redis save slots: %w", err)
	}
	return nil
}

// Ping проверяет соединение.
func (s *SlotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает клиент.
func (s *SlotStore) Close() error {
	return s.client.Close()
}

var _ domain.SlotStore = (*SlotStore)(nil)
