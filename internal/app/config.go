package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/crowngate/internal/logging"
	"github.com/vladislavdragonenkov/crowngate/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/crowngate/internal/store"
)

// EnvPrefix — префикс переменных окружения конфигурации.
const EnvPrefix = "CROWNGATE_"

// Драйверы резервного хранилища.
const (
	FallbackDriverMemory   = "memory"
	FallbackDriverFile     = "file"
	FallbackDriverSQLite   = "sqlite"
	FallbackDriverPostgres = "postgres"
	FallbackDriverRedis    = "redis"
	FallbackDriverS3       = "s3"
)

// Config описывает настройки запуска сервиса. Теги env читаются с префиксом EnvPrefix.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR"`
	MetricsAddr string `env:"METRICS_ADDR"`

	// RemoteURL — адрес удалённой таблицы; пусто означает режим local.
	RemoteURL     string        `env:"REMOTE_URL"`
	RemoteTimeout time.Duration `env:"REMOTE_TIMEOUT"`

	FallbackDriver      string `env:"FALLBACK_DRIVER"`
	FallbackDir         string `env:"FALLBACK_DIR"`
	SQLitePath          string `env:"SQLITE_PATH"`
	PostgresDSN         string `env:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `env:"POSTGRES_AUTO_MIGRATE"`
	RedisAddr           string `env:"REDIS_ADDR"`
	RedisPassword       string `env:"REDIS_PASSWORD"`
	RedisDB             int    `env:"REDIS_DB"`
	RedisPrefix         string `env:"REDIS_PREFIX"`
	S3Bucket            string `env:"S3_BUCKET"`
	S3Region            string `env:"S3_REGION"`
	S3Endpoint          string `env:"S3_ENDPOINT"`
	S3Prefix            string `env:"S3_PREFIX"`
	S3PathStyle         bool   `env:"S3_PATH_STYLE"`
	S3AccessKey         string `env:"S3_ACCESS_KEY"`
	S3SecretKey         string `env:"S3_SECRET_KEY"`

	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string   `env:"KAFKA_TOPIC"`
	KafkaDLQTopic string   `env:"KAFKA_DLQ_TOPIC"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `env:"OUTBOX_RETRY_DELAY"`

	IdempotencyTTL             time.Duration `env:"IDEMPOTENCY_TTL"`
	IdempotencyCleanupInterval time.Duration `env:"IDEMPOTENCY_CLEANUP_INTERVAL"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL"`
	LocalReadDelay    time.Duration `env:"LOCAL_READ_DELAY"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
	LogFile   string `env:"LOG_FILE"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                   ":8080",
		MetricsAddr:                ":9090",
		RemoteTimeout:              10 * time.Second,
		FallbackDriver:             FallbackDriverFile,
		FallbackDir:                "data",
		SQLitePath:                 "data/crowngate.db",
		PostgresAutoMigrate:        true,
		RedisPrefix:                "crowngate:fallback",
		S3Region:                   "us-east-1",
		S3Prefix:                   "crowngate",
		KafkaTopic:                 kafka.TopicLabEvents,
		KafkaDLQTopic:              kafka.TopicDeadLetterQueue,
		OutboxPollInterval:         time.Second,
		OutboxBatchSize:            100,
		OutboxMaxAttempts:          3,
		OutboxRetryDelay:           50 * time.Millisecond,
		IdempotencyTTL:             24 * time.Hour,
		IdempotencyCleanupInterval: time.Minute,
		ReconcileInterval:          5 * time.Minute,
		LogLevel:                   "info",
		LogFormat:                  "text",
		ShutdownTimeout:            10 * time.Second,
	}
}

// Validate проверяет согласованность настроек до запуска.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if c.RemoteURL != "" && !strings.HasPrefix(c.RemoteURL, "http://") && !strings.HasPrefix(c.RemoteURL, "https://") {
		errs = append(errs, fmt.Errorf("remote url %q must be http(s)", c.RemoteURL))
	}

	switch c.FallbackDriver {
	case FallbackDriverMemory:
	case FallbackDriverFile:
		if c.FallbackDir == "" {
			errs = append(errs, errors.New("fallback dir is required for file driver"))
		}
	case FallbackDriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required for sqlite driver"))
		}
	case FallbackDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres driver"))
		}
	case FallbackDriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis addr is required for redis driver"))
		}
	case FallbackDriverS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("s3 bucket is required for s3 driver"))
		}
		if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
			errs = append(errs, errors.New("s3 access key and secret key must be set together"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported fallback driver %q", c.FallbackDriver))
	}

	if c.LocalReadDelay < 0 || c.LocalReadDelay > store.MaxLocalReadDelay {
		errs = append(errs, fmt.Errorf("local read delay must be within [0, %s]", store.MaxLocalReadDelay))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	if c.OutboxBatchSize < 0 || c.OutboxMaxAttempts < 0 {
		errs = append(errs, errors.New("outbox batch size and max attempts must be non-negative"))
	}
	return errors.Join(errs...)
}

// KafkaEnabled сообщает, настроена ли публикация ленты изменений.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Logging возвращает настройки логирования.
func (c Config) Logging() logging.Config {
	return logging.Config{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		File:   c.LogFile,
	}
}
