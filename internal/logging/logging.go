// Package logging настраивает logrus для сервиса: уровень, формат и ротацию файла.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Config — параметры логирования.
type Config struct {
	Level  string
	Format string
	// File — путь к файлу с ротацией; пусто означает stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New создаёт logger по конфигурации. Возвращённый io.Closer закрывает файл ротации.
func New(cfg Config) (*log.Logger, io.Closer, error) {
	logger := log.New()

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(parsed)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{TimestampFormat: timestampFormat})
	default:
		return nil, nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     cfg.MaxAgeDays,
		}
		logger.SetOutput(rotator)
		closer = rotator
	} else {
		logger.SetOutput(os.Stdout)
	}

	return logger, closer, nil
}

// Component возвращает entry с полем component.
func Component(logger *log.Logger, name string) *log.Entry {
	return logger.WithField("component", name)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
