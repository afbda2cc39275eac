package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/app"
	"github.com/vladislavdragonenkov/crowngate/internal/logging"
	"github.com/vladislavdragonenkov/crowngate/internal/version"
)

// loadDotEnv подгружает переменные из файла, не перетирая уже заданные. Отсутствие файла не ошибка.
func loadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// readConfigFromEnv накладывает переменные CROWNGATE_* на конфигурацию по умолчанию.
// environ=nil означает окружение процесса.
func readConfigFromEnv(environ map[string]string) (app.Config, error) {
	cfg := app.DefaultConfig()
	opts := env.Options{Prefix: app.EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	cfg.FallbackDriver = strings.ToLower(strings.TrimSpace(cfg.FallbackDriver))
	cfg.RemoteURL = strings.TrimSpace(cfg.RemoteURL)
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	brokers := cfg.KafkaBrokers[:0]
	for _, b := range cfg.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.KafkaBrokers = brokers
	return cfg, nil
}

func main() {
	var (
		showVersion bool
		envFile     string
	)
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.StringVar(&envFile, "env-file", ".env", "optional dotenv file with CROWNGATE_* variables")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Current())
		return
	}

	if err := loadDotEnv(envFile); err != nil {
		log.WithError(err).Fatal("не удалось прочитать env-файл")
	}
	cfg, err := readConfigFromEnv(nil)
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	logger, closer, err := logging.New(cfg.Logging())
	if err != nil {
		log.WithError(err).Fatal("не удалось настроить логирование")
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(log.Fields{
		"version":         version.Short(),
		"http_addr":       cfg.HTTPAddr,
		"metrics_addr":    cfg.MetricsAddr,
		"fallback_driver": cfg.FallbackDriver,
		"remote":          cfg.RemoteURL != "",
	}).Info("запускаем crowngate")

	if err := app.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("приложение завершилось с ошибкой")
		_ = closer.Close()
		os.Exit(1)
	}

	logger.Info("crowngate остановлен")
}
