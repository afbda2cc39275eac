package app

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.FallbackDriver != FallbackDriverFile {
		t.Errorf("expected FallbackDriver %s, got %s", FallbackDriverFile, cfg.FallbackDriver)
	}
	if cfg.RemoteURL != "" {
		t.Error("expected local mode by default")
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Errorf("expected IdempotencyTTL 24h, got %s", cfg.IdempotencyTTL)
	}
	if cfg.KafkaEnabled() {
		t.Error("kafka must be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.FallbackDriver = "cassandra" },
			wantErr: "unsupported fallback driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.FallbackDriver = FallbackDriverPostgres },
			wantErr: "postgres dsn is required",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.FallbackDriver = FallbackDriverRedis },
			wantErr: "redis addr is required",
		},
		{
			name: "s3 with half of credentials",
			mutate: func(c *Config) {
				c.FallbackDriver = FallbackDriverS3
				c.S3Bucket = "lab"
				c.S3AccessKey = "minio"
			},
			wantErr: "must be set together",
		},
		{
			name:    "remote url without scheme",
			mutate:  func(c *Config) { c.RemoteURL = "script.google.com/exec" },
			wantErr: "must be http(s)",
		},
		{
			name:    "read delay above bound",
			mutate:  func(c *Config) { c.LocalReadDelay = time.Minute },
			wantErr: "local read delay",
		},
		{
			name: "kafka without topic",
			mutate: func(c *Config) {
				c.KafkaBrokers = []string{"localhost:9092"}
				c.KafkaTopic = ""
			},
			wantErr: "kafka topic is required",
		},
		{
			name: "valid sqlite",
			mutate: func(c *Config) {
				c.FallbackDriver = FallbackDriverSQLite
				c.SQLitePath = "/tmp/crowngate.db"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigLogging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	cfg.LogFile = "/var/log/crowngate.log"

	lc := cfg.Logging()
	if lc.Level != "debug" || lc.Format != "json" || lc.File != "/var/log/crowngate.log" {
		t.Fatalf("unexpected logging config: %+v", lc)
	}
}
