package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitKafkaProducer_NoBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	producer, err := initKafkaProducer(DefaultConfig(), logger)
	if err != nil {
		t.Errorf("expected no error without brokers, got %v", err)
	}
	if producer != nil {
		t.Error("expected nil producer without brokers")
	}
}

func TestInitKafkaProducer_UnreachableBroker(t *testing.T) {
	logger := log.WithField("test", "kafka")

	cfg := DefaultConfig()
	cfg.KafkaBrokers = []string{"127.0.0.1:1"}
	producer, err := initKafkaProducer(cfg, logger)
	if err == nil {
		t.Error("expected error for unreachable broker")
	}
	if producer != nil {
		t.Error("expected nil producer on error")
	}
}

func TestCloseKafka_NilProducer(t *testing.T) {
	// Не должно паниковать.
	closeKafka(nil, log.WithField("test", "kafka"))
}
