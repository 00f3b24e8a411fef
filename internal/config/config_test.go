package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.HTTPAddr)
	}
	if cfg.BookAttempts != 3 || cfg.CleanupAttempts != 3 {
		t.Fatalf("expected 3 attempts, got book=%d cleanup=%d", cfg.BookAttempts, cfg.CleanupAttempts)
	}
	if cfg.BookRetryBase != 2*time.Second || cfg.BookRetryMax != 5*time.Second {
		t.Fatalf("unexpected retry bounds %s/%s", cfg.BookRetryBase, cfg.BookRetryMax)
	}
	if cfg.PriorityMarker != "lyft" {
		t.Fatalf("unexpected marker %q", cfg.PriorityMarker)
	}
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("RUN_TIMEOUT", "90s")
	t.Setenv("VENDOR_CITY_ID", "12")
	t.Setenv("MIGRATE", "TRUE")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("got addr %q", cfg.HTTPAddr)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("got brokers %v", cfg.KafkaBrokers)
	}
	if cfg.RunTimeout != 90*time.Second {
		t.Fatalf("got run timeout %s", cfg.RunTimeout)
	}
	if cfg.VendorCityID != 12 {
		t.Fatalf("got city %d", cfg.VendorCityID)
	}
	if !cfg.RunMigrations {
		t.Fatalf("expected migrations enabled")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("got level %q", cfg.LogLevel)
	}
}

func TestLoadServerConfigAccumulatesErrors(t *testing.T) {
	t.Setenv("RUN_TIMEOUT", "soon")
	t.Setenv("BOOK_ATTEMPTS", "0")
	t.Setenv("CLEANUP_ATTEMPTS", "x")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"RUN_TIMEOUT", "BOOK_ATTEMPTS", "CLEANUP_ATTEMPTS"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err)
		}
	}
}

func TestLoadSweeperConfig(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "5s")
	t.Setenv("KAFKA_GROUP", "g1")
	cfg, err := LoadSweeperConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SweepInterval != 5*time.Second || cfg.KafkaGroup != "g1" || cfg.SweepAttempts != 3 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("SWEEP_ATTEMPTS", "-1")
	if _, err := LoadSweeperConfig(); err == nil {
		t.Fatalf("expected error for negative attempts")
	}
}
