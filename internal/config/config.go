package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	VendorBaseURL    string
	VendorTimeout    time.Duration
	VendorCityID     int
	VendorSubService string
	PriorityMarker   string
	RoutesFile       string

	RedisAddr     string
	RedisPassword string
	RedisStaleKey string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	RunTimeout      time.Duration
	BookAttempts    int
	CleanupAttempts int
	BookRetryBase   time.Duration
	BookRetryMax    time.Duration

	LogLevel      string
	RunMigrations bool
}

// SweeperConfig is read by cmd/sweeper on top of the shared ServerConfig.
type SweeperConfig struct {
	KafkaGroup    string
	MetricsAddr   string
	SweepInterval time.Duration
	SweepAttempts int
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:         ":8080",
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     30 * time.Second,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		VendorBaseURL:    "https://router-ucaca.live.ridewithvia.com/ops/rider",
		VendorTimeout:    15 * time.Second,
		VendorCityID:     783,
		VendorSubService: "U_Chicago_Safe_Ride",
		PriorityMarker:   "lyft",
		RedisStaleKey:    "ride_priority:stale",
		KafkaTopic:       "booking-events",
		RunTimeout:       10 * time.Minute,
		BookAttempts:     3,
		CleanupAttempts:  3,
		BookRetryBase:    2 * time.Second,
		BookRetryMax:     5 * time.Second,
		LogLevel:         "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setStringFromEnv(&cfg.VendorBaseURL, "VENDOR_BASE_URL")
	setDurationFromEnv(&cfg.VendorTimeout, "VENDOR_TIMEOUT", &errs)
	setIntFromEnv(&cfg.VendorCityID, "VENDOR_CITY_ID", &errs)
	setStringFromEnv(&cfg.VendorSubService, "VENDOR_SUB_SERVICE")
	setStringFromEnv(&cfg.PriorityMarker, "PRIORITY_MARKER")
	cfg.RoutesFile = strings.TrimSpace(os.Getenv("ROUTES_FILE"))

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisStaleKey, "REDIS_STALE_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setDurationFromEnv(&cfg.RunTimeout, "RUN_TIMEOUT", &errs)
	setIntFromEnv(&cfg.BookAttempts, "BOOK_ATTEMPTS", &errs)
	setIntFromEnv(&cfg.CleanupAttempts, "CLEANUP_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.BookRetryBase, "BOOK_RETRY_BASE", &errs)
	setDurationFromEnv(&cfg.BookRetryMax, "BOOK_RETRY_MAX", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.BookAttempts <= 0 {
		errs = append(errs, fmt.Errorf("BOOK_ATTEMPTS must be > 0"))
	}
	if cfg.CleanupAttempts <= 0 {
		errs = append(errs, fmt.Errorf("CLEANUP_ATTEMPTS must be > 0"))
	}
	if cfg.RunTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RUN_TIMEOUT must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func LoadSweeperConfig() (SweeperConfig, error) {
	cfg := SweeperConfig{
		KafkaGroup:    "ride-priority-sweeper",
		MetricsAddr:   ":2112",
		SweepInterval: 30 * time.Second,
		SweepAttempts: 3,
	}
	var errs []error
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	setDurationFromEnv(&cfg.SweepInterval, "SWEEP_INTERVAL", &errs)
	setIntFromEnv(&cfg.SweepAttempts, "SWEEP_ATTEMPTS", &errs)
	if cfg.SweepAttempts <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_ATTEMPTS must be > 0"))
	}
	if cfg.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
