package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/priority-ride/internal/accounts"
	"github.com/example/priority-ride/internal/config"
	"github.com/example/priority-ride/internal/ingest"
	"github.com/example/priority-ride/internal/logging"
	"github.com/example/priority-ride/internal/storage"
	"github.com/example/priority-ride/internal/sweeper"
	"github.com/example/priority-ride/internal/vendor"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_messages_consumed_total",
		Help: "Total booking event messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	staleCleared = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_stale_cleared_total",
		Help: "Total stale filler bookings confirmed cancelled",
	})
	staleFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_stale_failed_total",
		Help: "Total sweep attempts that left a booking active",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, staleCleared, staleFailed)
}

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	scfg, err := config.LoadSweeperConfig()
	if err != nil {
		slog.Error("invalid sweeper configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	roster, err := accounts.FromEnv(os.Environ())
	if err != nil {
		logger.Error("account configuration", "error", err)
		os.Exit(1)
	}

	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rc := redis.NewClient(&redis.Options{Addr: redisAddr, Password: cfg.RedisPassword})

	client := vendor.NewClient(vendor.Config{
		BaseURL:    cfg.VendorBaseURL,
		Timeout:    cfg.VendorTimeout,
		CityID:     cfg.VendorCityID,
		SubService: cfg.VendorSubService,
	}, logger)

	sw := sweeper.New(sweeper.NewRedisStaleSet(sweeper.NewRedisAdapter(rc), cfg.RedisStaleKey), client, roster, logger)
	sw.Attempts = scfg.SweepAttempts
	if cfg.PGDSN != "" {
		store, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Warn("ride log unavailable; sweeping without it", "error", err)
		} else {
			defer store.Close()
			sw.RideLog = store
		}
	}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			// readiness: check redis connectivity
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", scfg.MetricsAddr)
		if err := http.ListenAndServe(scfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: cfg.KafkaTopic, GroupID: scfg.KafkaGroup, MinBytes: 1, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	go sweepLoop(ctx, sw, scfg.SweepInterval, logger)

	logger.Info("sweeper listening", "topic", cfg.KafkaTopic, "brokers", brokers, "group", scfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down sweeper")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		ev, err := ingest.DecodeEvent(m)
		if err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "error", err)
			continue
		}
		if err := sw.Handle(ctx, ev); err != nil {
			msgsInvalid.Inc()
			logger.Warn("event not recorded", "type", ev.Type, "account", ev.Record.AccountKey, "error", err)
		}
	}
}

func sweepLoop(ctx context.Context, sw *sweeper.Sweeper, every time.Duration, logger *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st, err := sw.Sweep(ctx)
			staleCleared.Add(float64(st.Cleared))
			staleFailed.Add(float64(st.Failed))
			if err != nil && ctx.Err() == nil {
				logger.Error("sweep failed", "error", err)
			}
		}
	}
}
