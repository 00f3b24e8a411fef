package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/example/priority-ride/internal/accounts"
	"github.com/example/priority-ride/internal/classify"
	"github.com/example/priority-ride/internal/config"
	httpapi "github.com/example/priority-ride/internal/http"
	"github.com/example/priority-ride/internal/ingest"
	"github.com/example/priority-ride/internal/logging"
	"github.com/example/priority-ride/internal/orchestrator"
	"github.com/example/priority-ride/internal/routes"
	"github.com/example/priority-ride/internal/state"
	"github.com/example/priority-ride/internal/storage"
	"github.com/example/priority-ride/internal/vendor"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	roster, err := accounts.FromEnv(os.Environ())
	if err != nil {
		logger.Error("account configuration", "error", err)
		os.Exit(1)
	}

	catalog := routes.Default()
	if cfg.RoutesFile != "" {
		if catalog, err = routes.LoadFile(cfg.RoutesFile); err != nil {
			logger.Error("routes file", "path", cfg.RoutesFile, "error", err)
			os.Exit(1)
		}
	}

	var rideLog storage.RideLog = storage.NewMemoryStore()
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		// optional migration: apply migrations/001_create_ride_log.sql if requested
		if cfg.RunMigrations {
			b, err := os.ReadFile(filepath.Join("migrations", "001_create_ride_log.sql"))
			if err != nil {
				logger.Error("migration read error", "error", err)
			} else if err := ps.Migrate(context.Background(), string(b)); err != nil {
				logger.Error("migration exec error", "error", err)
			} else {
				logger.Info("migration applied", "file", "001_create_ride_log.sql")
			}
		}
		rideLog = ps
	}

	var events orchestrator.EventSink
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		events = kp
	}

	pub := state.NewPublisher()
	pub.Init(roster.List())

	client := vendor.NewClient(vendor.Config{
		BaseURL:    cfg.VendorBaseURL,
		Timeout:    cfg.VendorTimeout,
		CityID:     cfg.VendorCityID,
		SubService: cfg.VendorSubService,
	}, logger)

	policy := orchestrator.DefaultPolicy()
	policy.BookAttempts = cfg.BookAttempts
	policy.CleanupAttempts = cfg.CleanupAttempts
	policy.BookBase = cfg.BookRetryBase
	policy.BookMax = cfg.BookRetryMax

	api := httpapi.NewServer(httpapi.Deps{
		Accounts:   roster,
		Routes:     catalog,
		Client:     client,
		Classifier: classify.New(cfg.PriorityMarker),
		State:      pub,
		RideLog:    rideLog,
		Events:     events,
		Policy:     policy,
		RunTimeout: cfg.RunTimeout,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("priority-ride listening", "addr", cfg.HTTPAddr, "accounts", roster.Len(), "default_route", catalog.DefaultName())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	// active runs stop at their next checkpoint and still unwind filler bookings
	api.Shutdown(shutdownCtx)
}
