package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/priority-ride/internal/accounts"
	"github.com/example/priority-ride/internal/classify"
	"github.com/example/priority-ride/internal/config"
	"github.com/example/priority-ride/internal/logging"
	"github.com/example/priority-ride/internal/orchestrator"
	"github.com/example/priority-ride/internal/routes"
	"github.com/example/priority-ride/internal/vendor"
)

type app struct {
	roster     *accounts.Registry
	catalog    *routes.Catalog
	client     orchestrator.RideClient
	classifier *classify.Classifier
	policy     orchestrator.Policy
	timeout    time.Duration
	logger     *slog.Logger
	sleep      func(time.Duration)
}

// wireApp builds the app from the same environment the server reads.
func wireApp() (*app, error) {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return nil, err
	}
	roster, err := accounts.FromEnv(os.Environ())
	if err != nil {
		return nil, err
	}
	catalog := routes.Default()
	if cfg.RoutesFile != "" {
		if catalog, err = routes.LoadFile(cfg.RoutesFile); err != nil {
			return nil, err
		}
	}
	// progress goes to stdout; structured logs only when asked for
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if os.Getenv("LOG_LEVEL") != "" {
		logger = logging.NewLoggerTo(os.Stderr, cfg.LogLevel)
	}
	policy := orchestrator.DefaultPolicy()
	policy.BookAttempts = cfg.BookAttempts
	policy.CleanupAttempts = cfg.CleanupAttempts
	policy.BookBase = cfg.BookRetryBase
	policy.BookMax = cfg.BookRetryMax
	return &app{
		roster:  roster,
		catalog: catalog,
		client: vendor.NewClient(vendor.Config{
			BaseURL:    cfg.VendorBaseURL,
			Timeout:    cfg.VendorTimeout,
			CityID:     cfg.VendorCityID,
			SubService: cfg.VendorSubService,
		}, logger),
		classifier: classify.New(cfg.PriorityMarker),
		policy:     policy,
		timeout:    cfg.RunTimeout,
		logger:     logger,
	}, nil
}

func newRootCmd(wire func() (*app, error)) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "drainctl",
		Short:         "Book a Priority Ride by draining Shuttle capacity with filler accounts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	a, err := wire()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newRunCmd(a),
		newAccountsCmd(a),
		newRoutesCmd(a),
	)
	return rootCmd
}
