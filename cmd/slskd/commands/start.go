package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/droserasprout/slskd/internal/logger"
	"github.com/droserasprout/slskd/pkg/api"
	"github.com/droserasprout/slskd/pkg/config"
	"github.com/droserasprout/slskd/pkg/identity"
	"github.com/droserasprout/slskd/pkg/metrics"
	promimpl "github.com/droserasprout/slskd/pkg/metrics/prometheus"
	"github.com/droserasprout/slskd/pkg/upload"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the slskd server",
	Long: `Start the slskd server with the specified configuration.

The uploads and users sections of the configuration are live: editing the
config file while the server runs rebuilds the governor's group table and
the peer classification without disturbing in-flight transfers.

Examples:
  # Start with the default config location
  slskd start

  # Start with a custom config file
  slskd start --config /etc/slskd/config.yaml

  # Override settings from the environment
  SLSKD_LOGGING_LEVEL=DEBUG slskd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics must be initialized before the governor so the instrument
	// constructors see an enabled registry.
	var governorMetrics upload.Metrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		governorMetrics = promimpl.NewGovernorMetrics()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	}

	resolver := identity.NewResolver()
	configureResolver(resolver, cfg)

	governor := upload.New(resolver, governorMetrics)
	opts, err := cfg.Uploads.UploadOptions()
	if err != nil {
		return err
	}
	if err := governor.Reconfigure(opts); err != nil {
		return err
	}

	// Live configuration reload. Invalid reloads are logged and dropped
	// inside Watch; a valid reload reclassifies peers and rebuilds the
	// group table.
	err = config.Watch(GetConfigFile(), func(next *config.Config) {
		logger.SetLevel(next.Logging.Level)
		configureResolver(resolver, next)

		opts, err := next.Uploads.UploadOptions()
		if err != nil {
			logger.Error("ignoring reloaded upload options", "error", err)
			return
		}
		if err := governor.Reconfigure(opts); err != nil {
			logger.Error("ignoring reloaded upload options", "error", err)
		}
	})
	if err != nil {
		return err
	}

	servers := 0
	errChan := make(chan error, 2)

	if cfg.Metrics.Enabled {
		if srv := metrics.NewServer(cfg.Metrics.Port); srv != nil {
			servers++
			go func() { errChan <- srv.Start(ctx) }()
		}
	}

	if cfg.API.IsEnabled() {
		apiServer := api.NewServer(cfg.API, governor)
		servers++
		go func() { errChan <- apiServer.Start(ctx) }()
		logger.Info("API server enabled", "port", cfg.API.Port)
	}

	logger.Info("slskd is running, press Ctrl+C to stop",
		"upload_slots", opts.GlobalSlots,
	)

	// Wait for a shutdown signal or the first server failure, then give
	// the remaining servers the shutdown timeout to drain.
	var firstErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-errChan:
		servers--
		firstErr = err
		cancel()
	}

	deadline := time.After(cfg.ShutdownTimeout)
	for servers > 0 {
		select {
		case err := <-errChan:
			servers--
			if err != nil && firstErr == nil {
				firstErr = err
			}
		case <-deadline:
			logger.Warn("graceful shutdown timed out", "timeout", cfg.ShutdownTimeout)
			return firstErr
		}
	}

	if firstErr == nil {
		logger.Info("server stopped gracefully")
	}
	return firstErr
}

// configureResolver maps the users and groups sections of the config onto
// the peer classifier.
func configureResolver(resolver *identity.Resolver, cfg *config.Config) {
	groups := make([]identity.GroupMembers, 0, len(cfg.Uploads.Groups.UserDefined))
	for name, g := range cfg.Uploads.Groups.UserDefined {
		groups = append(groups, identity.GroupMembers{
			Name:     name,
			Priority: g.Priority,
			Members:  g.Members,
		})
	}

	resolver.Configure(
		cfg.Users.Privileged,
		groups,
		cfg.Users.Leechers.Files,
		cfg.Users.Leechers.Directories,
	)
}
