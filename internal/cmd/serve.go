package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/internal/metrics"
	"github.com/3leaps/spoolwatch/internal/observability"
	"github.com/3leaps/spoolwatch/internal/server"
	"github.com/3leaps/spoolwatch/internal/server/handlers"
	"github.com/3leaps/spoolwatch/pkg/history"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Serve device queries, controls, stored events and live WebSocket
watch streams over HTTP.

Examples:
  spoolwatch serve
  spoolwatch serve --host 0.0.0.0 --port 9090
  spoolwatch serve --provider cups --no-history`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost      string
	servePort      int
	serveHistory   string
	serveNoHistory bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
	serveCmd.Flags().StringVar(&serveHistory, "history", "", "History database path")
	serveCmd.Flags().BoolVar(&serveNoHistory, "no-history", false, "Serve without stored events and sessions")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := currentConfig()

	if err := observability.InitServerLogger(appIdentity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	logger := observability.CLILogger
	defer observability.Sync()

	host, port := cfg.Server.Host, cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := newQueryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	dh := &handlers.DeviceHandlers{Devices: svc}
	var store *history.Store
	if !serveNoHistory {
		store, err = openHistory(ctx, serveHistory)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		dh.Events = store
		dh.Sessions = store
	}

	handlers.InitHealthManager(versionInfo.Version)
	hm := handlers.GetHealthManager()
	hm.RegisterChecker("identity", identityHealthChecker{
		binaryName: appIdentity.BinaryName,
		envPrefix:  appIdentity.EnvPrefix,
		configName: appIdentity.ConfigName,
	})
	hm.RegisterChecker("provider", handlers.HealthCheckerFunc(svc.Ping))
	if store != nil {
		hm.RegisterChecker("history", historyHealthChecker{store: store})
	}

	opts := []server.Option{
		server.WithLogger(logger.Named("http")),
		server.WithTimeouts(server.Timeouts{
			Read:     cfg.Server.ReadTimeout,
			Write:    cfg.Server.WriteTimeout,
			Idle:     cfg.Server.IdleTimeout,
			Shutdown: cfg.Server.ShutdownTimeout,
		}),
		server.WithDevices(dh),
		server.WithWatch(svc.Reader(), cfg.MonitorOptions("")),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(metrics.NewCollector(), cfg.Metrics.Path))
	}
	srv := server.New(host, port, opts...)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("Server started",
		zap.String("addr", srv.Addr()),
		zap.String("provider", cfg.Provider.Kind),
		zap.Bool("history", store != nil),
		zap.Bool("metrics", cfg.Metrics.Enabled))

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	if err := <-errCh; err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	return nil
}

type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(_ context.Context) error {
	switch {
	case c.binaryName == "":
		return fmt.Errorf("app identity missing binary name")
	case c.envPrefix == "":
		return fmt.Errorf("app identity missing env prefix")
	case c.configName == "":
		return fmt.Errorf("app identity missing config name")
	}
	return nil
}

type historyHealthChecker struct {
	store *history.Store
}

func (c historyHealthChecker) CheckHealth(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("history store not open")
	}
	return c.store.DB().PingContext(ctx)
}
