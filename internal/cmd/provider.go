package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/internal/config"
	"github.com/3leaps/spoolwatch/internal/observability"
	"github.com/3leaps/spoolwatch/pkg/history"
	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/provider/cups"
	"github.com/3leaps/spoolwatch/pkg/provider/fixture"
	"github.com/3leaps/spoolwatch/pkg/provider/handles"
	"github.com/3leaps/spoolwatch/pkg/query"
	"github.com/3leaps/spoolwatch/pkg/watchregistry"
)

// newProvider builds the spooler backend selected by cfg. A positive
// fixture simulate interval advances fixture jobs until ctx is done.
func newProvider(ctx context.Context, cfg config.ProviderConfig) (provider.Provider, error) {
	switch provider.Kind(strings.ToLower(cfg.Kind)) {
	case provider.KindCUPS:
		return cups.New(cups.Config{
			BinDir: cfg.CUPS.BinDir,
			Server: cfg.CUPS.Server,
			User:   cfg.CUPS.User,
		}), nil
	case provider.KindFixture, "":
		state := &fixture.State{}
		if cfg.Fixture != "" {
			st, err := fixture.LoadFile(cfg.Fixture)
			if err != nil {
				return nil, err
			}
			state = st
		}
		sp := fixture.New(state)
		if cfg.Simulate > 0 {
			go sp.Simulate(ctx, cfg.Simulate)
		}
		return sp, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Kind)
	}
}

// newQueryService returns a query service over the configured provider and
// a cleanup that releases every cached handle.
func newQueryService(ctx context.Context) (*query.Service, func(), error) {
	cfg := currentConfig()
	p, err := newProvider(ctx, cfg.Provider)
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.String("provider", cfg.Provider.Kind), zap.Error(err))
		return nil, func() {}, exitError(foundry.ExitExternalServiceUnavailable, "Failed to create spooler provider", err)
	}
	cache := handles.New(p, handles.Options{
		RateLimit: cfg.Provider.RateLimit,
		Burst:     cfg.Provider.Burst,
		Logger:    observability.CLILogger.Named("handles"),
	})
	svc := query.New(cache, observability.CLILogger.Named("query"))
	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cache.CloseAll(closeCtx); err != nil {
			observability.CLILogger.Warn("Failed to close device handles", zap.Error(err))
		}
	}
	return svc, cleanup, nil
}

func appDataDir() (string, error) {
	dir := gfconfig.GetAppDataDir(config.ConfigName)
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("cannot determine app data directory")
	}
	return dir, nil
}

// historyPath resolves an explicit path, then config, then the app data dir.
func historyPath(explicit string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return p, nil
	}
	if p := strings.TrimSpace(currentConfig().History.Path); p != "" {
		return p, nil
	}
	dir, err := appDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// openHistory opens the history store and applies configured retention.
func openHistory(ctx context.Context, explicit string) (*history.Store, error) {
	path, err := historyPath(explicit)
	if err != nil {
		return nil, err
	}
	store, err := history.Open(ctx, history.Config{Path: path, Logger: observability.CLILogger.Named("history")})
	if err != nil {
		return nil, exitError(foundry.ExitFileWriteError, "Failed to open history database", err)
	}
	if keep := currentConfig().History.Retention; keep > 0 {
		n, err := store.Prune(ctx, time.Now().Add(-keep))
		if err != nil {
			observability.CLILogger.Warn("History prune failed", zap.Error(err))
		} else if n > 0 {
			observability.CLILogger.Debug("Pruned history", zap.Int64("events", n), zap.Duration("retention", keep))
		}
	}
	return store, nil
}

func registryRoot(explicit string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return p, nil
	}
	if p := strings.TrimSpace(currentConfig().Registry.Path); p != "" {
		return p, nil
	}
	dir, err := appDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}

func openRegistry(explicit string) (*watchregistry.Store, error) {
	root, err := registryRoot(explicit)
	if err != nil {
		return nil, err
	}
	return watchregistry.NewStore(root), nil
}
