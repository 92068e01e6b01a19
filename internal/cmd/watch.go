package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/internal/observability"
	"github.com/3leaps/spoolwatch/pkg/eventlog"
	"github.com/3leaps/spoolwatch/pkg/monitor"
	"github.com/3leaps/spoolwatch/pkg/watchfile"
	"github.com/3leaps/spoolwatch/pkg/watchregistry"
)

var watchCmd = &cobra.Command{
	Use:   "watch [device]",
	Short: "Monitor devices and emit job lifecycle events",
	Long: `Poll one device (or every device in a manifest) and write lifecycle
events as JSONL until interrupted.

Events are also stored in the history database and each run is recorded in
the session registry, so 'spoolwatch events' and 'spoolwatch sessions' can
inspect them later.

Examples:
  spoolwatch watch Office-Laser
  spoolwatch watch Office-Laser --jobs 12,13 --interval 1s
  spoolwatch watch Office-Laser --output events.jsonl --duration 10m
  spoolwatch watch --manifest watch.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var (
	watchManifest    string
	watchJobs        string
	watchInterval    time.Duration
	watchStopGrace   time.Duration
	watchDuration    time.Duration
	watchOutput      string
	watchHistory     string
	watchNoHistory   bool
	watchRegistry    string
	watchNoDevice    bool
	watchErrorPolicy string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchManifest, "manifest", "", "Watch manifest (YAML or JSON)")
	watchCmd.Flags().StringVar(&watchJobs, "jobs", "", "Only track these job ids (comma-separated)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Polling interval (default from config)")
	watchCmd.Flags().DurationVar(&watchStopGrace, "stop-grace", 0, "How long to wait for a session to stop")
	watchCmd.Flags().DurationVar(&watchDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "JSONL destination: stdout or a file path")
	watchCmd.Flags().StringVar(&watchHistory, "history", "", "History database path")
	watchCmd.Flags().BoolVar(&watchNoHistory, "no-history", false, "Do not store events in the history database")
	watchCmd.Flags().StringVar(&watchRegistry, "registry", "", "Session registry directory")
	watchCmd.Flags().BoolVar(&watchNoDevice, "no-device", false, "Do not report device status or paper changes")
	watchCmd.Flags().StringVar(&watchErrorPolicy, "read-error-policy", "", "retain_previous or treat_as_empty")
}

// watchPlan is what runWatch monitors and where events go.
type watchPlan struct {
	watches      []monitor.Options
	output       string
	history      string
	registry     string
	manifestPath string
}

func buildWatchPlan(cmd *cobra.Command, args []string) (*watchPlan, error) {
	plan := &watchPlan{
		output:   watchOutput,
		history:  watchHistory,
		registry: watchRegistry,
	}

	switch {
	case watchManifest != "" && len(args) > 0:
		return nil, exitError(foundry.ExitInvalidArgument, "Use either a device or --manifest", fmt.Errorf("got both"))
	case watchManifest != "":
		m, err := watchfile.Load(watchManifest)
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid watch manifest", err)
		}
		for _, w := range m.Watches {
			opts, err := w.Options()
			if err != nil {
				return nil, exitError(foundry.ExitInvalidArgument, "Invalid watch manifest", err)
			}
			plan.watches = append(plan.watches, opts)
		}
		if plan.output == "" {
			plan.output = m.Output.Destination
		}
		if plan.history == "" {
			plan.history = m.Output.History
		}
		if plan.registry == "" {
			plan.registry = m.Output.Registry
		}
		if abs, err := filepath.Abs(watchManifest); err == nil {
			plan.manifestPath = abs
		} else {
			plan.manifestPath = watchManifest
		}
	case len(args) == 1:
		opts := currentConfig().MonitorOptions(args[0])
		ids, err := parseJobIDs([]string{watchJobs})
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid --jobs", err)
		}
		opts.Scope = monitor.Jobs(ids...)
		if cmd.Flags().Changed("interval") {
			if watchInterval <= 0 {
				return nil, exitError(foundry.ExitInvalidArgument, "Invalid --interval", fmt.Errorf("interval must be positive"))
			}
			opts.Interval = watchInterval
		}
		if cmd.Flags().Changed("no-device") {
			opts.WatchDevice = !watchNoDevice
		}
		if watchErrorPolicy != "" {
			policy, err := monitor.ParseReadErrorPolicy(watchErrorPolicy)
			if err != nil {
				return nil, exitError(foundry.ExitInvalidArgument, "Invalid --read-error-policy", err)
			}
			opts.ReadErrorPolicy = policy
		}
		plan.watches = []monitor.Options{opts}
	default:
		return nil, exitError(foundry.ExitInvalidArgument, "A device or --manifest is required", fmt.Errorf("nothing to watch"))
	}

	if watchStopGrace > 0 {
		for i := range plan.watches {
			plan.watches[i].StopGrace = watchStopGrace
		}
	}
	if plan.output == "" {
		plan.output = watchfile.DefaultDestination
	}
	return plan, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := observability.CLILogger

	plan, err := buildWatchPlan(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if watchDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, watchDuration)
		defer cancel()
	}

	svc, cleanup, err := newQueryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	out, closeOut, err := openEventOutput(plan.output)
	if err != nil {
		return err
	}
	defer closeOut()
	writer := eventlog.NewWriter(out, "")
	defer func() { _ = writer.Close() }()

	sinks := monitor.Fanout{writer}

	if !watchNoHistory {
		store, err := openHistory(ctx, plan.history)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		sinks = append(sinks, store.Sink(""))
	}

	registry, err := openRegistry(plan.registry)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to resolve session registry", err)
	}
	recorder := watchregistry.NewRecorder(registry, plan.manifestPath)
	sinks = append(sinks, recorder)

	mgr := monitor.NewManager(svc.Reader(), logger.Named("monitor"), nil)

	// Sessions outlive the signal context so Stop can drain them and final
	// session markers reach every sink.
	runCtx := context.WithoutCancel(ctx)
	sessions := make([]*monitor.Session, 0, len(plan.watches))
	for _, opts := range plan.watches {
		sess, err := mgr.Watch(runCtx, opts, sinks)
		if err != nil {
			stopSessions(sessions, recorder, logger)
			return exitError(foundry.ExitInvalidArgument, "Failed to start watch on "+opts.Device, err)
		}
		sessions = append(sessions, sess)
	}

	<-ctx.Done()
	logger.Debug("Stopping watch sessions", zap.Int("sessions", len(sessions)))
	stopSessions(sessions, recorder, logger)
	return nil
}

// stopSessions stops every session concurrently. A session that does not
// stop in time is marked failed in the registry.
func stopSessions(sessions []*monitor.Session, recorder *watchregistry.Recorder, logger *zap.Logger) {
	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *monitor.Session) {
			defer wg.Done()
			if err := sess.Stop(context.Background()); err != nil {
				info := sess.Info()
				logger.Warn("Watch session did not stop cleanly",
					zap.String("session_id", info.ID),
					zap.String("device", info.Device),
					zap.Error(err))
				if ferr := recorder.Fail(info, err); ferr != nil {
					logger.Warn("Failed to record session failure", zap.Error(ferr))
				}
			}
		}(sess)
	}
	wg.Wait()
}

func openEventOutput(dest string) (io.Writer, func(), error) {
	if dest == "" || strings.EqualFold(dest, watchfile.DefaultDestination) || dest == "-" {
		return os.Stdout, func() {}, nil
	}
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, exitError(foundry.ExitFileWriteError, "Failed to create output directory", err)
		}
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, exitError(foundry.ExitFileWriteError, "Failed to open output file", err)
	}
	return f, func() { _ = f.Close() }, nil
}
