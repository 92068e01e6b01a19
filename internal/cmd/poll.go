package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/internal/observability"
	"github.com/3leaps/spoolwatch/pkg/detect"
	"github.com/3leaps/spoolwatch/pkg/eventlog"
	"github.com/3leaps/spoolwatch/pkg/monitor"
	"github.com/3leaps/spoolwatch/pkg/query"
	"github.com/3leaps/spoolwatch/pkg/spool"
)

var pollCmd = &cobra.Command{
	Use:   "poll <device>",
	Short: "Print device status at a fixed interval",
	Long: `Read the device status every --interval for --duration and print one
line (or JSON object) per check.

Examples:
  spoolwatch poll Office-Laser
  spoolwatch poll Office-Laser --interval 2s --duration 1m --json`,
	Args: cobra.ExactArgs(1),
	RunE: runPoll,
}

var testPageCmd = &cobra.Command{
	Use:   "test-page <device>",
	Short: "Submit a plain-text test page",
	Long: `Submit one or more copies of a plain-text test page and print the new
job ids. With --watch, follow those jobs and print their lifecycle events
until every copy has left the queue.

Examples:
  spoolwatch test-page Office-Laser
  spoolwatch test-page Office-Laser --copies 2 --watch --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runTestPage,
}

var (
	pollInterval time.Duration
	pollDuration time.Duration
	testCopies   int
	testWatch    bool
	testTimeout  time.Duration
	testInterval time.Duration
)

func init() {
	rootCmd.AddCommand(pollCmd, testPageCmd)

	pollCmd.Flags().DurationVar(&pollInterval, "interval", query.DefaultPollInterval, "Time between checks")
	pollCmd.Flags().DurationVar(&pollDuration, "duration", query.DefaultPollDuration, "Total polling time")
	pollCmd.Flags().Bool("json", false, "Output JSON lines")

	testPageCmd.Flags().IntVar(&testCopies, "copies", 1, "Number of copies")
	testPageCmd.Flags().BoolVar(&testWatch, "watch", false, "Follow the submitted jobs until they leave the queue")
	testPageCmd.Flags().DurationVar(&testTimeout, "timeout", 10*time.Minute, "Maximum time to follow jobs with --watch")
	testPageCmd.Flags().DurationVar(&testInterval, "interval", time.Second, "Polling interval with --watch")
	testPageCmd.Flags().Bool("json", false, "Output as JSON")
}

func runPoll(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if pollInterval <= 0 || pollDuration <= 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid poll timing", fmt.Errorf("--interval and --duration must be positive"))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := newQueryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	checks, err := svc.PollStatus(ctx, args[0], pollInterval, pollDuration, func(ds spool.DeviceStatus) {
		if jsonOutput {
			_ = printJSONLine(ds)
			return
		}
		if ds.Error != "" {
			_, _ = fmt.Fprintf(os.Stdout, "%s  %s  unavailable: %s\n", ds.CheckedAt.Format(time.RFC3339), ds.Device, ds.Error)
			return
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s  %s  ready=%v jobs=%d status=%s\n",
			ds.CheckedAt.Format(time.RFC3339), ds.Device, ds.Ready, ds.JobCount, formatLabels(ds.Status))
	})
	observability.CLILogger.Debug("Polling finished", zap.Int("checks", checks))
	if err != nil && !errors.Is(err, context.Canceled) {
		return exitError(foundry.ExitExternalServiceUnavailable, "Polling failed", err)
	}
	return nil
}

func runTestPage(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if err := requireWritable("test-page"); err != nil {
		return err
	}
	if testCopies <= 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --copies", fmt.Errorf("copies must be positive"))
	}
	device := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := newQueryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	ids, err := svc.PrintTestPage(ctx, device, testCopies)
	if err != nil {
		return controlError("test-page", err)
	}
	if jsonOutput {
		if err := printJSON(os.Stdout, map[string]any{"device": device, "job_ids": ids}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(os.Stdout, "Submitted %d test page(s) to %s: jobs %v\n", len(ids), device, ids)
	}
	if !testWatch || len(ids) == 0 {
		return nil
	}

	watchCtx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()
	return followJobs(watchCtx, svc.Reader(), device, ids)
}

// followJobs streams events for ids until each has been removed or ctx ends.
func followJobs(ctx context.Context, reader *spool.Reader, device string, ids []int) error {
	pending := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		pending[id] = struct{}{}
	}
	var mu sync.Mutex
	done := make(chan struct{})

	tracker := monitor.SinkFunc(func(_ context.Context, e detect.Event) error {
		if e.Kind != detect.KindJobRemoved {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if _, ok := pending[e.JobID]; !ok {
			return nil
		}
		delete(pending, e.JobID)
		if len(pending) == 0 {
			close(done)
		}
		return nil
	})

	sess := monitor.NewSession(reader, observability.CLILogger.Named("monitor"), nil)
	opts := monitor.Options{
		Device:   device,
		Interval: testInterval,
		Scope:    monitor.Jobs(ids...),
	}
	if err := sess.Start(context.WithoutCancel(ctx), opts, monitor.Fanout{eventlog.NewWriter(os.Stdout, ""), tracker}); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to watch test page jobs", err)
	}
	defer sess.Close()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			mu.Lock()
			left := len(pending)
			mu.Unlock()
			return exitError(foundry.ExitExternalServiceUnavailable, "Test page jobs still queued",
				fmt.Errorf("%d job(s) not finished after %s", left, testTimeout))
		}
		return nil
	}
}

func printJSONLine(v any) error {
	return jsonLineEncoder.Encode(v)
}
