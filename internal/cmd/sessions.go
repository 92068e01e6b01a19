package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/internal/observability"
	"github.com/3leaps/spoolwatch/pkg/watchregistry"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded watch sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watch sessions, newest first",
	Long: `List watch sessions from the session registry.

With --from-history, list the runs stored in the history database instead.
Those outlive registry garbage collection but carry no process details.`,
	Args: cobra.NoArgs,
	RunE: runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session record",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsRemoveCmd = &cobra.Command{
	Use:   "remove <session-id>",
	Short: "Remove a finished session record",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsRemove,
}

var sessionsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove finished session records older than --older-than",
	Args:  cobra.NoArgs,
	RunE:  runSessionsGC,
}

var (
	sessionsDevice      string
	sessionsRegistry    string
	sessionsFromHistory bool
	sessionsHistory     string
	sessionsLimit       int
	sessionsOlderThan   time.Duration
	sessionsDryRun      bool
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsRemoveCmd, sessionsGCCmd)

	sessionsCmd.PersistentFlags().StringVar(&sessionsRegistry, "registry", "", "Session registry directory")

	sessionsListCmd.Flags().StringVar(&sessionsDevice, "device", "", "Only sessions for this device")
	sessionsListCmd.Flags().BoolVar(&sessionsFromHistory, "from-history", false, "List runs stored in the history database")
	sessionsListCmd.Flags().StringVar(&sessionsHistory, "history", "", "History database path")
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "Maximum sessions (0 for all)")
	sessionsListCmd.Flags().Bool("json", false, "Output as JSON")
	sessionsShowCmd.Flags().Bool("json", false, "Output as JSON")

	sessionsGCCmd.Flags().DurationVar(&sessionsOlderThan, "older-than", 7*24*time.Hour, "Age threshold")
	sessionsGCCmd.Flags().BoolVar(&sessionsDryRun, "dry-run", false, "Only print what would be removed")
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if sessionsLimit < 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --limit", fmt.Errorf("limit must not be negative"))
	}

	if sessionsFromHistory {
		store, err := openHistory(cmd.Context(), sessionsHistory)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		rows, err := store.Sessions(cmd.Context(), sessionsDevice, sessionsLimit)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to read history sessions", err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, rows)
		}
		w := newTable()
		defer func() { _ = w.Flush() }()
		_, _ = fmt.Fprintln(w, "SESSION\tDEVICE\tSTARTED\tSTOPPED\tTICKS\tEVENTS")
		for _, r := range rows {
			started := r.StartedAt
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
				shortID(r.SessionID), r.Device, formatOptionalTime(&started), formatOptionalTime(r.StoppedAt), r.Ticks, r.Events)
		}
		return nil
	}

	reg, err := openRegistry(sessionsRegistry)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to resolve session registry", err)
	}
	recs, err := reg.List()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to list sessions", err)
	}
	recs = filterSessionRecords(recs, sessionsDevice, sessionsLimit)

	if jsonOutput {
		return printJSON(os.Stdout, recs)
	}
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No sessions")
		return nil
	}
	w := newTable()
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "SESSION\tDEVICE\tSTATE\tSTARTED\tLAST EVENT\tEVENTS\tPID")
	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			shortID(r.SessionID), r.Device, r.State, formatOptionalTime(r.StartedAt),
			formatOptionalTime(r.LastEventAt), r.Counters.Events, r.PID)
	}
	return nil
}

func filterSessionRecords(recs []watchregistry.SessionRecord, device string, limit int) []watchregistry.SessionRecord {
	out := recs[:0]
	for _, r := range recs {
		if device != "" && r.Device != device {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	reg, err := openRegistry(sessionsRegistry)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to resolve session registry", err)
	}
	rec, err := reg.Get(args[0])
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(foundry.ExitFileNotFound, "Session not found", err)
		}
		return exitError(foundry.ExitFileReadError, "Failed to read session", err)
	}
	if jsonOutput {
		return printJSON(os.Stdout, rec)
	}

	w := newTable()
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintf(w, "Session:\t%s\n", rec.SessionID)
	_, _ = fmt.Fprintf(w, "Device:\t%s\n", rec.Device)
	_, _ = fmt.Fprintf(w, "State:\t%s\n", rec.State)
	_, _ = fmt.Fprintf(w, "Interval:\t%s\n", rec.Interval)
	if len(rec.JobIDs) > 0 {
		_, _ = fmt.Fprintf(w, "Jobs:\t%v\n", rec.JobIDs)
	}
	_, _ = fmt.Fprintf(w, "Host:\t%s (pid %d)\n", orDash(rec.Host), rec.PID)
	_, _ = fmt.Fprintf(w, "Manifest:\t%s\n", orDash(rec.ManifestPath))
	_, _ = fmt.Fprintf(w, "Started:\t%s\n", formatOptionalTime(rec.StartedAt))
	_, _ = fmt.Fprintf(w, "Stopped:\t%s\n", formatOptionalTime(rec.StoppedAt))
	_, _ = fmt.Fprintf(w, "Last event:\t%s\n", formatOptionalTime(rec.LastEventAt))
	_, _ = fmt.Fprintf(w, "Counters:\tticks=%d events=%d read_errors=%d sink_errors=%d\n",
		rec.Counters.Ticks, rec.Counters.Events, rec.Counters.ReadErrors, rec.Counters.SinkErrors)
	if rec.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", rec.Error)
	}
	return nil
}

func runSessionsRemove(_ *cobra.Command, args []string) error {
	if err := requireWritable("sessions remove"); err != nil {
		return err
	}
	reg, err := openRegistry(sessionsRegistry)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to resolve session registry", err)
	}
	if err := reg.Remove(args[0]); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(foundry.ExitFileNotFound, "Session not found", err)
		}
		return exitError(foundry.ExitFileWriteError, "Failed to remove session", err)
	}
	observability.CLILogger.Info("Session removed", zap.String("session_id", args[0]))
	return nil
}

func runSessionsGC(_ *cobra.Command, _ []string) error {
	if sessionsOlderThan <= 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --older-than", fmt.Errorf("duration must be positive"))
	}
	reg, err := openRegistry(sessionsRegistry)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to resolve session registry", err)
	}
	cutoff := time.Now().Add(-sessionsOlderThan)

	if sessionsDryRun {
		recs, err := reg.List()
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to list sessions", err)
		}
		for _, r := range recs {
			if r.State == watchregistry.StateRunning {
				continue
			}
			end := r.CreatedAt
			if r.StartedAt != nil {
				end = *r.StartedAt
			}
			if r.StoppedAt != nil {
				end = *r.StoppedAt
			}
			if end.Before(cutoff) {
				_, _ = fmt.Fprintf(os.Stdout, "would remove %s (%s, %s)\n", r.SessionID, r.Device, r.State)
			}
		}
		return nil
	}

	if err := requireWritable("sessions gc"); err != nil {
		return err
	}
	removed, err := reg.GC(cutoff)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Session gc failed", err)
	}
	observability.CLILogger.Info("Session gc complete", zap.Int("removed", len(removed)), zap.Time("cutoff", cutoff))
	return nil
}
