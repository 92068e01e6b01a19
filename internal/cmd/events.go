package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/internal/observability"
	"github.com/3leaps/spoolwatch/pkg/archive"
	"github.com/3leaps/spoolwatch/pkg/history"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query and export stored lifecycle events",
}

var eventsQueryCmd = &cobra.Command{
	Use:   "query [device]",
	Short: "List stored events, newest first",
	Long: `List events recorded by 'spoolwatch watch'.

--since and --until accept RFC 3339 timestamps or durations counted back
from now.

Examples:
  spoolwatch events query Office-Laser --since 1h
  spoolwatch events query --kind job_added,job_removed --limit 20
  spoolwatch events query --session 3f2a... --jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEventsQuery,
}

var eventsExportCmd = &cobra.Command{
	Use:   "export [device] --to <destination>",
	Short: "Export stored events as JSONL",
	Long: `Write stored events, oldest first, to a local file or an S3 object.

Examples:
  spoolwatch events export Office-Laser --since 24h --to out/office.jsonl
  spoolwatch events export --to s3://audit-bucket/spoolwatch/
  spoolwatch events export --to s3://bucket/day.jsonl --endpoint http://localhost:9000 --force-path-style`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEventsExport,
}

type eventFilterFlags struct {
	session string
	kinds   string
	job     int
	since   string
	until   string
	limit   int
	history string
}

var (
	eventsFlags     eventFilterFlags
	exportTo        string
	exportRegion    string
	exportEndpoint  string
	exportProfile   string
	exportPathStyle bool
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsQueryCmd, eventsExportCmd)

	for _, c := range []*cobra.Command{eventsQueryCmd, eventsExportCmd} {
		c.Flags().StringVar(&eventsFlags.session, "session", "", "Only events from this session")
		c.Flags().StringVar(&eventsFlags.kinds, "kind", "", "Only these kinds (comma-separated)")
		c.Flags().IntVar(&eventsFlags.job, "job", 0, "Only events for this job id")
		c.Flags().StringVar(&eventsFlags.since, "since", "", "Only events at or after this time")
		c.Flags().StringVar(&eventsFlags.until, "until", "", "Only events before this time")
		c.Flags().StringVar(&eventsFlags.history, "history", "", "History database path")
	}
	eventsQueryCmd.Flags().IntVar(&eventsFlags.limit, "limit", 100, "Maximum events (0 for all)")
	eventsQueryCmd.Flags().Bool("json", false, "Output as JSON")
	eventsQueryCmd.Flags().Bool("jsonl", false, "Output event records as JSONL")

	eventsExportCmd.Flags().StringVar(&exportTo, "to", "", "Destination: path, file:// URL or s3://bucket/key")
	eventsExportCmd.Flags().StringVar(&exportRegion, "region", "", "S3 region (default from config)")
	eventsExportCmd.Flags().StringVar(&exportEndpoint, "endpoint", "", "S3-compatible endpoint URL")
	eventsExportCmd.Flags().StringVar(&exportProfile, "profile", "", "AWS shared config profile")
	eventsExportCmd.Flags().BoolVar(&exportPathStyle, "force-path-style", false, "Use path-style S3 addressing")
	_ = eventsExportCmd.MarkFlagRequired("to")
}

func (f eventFilterFlags) build(args []string, now time.Time) (history.Filter, error) {
	filter := history.Filter{
		SessionID: strings.TrimSpace(f.session),
		JobID:     f.job,
		Limit:     f.limit,
	}
	if len(args) > 0 {
		filter.Device = args[0]
	}
	if f.job < 0 {
		return filter, fmt.Errorf("invalid --job %d", f.job)
	}
	if f.limit < 0 {
		return filter, fmt.Errorf("invalid --limit %d", f.limit)
	}
	var err error
	if filter.Kinds, err = history.ParseKinds(f.kinds); err != nil {
		return filter, err
	}
	if filter.Since, err = history.ParseWhen(f.since, now); err != nil {
		return filter, fmt.Errorf("invalid --since: %w", err)
	}
	if filter.Until, err = history.ParseWhen(f.until, now); err != nil {
		return filter, fmt.Errorf("invalid --until: %w", err)
	}
	return filter, nil
}

func runEventsQuery(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	jsonlOutput, _ := cmd.Flags().GetBool("jsonl")

	filter, err := eventsFlags.build(args, time.Now())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid event filter", err)
	}

	store, err := openHistory(cmd.Context(), eventsFlags.history)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.Query(cmd.Context(), filter)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to query history", err)
	}

	switch {
	case jsonlOutput:
		for _, e := range entries {
			if err := printJSONLine(e.Record); err != nil {
				return err
			}
		}
		return nil
	case jsonOutput:
		return printJSON(os.Stdout, entries)
	}

	if len(entries) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No events")
		return nil
	}
	w := newTable()
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "TIME\tSESSION\tDEVICE\tKIND\tJOB")
	for _, e := range entries {
		job := "-"
		if e.JobID > 0 {
			job = fmt.Sprintf("%d", e.JobID)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Record.TS.UTC().Format(time.RFC3339), shortID(e.Record.SessionID), e.Record.Device, e.Kind, job)
	}
	return nil
}

func runEventsExport(cmd *cobra.Command, args []string) error {
	logger := observability.CLILogger

	eventsFlags.limit = 0
	filter, err := eventsFlags.build(args, time.Now())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid event filter", err)
	}
	dest, err := archive.ParseDestination(exportTo)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --to", err)
	}

	store, err := openHistory(cmd.Context(), eventsFlags.history)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var putter archive.ObjectPutter
	if dest.Scheme == archive.SchemeS3 {
		client, err := archive.NewS3Client(cmd.Context(), exportS3Config())
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to create S3 client", err)
		}
		putter = client
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	res, err := archive.NewExporter(store, putter, logger.Named("archive")).Export(ctx, filter, dest)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Export failed", err)
	}
	logger.Info("Events exported",
		zap.String("destination", res.Destination),
		zap.Int("records", res.Records),
		zap.Int64("bytes", res.Bytes),
		zap.Duration("duration", res.Duration))
	return nil
}

// exportS3Config layers export flags over the archive config section.
// Static credentials come only from the environment.
func exportS3Config() archive.S3Config {
	ac := currentConfig().Archive
	cfg := archive.S3Config{
		Region:          ac.Region,
		Endpoint:        ac.Endpoint,
		Profile:         ac.Profile,
		ForcePathStyle:  ac.ForcePathStyle,
		AccessKeyID:     os.Getenv("SPOOLWATCH_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("SPOOLWATCH_S3_SECRET_ACCESS_KEY"),
	}
	if exportRegion != "" {
		cfg.Region = exportRegion
	}
	if exportEndpoint != "" {
		cfg.Endpoint = exportEndpoint
	}
	if exportProfile != "" {
		cfg.Profile = exportProfile
	}
	if exportPathStyle {
		cfg.ForcePathStyle = true
	}
	return cfg
}
