package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/internal/observability"
	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/spool"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control print jobs",
	Long: `Inspect and control the jobs queued on a device.

Examples:
  spoolwatch jobs list Office-Laser
  spoolwatch jobs get Office-Laser 12
  spoolwatch jobs cancel Office-Laser 12,13
  spoolwatch jobs purge Office-Laser`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list <device>",
	Short: "List jobs queued on a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <device> <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobsGet,
}

var jobsPurgeCmd = &cobra.Command{
	Use:   "purge <device>",
	Short: "Remove every job queued on a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeviceControl(cmd, args[0], provider.DevicePurge)
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd, jobsPurgeCmd)

	for _, verb := range []provider.JobCommand{provider.JobCancel, provider.JobPause, provider.JobResume, provider.JobRestart} {
		jobsCmd.AddCommand(newJobControlCmd(verb))
	}

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsGetCmd.Flags().Bool("json", false, "Output as JSON")
}

func newJobControlCmd(verb provider.JobCommand) *cobra.Command {
	return &cobra.Command{
		Use:   string(verb) + " <device> <job-id>...",
		Short: fmt.Sprintf("Send %s to one or more jobs", verb),
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobControl(cmd, args[0], args[1:], verb)
		},
	}
}

func runJobsList(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	svc, cleanup, err := newQueryService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	jobs := svc.ListJobs(cmd.Context(), args[0])
	if jsonOutput {
		return printJSON(os.Stdout, jobs)
	}
	printJobTable(jobs)
	return nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	id, err := strconv.Atoi(args[1])
	if err != nil || id <= 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid job id", &invalidJobIDError{raw: args[1]})
	}
	svc, cleanup, err := newQueryService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	job, ok := svc.GetJob(cmd.Context(), args[0], id)
	if !ok {
		return exitError(foundry.ExitFileNotFound, "Job not found", fmt.Errorf("job %d on %s", id, args[0]))
	}
	if jsonOutput {
		return printJSON(os.Stdout, job)
	}

	w := newTable()
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintf(w, "Device:\t%s\n", job.Device)
	_, _ = fmt.Fprintf(w, "Job:\t%d\n", job.JobID)
	_, _ = fmt.Fprintf(w, "Document:\t%s\n", orDash(job.DocumentName))
	_, _ = fmt.Fprintf(w, "User:\t%s\n", orDash(job.UserName))
	_, _ = fmt.Fprintf(w, "Machine:\t%s\n", orDash(job.MachineName))
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", formatLabels(job.Status))
	_, _ = fmt.Fprintf(w, "Pages:\t%d/%d\n", job.PagesPrinted, job.TotalPages)
	_, _ = fmt.Fprintf(w, "Priority:\t%d\n", job.Priority)
	_, _ = fmt.Fprintf(w, "Submitted:\t%s\n", formatOptionalTime(job.Submitted))
	return nil
}

func runJobControl(cmd *cobra.Command, device string, rawIDs []string, verb provider.JobCommand) error {
	if err := requireWritable("job " + string(verb)); err != nil {
		return err
	}
	ids, err := parseJobIDs(rawIDs)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid job id", err)
	}
	svc, cleanup, err := newQueryService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	for _, id := range ids {
		if err := svc.JobControl(cmd.Context(), device, id, verb); err != nil {
			return controlError(fmt.Sprintf("%s job %d", verb, id), err)
		}
		observability.CLILogger.Info("Job control applied",
			zap.String("device", device),
			zap.Int("job_id", id),
			zap.String("action", string(verb)))
	}
	return nil
}

func printJobTable(jobs []spool.JobRecord) {
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs")
		return
	}
	w := newTable()
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "ID\tDOCUMENT\tUSER\tSTATUS\tPAGES\tSUBMITTED")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d/%d\t%s\n",
			j.JobID, orDash(j.DocumentName), orDash(j.UserName), formatLabels(j.Status),
			j.PagesPrinted, j.TotalPages, formatOptionalTime(j.Submitted))
	}
}
