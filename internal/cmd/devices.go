package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/internal/observability"
	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/query"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List print devices",
	Long: `List the print devices known to the spooler provider.

Examples:
  spoolwatch devices
  spoolwatch devices --match 'Office-*'
  spoolwatch devices --type network --json`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var statusCmd = &cobra.Command{
	Use:   "status <device>",
	Short: "Show device status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var paperCmd = &cobra.Command{
	Use:   "paper <device>",
	Short: "Check a device for paper faults",
	Args:  cobra.ExactArgs(1),
	RunE:  runPaper,
}

var historyCmd = &cobra.Command{
	Use:   "history <device>",
	Short: "List jobs submitted within a trailing window",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var pauseCmd = &cobra.Command{
	Use:   "pause <device>",
	Short: "Pause a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeviceControl(cmd, args[0], provider.DevicePause)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <device>",
	Short: "Resume a paused device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeviceControl(cmd, args[0], provider.DeviceResume)
	},
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection <device>",
	Short: "Open a device and report the round-trip time",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestConnection,
}

var (
	devicesMatch string
	devicesType  string
	historyWin   time.Duration
)

func init() {
	rootCmd.AddCommand(devicesCmd, statusCmd, paperCmd, historyCmd, pauseCmd, resumeCmd, testConnectionCmd)

	devicesCmd.Flags().StringVar(&devicesMatch, "match", "", "Only devices whose name matches this glob")
	devicesCmd.Flags().StringVar(&devicesType, "type", "", "Only local or network devices")
	historyCmd.Flags().DurationVar(&historyWin, "window", query.DefaultHistoryWindow, "Trailing submission window")
	for _, c := range []*cobra.Command{devicesCmd, statusCmd, paperCmd, historyCmd, testConnectionCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
	}
}

func runDevices(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if devicesType != "" && devicesType != provider.DeviceTypeLocal && devicesType != provider.DeviceTypeNetwork {
		return exitError(foundry.ExitInvalidArgument, "Invalid --type", fmt.Errorf("expected %s or %s, got %q",
			provider.DeviceTypeLocal, provider.DeviceTypeNetwork, devicesType))
	}

	svc, cleanup, err := newQueryService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	entries, err := svc.ListDevices(cmd.Context(), devicesMatch)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to list devices", err)
	}
	if devicesType != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Type() == devicesType {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if jsonOutput {
		return printJSON(os.Stdout, entries)
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No devices found")
		return nil
	}
	w := newTable()
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "NAME\tTYPE\tFULL NAME\tDESCRIPTION")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Type(), orDash(e.FullName), orDash(e.Description))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	svc, cleanup, err := newQueryService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	ds := svc.GetStatus(cmd.Context(), args[0])
	if jsonOutput {
		return printJSON(os.Stdout, ds)
	}

	w := newTable()
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintf(w, "Device:\t%s\n", ds.Device)
	_, _ = fmt.Fprintf(w, "Available:\t%v\n", ds.Available)
	if ds.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", ds.Error)
		return nil
	}
	_, _ = fmt.Fprintf(w, "Online:\t%v\n", ds.Online)
	_, _ = fmt.Fprintf(w, "Ready:\t%v\n", ds.Ready)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", formatLabels(ds.Status))
	_, _ = fmt.Fprintf(w, "Attributes:\t%s\n", formatLabels(ds.Attributes))
	_, _ = fmt.Fprintf(w, "Jobs:\t%d\n", ds.JobCount)
	_, _ = fmt.Fprintf(w, "Driver:\t%s\n", orDash(ds.DriverName))
	_, _ = fmt.Fprintf(w, "Port:\t%s\n", orDash(ds.PortName))
	_, _ = fmt.Fprintf(w, "Location:\t%s\n", orDash(ds.Location))
	return nil
}

func runPaper(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	svc, cleanup, err := newQueryService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	paper, err := svc.CheckPaperFault(cmd.Context(), args[0])
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to read device", err)
	}
	if jsonOutput {
		return printJSON(os.Stdout, paper)
	}
	_, _ = fmt.Fprintf(os.Stdout, "available=%v out=%v jammed=%v low=%v\n", paper.Available, paper.Out, paper.Jammed, paper.Low)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if historyWin <= 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --window", fmt.Errorf("window must be positive"))
	}
	svc, cleanup, err := newQueryService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	jobs := svc.GetHistory(cmd.Context(), args[0], historyWin)
	if jsonOutput {
		return printJSON(os.Stdout, jobs)
	}
	printJobTable(jobs)
	return nil
}

func runDeviceControl(cmd *cobra.Command, device string, action provider.DeviceCommand) error {
	if err := requireWritable(string(action)); err != nil {
		return err
	}
	svc, cleanup, err := newQueryService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	switch action {
	case provider.DevicePause:
		err = svc.Pause(cmd.Context(), device)
	case provider.DeviceResume:
		err = svc.Resume(cmd.Context(), device)
	case provider.DevicePurge:
		err = svc.PurgeJobs(cmd.Context(), device)
	}
	if err != nil {
		return controlError(string(action), err)
	}
	observability.CLILogger.Info("Device control applied", zap.String("device", device), zap.String("action", string(action)))
	return nil
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	svc, cleanup, err := newQueryService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	res := svc.TestConnection(cmd.Context(), args[0])
	if jsonOutput {
		if err := printJSON(os.Stdout, res); err != nil {
			return err
		}
	} else if res.Success {
		_, _ = fmt.Fprintf(os.Stdout, "%s: ok (%s)\n", res.Device, res.ResponseTime.Round(time.Microsecond))
	} else {
		_, _ = fmt.Fprintf(os.Stdout, "%s: failed (%s)\n", res.Device, res.Error)
	}
	if !res.Success {
		return exitError(foundry.ExitExternalServiceUnavailable, "Connection test failed", fmt.Errorf("%s", res.Error))
	}
	return nil
}

// controlError maps provider failures to exit codes.
func controlError(op string, err error) error {
	switch {
	case provider.IsDeviceNotFound(err), provider.IsJobNotFound(err):
		return exitError(foundry.ExitFileNotFound, op+" failed", err)
	case provider.IsAccessDenied(err), provider.IsUnsupported(err):
		return exitError(foundry.ExitInvalidArgument, op+" failed", err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, op+" failed", err)
	}
}
