package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		info := buildInfo()
		if jsonOutput {
			return printJSON(os.Stdout, info)
		}
		_, _ = fmt.Fprintf(os.Stdout, "spoolwatch %s (commit %s, built %s, %s)\n",
			info.Version, info.Commit, info.BuildDate, info.GoVersion)
		return nil
	},
}

type versionOutput struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Gofulmen  string `json:"gofulmen,omitempty"`
	Crucible  string `json:"crucible,omitempty"`
}

func buildInfo() versionOutput {
	v := crucible.GetVersion()
	return versionOutput{
		Version:   versionInfo.Version,
		Commit:    versionInfo.Commit,
		BuildDate: versionInfo.BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Gofulmen:  v.Gofulmen,
		Crucible:  v.Crucible,
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output as JSON")
}
