package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

// VersionOutput represents the JSON output of the version command
type VersionOutput struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := VersionOutput{
			Version:   Version,
			Commit:    CommitSHA,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(out)
		}

		fmt.Printf("face-matcher %s\n", out.Version)
		fmt.Printf("  Commit: %s\n", out.Commit)
		fmt.Printf("  Built:  %s\n", out.BuildDate)
		fmt.Printf("  Go:     %s\n", out.GoVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().Bool("json", false, "Output as JSON")
}
