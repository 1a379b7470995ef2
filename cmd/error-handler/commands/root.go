package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "error-handler",
	Short: "Generate batch-job failure handler",
	Long: `error-handler reacts to batch-job failure events from the Generate
workflow: it reports the failure to operators and returns the IDL license
reservations the failed run had checked out to the shared pools in the
parameter store.

One invocation handles one failure event. Concurrent invocations for
different failures coordinate through a shared lock per workflow prefix.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
