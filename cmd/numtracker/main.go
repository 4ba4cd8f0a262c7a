// Command numtracker is the CLI surface: serve starts the HTTP
// service, schema prints the GraphQL SDL, and client mirrors the
// GraphQL operations for scripting.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DiamondLightSource/numtracker/internal/obslog"
)

var (
	flagQuiet   bool
	flagVerbose int
)

var rootCmd = &cobra.Command{
	Use:   "numtracker",
	Short: "Allocate globally unique scan numbers across a facility's instruments",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging()
	},
}

// configureLogging maps -q/-v/-vv/-vvv onto obslog.Verbosity.
func configureLogging() {
	v := obslog.VerbosityError
	switch {
	case flagQuiet:
		v = obslog.VerbosityQuiet
	case flagVerbose >= 3:
		v = obslog.VerbosityTrace
	case flagVerbose == 2:
		v = obslog.VerbosityDebug
	case flagVerbose == 1:
		v = obslog.VerbosityInfo
	}
	obslog.Configure(v, isInteractive())
}

func isInteractive() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "silence all logging")
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(clientCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
