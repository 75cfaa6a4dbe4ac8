package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"merit/pkg/logging"
)

// Exit codes for CLI commands. These follow common test-runner conventions
// so CI pipelines can distinguish "tests failed" from "the tool broke".
const (
	// ExitCodeSuccess indicates every executed test passed.
	ExitCodeSuccess = 0
	// ExitCodeTestsFailed indicates the run completed with failures or errors.
	ExitCodeTestsFailed = 1
	// ExitCodeError indicates a general error (invalid arguments, broken
	// configuration, storage failure).
	ExitCodeError = 2
)

// testsFailedError signals a completed run with a non-passing outcome. It
// exists so Execute can map the condition to ExitCodeTestsFailed.
type testsFailedError struct {
	failed int
	errs   int
}

func (e *testsFailedError) Error() string {
	return "run completed with failures"
}

var debugFlag bool

// rootCmd represents the base command for the merit application. It is the
// entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "merit",
	Short: "Run behavioral test suites against probabilistic systems",
	Long: `merit executes behavioral test suites whose assertions are recorded
rather than fatal: every check in a test body runs to completion, outcomes
feed scoped metric accumulators, and whole runs are summarized, persisted,
and comparable across invocations.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if debugFlag {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, cmd.ErrOrStderr())
	},
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "merit version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to semantic exit codes for scripting.
func getExitCode(err error) int {
	var failed *testsFailedError
	if errors.As(err, &failed) {
		return ExitCodeTestsFailed
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newResultsCmd())
	rootCmd.AddCommand(newCheckCmd())
}
