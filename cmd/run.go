package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"merit/internal/config"
	"merit/internal/report"
	"merit/internal/storage"
	"merit/pkg/harness"
	"merit/pkg/logging"
)

// runOptions carries the flag values of the run command.
type runOptions struct {
	configPath  string
	suite       string
	test        string
	tags        []string
	concurrency int
	timeout     time.Duration
	maxFail     int
	failFast    bool
	verbosity   int
	noStore     bool
	jsonOutput  bool
}

// newRunCmd creates the Cobra command that collects and executes the
// registered test suites.
func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect and execute the registered test suites",
		Long: `Collects every registered suite, expands parametrization, and executes
the resulting items under the configured scheduling parameters. Results are
reported to the console and persisted to the results database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to the configuration file")
	cmd.Flags().StringVar(&opts.suite, "suite", "", "Run only the named suite")
	cmd.Flags().StringVar(&opts.test, "test", "", "Run only the named test")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Run only items carrying all given tags")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "n", 0, "Number of parallel execution slots")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Per-item deadline")
	cmd.Flags().IntVar(&opts.maxFail, "maxfail", 0, "Stop after this many failures")
	cmd.Flags().BoolVarP(&opts.failFast, "fail-fast", "x", false, "Stop after the first failure")
	cmd.Flags().IntVarP(&opts.verbosity, "verbosity", "v", -1, "Console detail: 0 summary, 1 per item, 2 per assertion")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "Skip persisting the run to the results database")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the full run as JSON instead of the console report")

	return cmd
}

func executeRun(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyOverrides(cmd, opts, &cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	filter := harness.CollectFilter{Suite: opts.suite, Test: opts.test, Tags: cfg.Tags}
	items, err := harness.Collect(harness.DefaultSuites(), filter)
	if err != nil {
		return err
	}

	structured := report.NewStructuredReporter()
	reporters := []harness.Reporter{structured}
	if !opts.jsonOutput {
		reporters = append(reporters, report.NewConsoleReporter(cmd.OutOrStdout(), cfg.Verbosity))
	}

	runner := harness.NewRunner(cfg.Run, harness.DefaultResources(), reporters...)
	run, err := runner.Run(cmd.Context(), items)
	if err != nil {
		return err
	}

	if !opts.noStore && cfg.StorePath != "" {
		if err := persistRun(cmd, cfg.StorePath, run); err != nil {
			// The run already happened; a broken store should not hide it.
			logging.Error("Store", err, "failed to persist run %s", run.ID)
		}
	}

	if opts.jsonOutput {
		data, err := structured.ResultsJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}

	if failed, errs := run.Result.Failed(), run.Result.Errors(); failed > 0 || errs > 0 {
		return &testsFailedError{failed: failed, errs: errs}
	}
	return nil
}

// applyOverrides layers explicit flags over the loaded configuration.
func applyOverrides(cmd *cobra.Command, opts *runOptions, cfg *config.Config) {
	if cmd.Flags().Changed("concurrency") {
		cfg.Run.Concurrency = opts.concurrency
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Run.Timeout = opts.timeout
	}
	if cmd.Flags().Changed("maxfail") {
		cfg.Run.MaxFail = opts.maxFail
	}
	if opts.failFast {
		cfg.Run.FailFast = true
	}
	if opts.verbosity >= 0 {
		cfg.Verbosity = opts.verbosity
	}
	if len(opts.tags) > 0 {
		cfg.Tags = opts.tags
	}
}

func persistRun(cmd *cobra.Command, path string, run *harness.Run) error {
	store, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveRun(cmd.Context(), run)
}
