package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"merit/pkg/checker"
)

// newCheckCmd creates the Cobra command for running a single checker
// comparison from the command line, outside any test run. Useful for
// trying out checker behavior and prompt context before wiring a checker
// into a suite.
func newCheckCmd() *cobra.Command {
	var (
		checkerName string
		contextHint string
		strict      bool
		tolerance   float64
	)

	cmd := &cobra.Command{
		Use:   "check <actual> <reference>",
		Short: "Compare two values with a checker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chk, err := buildChecker(checkerName, tolerance)
			if err != nil {
				return err
			}

			// The semantic checker waits on a remote model; show progress.
			var spin *spinner.Spinner
			if checkerName == "semantic" {
				spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond,
					spinner.WithWriter(cmd.ErrOrStderr()))
				spin.Suffix = " waiting for judgment"
				spin.Start()
			}

			result, err := chk.Check(cmd.Context(), args[0], args[1],
				checker.WithContext(contextHint),
				checker.WithStrict(strict),
			)
			if spin != nil {
				spin.Stop()
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "checker:    %s\n", chk.Name())
			fmt.Fprintf(cmd.OutOrStdout(), "value:      %t\n", result.Value)
			fmt.Fprintf(cmd.OutOrStdout(), "confidence: %.2f\n", result.Confidence)
			if result.Message != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "message:    %s\n", result.Message)
			}
			if !result.Value {
				return &testsFailedError{failed: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&checkerName, "checker", "equals", "Checker to use: equals, contains, threshold, semantic")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "Maximum numeric deviation for the threshold checker")
	cmd.Flags().StringVar(&contextHint, "context", "", "Context hint passed to the checker")
	cmd.Flags().BoolVar(&strict, "strict", true, "Compare strictly (case and whitespace sensitive)")

	return cmd
}

func buildChecker(name string, tolerance float64) (checker.Checker, error) {
	switch name {
	case "equals":
		return checker.EqualsChecker{}, nil
	case "contains":
		return checker.ContainsChecker{}, nil
	case "threshold":
		return checker.ThresholdChecker{Tolerance: tolerance}, nil
	case "semantic":
		return checker.NewSemanticChecker(checker.SemanticConfigFromEnv()), nil
	default:
		return nil, fmt.Errorf("unknown checker %q", name)
	}
}
