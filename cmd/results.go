package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"merit/internal/storage"
)

// newResultsCmd creates the Cobra command that lists stored runs, or the
// executions of one run when a run id is given.
func newResultsCmd() *cobra.Command {
	var storePath string
	var limit int

	cmd := &cobra.Command{
		Use:   "results [run-id]",
		Short: "List stored test runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.Open(storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return printExecutions(cmd, store, args[0])
			}
			return printRuns(cmd, store, limit)
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "merit.db", "Path to the results database")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	return cmd
}

func printRuns(cmd *cobra.Command, store *storage.Store, limit int) error {
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no stored runs")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Duration", "Total", "Passed", "Failed", "Errors", "Stopped Early"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			run.StartTime.Format("2006-01-02 15:04:05"),
			run.Duration.Round(time.Millisecond),
			run.Total, run.Passed, run.Failed, run.Errors, run.StoppedEarly,
		})
	}
	t.Render()
	return nil
}

func printExecutions(cmd *cobra.Command, store *storage.Store, runID string) error {
	executions, err := store.ListExecutions(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(executions) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no executions stored for run %s\n", runID)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Test", "Status", "Duration", "Error"})
	for _, exec := range executions {
		t.AppendRow(table.Row{exec.FullName, exec.Status, exec.Duration, exec.Error})
	}
	t.Render()
	return nil
}
