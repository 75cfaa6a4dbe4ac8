// Package report implements the reporters the command line wires into a
// run: a human-oriented console reporter and a machine-oriented structured
// reporter.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"merit/pkg/harness"
)

// ConsoleReporter renders run progress and a summary table to a writer.
// Verbosity 0 prints the summary only, 1 adds a line per completed item,
// 2 adds failed-assertion detail under each item.
type ConsoleReporter struct {
	out       io.Writer
	verbosity int
}

// NewConsoleReporter creates a console reporter.
func NewConsoleReporter(out io.Writer, verbosity int) *ConsoleReporter {
	return &ConsoleReporter{out: out, verbosity: verbosity}
}

// OnNoTestsFound implements harness.Reporter.
func (r *ConsoleReporter) OnNoTestsFound() {
	fmt.Fprintln(r.out, "no tests found")
}

// OnCollectionComplete implements harness.Reporter.
func (r *ConsoleReporter) OnCollectionComplete(items []harness.TestItem) {
	if r.verbosity >= 1 {
		fmt.Fprintf(r.out, "collected %d items\n\n", len(items))
	}
}

// OnTestComplete implements harness.Reporter.
func (r *ConsoleReporter) OnTestComplete(execution *harness.TestExecution) {
	if r.verbosity < 1 {
		return
	}
	status := execution.Status()
	fmt.Fprintf(r.out, "%s  %s (%s)\n",
		statusColor(status).Sprintf("%-7s", string(status)),
		execution.FullName,
		roundDuration(execution.Result.Duration),
	)
	if r.verbosity < 2 {
		return
	}
	for _, assertion := range execution.Result.Assertions {
		if assertion.Passed {
			continue
		}
		fmt.Fprintf(r.out, "         ✗ %s\n", assertion.Condition)
		if assertion.Message != "" {
			fmt.Fprintf(r.out, "           %s\n", assertion.Message)
		}
		for _, evidence := range assertion.CheckerResults {
			fmt.Fprintf(r.out, "           [%s] value=%t confidence=%.2f %s\n",
				evidence.CheckerName, evidence.Value, evidence.Confidence, evidence.Message)
		}
	}
	if msg := execution.Result.ErrMessage; msg != "" && execution.Status() == harness.StatusError {
		fmt.Fprintf(r.out, "         ! %s\n", msg)
	}
}

// OnRunStoppedEarly implements harness.Reporter.
func (r *ConsoleReporter) OnRunStoppedEarly(failureCount int) {
	fmt.Fprintf(r.out, "\nstopping early after %d failures\n", failureCount)
}

// OnRunComplete implements harness.Reporter.
func (r *ConsoleReporter) OnRunComplete(run *harness.Run) {
	result := &run.Result
	if result.Total() == 0 && len(result.Metrics) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Outcome", "Count"})
	for _, row := range []struct {
		label string
		count int
	}{
		{"passed", result.Passed()},
		{"failed", result.Failed()},
		{"errors", result.Errors()},
		{"skipped", result.Skipped()},
		{"xfailed", result.XFailed()},
		{"xpassed", result.XPassed()},
	} {
		if row.count > 0 {
			t.AppendRow(table.Row{row.label, row.count})
		}
	}
	t.AppendFooter(table.Row{"total", result.Total()})
	fmt.Fprintln(r.out)
	t.Render()

	if len(result.Metrics) > 0 {
		mt := table.NewWriter()
		mt.SetOutputMirror(r.out)
		mt.SetStyle(table.StyleLight)
		mt.AppendHeader(table.Row{"Metric", "Scope", "Count", "Mean"})
		for _, metric := range result.Metrics {
			mt.AppendRow(table.Row{metric.Name, string(metric.Scope), metric.Count, fmt.Sprintf("%.4f", metric.Mean)})
		}
		fmt.Fprintln(r.out)
		mt.Render()
	}

	fmt.Fprintf(r.out, "\nrun %s finished in %s\n", run.ID, roundDuration(result.TotalDuration))
	if result.StoppedEarly {
		fmt.Fprintln(r.out, "run stopped early, remaining items were not executed")
	}
}

func statusColor(status harness.Status) text.Colors {
	switch status {
	case harness.StatusPassed, harness.StatusXFailed:
		return text.Colors{text.FgGreen}
	case harness.StatusFailed, harness.StatusError:
		return text.Colors{text.FgRed}
	case harness.StatusSkipped:
		return text.Colors{text.FgYellow}
	case harness.StatusXPassed:
		return text.Colors{text.FgCyan}
	default:
		return text.Colors{}
	}
}

// roundDuration trims durations to a readable precision.
func roundDuration(d time.Duration) time.Duration {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond)
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond)
	default:
		return d
	}
}
