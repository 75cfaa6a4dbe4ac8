package harness

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureReporter records lifecycle events for inspection.
type captureReporter struct {
	collected    []TestItem
	completed    []string
	noTests      bool
	stoppedEarly bool
	failureCount int
	run          *Run
}

func (r *captureReporter) OnNoTestsFound()                      { r.noTests = true }
func (r *captureReporter) OnCollectionComplete(items []TestItem) { r.collected = items }
func (r *captureReporter) OnTestComplete(e *TestExecution) {
	r.completed = append(r.completed, e.FullName)
}
func (r *captureReporter) OnRunStoppedEarly(n int) {
	r.stoppedEarly = true
	r.failureCount = n
}
func (r *captureReporter) OnRunComplete(run *Run) { r.run = run }

func collectItems(t *testing.T, suite SuiteDef) []TestItem {
	t.Helper()
	reg := NewSuiteRegistry()
	require.NoError(t, reg.Add(suite))
	items, err := Collect(reg, CollectFilter{})
	require.NoError(t, err)
	return items
}

func runWith(t *testing.T, cfg RunConfiguration, items []TestItem) (*Run, *captureReporter) {
	t.Helper()
	reporter := &captureReporter{}
	runner := NewRunner(cfg, NewResourceRegistry(), reporter)
	run, err := runner.Run(context.Background(), items)
	require.NoError(t, err)
	return run, reporter
}

func statusOf(t *testing.T, run *Run, fullName string) Status {
	t.Helper()
	for _, exec := range run.Result.Executions {
		if exec.FullName == fullName {
			return exec.Status()
		}
	}
	t.Fatalf("no execution named %s", fullName)
	return ""
}

func TestRunner_StatusMapping(t *testing.T) {
	items := collectItems(t, SuiteDef{
		Name: "outcomes",
		Tests: []TestDef{
			{Name: "passes", Fn: func(ctx context.Context, h *T) error {
				h.Check(true, "holds")
				return nil
			}},
			{Name: "fails_on_check", Fn: func(ctx context.Context, h *T) error {
				h.Check(false, "does not hold")
				h.Check(true, "still evaluated")
				return nil
			}},
			{Name: "skips_itself", Fn: func(ctx context.Context, h *T) error {
				return Skip("not applicable here")
			}},
			{Name: "fails_itself", Fn: func(ctx context.Context, h *T) error {
				return Fail("gave up")
			}},
			{Name: "errors", Fn: func(ctx context.Context, h *T) error {
				return errors.New("boom")
			}},
			{Name: "panics", Fn: func(ctx context.Context, h *T) error {
				panic("unexpected state")
			}},
			{Name: "marked_skip", Fn: noopBody, Skip: "disabled"},
		},
	})

	run, _ := runWith(t, RunConfiguration{Concurrency: 1}, items)
	require.Equal(t, len(items), run.Result.Total())

	assert.Equal(t, StatusPassed, statusOf(t, run, "outcomes::passes"))
	assert.Equal(t, StatusFailed, statusOf(t, run, "outcomes::fails_on_check"))
	assert.Equal(t, StatusSkipped, statusOf(t, run, "outcomes::skips_itself"))
	assert.Equal(t, StatusFailed, statusOf(t, run, "outcomes::fails_itself"))
	assert.Equal(t, StatusError, statusOf(t, run, "outcomes::errors"))
	assert.Equal(t, StatusError, statusOf(t, run, "outcomes::panics"))
	assert.Equal(t, StatusSkipped, statusOf(t, run, "outcomes::marked_skip"))

	for _, exec := range run.Result.Executions {
		if exec.FullName == "outcomes::fails_on_check" {
			require.Len(t, exec.Result.Assertions, 2, "later checks still evaluated")
		}
	}
}

func TestRunner_ExpectedFailureMapping(t *testing.T) {
	items := collectItems(t, SuiteDef{
		Name: "xfail",
		Tests: []TestDef{
			{Name: "fails_as_expected", XFail: "known flaky", Fn: func(ctx context.Context, h *T) error {
				h.Check(false, "known broken")
				return nil
			}},
			{Name: "errors_as_expected", XFail: "known broken", Fn: func(ctx context.Context, h *T) error {
				return errors.New("boom")
			}},
			{Name: "passes_unexpectedly", XFail: "thought broken", Fn: noopBody},
			{Name: "passes_strictly", XFail: "thought broken", XFailStrict: true, Fn: noopBody},
			{Name: "declares_xfail", Fn: func(ctx context.Context, h *T) error {
				return XFail("declared inside the body")
			}},
		},
	})

	run, _ := runWith(t, RunConfiguration{Concurrency: 1}, items)

	assert.Equal(t, StatusXFailed, statusOf(t, run, "xfail::fails_as_expected"))
	assert.Equal(t, StatusXFailed, statusOf(t, run, "xfail::errors_as_expected"))
	assert.Equal(t, StatusXPassed, statusOf(t, run, "xfail::passes_unexpectedly"))
	assert.Equal(t, StatusFailed, statusOf(t, run, "xfail::passes_strictly"))
	assert.Equal(t, StatusXFailed, statusOf(t, run, "xfail::declares_xfail"))
}

func TestRunner_ReporterSeesDiscoveryOrderUnderConcurrency(t *testing.T) {
	var tests []TestDef
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		tests = append(tests, TestDef{Name: name, Fn: func(ctx context.Context, h *T) error {
			time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
			return nil
		}})
	}
	items := collectItems(t, SuiteDef{Name: "ordered", Tests: tests})

	run, reporter := runWith(t, RunConfiguration{Concurrency: 4}, items)

	var want []string
	for _, item := range items {
		want = append(want, item.FullName())
	}
	assert.Equal(t, want, reporter.completed, "completion callbacks in discovery order")

	var got []string
	for _, exec := range run.Result.Executions {
		got = append(got, exec.FullName)
	}
	assert.Equal(t, want, got, "result slice in discovery order")
}

func TestRunner_MaxFailStopsDispatch(t *testing.T) {
	var tests []TestDef
	for _, name := range []string{"f1", "f2", "f3", "f4", "f5"} {
		tests = append(tests, TestDef{Name: name, Fn: func(ctx context.Context, h *T) error {
			h.Check(false, "always fails")
			return nil
		}})
	}
	items := collectItems(t, SuiteDef{Name: "cutoff", Tests: tests})

	run, reporter := runWith(t, RunConfiguration{Concurrency: 1, MaxFail: 2}, items)

	assert.Equal(t, 2, run.Result.Total(), "undispatched items are omitted")
	assert.True(t, run.Result.StoppedEarly)
	assert.True(t, reporter.stoppedEarly)
	assert.Equal(t, 2, reporter.failureCount)
}

func TestRunner_MaxFailOnFinalItemMarksStoppedEarly(t *testing.T) {
	items := collectItems(t, SuiteDef{
		Name: "cutoff",
		Tests: []TestDef{
			{Name: "only", Fn: func(ctx context.Context, h *T) error {
				h.Check(false, "always fails")
				return nil
			}},
		},
	})

	run, reporter := runWith(t, RunConfiguration{Concurrency: 1, MaxFail: 1}, items)

	assert.Equal(t, 1, run.Result.Total(), "the failing item itself is kept")
	assert.True(t, run.Result.StoppedEarly, "cutoff reached on the last item still marks the run")
	assert.True(t, reporter.stoppedEarly)
	assert.Equal(t, 1, reporter.failureCount)
}

func TestRunner_FailFastIsMaxFailOne(t *testing.T) {
	items := collectItems(t, SuiteDef{
		Name: "ff",
		Tests: []TestDef{
			{Name: "first", Fn: func(ctx context.Context, h *T) error {
				h.Check(false, "fails")
				return nil
			}},
			{Name: "second", Fn: noopBody},
		},
	})

	run, _ := runWith(t, RunConfiguration{Concurrency: 1, FailFast: true}, items)
	assert.Equal(t, 1, run.Result.Total())
	assert.True(t, run.Result.StoppedEarly)
}

func TestRunner_TimeoutBecomesError(t *testing.T) {
	items := collectItems(t, SuiteDef{
		Name: "deadline",
		Tests: []TestDef{
			{Name: "hangs", Fn: func(ctx context.Context, h *T) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(5 * time.Second):
					return nil
				}
			}},
			{Name: "quick", Fn: noopBody},
		},
	})

	run, _ := runWith(t, RunConfiguration{Concurrency: 1, Timeout: 30 * time.Millisecond}, items)

	assert.Equal(t, StatusError, statusOf(t, run, "deadline::hangs"))
	assert.Equal(t, StatusPassed, statusOf(t, run, "deadline::quick"), "later items still run")

	for _, exec := range run.Result.Executions {
		if exec.FullName == "deadline::hangs" {
			assert.True(t, IsTimeout(exec.Result.Err))
			assert.Contains(t, exec.Result.ErrMessage, "timed out after")
		}
	}
}

func TestRunner_RepeatAggregation(t *testing.T) {
	var invocation atomic.Int64
	items := collectItems(t, SuiteDef{
		Name: "repeat",
		Tests: []TestDef{
			{Name: "mostly_passes", Repeat: &Repeat{Count: 3, MinPasses: 2}, Fn: func(ctx context.Context, h *T) error {
				h.Check(invocation.Add(1) != 2, "invocation outcome")
				return nil
			}},
		},
	})

	run, _ := runWith(t, RunConfiguration{Concurrency: 1}, items)
	require.Equal(t, 1, run.Result.Total())

	exec := run.Result.Executions[0]
	assert.Equal(t, StatusPassed, exec.Status(), "2 of 3 passes meets the threshold")
	require.Len(t, exec.Result.Children, 3)
	assert.Equal(t, StatusPassed, exec.Result.Children[0].Status)
	assert.Equal(t, StatusFailed, exec.Result.Children[1].Status)
	assert.Len(t, exec.Result.Assertions, 3, "child assertions are flattened")
}

func TestRunner_RepeatBelowThresholdFails(t *testing.T) {
	var invocation atomic.Int64
	items := collectItems(t, SuiteDef{
		Name: "repeat",
		Tests: []TestDef{
			{Name: "mostly_fails", Repeat: &Repeat{Count: 4, MinPasses: 3}, Fn: func(ctx context.Context, h *T) error {
				h.Check(invocation.Add(1) == 1, "only the first passes")
				return nil
			}},
		},
	})

	run, _ := runWith(t, RunConfiguration{Concurrency: 1}, items)
	exec := run.Result.Executions[0]
	assert.Equal(t, StatusFailed, exec.Status())
	assert.Contains(t, exec.Result.ErrMessage, "1 of 4 invocations passed")
}

func TestRunner_ParamsResolveResources(t *testing.T) {
	resources := NewResourceRegistry()
	var built atomic.Int64
	require.NoError(t, resources.Register(ResourceDef{
		Name:  "client",
		Scope: ScopeCase,
		Factory: func(ctx context.Context, deps map[string]any) (any, CleanupFunc, error) {
			built.Add(1)
			return "client-instance", nil, nil
		},
	}))

	items := collectItems(t, SuiteDef{
		Name: "params",
		Tests: []TestDef{
			{Name: "uses_resource", Params: []string{"client"}, Fn: func(ctx context.Context, h *T) error {
				v, err := h.Resource(ctx, "client")
				if err != nil {
					return err
				}
				h.Check(v == "client-instance", "resource delivered")
				return nil
			}},
			{Name: "unknown_param", Params: []string{"nonexistent"}, Fn: noopBody},
		},
	})

	reporter := &captureReporter{}
	runner := NewRunner(RunConfiguration{Concurrency: 1}, resources, reporter)
	run, err := runner.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, StatusPassed, statusOf(t, run, "params::uses_resource"))
	assert.Equal(t, StatusError, statusOf(t, run, "params::unknown_param"))
	assert.Equal(t, int64(1), built.Load(), "pre-resolution and body access share the cache entry")

	for _, exec := range run.Result.Executions {
		if exec.FullName == "params::unknown_param" {
			assert.Contains(t, exec.Result.ErrMessage, "neither an axis value nor a registered resource")
		}
	}
}

func TestRunner_CollectsSharedMetrics(t *testing.T) {
	resources := NewResourceRegistry()
	require.NoError(t, resources.Register(ResourceDef{
		Name:  "accuracy",
		Scope: ScopeSession,
		Factory: func(ctx context.Context, deps map[string]any) (any, CleanupFunc, error) {
			return &recordingSessionMetric{name: "accuracy"}, nil, nil
		},
	}))

	items := collectItems(t, SuiteDef{
		Name: "metrics",
		Tests: []TestDef{
			{Name: "records", Fn: func(ctx context.Context, h *T) error {
				if _, err := h.Resource(ctx, "accuracy"); err != nil {
					return err
				}
				h.Check(true, "good answer")
				h.Check(false, "bad answer")
				return nil
			}},
		},
	})

	runner := NewRunner(RunConfiguration{Concurrency: 1}, resources)
	run, err := runner.Run(context.Background(), items)
	require.NoError(t, err)

	require.Len(t, run.Result.Metrics, 1)
	snapshot := run.Result.Metrics[0]
	assert.Equal(t, "accuracy", snapshot.Name)
	assert.Equal(t, 2, snapshot.Count)
}

// recordingSessionMetric is a minimal Metric used to observe run-level
// snapshot collection.
type recordingSessionMetric struct {
	name    string
	records []bool
}

func (m *recordingSessionMetric) RecordBool(v bool)                  { m.records = append(m.records, v) }
func (m *recordingSessionMetric) Attribute(test, caseID, res string) {}
func (m *recordingSessionMetric) Result() MetricResult {
	return MetricResult{Name: m.name, Scope: ScopeSession, Count: len(m.records)}
}

func TestRunner_NoTestsFound(t *testing.T) {
	run, reporter := runWith(t, RunConfiguration{}, nil)
	assert.True(t, reporter.noTests)
	assert.Zero(t, run.Result.Total())
	require.NotNil(t, reporter.run)
}

func TestRunner_SkipMarkerShortCircuitsResources(t *testing.T) {
	resources := NewResourceRegistry()
	require.NoError(t, resources.Register(ResourceDef{
		Name:  "expensive",
		Scope: ScopeCase,
		Factory: func(ctx context.Context, deps map[string]any) (any, CleanupFunc, error) {
			t.Fatal("resource must not be resolved for a skipped item")
			return nil, nil, nil
		},
	}))

	items := collectItems(t, SuiteDef{
		Name: "skip",
		Tests: []TestDef{
			{Name: "marked", Skip: "not today", Params: []string{"expensive"}, Fn: noopBody},
		},
	})

	runner := NewRunner(RunConfiguration{Concurrency: 1}, resources)
	run, err := runner.Run(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, statusOf(t, run, "skip::marked"))
}

func TestRunner_CaseResourcesTornDownPerItem(t *testing.T) {
	resources := NewResourceRegistry()
	var teardowns atomic.Int64
	require.NoError(t, resources.Register(ResourceDef{
		Name:  "scratch",
		Scope: ScopeCase,
		Factory: func(ctx context.Context, deps map[string]any) (any, CleanupFunc, error) {
			return "v", func(ctx context.Context) error {
				teardowns.Add(1)
				return nil
			}, nil
		},
	}))

	body := func(ctx context.Context, h *T) error {
		_, err := h.Resource(ctx, "scratch")
		return err
	}
	items := collectItems(t, SuiteDef{
		Name: "td",
		Tests: []TestDef{
			{Name: "one", Fn: body},
			{Name: "two", Fn: body},
		},
	})

	runner := NewRunner(RunConfiguration{Concurrency: 1}, resources)
	_, err := runner.Run(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, int64(2), teardowns.Load())
}
