package harness

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Version is the framework version recorded in run environments.
// It can be overridden at build time with -ldflags.
var Version = "0.3.0"

// Scope represents the lifetime class of a resource or metric.
type Scope string

const (
	// ScopeCase resources are created fresh for every test item.
	ScopeCase Scope = "case"
	// ScopeSuite resources are shared across the tests of one suite.
	ScopeSuite Scope = "suite"
	// ScopeSession resources are shared across the entire run.
	ScopeSession Scope = "session"
)

// Status represents the execution state of a test item.
type Status string

const (
	// StatusPending indicates the item has not been dispatched yet.
	StatusPending Status = "PENDING"
	// StatusRunning indicates the item currently occupies an execution slot.
	StatusRunning Status = "RUNNING"
	// StatusPassed indicates the body completed with no failing assertion.
	StatusPassed Status = "PASSED"
	// StatusFailed indicates at least one recorded assertion failed.
	StatusFailed Status = "FAILED"
	// StatusError indicates an error escaped the body or its setup.
	StatusError Status = "ERROR"
	// StatusSkipped indicates the item carried a skip marker.
	StatusSkipped Status = "SKIPPED"
	// StatusXFailed indicates an expected failure occurred.
	StatusXFailed Status = "XFAILED"
	// StatusXPassed indicates an expected failure did not occur.
	StatusXPassed Status = "XPASSED"
)

// TestFunc is the body of a test. A returned error maps to ERROR unless it
// is one of the declared outcome errors (Skip, Fail, XFail); recorded
// assertion failures map to FAILED without any error return.
type TestFunc func(ctx context.Context, t *T) error

// Repeat declares that a test body runs multiple times per item.
type Repeat struct {
	// Count is the number of body invocations.
	Count int
	// MinPasses is the number of passing invocations required for the item
	// to pass. Zero means all invocations must pass.
	MinPasses int
}

// TestDef declares one logical test inside a suite.
type TestDef struct {
	// Name identifies the test within its suite.
	Name string
	// Fn is the test body.
	Fn TestFunc
	// Params lists the parameter names the body consumes. Names matching a
	// registered resource are resolved by the runner; the rest must be
	// covered by parametrization axes.
	Params []string
	// Axes are the parametrization axes declared on this test, multiplied
	// in declaration order.
	Axes []Axis
	// Tags categorize the test for filtering.
	Tags []string
	// Skip marks the test skipped with the given reason when non-empty.
	Skip string
	// XFail marks the test as expected to fail with the given reason.
	XFail string
	// XFailStrict makes an unexpected pass count as a failure.
	XFailStrict bool
	// Repeat optionally runs the body multiple times per item.
	Repeat *Repeat
}

// SuiteDef groups tests and carries suite-level metadata that is merged into
// every contained test. Test-level values win on conflict; tags are unioned.
type SuiteDef struct {
	// Name identifies the suite.
	Name string
	// Tags apply to all tests in the suite.
	Tags []string
	// Skip skips every test in the suite with the given reason.
	Skip string
	// XFail marks every test in the suite as expected to fail.
	XFail string
	// XFailStrict makes an unexpected pass count as a failure.
	XFailStrict bool
	// Tests are the suite's tests, in declaration order.
	Tests []TestDef
}

// TestItem is one fully expanded, immutable unit of test work. Items are
// created during collection and never mutated afterwards.
type TestItem struct {
	// Name is the test name within its suite.
	Name string
	// Suite is the owning suite name.
	Suite string
	// Fn is the test body.
	Fn TestFunc
	// Params lists the declared parameter names.
	Params []string
	// ParamValues holds the concrete axis values for this item, if the test
	// was expanded from parametrization.
	ParamValues map[string]any
	// IDSuffix disambiguates items expanded from the same test.
	IDSuffix string
	// Tags is the merged tag set, sorted.
	Tags []string
	// SkipReason skips the item when non-empty.
	SkipReason string
	// XFailReason marks the item as expected to fail when non-empty.
	XFailReason string
	// XFailStrict makes an unexpected pass count as a failure.
	XFailStrict bool
	// RepeatCount is the number of body invocations (minimum 1).
	RepeatCount int
	// RepeatMinPasses is the passing-invocation threshold for repeat items.
	RepeatMinPasses int
}

// FullName returns the display name: suite::name[suffix].
func (i TestItem) FullName() string {
	base := i.Suite + "::" + i.Name
	if i.IDSuffix != "" {
		return base + "[" + i.IDSuffix + "]"
	}
	return base
}

// HasTag reports whether the item carries the given tag.
func (i TestItem) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MetricRead records a numeric metric-attribute access observed while a
// condition was evaluated.
type MetricRead struct {
	// Metric is the accumulator name.
	Metric string `json:"metric"`
	// Attribute is the derived statistic that was read (mean, p95, ...).
	Attribute string `json:"attribute"`
	// Value is the value the read produced.
	Value float64 `json:"value"`
}

// AssertionResult is one recorded, non-fatal evaluation of a test condition.
type AssertionResult struct {
	// ID uniquely identifies the result.
	ID uuid.UUID `json:"id"`
	// Condition is the description of the evaluated condition.
	Condition string `json:"condition"`
	// Passed is the boolean outcome.
	Passed bool `json:"passed"`
	// Message explains the failure. Populated only when Passed is false,
	// and only by the lazy explanation supplied by the test.
	Message string `json:"message,omitempty"`
	// CheckerResults holds checker evidence captured while the condition
	// was evaluated.
	CheckerResults []CheckerEvidence `json:"checker_results,omitempty"`
	// MetricReads holds metric-attribute reads captured while the condition
	// was evaluated.
	MetricReads []MetricRead `json:"metric_reads,omitempty"`
}

// CheckerEvidence is a by-reference capture of a checker result inside an
// assertion. Capturing evidence never alters what the condition computed.
type CheckerEvidence struct {
	// ResultID is the id of the referenced checker result.
	ResultID uuid.UUID `json:"result_id"`
	// CheckerName is the producing checker.
	CheckerName string `json:"checker_name"`
	// Value is the boolean outcome of the referenced check.
	Value bool `json:"value"`
	// Confidence is the confidence score of the referenced check.
	Confidence float64 `json:"confidence"`
	// Message is the referenced check's explanation, if any.
	Message string `json:"message,omitempty"`
}

// MetricResult is a named, scoped aggregate snapshot taken at the end of a
// run from every metric accumulator the run touched.
type MetricResult struct {
	// Name is the accumulator name.
	Name string `json:"name"`
	// Scope is the accumulator's declared lifetime.
	Scope Scope `json:"scope"`
	// Value is the metric's final computed value: scalar, boolean, or a
	// list of these.
	Value any `json:"value,omitempty"`
	// Count is the number of recorded observations.
	Count int `json:"count"`
	// Mean is the arithmetic mean of the observations, when computable.
	Mean float64 `json:"mean,omitempty"`
	// Tests names the tests that contributed observations.
	Tests []string `json:"tests,omitempty"`
	// Cases names the parametrized case ids that contributed observations.
	Cases []string `json:"cases,omitempty"`
	// Resources names the resources that consumed the accumulator.
	Resources []string `json:"resources,omitempty"`
	// Assertions are assertion results evaluated against the metric's own
	// derived attributes.
	Assertions []*AssertionResult `json:"assertions,omitempty"`
}

// Metric is the accumulator boundary the runtime records into. The concrete
// statistics engine lives in pkg/metrics; the harness only needs to fold
// assertion outcomes in, attribute contributors, and snapshot results.
type Metric interface {
	// RecordBool folds one boolean observation into the accumulator.
	RecordBool(value bool)
	// Attribute records which test, case, and resource contributed.
	Attribute(test, caseID, resource string)
	// Result produces an immutable aggregate snapshot.
	Result() MetricResult
}

// TestResult is the outcome of one body execution.
type TestResult struct {
	// Status is the terminal state.
	Status Status `json:"status"`
	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`
	// Err carries the error for ERROR, SKIPPED, and expected-failure
	// outcomes. Nil otherwise.
	Err error `json:"-"`
	// ErrMessage is the string form of Err for serialization.
	ErrMessage string `json:"error,omitempty"`
	// Assertions are the recorded assertion results, in evaluation order.
	Assertions []*AssertionResult `json:"assertions,omitempty"`
	// Children holds per-invocation results for repeat items.
	Children []*TestResult `json:"children,omitempty"`
}

// TestExecution is the complete record of one item's execution.
type TestExecution struct {
	// ID uniquely identifies the execution.
	ID uuid.UUID `json:"id"`
	// Item is the executed test item.
	Item TestItem `json:"-"`
	// FullName is the item's display name, kept for serialization.
	FullName string `json:"full_name"`
	// Result is the execution outcome.
	Result TestResult `json:"result"`
}

// Status is a convenience accessor for the result status.
func (e *TestExecution) Status() Status {
	return e.Result.Status
}

// RunResult is the terminal aggregate of one run.
type RunResult struct {
	// Executions lists completed executions in discovery order.
	Executions []*TestExecution `json:"executions"`
	// Metrics are the aggregate snapshots of every metric the run touched.
	Metrics []MetricResult `json:"metrics,omitempty"`
	// TotalDuration is the wall-clock duration of the whole run.
	TotalDuration time.Duration `json:"total_duration"`
	// StoppedEarly reports whether the max-failure cutoff ended the run.
	StoppedEarly bool `json:"stopped_early"`
}

// Count returns the number of executions with the given status.
func (r *RunResult) Count(status Status) int {
	n := 0
	for _, e := range r.Executions {
		if e.Result.Status == status {
			n++
		}
	}
	return n
}

// Passed counts passed executions.
func (r *RunResult) Passed() int { return r.Count(StatusPassed) }

// Failed counts failed executions.
func (r *RunResult) Failed() int { return r.Count(StatusFailed) }

// Errors counts errored executions.
func (r *RunResult) Errors() int { return r.Count(StatusError) }

// Skipped counts skipped executions.
func (r *RunResult) Skipped() int { return r.Count(StatusSkipped) }

// XFailed counts expected failures.
func (r *RunResult) XFailed() int { return r.Count(StatusXFailed) }

// XPassed counts unexpected passes of expected-failure items.
func (r *RunResult) XPassed() int { return r.Count(StatusXPassed) }

// Total counts all executions.
func (r *RunResult) Total() int { return len(r.Executions) }

// Run is the complete record of one test run: identity, timing, environment
// metadata, and the aggregated result.
type Run struct {
	// ID uniquely identifies the run.
	ID uuid.UUID `json:"run_id"`
	// StartTime is when the run began.
	StartTime time.Time `json:"start_time"`
	// EndTime is when the run completed.
	EndTime time.Time `json:"end_time"`
	// Environment captures where the run executed.
	Environment RunEnvironment `json:"environment"`
	// Result is the aggregated outcome.
	Result RunResult `json:"result"`
}

// RunConfiguration holds the scheduling parameters of a run.
type RunConfiguration struct {
	// Concurrency is the number of parallel execution slots. Values below 1
	// run sequentially.
	Concurrency int `yaml:"concurrency"`
	// Timeout is the per-item deadline. Zero disables the deadline.
	Timeout time.Duration `yaml:"timeout"`
	// MaxFail stops dispatching new items after this many FAILED/ERROR
	// outcomes. Zero disables the cutoff.
	MaxFail int `yaml:"maxfail"`
	// FailFast is shorthand for MaxFail=1.
	FailFast bool `yaml:"fail_fast"`
}

// Reporter receives run lifecycle callbacks. OnTestComplete is invoked
// exactly once per collected item, strictly in discovery order, regardless
// of the completion order under concurrency.
type Reporter interface {
	// OnNoTestsFound is called when collection produced no items.
	OnNoTestsFound()
	// OnCollectionComplete is called once with all collected items.
	OnCollectionComplete(items []TestItem)
	// OnTestComplete is called once per item after its execution (including
	// all repeat invocations) has finished.
	OnTestComplete(execution *TestExecution)
	// OnRunStoppedEarly is called once when the max-failure cutoff stops
	// the run, with the failure count at the time of the stop.
	OnRunStoppedEarly(failureCount int)
	// OnRunComplete is called once with the finished run.
	OnRunComplete(run *Run)
}
