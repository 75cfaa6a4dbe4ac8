package checker

import (
	"context"

	"github.com/google/uuid"
)

// Attribution identifies which checker produced a result and which test it
// was produced for. Filled explicitly by the caller.
type Attribution struct {
	// CheckerName is the name of the checker implementation.
	CheckerName string `json:"checker_name,omitempty"`
	// TestName is the full name of the test that requested the check.
	TestName string `json:"test_name,omitempty"`
	// CaseID is the parametrization id suffix of the test instance, if any.
	CaseID string `json:"case_id,omitempty"`
}

// Metadata describes the inputs and configuration of one check execution.
type Metadata struct {
	// Actual is the string form of the observed value.
	Actual string `json:"actual"`
	// Reference is the string form of the expected value.
	Reference string `json:"reference"`
	// Context is an optional hint that helps interpret the comparison
	// (prompt, instructions, domain constraints).
	Context string `json:"context,omitempty"`
	// Strict selects strict comparison semantics (checker-specific).
	Strict bool `json:"strict"`
	// Attribution identifies the producing checker and consuming test.
	Attribution Attribution `json:"attribution"`
}

// Result is the outcome of a single checker evaluation.
type Result struct {
	// ID uniquely identifies this result instance.
	ID uuid.UUID `json:"id"`
	// Metadata describes how the check was executed.
	Metadata Metadata `json:"metadata"`
	// Confidence is a score in [0, 1] with checker-specific semantics.
	Confidence float64 `json:"confidence"`
	// Value is the boolean outcome of the check.
	Value bool `json:"value"`
	// Message optionally explains the outcome, typically on mismatch.
	Message string `json:"message,omitempty"`
}

// Bool reports the boolean outcome of the check.
func (r *Result) Bool() bool {
	return r.Value
}

// Checker compares an observed value to a reference value. Implementations
// may be purely local or may delegate to a remote scoring service; both are
// invoked through the same context-aware signature.
type Checker interface {
	// Name returns the checker identifier recorded in result attribution.
	Name() string
	// Check compares actual against reference and returns a structured
	// result. An error indicates the check could not be performed at all,
	// not that it evaluated to false.
	Check(ctx context.Context, actual, reference string, opts ...Option) (*Result, error)
}

// options holds the per-call configuration assembled from Options.
type options struct {
	context     string
	strict      bool
	attribution Attribution
}

// Option configures a single Check invocation.
type Option func(*options)

// WithContext supplies extra context for the comparison.
func WithContext(c string) Option {
	return func(o *options) { o.context = c }
}

// WithStrict sets the strictness flag.
func WithStrict(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithAttribution attaches test attribution to the produced result.
func WithAttribution(a Attribution) Option {
	return func(o *options) { o.attribution = a }
}

func buildOptions(opts []Option) options {
	o := options{strict: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// newResult assembles a Result with generated id and filled metadata.
func newResult(name string, actual, reference string, o options, value bool, confidence float64, message string) *Result {
	attribution := o.attribution
	attribution.CheckerName = name
	return &Result{
		ID: uuid.New(),
		Metadata: Metadata{
			Actual:      actual,
			Reference:   reference,
			Context:     o.context,
			Strict:      o.strict,
			Attribution: attribution,
		},
		Confidence: confidence,
		Value:      value,
		Message:    message,
	}
}
