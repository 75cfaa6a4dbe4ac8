package checker

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EqualsChecker compares the two values for textual equality. In non-strict
// mode the comparison ignores case and surrounding whitespace.
type EqualsChecker struct{}

// Name implements Checker.
func (EqualsChecker) Name() string { return "equals" }

// Check implements Checker.
func (c EqualsChecker) Check(_ context.Context, actual, reference string, opts ...Option) (*Result, error) {
	o := buildOptions(opts)

	a, r := actual, reference
	if !o.strict {
		a = strings.ToLower(strings.TrimSpace(a))
		r = strings.ToLower(strings.TrimSpace(r))
	}

	value := a == r
	message := ""
	if !value {
		message = fmt.Sprintf("expected %q, got %q", reference, actual)
	}
	return newResult(c.Name(), actual, reference, o, value, 1.0, message), nil
}

// ThresholdChecker compares two numeric values and passes when the actual
// value deviates from the reference by at most Tolerance. Values that do
// not parse as numbers fail the check with an explanatory message rather
// than erroring, so a malformed model output reads as a wrong answer.
type ThresholdChecker struct {
	// Tolerance is the maximum absolute deviation allowed.
	Tolerance float64
}

// Name implements Checker.
func (ThresholdChecker) Name() string { return "threshold" }

// Check implements Checker.
func (c ThresholdChecker) Check(_ context.Context, actual, reference string, opts ...Option) (*Result, error) {
	o := buildOptions(opts)

	a, errA := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	r, errR := strconv.ParseFloat(strings.TrimSpace(reference), 64)
	if errA != nil || errR != nil {
		message := fmt.Sprintf("not comparable as numbers: actual %q, reference %q", actual, reference)
		return newResult(c.Name(), actual, reference, o, false, 1.0, message), nil
	}

	deviation := math.Abs(a - r)
	value := deviation <= c.Tolerance
	message := ""
	if !value {
		message = fmt.Sprintf("deviation %g exceeds tolerance %g", deviation, c.Tolerance)
	}
	return newResult(c.Name(), actual, reference, o, value, 1.0, message), nil
}

// ContainsChecker verifies that the reference value occurs inside the actual
// value. In non-strict mode the search is case-insensitive.
type ContainsChecker struct{}

// Name implements Checker.
func (ContainsChecker) Name() string { return "contains" }

// Check implements Checker.
func (c ContainsChecker) Check(_ context.Context, actual, reference string, opts ...Option) (*Result, error) {
	o := buildOptions(opts)

	a, r := actual, reference
	if !o.strict {
		a = strings.ToLower(a)
		r = strings.ToLower(r)
	}

	value := strings.Contains(a, r)
	message := ""
	if !value {
		message = fmt.Sprintf("%q not found in output", reference)
	}
	return newResult(c.Name(), actual, reference, o, value, 1.0, message), nil
}
