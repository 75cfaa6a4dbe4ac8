package harness

import (
	"errors"
	"fmt"
)

// ResourceNotFoundError reports a resolve request for an unregistered
// resource name.
type ResourceNotFoundError struct {
	// Name is the requested resource name.
	Name string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("unknown resource: %s", e.Name)
}

// ConfigurationError reports an invalid test or resource declaration,
// surfaced at registration or collection time rather than at run time.
type ConfigurationError struct {
	// Subject names the offending declaration (test, suite, or resource).
	Subject string
	// Reason describes what is wrong with it.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Subject, e.Reason)
}

// SkipError is the declared outcome returned by a body that decides at run
// time to skip itself. Maps to SKIPPED.
type SkipError struct {
	// Reason explains the skip.
	Reason string
}

func (e *SkipError) Error() string { return "test skipped: " + e.Reason }

// FailError is the declared outcome returned by a body that fails itself
// explicitly. Maps to FAILED.
type FailError struct {
	// Reason explains the failure.
	Reason string
}

func (e *FailError) Error() string { return "test failed: " + e.Reason }

// XFailError is the declared outcome returned by a body that marks itself as
// an expected failure and stops. Maps to XFAILED.
type XFailError struct {
	// Reason explains the expected failure.
	Reason string
}

func (e *XFailError) Error() string { return "expected failure: " + e.Reason }

// Skip returns a SkipError for use as a body return value.
func Skip(reason string) error { return &SkipError{Reason: reason} }

// Fail returns a FailError for use as a body return value.
func Fail(reason string) error { return &FailError{Reason: reason} }

// XFail returns an XFailError for use as a body return value.
func XFail(reason string) error { return &XFailError{Reason: reason} }

// timeoutError is produced by the scheduler when a per-item deadline
// elapses. It is distinguishable from other errors via IsTimeout.
type timeoutError struct {
	limit string
}

func (e *timeoutError) Error() string {
	return "test timed out after " + e.limit
}

// IsTimeout reports whether err was produced by the per-item deadline.
func IsTimeout(err error) bool {
	var te *timeoutError
	return errors.As(err, &te)
}
