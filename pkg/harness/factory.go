package harness

import "time"

// DefaultRunConfiguration returns the scheduling defaults: sequential
// execution, a five minute per-item deadline, no failure cutoff.
func DefaultRunConfiguration() RunConfiguration {
	return RunConfiguration{
		Concurrency: 1,
		Timeout:     5 * time.Minute,
	}
}

// ValidateConfiguration rejects nonsensical scheduling parameters before a
// run starts.
func ValidateConfiguration(config RunConfiguration) error {
	if config.Concurrency < 0 {
		return &ConfigurationError{Subject: "concurrency", Reason: "must not be negative"}
	}
	if config.Timeout < 0 {
		return &ConfigurationError{Subject: "timeout", Reason: "must not be negative"}
	}
	if config.MaxFail < 0 {
		return &ConfigurationError{Subject: "maxfail", Reason: "must not be negative"}
	}
	return nil
}
