package report

import (
	"encoding/json"
	"sync"

	"merit/pkg/harness"
)

// StructuredReporter accumulates the finished run for machine consumption:
// JSON output and the results store.
type StructuredReporter struct {
	mu  sync.Mutex
	run *harness.Run
}

// NewStructuredReporter creates an empty structured reporter.
func NewStructuredReporter() *StructuredReporter {
	return &StructuredReporter{}
}

// OnNoTestsFound implements harness.Reporter.
func (r *StructuredReporter) OnNoTestsFound() {}

// OnCollectionComplete implements harness.Reporter.
func (r *StructuredReporter) OnCollectionComplete(items []harness.TestItem) {}

// OnTestComplete implements harness.Reporter.
func (r *StructuredReporter) OnTestComplete(execution *harness.TestExecution) {}

// OnRunStoppedEarly implements harness.Reporter.
func (r *StructuredReporter) OnRunStoppedEarly(failureCount int) {}

// OnRunComplete implements harness.Reporter.
func (r *StructuredReporter) OnRunComplete(run *harness.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run = run
}

// Run returns the captured run, nil before completion.
func (r *StructuredReporter) Run() *harness.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run
}

// ResultsJSON renders the captured run as indented JSON.
func (r *StructuredReporter) ResultsJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.MarshalIndent(r.run, "", "  ")
}
