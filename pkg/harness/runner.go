package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"merit/pkg/logging"
)

// Runner executes collected items under one RunConfiguration and streams
// lifecycle events to its reporters.
type Runner struct {
	config    RunConfiguration
	resources *ResourceRegistry
	reporters []Reporter
}

// NewRunner creates a runner over the given resource registry.
func NewRunner(config RunConfiguration, resources *ResourceRegistry, reporters ...Reporter) *Runner {
	if resources == nil {
		resources = DefaultResources()
	}
	return &Runner{config: config, resources: resources, reporters: reporters}
}

// Run executes items in discovery order and returns the completed run.
//
// Reporters observe completions strictly in discovery order. With one
// execution slot that order is also the execution order and completions
// stream as they happen; with several slots, completions are buffered and
// delivered as one ordered batch once all dispatched items have finished.
//
// When the max-failure cutoff trips, items not yet dispatched are omitted
// from the result entirely. Items already running are allowed to finish and
// their outcomes are kept.
func (r *Runner) Run(ctx context.Context, items []TestItem) (*Run, error) {
	run := &Run{
		ID:          uuid.New(),
		StartTime:   time.Now(),
		Environment: CaptureEnvironment(),
	}

	if len(items) == 0 {
		r.each(func(rep Reporter) { rep.OnNoTestsFound() })
		run.EndTime = time.Now()
		r.each(func(rep Reporter) { rep.OnRunComplete(run) })
		return run, nil
	}

	r.each(func(rep Reporter) { rep.OnCollectionComplete(items) })

	maxFail := r.config.MaxFail
	if r.config.FailFast {
		maxFail = 1
	}
	concurrency := r.config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	root := NewResolver(r.resources)

	var (
		executions []*TestExecution
		failures   int
		runErr     error
	)
	if concurrency == 1 {
		executions, failures, runErr = r.runSequential(ctx, root, items, maxFail)
	} else {
		executions, failures, runErr = r.runConcurrent(ctx, root, items, maxFail, concurrency)
	}

	stoppedEarly := maxFail > 0 && failures >= maxFail
	if stoppedEarly {
		r.each(func(rep Reporter) { rep.OnRunStoppedEarly(failures) })
	}

	run.Result.Metrics = collectMetrics(root)

	if err := root.Teardown(ctx); err != nil {
		logging.Error("Runner", err, "run teardown reported errors")
	}

	run.Result.Executions = executions
	run.Result.StoppedEarly = stoppedEarly
	run.EndTime = time.Now()
	run.Result.TotalDuration = run.EndTime.Sub(run.StartTime)

	r.each(func(rep Reporter) { rep.OnRunComplete(run) })
	return run, runErr
}

func (r *Runner) runSequential(ctx context.Context, root *Resolver, items []TestItem, maxFail int) ([]*TestExecution, int, error) {
	var executions []*TestExecution
	failures := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return executions, failures, err
		}
		if maxFail > 0 && failures >= maxFail {
			break
		}
		exec := r.runItem(ctx, root, item)
		executions = append(executions, exec)
		if countsAsFailure(exec.Status()) {
			failures++
		}
		r.each(func(rep Reporter) { rep.OnTestComplete(exec) })
	}
	return executions, failures, nil
}

func (r *Runner) runConcurrent(ctx context.Context, root *Resolver, items []TestItem, maxFail, concurrency int) ([]*TestExecution, int, error) {
	var (
		sem      = semaphore.NewWeighted(int64(concurrency))
		results  = make([]*TestExecution, len(items))
		wg       sync.WaitGroup
		stop     atomic.Bool
		failures atomic.Int64
		runErr   error
	)

	for i, item := range items {
		if stop.Load() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = err
			break
		}
		// The cutoff may have tripped while we waited for a slot.
		if stop.Load() {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(idx int, item TestItem) {
			defer wg.Done()
			defer sem.Release(1)

			exec := r.runItem(ctx, root, item)
			results[idx] = exec
			if countsAsFailure(exec.Status()) {
				if n := failures.Add(1); maxFail > 0 && n >= int64(maxFail) {
					stop.Store(true)
				}
			}
		}(i, item)
	}
	wg.Wait()

	// Completed slots are sparse after a cutoff; compacting in index order
	// restores discovery order for results and reporter delivery alike.
	var executions []*TestExecution
	for _, exec := range results {
		if exec == nil {
			continue
		}
		executions = append(executions, exec)
		r.each(func(rep Reporter) { rep.OnTestComplete(exec) })
	}
	return executions, int(failures.Load()), runErr
}

// runItem executes one item completely, including skip handling, repeat
// invocations, and expected-failure mapping.
func (r *Runner) runItem(ctx context.Context, root *Resolver, item TestItem) *TestExecution {
	exec := &TestExecution{
		ID:       uuid.New(),
		Item:     item,
		FullName: item.FullName(),
	}

	if item.SkipReason != "" {
		err := Skip(item.SkipReason)
		exec.Result = TestResult{Status: StatusSkipped, Err: err, ErrMessage: err.Error()}
		return exec
	}

	var result *TestResult
	if item.RepeatCount > 1 {
		result = r.runRepeated(ctx, root, item)
	} else {
		result = r.invoke(ctx, root, item)
	}
	applyExpectedFailure(item, result)

	exec.Result = *result
	logging.Debug("Runner", "%s finished with %s in %s", exec.FullName, exec.Result.Status, exec.Result.Duration)
	return exec
}

// runRepeated invokes the body RepeatCount times, each invocation with its
// own CASE resources, and aggregates per the min-passes threshold.
func (r *Runner) runRepeated(ctx context.Context, root *Resolver, item TestItem) *TestResult {
	aggregate := &TestResult{}
	passes := 0
	var firstErr error
	erred := false

	start := time.Now()
	for i := 0; i < item.RepeatCount; i++ {
		child := r.invoke(ctx, root, item)
		aggregate.Children = append(aggregate.Children, child)
		aggregate.Assertions = append(aggregate.Assertions, child.Assertions...)
		switch child.Status {
		case StatusPassed:
			passes++
		case StatusError:
			erred = true
			if firstErr == nil {
				firstErr = child.Err
			}
		}
	}
	aggregate.Duration = time.Since(start)

	switch {
	case erred:
		aggregate.Status = StatusError
		aggregate.Err = firstErr
	case passes >= item.RepeatMinPasses:
		aggregate.Status = StatusPassed
	default:
		aggregate.Status = StatusFailed
		aggregate.Err = Fail(fmt.Sprintf("%d of %d invocations passed, need %d", passes, item.RepeatCount, item.RepeatMinPasses))
	}
	if aggregate.Err != nil {
		aggregate.ErrMessage = aggregate.Err.Error()
	}
	return aggregate
}

// invoke runs the body once against a fresh CASE fork of root.
func (r *Runner) invoke(ctx context.Context, root *Resolver, item TestItem) *TestResult {
	child := root.ForkForCase()
	defer func() {
		if err := child.TeardownScope(context.WithoutCancel(ctx), ScopeCase); err != nil {
			logging.Error("Runner", err, "case teardown for %s reported errors", item.FullName())
		}
	}()

	t := newT(item, child)
	start := time.Now()

	if err := r.prepareParams(ctx, t, item); err != nil {
		return &TestResult{
			Status:     StatusError,
			Duration:   time.Since(start),
			Err:        err,
			ErrMessage: err.Error(),
		}
	}

	err := r.runBody(ctx, t, item)
	result := &TestResult{
		Duration:   time.Since(start),
		Err:        err,
		Assertions: t.Assertions(),
	}
	if err != nil {
		result.ErrMessage = err.Error()
	}

	var skipErr *SkipError
	var failErr *FailError
	var xfailErr *XFailError
	switch {
	case err == nil:
		if t.failedChecks() > 0 {
			result.Status = StatusFailed
		} else {
			result.Status = StatusPassed
		}
	case errors.As(err, &skipErr):
		result.Status = StatusSkipped
	case errors.As(err, &failErr):
		result.Status = StatusFailed
	case errors.As(err, &xfailErr):
		result.Status = StatusXFailed
	default:
		result.Status = StatusError
	}
	return result
}

// prepareParams resolves every declared parameter that is not bound by the
// item's parameter set. A name covered by neither is a declaration error.
func (r *Runner) prepareParams(ctx context.Context, t *T, item TestItem) error {
	for _, name := range item.Params {
		if _, ok := item.ParamValues[name]; ok {
			continue
		}
		if _, err := t.Resource(ctx, name); err != nil {
			var notFound *ResourceNotFoundError
			if errors.As(err, &notFound) {
				return &ConfigurationError{
					Subject: item.FullName(),
					Reason:  fmt.Sprintf("parameter %q is neither an axis value nor a registered resource", name),
				}
			}
			return err
		}
	}
	return nil
}

// runBody executes the body in its own goroutine so a per-item deadline can
// abandon it. Panics are recovered into errors. A timed-out body keeps
// running until it observes its cancelled context; the slot is surrendered
// immediately and the outcome recorded as ERROR.
func (r *Runner) runBody(ctx context.Context, t *T, item TestItem) error {
	bodyCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("panic in test body: %v", rec)
			}
		}()
		done <- item.Fn(bodyCtx, t)
	}()

	if r.config.Timeout <= 0 {
		return <-done
	}

	timer := time.NewTimer(r.config.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		cancel()
		logging.Warn("Runner", "%s exceeded the per-item deadline of %s", item.FullName(), r.config.Timeout)
		return &timeoutError{limit: r.config.Timeout.String()}
	}
}

// applyExpectedFailure maps the raw outcome of an expected-failure item.
func applyExpectedFailure(item TestItem, result *TestResult) {
	if item.XFailReason == "" {
		return
	}
	switch result.Status {
	case StatusFailed, StatusError:
		result.Status = StatusXFailed
		if result.Err == nil {
			result.Err = XFail(item.XFailReason)
			result.ErrMessage = result.Err.Error()
		}
	case StatusPassed:
		if item.XFailStrict {
			result.Status = StatusFailed
			result.Err = Fail("unexpected pass of strict expected failure: " + item.XFailReason)
			result.ErrMessage = result.Err.Error()
		} else {
			result.Status = StatusXPassed
		}
	}
}

// collectMetrics snapshots every shared-scope cached value that implements
// Metric, sorted by name.
func collectMetrics(root *Resolver) []MetricResult {
	var out []MetricResult
	for _, scope := range []Scope{ScopeSuite, ScopeSession} {
		for _, value := range root.CachedValues(scope) {
			if metric, ok := value.(Metric); ok {
				out = append(out, metric.Result())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func countsAsFailure(status Status) bool {
	return status == StatusFailed || status == StatusError
}

func (r *Runner) each(fn func(Reporter)) {
	for _, rep := range r.reporters {
		fn(rep)
	}
}
