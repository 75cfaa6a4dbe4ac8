package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"merit/pkg/checker"
)

// T is the per-item handle passed to every test body. It records checks
// without aborting the body, resolves resources through the item's scope
// chain, and exposes the item's parameter values.
//
// A T is safe for concurrent use from goroutines the body spawns, but the
// body itself must not outlive its return.
type T struct {
	item     TestItem
	resolver *Resolver

	mu         sync.Mutex
	assertions []*AssertionResult
	sinks      []metricSink
}

type metricSink struct {
	resource string
	metric   Metric
}

func newT(item TestItem, resolver *Resolver) *T {
	return &T{item: item, resolver: resolver}
}

// Name returns the fully qualified item name, including the parameter
// suffix when present.
func (t *T) Name() string { return t.item.FullName() }

// Param returns the value bound to name by the item's parameter set, or nil
// when the item has no such parameter.
func (t *T) Param(name string) any {
	return t.item.ParamValues[name]
}

// Resource resolves name through the item's resolver. CASE resources are
// private to this item; SUITE and SESSION resources come from the shared
// root. A resolved value implementing Metric is additionally attached as a
// sink: every subsequent Check outcome on this T is folded into it.
func (t *T) Resource(ctx context.Context, name string) (any, error) {
	value, err := t.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if metric, ok := value.(Metric); ok {
		t.attachSink(name, metric)
	}
	return value, nil
}

func (t *T) attachSink(resource string, metric Metric) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sink := range t.sinks {
		if sink.metric == metric {
			return
		}
	}
	t.sinks = append(t.sinks, metricSink{resource: resource, metric: metric})
	metric.Attribute(t.item.Suite+"::"+t.item.Name, t.item.FullName(), resource)
}

// Attribution returns the identity of this item for tagging checker
// results produced on its behalf.
func (t *T) Attribution() checker.Attribution {
	return checker.Attribution{
		TestName: t.item.Suite + "::" + t.item.Name,
		CaseID:   t.item.FullName(),
	}
}

// Check records one verdict. The verdict is final at the call site: the
// returned builder attaches explanation and evidence to the already
// recorded entry, it cannot change passed. Execution continues regardless
// of the outcome; a recorded failure marks the item FAILED once the body
// returns.
func (t *T) Check(passed bool, condition string) *Check {
	result := &AssertionResult{
		ID:        uuid.New(),
		Condition: condition,
		Passed:    passed,
	}

	t.mu.Lock()
	t.assertions = append(t.assertions, result)
	sinks := make([]metricSink, len(t.sinks))
	copy(sinks, t.sinks)
	t.mu.Unlock()

	for _, sink := range sinks {
		sink.metric.RecordBool(passed)
	}

	return &Check{t: t, result: result}
}

// Assertions returns the checks recorded so far, in recording order.
func (t *T) Assertions() []*AssertionResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*AssertionResult, len(t.assertions))
	copy(out, t.assertions)
	return out
}

func (t *T) failedChecks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, a := range t.assertions {
		if !a.Passed {
			n++
		}
	}
	return n
}

// metricAssertionKeeper is implemented by accumulators that retain the
// assertions evaluated against their own derived attributes, for inclusion
// in the run-level metric snapshot.
type metricAssertionKeeper interface {
	AttachAssertion(*AssertionResult)
}

// Check decorates one recorded verdict. All methods return the receiver
// for chaining.
type Check struct {
	t        *T
	result   *AssertionResult
	attached []Metric
}

// Passed reports the recorded verdict.
func (c *Check) Passed() bool { return c.result.Passed }

// Explain attaches a failure message produced by fn. fn is invoked only
// when the check failed, so an expensive rendering costs nothing on the
// passing path.
func (c *Check) Explain(fn func() string) *Check {
	if c.result.Passed {
		return c
	}
	c.t.mu.Lock()
	c.result.Message = fn()
	c.t.mu.Unlock()
	return c
}

// Explainf attaches a formatted failure message. Formatting happens only
// when the check failed.
func (c *Check) Explainf(format string, args ...any) *Check {
	return c.Explain(func() string { return fmt.Sprintf(format, args...) })
}

// WithEvidence attaches checker results backing this verdict.
func (c *Check) WithEvidence(results ...*checker.Result) *Check {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	for _, r := range results {
		if r == nil {
			continue
		}
		c.result.CheckerResults = append(c.result.CheckerResults, CheckerEvidence{
			ResultID:    r.ID,
			CheckerName: r.Metadata.Attribution.CheckerName,
			Value:       r.Value,
			Confidence:  r.Confidence,
			Message:     r.Message,
		})
	}
	return c
}

// WithMetricRead records that this verdict was derived from reading a
// metric attribute. Besides the traceability entry on the assertion itself,
// the assertion is attached to the named accumulator when it is an active
// sink that keeps metric-level assertions, so the run snapshot of that
// metric carries the verdicts evaluated against it.
func (c *Check) WithMetricRead(metric, attribute string, value float64) *Check {
	c.t.mu.Lock()
	c.result.MetricReads = append(c.result.MetricReads, MetricRead{
		Metric:    metric,
		Attribute: attribute,
		Value:     value,
	})
	sinks := make([]metricSink, len(c.t.sinks))
	copy(sinks, c.t.sinks)
	c.t.mu.Unlock()

	for _, sink := range sinks {
		if sink.resource != metric {
			continue
		}
		keeper, ok := sink.metric.(metricAssertionKeeper)
		if !ok || c.alreadyAttached(sink.metric) {
			continue
		}
		keeper.AttachAssertion(c.result)
		c.attached = append(c.attached, sink.metric)
	}
	return c
}

func (c *Check) alreadyAttached(metric Metric) bool {
	for _, m := range c.attached {
		if m == metric {
			return true
		}
	}
	return false
}
