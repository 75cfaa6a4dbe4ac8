package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merit/pkg/checker"
)

func newTestT(t *testing.T, item TestItem) *T {
	t.Helper()
	return newT(item, NewResolver(NewResourceRegistry()).ForkForCase())
}

func TestCheck_RecordsWithoutAborting(t *testing.T) {
	h := newTestT(t, TestItem{Suite: "s", Name: "t"})

	h.Check(true, "first holds")
	h.Check(false, "second holds")
	h.Check(true, "third holds")

	assertions := h.Assertions()
	require.Len(t, assertions, 3, "all checks evaluated despite the failure")
	assert.Equal(t, "first holds", assertions[0].Condition)
	assert.False(t, assertions[1].Passed)
	assert.True(t, assertions[2].Passed)
	assert.Equal(t, 1, h.failedChecks())
}

func TestCheck_ExplainIsLazy(t *testing.T) {
	h := newTestT(t, TestItem{Suite: "s", Name: "t"})

	rendered := 0
	h.Check(true, "passing").Explain(func() string {
		rendered++
		return "never needed"
	})
	assert.Zero(t, rendered, "explanation must not render on the passing path")

	h.Check(false, "failing").Explain(func() string {
		rendered++
		return "got 3, want 4"
	})
	assert.Equal(t, 1, rendered)

	assertions := h.Assertions()
	assert.Empty(t, assertions[0].Message)
	assert.Equal(t, "got 3, want 4", assertions[1].Message)
}

func TestCheck_Explainf(t *testing.T) {
	h := newTestT(t, TestItem{Suite: "s", Name: "t"})
	h.Check(false, "rate above floor").Explainf("rate %.2f below %.2f", 0.72, 0.9)
	assert.Equal(t, "rate 0.72 below 0.90", h.Assertions()[0].Message)
}

func TestCheck_WithEvidence(t *testing.T) {
	h := newTestT(t, TestItem{Suite: "s", Name: "t"})

	result, err := checker.ContainsChecker{}.Check(context.Background(), "the answer is 42", "42",
		checker.WithAttribution(h.Attribution()))
	require.NoError(t, err)

	h.Check(result.Bool(), "output mentions the answer").WithEvidence(result)

	assertions := h.Assertions()
	require.Len(t, assertions[0].CheckerResults, 1)
	evidence := assertions[0].CheckerResults[0]
	assert.Equal(t, result.ID, evidence.ResultID)
	assert.Equal(t, "contains", evidence.CheckerName)
	assert.True(t, evidence.Value)
	assert.Equal(t, 1.0, evidence.Confidence)
}

func TestCheck_WithMetricRead(t *testing.T) {
	h := newTestT(t, TestItem{Suite: "s", Name: "t"})
	h.Check(true, "p95 under budget").WithMetricRead("latency", "p95", 0.43)

	reads := h.Assertions()[0].MetricReads
	require.Len(t, reads, 1)
	assert.Equal(t, MetricRead{Metric: "latency", Attribute: "p95", Value: 0.43}, reads[0])
}

type recordingMetric struct {
	records    []bool
	test       string
	caseID     string
	assertions []*AssertionResult
}

func (m *recordingMetric) RecordBool(v bool) { m.records = append(m.records, v) }
func (m *recordingMetric) Attribute(test, caseID, resource string) {
	m.test, m.caseID = test, caseID
}
func (m *recordingMetric) Result() MetricResult { return MetricResult{} }
func (m *recordingMetric) AttachAssertion(a *AssertionResult) {
	m.assertions = append(m.assertions, a)
}

func TestResource_MetricValuesBecomeSinks(t *testing.T) {
	reg := NewResourceRegistry()
	metric := &recordingMetric{}
	require.NoError(t, reg.Register(ResourceDef{
		Name:  "accuracy",
		Scope: ScopeSession,
		Factory: func(ctx context.Context, deps map[string]any) (any, CleanupFunc, error) {
			return metric, nil, nil
		},
	}))

	item := TestItem{Suite: "s", Name: "t", IDSuffix: "model=a"}
	h := newT(item, NewResolver(reg).ForkForCase())

	h.Check(true, "before attach is not folded")

	_, err := h.Resource(context.Background(), "accuracy")
	require.NoError(t, err)

	h.Check(true, "folded")
	h.Check(false, "also folded")

	assert.Equal(t, []bool{true, false}, metric.records)
	assert.Equal(t, "s::t", metric.test)
	assert.Equal(t, "s::t[model=a]", metric.caseID)
}

func TestCheck_MetricReadAttachesAssertionToSink(t *testing.T) {
	reg := NewResourceRegistry()
	metric := &recordingMetric{}
	require.NoError(t, reg.Register(ResourceDef{
		Name:  "accuracy",
		Scope: ScopeSession,
		Factory: func(ctx context.Context, deps map[string]any) (any, CleanupFunc, error) {
			return metric, nil, nil
		},
	}))

	h := newT(TestItem{Suite: "s", Name: "t"}, NewResolver(reg).ForkForCase())
	_, err := h.Resource(context.Background(), "accuracy")
	require.NoError(t, err)

	h.Check(false, "mean above floor").
		WithMetricRead("accuracy", "mean", 0.42).
		WithMetricRead("accuracy", "count", 7).
		WithMetricRead("unrelated", "mean", 0.9)

	require.Len(t, metric.assertions, 1, "one attach per assertion, however many reads")
	attached := metric.assertions[0]
	assert.Equal(t, "mean above floor", attached.Condition)
	assert.False(t, attached.Passed)
	require.Len(t, attached.MetricReads, 3)
	assert.Equal(t, "count", attached.MetricReads[1].Attribute)
}

func TestParamAndAttribution(t *testing.T) {
	item := TestItem{
		Suite:       "s",
		Name:        "t",
		IDSuffix:    "model=a",
		ParamValues: map[string]any{"model": "a"},
	}
	h := newTestT(t, item)

	assert.Equal(t, "a", h.Param("model"))
	assert.Nil(t, h.Param("missing"))
	assert.Equal(t, "s::t[model=a]", h.Name())

	attribution := h.Attribution()
	assert.Equal(t, "s::t", attribution.TestName)
	assert.Equal(t, "s::t[model=a]", attribution.CaseID)
}
