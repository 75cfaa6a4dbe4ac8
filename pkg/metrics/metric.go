package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"

	"merit/pkg/harness"
)

// ErrInsufficientData is returned when a statistic needs more observations
// than the accumulator holds.
var ErrInsufficientData = errors.New("insufficient data for statistic")

// Interval is a two-sided confidence interval around the mean.
type Interval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Metric is a named, scoped accumulator of float64 observations. All
// methods are safe for concurrent use. Derived statistics are cached and
// the cache is dropped on every record.
type Metric struct {
	name  string
	scope harness.Scope

	mu         sync.Mutex
	values     []float64
	cache      *snapshot
	tests      map[string]struct{}
	cases      map[string]struct{}
	resources  map[string]struct{}
	assertions []*harness.AssertionResult
}

// snapshot holds every derived statistic computed from one observation set.
type snapshot struct {
	sum          float64
	min          float64
	max          float64
	mean         float64
	median       float64
	variance     float64 // sample, valid only for count >= 2
	pvar         float64 // population
	sorted       stats.Float64Data
	percentiles  []float64 // p1..p99, nil below two observations
	counter      map[float64]int
	distribution map[float64]float64
}

// New creates an empty accumulator.
func New(name string, scope harness.Scope) *Metric {
	return &Metric{
		name:      name,
		scope:     scope,
		tests:     map[string]struct{}{},
		cases:     map[string]struct{}{},
		resources: map[string]struct{}{},
	}
}

// Name returns the accumulator name.
func (m *Metric) Name() string { return m.name }

// Scope returns the accumulator's declared lifetime.
func (m *Metric) Scope() harness.Scope { return m.scope }

// Record folds observations into the accumulator.
func (m *Metric) Record(values ...float64) {
	if len(values) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = append(m.values, values...)
	m.cache = nil
}

// RecordBool folds a boolean observation as 1 or 0, so the mean of a
// boolean accumulator is its pass rate.
func (m *Metric) RecordBool(value bool) {
	if value {
		m.Record(1)
	} else {
		m.Record(0)
	}
}

// Attribute records which test, case, and resource contributed.
func (m *Metric) Attribute(test, caseID, resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if test != "" {
		m.tests[test] = struct{}{}
	}
	if caseID != "" {
		m.cases[caseID] = struct{}{}
	}
	if resource != "" {
		m.resources[resource] = struct{}{}
	}
}

// AttachAssertion stores an assertion evaluated against this accumulator's
// derived attributes, for inclusion in the final snapshot.
func (m *Metric) AttachAssertion(result *harness.AssertionResult) {
	if result == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assertions = append(m.assertions, result)
}

// Count returns the number of observations.
func (m *Metric) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

// compute returns the cached snapshot, rebuilding it when stale. Caller
// must hold m.mu.
func (m *Metric) compute() (*snapshot, error) {
	if len(m.values) == 0 {
		return nil, ErrInsufficientData
	}
	if m.cache != nil {
		return m.cache, nil
	}

	data := make(stats.Float64Data, len(m.values))
	copy(data, m.values)
	sort.Float64s(data)

	s := &snapshot{sorted: data, min: data[0], max: data[len(data)-1]}
	s.counter = map[float64]int{}
	for _, v := range data {
		s.sum += v
		s.counter[v]++
	}
	s.mean = s.sum / float64(len(data))
	s.median, _ = stats.Median(data)
	s.pvar, _ = stats.PopulationVariance(data)
	s.distribution = make(map[float64]float64, len(s.counter))
	for v, n := range s.counter {
		s.distribution[v] = float64(n) / float64(len(data))
	}
	if len(data) >= 2 {
		s.variance, _ = stats.SampleVariance(data)
		s.percentiles = make([]float64, 99)
		for i := 1; i <= 99; i++ {
			s.percentiles[i-1], _ = stats.Percentile(data, float64(i))
		}
	}
	m.cache = s
	return s, nil
}

func (m *Metric) stat(pick func(*snapshot) float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.compute()
	if err != nil {
		return 0, err
	}
	return pick(s), nil
}

// Sum returns the total of all observations.
func (m *Metric) Sum() (float64, error) {
	return m.stat(func(s *snapshot) float64 { return s.sum })
}

// Min returns the smallest observation.
func (m *Metric) Min() (float64, error) {
	return m.stat(func(s *snapshot) float64 { return s.min })
}

// Max returns the largest observation.
func (m *Metric) Max() (float64, error) {
	return m.stat(func(s *snapshot) float64 { return s.max })
}

// Mean returns the arithmetic mean.
func (m *Metric) Mean() (float64, error) {
	return m.stat(func(s *snapshot) float64 { return s.mean })
}

// Median returns the 50th percentile.
func (m *Metric) Median() (float64, error) {
	return m.stat(func(s *snapshot) float64 { return s.median })
}

// Variance returns the sample variance. Needs at least two observations.
func (m *Metric) Variance() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.compute()
	if err != nil {
		return 0, err
	}
	if len(s.sorted) < 2 {
		return 0, ErrInsufficientData
	}
	return s.variance, nil
}

// StdDev returns the sample standard deviation. Needs at least two
// observations.
func (m *Metric) StdDev() (float64, error) {
	v, err := m.Variance()
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

// PVariance returns the population variance.
func (m *Metric) PVariance() (float64, error) {
	return m.stat(func(s *snapshot) float64 { return s.pvar })
}

// PStdDev returns the population standard deviation.
func (m *Metric) PStdDev() (float64, error) {
	v, err := m.PVariance()
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

// Percentile returns the p-th percentile, 0 < p <= 100. Whole-number
// percentiles read the quantile table computed once per observation set;
// fractional ones are interpolated on demand. Needs at least two
// observations.
func (m *Metric) Percentile(p float64) (float64, error) {
	if p <= 0 || p > 100 {
		return 0, fmt.Errorf("percentile %g out of range (0, 100]", p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.compute()
	if err != nil {
		return 0, err
	}
	if s.percentiles == nil {
		return 0, ErrInsufficientData
	}
	if p == 100 {
		return s.max, nil
	}
	if whole := int(p); float64(whole) == p {
		return s.percentiles[whole-1], nil
	}
	value, err := stats.Percentile(s.sorted, p)
	if err != nil {
		return 0, ErrInsufficientData
	}
	return value, nil
}

// Counter returns how many times each distinct value was recorded.
func (m *Metric) Counter() map[float64]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.compute()
	if err != nil {
		return map[float64]int{}
	}
	out := make(map[float64]int, len(s.counter))
	for v, n := range s.counter {
		out[v] = n
	}
	return out
}

// Distribution returns the proportion of observations per distinct value.
// For boolean accumulators this is the pass/fail split.
func (m *Metric) Distribution() map[float64]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.compute()
	if err != nil {
		return map[float64]float64{}
	}
	out := make(map[float64]float64, len(s.distribution))
	for v, share := range s.distribution {
		out[v] = share
	}
	return out
}

// P25 returns the 25th percentile.
func (m *Metric) P25() (float64, error) { return m.Percentile(25) }

// P50 returns the 50th percentile.
func (m *Metric) P50() (float64, error) { return m.Percentile(50) }

// P75 returns the 75th percentile.
func (m *Metric) P75() (float64, error) { return m.Percentile(75) }

// P90 returns the 90th percentile.
func (m *Metric) P90() (float64, error) { return m.Percentile(90) }

// P95 returns the 95th percentile.
func (m *Metric) P95() (float64, error) { return m.Percentile(95) }

// P99 returns the 99th percentile.
func (m *Metric) P99() (float64, error) { return m.Percentile(99) }

// Critical z values for the supported confidence levels.
const (
	z90 = 1.645
	z95 = 1.96
	z99 = 2.576
)

func (m *Metric) confidenceInterval(z float64) (Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.compute()
	if err != nil {
		return Interval{}, err
	}
	n := len(s.sorted)
	if n < 2 {
		return Interval{}, ErrInsufficientData
	}
	margin := z * math.Sqrt(s.variance) / math.Sqrt(float64(n))
	return Interval{Low: s.mean - margin, High: s.mean + margin}, nil
}

// CI90 returns the 90% confidence interval around the mean.
func (m *Metric) CI90() (Interval, error) { return m.confidenceInterval(z90) }

// CI95 returns the 95% confidence interval around the mean.
func (m *Metric) CI95() (Interval, error) { return m.confidenceInterval(z95) }

// CI99 returns the 99% confidence interval around the mean.
func (m *Metric) CI99() (Interval, error) { return m.confidenceInterval(z99) }

// Result produces the immutable aggregate snapshot the runner stores.
func (m *Metric) Result() harness.MetricResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := harness.MetricResult{
		Name:       m.name,
		Scope:      m.scope,
		Count:      len(m.values),
		Tests:      sortedKeys(m.tests),
		Cases:      sortedKeys(m.cases),
		Resources:  sortedKeys(m.resources),
		Assertions: append([]*harness.AssertionResult(nil), m.assertions...),
	}
	if s, err := m.compute(); err == nil {
		result.Mean = s.mean
		result.Value = s.mean
	}
	return result
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Definition declares a metric accumulator as a resolvable resource.
type Definition struct {
	// Name is the resource and accumulator name.
	Name string
	// Scope is the accumulator lifetime. Shared scopes make the accumulator
	// visible to the run-level snapshot.
	Scope harness.Scope
}

// Register adds the accumulator to a resource registry. The factory creates
// one instance per resolver cache entry; no teardown is needed since the
// runner reads the accumulator after the last test completes.
func (d Definition) Register(reg *harness.ResourceRegistry) error {
	return reg.Register(harness.ResourceDef{
		Name:  d.Name,
		Scope: d.Scope,
		Factory: func(ctx context.Context, deps map[string]any) (any, harness.CleanupFunc, error) {
			return New(d.Name, d.Scope), nil, nil
		},
	})
}
