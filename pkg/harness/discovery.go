package harness

import (
	"sort"
	"sync"
)

// SuiteRegistry holds registered suites in registration order. Registration
// order defines discovery order: Collect walks suites and their tests in the
// order they were added, and every later ordering guarantee of the runtime
// refers to that order.
type SuiteRegistry struct {
	mu     sync.RWMutex
	suites []SuiteDef
	names  map[string]struct{}
}

// NewSuiteRegistry creates an empty registry. The process-wide default
// registry suffices for normal use; isolated registries exist for tests of
// the runtime itself.
func NewSuiteRegistry() *SuiteRegistry {
	return &SuiteRegistry{names: map[string]struct{}{}}
}

// Add registers a suite. Duplicate suite names and tests without a body are
// configuration errors.
func (r *SuiteRegistry) Add(suite SuiteDef) error {
	if suite.Name == "" {
		return &ConfigurationError{Subject: "suite", Reason: "suite has no name"}
	}
	for _, test := range suite.Tests {
		if test.Name == "" {
			return &ConfigurationError{Subject: suite.Name, Reason: "test has no name"}
		}
		if test.Fn == nil {
			return &ConfigurationError{Subject: suite.Name + "::" + test.Name, Reason: "test has no body"}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[suite.Name]; exists {
		return &ConfigurationError{Subject: suite.Name, Reason: "suite name already registered"}
	}
	r.names[suite.Name] = struct{}{}
	r.suites = append(r.suites, suite)
	return nil
}

// Suites returns the registered suites in registration order.
func (r *SuiteRegistry) Suites() []SuiteDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SuiteDef, len(r.suites))
	copy(out, r.suites)
	return out
}

var defaultSuites = NewSuiteRegistry()

// DefaultSuites returns the process-wide suite registry.
func DefaultSuites() *SuiteRegistry { return defaultSuites }

// RegisterSuite adds a suite to the default registry, panicking on
// configuration errors. Intended for package-level var blocks or init
// functions of test packages, where a declaration error should abort the
// binary immediately.
func RegisterSuite(suite SuiteDef) {
	if err := defaultSuites.Add(suite); err != nil {
		panic(err)
	}
}

// CollectFilter narrows collection. Zero value collects everything.
type CollectFilter struct {
	// Suite restricts collection to one suite name.
	Suite string
	// Test restricts collection to one test name.
	Test string
	// Tags requires every listed tag to be present on an item.
	Tags []string
}

func (f CollectFilter) matches(item TestItem) bool {
	if f.Suite != "" && item.Suite != f.Suite {
		return false
	}
	if f.Test != "" && item.Name != f.Test {
		return false
	}
	for _, tag := range f.Tags {
		if !item.HasTag(tag) {
			return false
		}
	}
	return true
}

// Collect expands every registered test into TestItems, merging suite-level
// metadata into each test (test-level skip/xfail markers win; tags union)
// and multiplying parametrization axes into one item per parameter set.
// Items are returned in discovery order.
func Collect(reg *SuiteRegistry, filter CollectFilter) ([]TestItem, error) {
	var items []TestItem
	for _, suite := range reg.Suites() {
		for _, test := range suite.Tests {
			expanded, err := buildItems(suite, test)
			if err != nil {
				return nil, err
			}
			for _, item := range expanded {
				if filter.matches(item) {
					items = append(items, item)
				}
			}
		}
	}
	return items, nil
}

// buildItems creates the TestItems for one test, expanding parametrization.
func buildItems(suite SuiteDef, test TestDef) ([]TestItem, error) {
	fullName := suite.Name + "::" + test.Name

	skip := suite.Skip
	if test.Skip != "" {
		skip = test.Skip
	}
	xfail := suite.XFail
	strict := suite.XFailStrict
	if test.XFail != "" {
		xfail = test.XFail
		strict = test.XFailStrict
	}

	repeatCount := 1
	repeatMinPasses := 0
	if test.Repeat != nil {
		if test.Repeat.Count < 1 {
			return nil, &ConfigurationError{Subject: fullName, Reason: "repeat count must be at least 1"}
		}
		repeatCount = test.Repeat.Count
		repeatMinPasses = test.Repeat.MinPasses
		if repeatMinPasses <= 0 || repeatMinPasses > repeatCount {
			repeatMinPasses = repeatCount
		}
	}

	base := TestItem{
		Name:            test.Name,
		Suite:           suite.Name,
		Fn:              test.Fn,
		Params:          append([]string(nil), test.Params...),
		Tags:            mergeTags(suite.Tags, test.Tags),
		SkipReason:      skip,
		XFailReason:     xfail,
		XFailStrict:     strict,
		RepeatCount:     repeatCount,
		RepeatMinPasses: repeatMinPasses,
	}

	sets, err := ParameterSets(fullName, test.Axes)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return []TestItem{base}, nil
	}

	items := make([]TestItem, 0, len(sets))
	for _, set := range sets {
		item := base
		item.ParamValues = set.Values
		item.IDSuffix = set.IDSuffix
		items = append(items, item)
	}
	return items, nil
}

// mergeTags unions suite and test tags into a sorted, de-duplicated slice.
func mergeTags(suiteTags, testTags []string) []string {
	seen := map[string]struct{}{}
	for _, t := range suiteTags {
		seen[t] = struct{}{}
	}
	for _, t := range testTags {
		seen[t] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
