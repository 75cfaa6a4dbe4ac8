package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopBody(ctx context.Context, t *T) error { return nil }

func TestCollect_DiscoveryOrder(t *testing.T) {
	reg := NewSuiteRegistry()
	require.NoError(t, reg.Add(SuiteDef{
		Name: "alpha",
		Tests: []TestDef{
			{Name: "one", Fn: noopBody},
			{Name: "two", Fn: noopBody},
		},
	}))
	require.NoError(t, reg.Add(SuiteDef{
		Name:  "beta",
		Tests: []TestDef{{Name: "three", Fn: noopBody}},
	}))

	items, err := Collect(reg, CollectFilter{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "alpha::one", items[0].FullName())
	assert.Equal(t, "alpha::two", items[1].FullName())
	assert.Equal(t, "beta::three", items[2].FullName())
}

func TestCollect_ParametrizationExpansion(t *testing.T) {
	reg := NewSuiteRegistry()
	require.NoError(t, reg.Add(SuiteDef{
		Name: "suite",
		Tests: []TestDef{{
			Name:   "expanded",
			Fn:     noopBody,
			Params: []string{"model"},
			Axes: []Axis{
				{Names: NamesOf("model"), Rows: [][]any{Row("a"), Row("b")}},
			},
		}},
	}))

	items, err := Collect(reg, CollectFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "suite::expanded[model=a]", items[0].FullName())
	assert.Equal(t, "suite::expanded[model=b]", items[1].FullName())
	assert.Equal(t, "a", items[0].ParamValues["model"])
}

func TestCollect_SuiteMetadataMergesIntoItems(t *testing.T) {
	reg := NewSuiteRegistry()
	require.NoError(t, reg.Add(SuiteDef{
		Name: "suite",
		Tags: []string{"slow", "llm"},
		Skip: "suite disabled",
		Tests: []TestDef{
			{Name: "inherits", Fn: noopBody, Tags: []string{"llm", "extra"}},
			{Name: "overrides", Fn: noopBody, Skip: "test reason"},
		},
	}))

	items, err := Collect(reg, CollectFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, []string{"extra", "llm", "slow"}, items[0].Tags, "tags union, sorted")
	assert.Equal(t, "suite disabled", items[0].SkipReason)
	assert.Equal(t, "test reason", items[1].SkipReason, "test-level marker wins")
}

func TestCollect_XFailMarkerPrecedence(t *testing.T) {
	reg := NewSuiteRegistry()
	require.NoError(t, reg.Add(SuiteDef{
		Name:        "suite",
		XFail:       "suite flaky",
		XFailStrict: true,
		Tests: []TestDef{
			{Name: "inherits", Fn: noopBody},
			{Name: "overrides", Fn: noopBody, XFail: "own reason", XFailStrict: false},
		},
	}))

	items, err := Collect(reg, CollectFilter{})
	require.NoError(t, err)
	assert.Equal(t, "suite flaky", items[0].XFailReason)
	assert.True(t, items[0].XFailStrict)
	assert.Equal(t, "own reason", items[1].XFailReason)
	assert.False(t, items[1].XFailStrict)
}

func TestCollect_Filters(t *testing.T) {
	reg := NewSuiteRegistry()
	require.NoError(t, reg.Add(SuiteDef{
		Name: "a",
		Tests: []TestDef{
			{Name: "one", Fn: noopBody, Tags: []string{"fast"}},
			{Name: "two", Fn: noopBody, Tags: []string{"slow"}},
		},
	}))
	require.NoError(t, reg.Add(SuiteDef{
		Name:  "b",
		Tests: []TestDef{{Name: "one", Fn: noopBody, Tags: []string{"fast", "slow"}}},
	}))

	bySuite, err := Collect(reg, CollectFilter{Suite: "a"})
	require.NoError(t, err)
	assert.Len(t, bySuite, 2)

	byTest, err := Collect(reg, CollectFilter{Test: "one"})
	require.NoError(t, err)
	assert.Len(t, byTest, 2)

	byTags, err := Collect(reg, CollectFilter{Tags: []string{"fast", "slow"}})
	require.NoError(t, err)
	require.Len(t, byTags, 1)
	assert.Equal(t, "b::one", byTags[0].FullName())
}

func TestSuiteRegistry_RejectsInvalidDeclarations(t *testing.T) {
	reg := NewSuiteRegistry()

	err := reg.Add(SuiteDef{})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	err = reg.Add(SuiteDef{Name: "s", Tests: []TestDef{{Name: "t"}}})
	require.ErrorAs(t, err, &cfgErr)

	require.NoError(t, reg.Add(SuiteDef{Name: "dup"}))
	err = reg.Add(SuiteDef{Name: "dup"})
	require.ErrorAs(t, err, &cfgErr)
}

func TestCollect_RepeatValidation(t *testing.T) {
	reg := NewSuiteRegistry()
	require.NoError(t, reg.Add(SuiteDef{
		Name: "suite",
		Tests: []TestDef{
			{Name: "bad", Fn: noopBody, Repeat: &Repeat{Count: 0}},
		},
	}))
	_, err := Collect(reg, CollectFilter{})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	reg = NewSuiteRegistry()
	require.NoError(t, reg.Add(SuiteDef{
		Name: "suite",
		Tests: []TestDef{
			{Name: "clamped", Fn: noopBody, Repeat: &Repeat{Count: 5, MinPasses: 9}},
		},
	}))
	items, err := Collect(reg, CollectFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].RepeatCount)
	assert.Equal(t, 5, items[0].RepeatMinPasses, "threshold above count clamps to count")
}
