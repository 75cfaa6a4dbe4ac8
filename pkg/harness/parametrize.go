package harness

import (
	"fmt"
	"strings"
)

// Axis declares one parametrization axis on a test: a set of parameter
// names and the rows of values they take. Declaring several axes on one
// test multiplies their combinations.
type Axis struct {
	// Names are the parameter names this axis binds, in row order.
	Names []string
	// Rows are the value tuples; every row must have len(Names) entries.
	Rows [][]any
	// IDs optionally overrides the derived id for each row.
	IDs []string
}

// ParameterSet is one concrete assignment of parameter names to values plus
// the id suffix derived for it.
type ParameterSet struct {
	// Values maps parameter names to their concrete values.
	Values map[string]any
	// IDSuffix is the human-readable identifier of this combination.
	IDSuffix string
}

// NamesOf splits a comma-separated parameter list into axis names.
func NamesOf(names string) []string {
	parts := strings.Split(names, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Row builds one axis row from values.
func Row(values ...any) []any { return values }

// validate checks the axis declaration. A test with a declared axis but no
// usable rows is a configuration error reported at collection time, never a
// silent zero-item expansion.
func (a Axis) validate(subject string) error {
	if len(a.Names) == 0 {
		return &ConfigurationError{Subject: subject, Reason: "parametrization axis declares no parameter names"}
	}
	if len(a.Rows) == 0 {
		return &ConfigurationError{Subject: subject, Reason: "parametrization axis declares no values"}
	}
	for i, row := range a.Rows {
		if len(row) != len(a.Names) {
			return &ConfigurationError{
				Subject: subject,
				Reason:  fmt.Sprintf("axis row %d has %d values, expected %d", i, len(row), len(a.Names)),
			}
		}
	}
	if a.IDs != nil && len(a.IDs) != len(a.Rows) {
		return &ConfigurationError{
			Subject: subject,
			Reason:  fmt.Sprintf("axis declares %d ids for %d rows", len(a.IDs), len(a.Rows)),
		}
	}
	return nil
}

// rowID derives the identifier for one axis row: the explicit id when
// supplied, else name=value pairs joined with "-". Non-primitive values fall
// back to their type name.
func (a Axis) rowID(idx int) string {
	if a.IDs != nil {
		return a.IDs[idx]
	}
	parts := make([]string, len(a.Names))
	for i, name := range a.Names {
		parts[i] = name + "=" + formatParamValue(a.Rows[idx][i])
	}
	return strings.Join(parts, "-")
}

func formatParamValue(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%T", v)
	}
}

// ParameterSets expands the declared axes into their full cartesian product
// in declaration order: each axis multiplies the combinations already
// produced by the axes before it, which defines the nesting order of the
// generated id suffixes.
func ParameterSets(subject string, axes []Axis) ([]ParameterSet, error) {
	if len(axes) == 0 {
		return nil, nil
	}
	for _, axis := range axes {
		if err := axis.validate(subject); err != nil {
			return nil, err
		}
	}

	combos := []ParameterSet{{Values: map[string]any{}}}
	for _, axis := range axes {
		next := make([]ParameterSet, 0, len(combos)*len(axis.Rows))
		for _, existing := range combos {
			for idx, row := range axis.Rows {
				values := make(map[string]any, len(existing.Values)+len(axis.Names))
				for k, v := range existing.Values {
					values[k] = v
				}
				for i, name := range axis.Names {
					values[name] = row[i]
				}

				suffix := axis.rowID(idx)
				if existing.IDSuffix != "" {
					suffix = existing.IDSuffix + "-" + suffix
				}
				next = append(next, ParameterSet{Values: values, IDSuffix: suffix})
			}
		}
		combos = next
	}

	for i := range combos {
		if combos[i].IDSuffix == "" {
			combos[i].IDSuffix = "params"
		}
	}
	return combos, nil
}
