package filter

import (
	"fmt"
	"sort"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/result"
)

const (
	minCategoricalValues = 2
	maxCategoricalValues = 50
	maxNumericColumns    = 2
)

// CategoricalOption is a column suitable for multi-select filtering together
// with its distinct values, sorted for stable modal rendering.
type CategoricalOption struct {
	Column string
	Values []string
}

// Options describes which filter inputs the modal should offer for a given
// result set.
type Options struct {
	DateColumn  string
	Categorical []CategoricalOption
	Numeric     []string
	Sortable    []string
}

// Analyze inspects a result and derives the filterable surface: the first
// date-like column, string columns with a modest number of distinct values,
// and up to two currency-like numeric columns for threshold inputs. All
// columns remain sortable.
func Analyze(t result.Tabular) Options {
	opts := Options{
		DateColumn: DateColumn(t),
		Sortable:   append([]string(nil), t.Columns...),
	}

	for _, col := range t.Columns {
		if col == opts.DateColumn {
			continue
		}
		if t.IsNumericColumn(col) {
			if len(opts.Numeric) < maxNumericColumns && IsCurrencyColumn(col) {
				opts.Numeric = append(opts.Numeric, col)
			}
			continue
		}
		if vals := distinctStrings(t, col); len(vals) >= minCategoricalValues && len(vals) <= maxCategoricalValues {
			opts.Categorical = append(opts.Categorical, CategoricalOption{Column: col, Values: vals})
		}
	}
	return opts
}

func distinctStrings(t result.Tabular, col string) []string {
	seen := make(map[string]struct{})
	for _, row := range t.Rows {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		seen[fmt.Sprintf("%v", v)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
