package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/result"
)

// Range is a numeric constraint on a single column. Nil bounds are open.
type Range struct {
	Min *float64
	Max *float64
}

// Spec holds user-supplied narrowing, sorting, and capping parameters applied
// in memory against an already-fetched result. Fields are independent; an
// empty Spec applies nothing.
type Spec struct {
	DateStart   string
	DateEnd     string
	Categorical map[string][]string
	Numeric     map[string]Range
	SortColumn  string
	SortDesc    bool
	TopN        int
}

// IsEmpty reports whether the spec constrains anything at all.
func (s Spec) IsEmpty() bool {
	return s.DateStart == "" && s.DateEnd == "" &&
		len(s.Categorical) == 0 && len(s.Numeric) == 0 &&
		s.SortColumn == "" && s.TopN == 0
}

func (s Spec) clone() Spec {
	dup := s
	if s.Categorical != nil {
		dup.Categorical = make(map[string][]string, len(s.Categorical))
		for k, v := range s.Categorical {
			vals := make([]string, len(v))
			copy(vals, v)
			dup.Categorical[k] = vals
		}
	}
	if s.Numeric != nil {
		dup.Numeric = make(map[string]Range, len(s.Numeric))
		for k, v := range s.Numeric {
			dup.Numeric[k] = v
		}
	}
	return dup
}

// Clone returns an independent copy of the spec.
func (s Spec) Clone() Spec { return s.clone() }

// currencyKeywords marks columns rendered (and described) with a dollar prefix.
var currencyKeywords = []string{"SALES", "AMOUNT", "REVENUE", "TOTAL", "COST", "PRICE", "VALUE"}

// IsCurrencyColumn reports whether a column name looks monetary.
func IsCurrencyColumn(name string) bool {
	upper := strings.ToUpper(name)
	for _, kw := range currencyKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// DateColumn returns the first column whose name contains a date/period
// marker, or "" when the result has none.
func DateColumn(t result.Tabular) string {
	for _, col := range t.Columns {
		upper := strings.ToUpper(col)
		if strings.Contains(upper, "DATE") || strings.Contains(upper, "PERIOD") {
			return col
		}
	}
	return ""
}

// Apply evaluates the spec against base in a fixed order: date range,
// categorical membership, numeric range (min then max), sort, row cap. It
// returns the filtered result plus a human-readable description of every step
// that actually applied. An empty spec returns base unchanged, in content and
// order.
func Apply(base result.Tabular, spec Spec) (result.Tabular, []string) {
	if spec.IsEmpty() {
		return base, nil
	}

	rows := base.Rows
	var applied []string

	if dateCol := DateColumn(base); dateCol != "" && (spec.DateStart != "" || spec.DateEnd != "") {
		if spec.DateStart != "" {
			if start, ok := result.AsTime(spec.DateStart); ok {
				rows = keepRows(rows, func(row map[string]any) bool {
					ts, ok := result.AsTime(row[dateCol])
					return ok && !ts.Before(start)
				})
				applied = append(applied, fmt.Sprintf("%s: >= %s", titleCase(dateCol), spec.DateStart))
			}
		}
		if spec.DateEnd != "" {
			if end, ok := result.AsTime(spec.DateEnd); ok {
				rows = keepRows(rows, func(row map[string]any) bool {
					ts, ok := result.AsTime(row[dateCol])
					return ok && !ts.After(end)
				})
				applied = append(applied, fmt.Sprintf("%s: <= %s", titleCase(dateCol), spec.DateEnd))
			}
		}
	}

	for _, col := range base.Columns {
		allowed, ok := spec.Categorical[col]
		if !ok || len(allowed) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(allowed))
		for _, v := range allowed {
			set[v] = struct{}{}
		}
		rows = keepRows(rows, func(row map[string]any) bool {
			_, ok := set[fmt.Sprintf("%v", row[col])]
			return ok
		})
		applied = append(applied, fmt.Sprintf("%s: %s", titleCase(col), strings.Join(allowed, ", ")))
	}

	for _, col := range base.Columns {
		rng, ok := spec.Numeric[col]
		if !ok {
			continue
		}
		if rng.Min != nil {
			min := *rng.Min
			rows = keepRows(rows, func(row map[string]any) bool {
				v, ok := result.AsFloat(row[col])
				return ok && v >= min
			})
			applied = append(applied, fmt.Sprintf("%s: >= %s", titleCase(col), describeThreshold(col, min)))
		}
		if rng.Max != nil {
			max := *rng.Max
			rows = keepRows(rows, func(row map[string]any) bool {
				v, ok := result.AsFloat(row[col])
				return ok && v <= max
			})
			applied = append(applied, fmt.Sprintf("%s: <= %s", titleCase(col), describeThreshold(col, max)))
		}
	}

	if spec.SortColumn != "" && hasColumn(base, spec.SortColumn) {
		rows = sortRows(rows, spec.SortColumn, spec.SortDesc)
		direction := "ascending"
		if spec.SortDesc {
			direction = "descending"
		}
		applied = append(applied, fmt.Sprintf("Ordered by %s (%s)", titleCase(spec.SortColumn), direction))
	}

	if spec.TopN > 0 && spec.TopN < len(rows) {
		rows = rows[:spec.TopN]
		applied = append(applied, fmt.Sprintf("Limited to top %d rows", spec.TopN))
	}

	return result.Tabular{Columns: base.Columns, Rows: rows, Count: len(rows)}, applied
}

func keepRows(rows []map[string]any, keep func(map[string]any) bool) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

func sortRows(rows []map[string]any, col string, desc bool) []map[string]any {
	out := make([]map[string]any, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		less := cellLess(out[i][col], out[j][col])
		if desc {
			return cellLess(out[j][col], out[i][col])
		}
		return less
	})
	return out
}

func cellLess(a, b any) bool {
	af, aok := result.AsFloat(a)
	bf, bok := result.AsFloat(b)
	if aok && bok {
		return af < bf
	}
	at, aok := result.AsTime(a)
	bt, bok := result.AsTime(b)
	if aok && bok {
		return at.Before(bt)
	}
	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

func hasColumn(t result.Tabular, col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

func describeThreshold(col string, v float64) string {
	if IsCurrencyColumn(col) {
		return "$" + groupThousands(v)
	}
	if v >= 1000 {
		return groupThousands(v)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func groupThousands(v float64) string {
	s := strconv.FormatFloat(v, 'f', 0, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	out := b.String()
	if neg {
		out = "-" + out
	}
	return out
}

// titleCase turns TOTAL_SALES into Total Sales for user-facing descriptions.
func titleCase(col string) string {
	words := strings.Split(strings.ReplaceAll(col, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// GroupThousands formats a float with comma separators and no decimals.
// Exposed for the renderer, which shares the description style.
func GroupThousands(v float64) string { return groupThousands(v) }

// TitleCase is the user-facing form of a column name.
func TitleCase(col string) string { return titleCase(col) }
