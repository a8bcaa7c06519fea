package result

import (
	"strconv"
	"strings"
	"time"
)

// Tabular is an executed query result: ordered columns and rows keyed by
// column name. Cell values are string, Go numerics, time.Time, or nil.
// Column order is stable and drives display order.
type Tabular struct {
	Columns []string
	Rows    []map[string]any
	Count   int
}

// Clone returns a deep copy. Branching interactions copy results by value so
// that a derived message can never mutate its ancestor's data.
func (t Tabular) Clone() Tabular {
	cols := make([]string, len(t.Columns))
	copy(cols, t.Columns)
	rows := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		dup := make(map[string]any, len(row))
		for k, v := range row {
			dup[k] = v
		}
		rows[i] = dup
	}
	return Tabular{Columns: cols, Rows: rows, Count: t.Count}
}

// AsFloat coerces a cell value to float64. Strings are parsed after stripping
// commas and a leading currency sign.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		s = strings.TrimPrefix(s, "$")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// dateLayouts are the formats accepted when a date column arrives as text.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// AsTime coerces a cell value to a time.Time.
func AsTime(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case string:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, strings.TrimSpace(d)); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// IsNumericColumn reports whether every non-nil cell of the column coerces to
// a number. Columns with no usable values are not numeric.
func (t Tabular) IsNumericColumn(col string) bool {
	seen := false
	for _, row := range t.Rows {
		v := row[col]
		if v == nil {
			continue
		}
		if _, ok := v.(string); ok {
			return false
		}
		if _, ok := AsFloat(v); !ok {
			return false
		}
		seen = true
	}
	return seen
}
