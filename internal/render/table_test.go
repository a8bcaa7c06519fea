package render

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/result"
)

func makeResult(rows int) result.Tabular {
	t := result.Tabular{Columns: []string{"REGION", "TOTAL_SALES"}}
	for i := 0; i < rows; i++ {
		t.Rows = append(t.Rows, map[string]any{
			"REGION":      fmt.Sprintf("Region %d", i),
			"TOTAL_SALES": float64(1000000 + i),
		})
	}
	t.Count = rows
	return t
}

func TestCortex_Render_TableBasic(t *testing.T) {
	t.Parallel()

	text, shown := Table(makeResult(5), 10)
	require.Equal(t, 5, shown)
	require.True(t, strings.HasPrefix(text, "```\n"))
	require.Contains(t, text, "Total Sales")
	require.Contains(t, text, "$1,000,000")
	require.Contains(t, text, "5 rows")
	require.NotContains(t, text, "Showing")
}

func TestCortex_Render_TableShowsRequestedSubset(t *testing.T) {
	t.Parallel()

	text, shown := Table(makeResult(50), 10)
	require.Equal(t, 10, shown)
	require.Contains(t, text, "Showing 10 of 50 rows")
}

func TestCortex_Render_TableStaysUnderLimit(t *testing.T) {
	t.Parallel()

	// Wide values force the fallback ladder well below the requested 200.
	tab := result.Tabular{Columns: []string{"NAME", "NOTES"}}
	long := strings.Repeat("x", 120)
	for i := 0; i < 200; i++ {
		tab.Rows = append(tab.Rows, map[string]any{
			"NAME":  fmt.Sprintf("row-%03d", i),
			"NOTES": long,
		})
	}
	tab.Count = 200

	text, shown := Table(tab, 200)
	require.LessOrEqual(t, len(text), maxTableChars)
	require.Less(t, shown, 200)
	require.GreaterOrEqual(t, shown, minFallbackRows)
}

func TestCortex_Render_TableSingleRowFieldList(t *testing.T) {
	t.Parallel()

	tab := result.Tabular{
		Columns: []string{"REGION", "TOTAL_SALES", "AS_OF"},
		Rows: []map[string]any{{
			"REGION":      "West",
			"TOTAL_SALES": 2500000.0,
			"AS_OF":       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		}},
		Count: 1,
	}
	text, shown := Table(tab, 10)
	require.Equal(t, 1, shown)
	require.NotContains(t, text, "```")
	require.Contains(t, text, "*Region:* West")
	require.Contains(t, text, "*Total Sales:* $2,500,000")
	require.Contains(t, text, "*As Of:* 2024-03-01")
}

func TestCortex_Render_TableEmpty(t *testing.T) {
	t.Parallel()

	text, shown := Table(result.Tabular{Columns: []string{"A"}}, 10)
	require.Equal(t, 0, shown)
	require.Contains(t, text, "no results")
	require.Contains(t, strings.ToLower(text), "permission")
}

func TestCortex_Render_FallbackLadder(t *testing.T) {
	t.Parallel()

	require.Equal(t, []int{200, 100, 50, 25, 3}, fallbackLadder(200))
	require.Equal(t, []int{40, 20, 10, 3}, fallbackLadder(40))
	require.Equal(t, []int{10, 3}, fallbackLadder(10))
	require.Equal(t, []int{3}, fallbackLadder(3))
}

func TestCortex_Render_Cell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		col      string
		value    any
		expected string
	}{
		{name: "nil", col: "A", value: nil, expected: "NULL"},
		{name: "currency", col: "TOTAL_SALES", value: 1234567.0, expected: "$1,234,567"},
		{name: "negative currency", col: "COST", value: -5000.0, expected: "-$5,000"},
		{name: "plain integer", col: "ORDER_COUNT", value: int64(4200), expected: "4,200"},
		{name: "fractional", col: "RATIO", value: 0.3456, expected: "0.35"},
		{name: "large fractional", col: "AVG_DEAL", value: 1234.5, expected: "1,234.50"},
		{name: "negative large fractional", col: "DELTA", value: -98765.432, expected: "-98,765.43"},
		{name: "fractional rounds across grouping", col: "AVG_DEAL", value: 1999.999, expected: "2,000.00"},
		{name: "string passthrough", col: "REGION", value: "West", expected: "West"},
		{name: "date", col: "ORDER_DATE", value: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), expected: "2024-01-15"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, Cell(tt.col, tt.value))
		})
	}
}

func TestCortex_Render_RowLimitOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		size     int
		expected []int
	}{
		{name: "small result gets exact size", size: 7, expected: []int{7}},
		{name: "exact standard", size: 25, expected: []int{10, 25}},
		{name: "between standards", size: 60, expected: []int{10, 25, 50, 60}},
		{name: "at cap", size: 200, expected: []int{10, 25, 50, 100, 200}},
		{name: "beyond cap omits exact", size: 5000, expected: []int{10, 25, 50, 100, 200}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, RowLimitOptions(tt.size))
		})
	}
}
