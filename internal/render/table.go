// Package render turns query results into Slack-ready monospace tables,
// shrinking the row count as needed to stay under Slack's block size limit.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/filter"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/result"
)

// maxTableChars keeps the rendered table inside a single Slack section block,
// whose text limit is 3000 characters, with headroom for the code fence and
// the row-count footer.
const maxTableChars = 2800

// minFallbackRows is the last resort before hard character truncation.
const minFallbackRows = 3

// DefaultRowLimit is how many rows a fresh result shows.
const DefaultRowLimit = 10

// EmptyResultText is shown when a query returns zero rows. Row-level
// entitlement scoping filters silently, so an empty result often means the
// user is not entitled to the rows rather than that none exist.
const EmptyResultText = "_There were no results for your query. This may be a permissions issue._"

var standardRowLimits = []int{10, 25, 50, 100, 200}

// Table renders up to requested rows of t as a fenced monospace table and
// reports how many rows actually made it in. When the rendered text would
// exceed the block limit, the row count falls back through requested/2,
// requested/4, requested/8 (never below 10), then 3, and finally the text is
// cut at the character limit.
func Table(t result.Tabular, requested int) (string, int) {
	if t.Count == 0 {
		return EmptyResultText, 0
	}
	if t.Count == 1 {
		return fieldList(t), 1
	}
	if requested < 1 {
		requested = DefaultRowLimit
	}
	if requested > t.Count {
		requested = t.Count
	}

	for _, shown := range fallbackLadder(requested) {
		if shown > t.Count {
			shown = t.Count
		}
		text := renderRows(t, shown)
		if len(text) <= maxTableChars {
			return text, shown
		}
	}

	text := renderRows(t, minFallbackRows)
	if len(text) > maxTableChars {
		text = text[:maxTableChars]
	}
	shown := minFallbackRows
	if shown > t.Count {
		shown = t.Count
	}
	return text, shown
}

func fallbackLadder(requested int) []int {
	ladder := []int{requested}
	for div := 2; div <= 8; div *= 2 {
		next := requested / div
		if next < DefaultRowLimit {
			next = DefaultRowLimit
		}
		if next < ladder[len(ladder)-1] {
			ladder = append(ladder, next)
		}
	}
	if minFallbackRows < ladder[len(ladder)-1] {
		ladder = append(ladder, minFallbackRows)
	}
	return ladder
}

func renderRows(t result.Tabular, shown int) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)

	header := make(table.Row, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = filter.TitleCase(col)
	}
	w.AppendHeader(header)

	for _, row := range t.Rows[:shown] {
		cells := make(table.Row, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = Cell(col, row[col])
		}
		w.AppendRow(cells)
	}

	var b strings.Builder
	b.WriteString("```\n")
	b.WriteString(w.Render())
	b.WriteString("\n```\n")
	if shown < t.Count {
		fmt.Fprintf(&b, "Showing %d of %d rows", shown, t.Count)
	} else {
		fmt.Fprintf(&b, "%d rows", t.Count)
	}
	return b.String()
}

// fieldList renders a single-row result as label/value lines, which reads
// better than a one-row table for scalar answers.
func fieldList(t result.Tabular) string {
	row := t.Rows[0]
	var b strings.Builder
	for _, col := range t.Columns {
		fmt.Fprintf(&b, "*%s:* %s\n", filter.TitleCase(col), Cell(col, row[col]))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Cell formats one value for display: currency columns get a dollar prefix
// and thousands grouping, other numerics get grouping, dates collapse to
// YYYY-MM-DD, nil becomes NULL.
func Cell(col string, v any) string {
	if v == nil {
		return "NULL"
	}
	if ts, ok := v.(time.Time); ok {
		return ts.Format("2006-01-02")
	}
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := result.AsFloat(v); ok {
		if filter.IsCurrencyColumn(col) {
			if f < 0 {
				return "-$" + filter.GroupThousands(-f)
			}
			return "$" + filter.GroupThousands(f)
		}
		if f == float64(int64(f)) {
			return filter.GroupThousands(f)
		}
		if f >= 1000 || f <= -1000 {
			return groupedDecimal(f)
		}
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
	return fmt.Sprintf("%v", v)
}

// groupedDecimal renders a fractional value with two decimals and a
// comma-grouped integer part, rounding first so the two halves agree.
func groupedDecimal(f float64) string {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	dot := strings.IndexByte(s, '.')
	whole, err := strconv.ParseFloat(s[:dot], 64)
	if err != nil {
		return s
	}
	return filter.GroupThousands(whole) + s[dot:]
}

// RowLimitOptions returns the dropdown choices for a result of the given
// size: the standard limits that fit, plus the exact size when it is small
// enough to show everything.
func RowLimitOptions(size int) []int {
	if size < 1 {
		return []int{1}
	}
	opts := make([]int, 0, len(standardRowLimits)+1)
	for _, n := range standardRowLimits {
		if n <= size {
			opts = append(opts, n)
		}
	}
	if size <= standardRowLimits[len(standardRowLimits)-1] {
		if len(opts) == 0 || opts[len(opts)-1] != size {
			opts = append(opts, size)
		}
	}
	return opts
}
