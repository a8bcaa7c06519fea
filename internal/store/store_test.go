package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/advisor"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/filter"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/result"
)

func fixture() result.Tabular {
	return result.Tabular{
		Columns: []string{"REGION", "TOTAL_SALES"},
		Rows: []map[string]any{
			{"REGION": "West", "TOTAL_SALES": 100.0},
			{"REGION": "East", "TOTAL_SALES": 200.0},
		},
		Count: 2,
	}
}

func TestCortex_Store_PutAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	s.Put("111.222", "SELECT 1", "total sales by region", fixture())

	st, ok := s.Get("111.222")
	require.True(t, ok)
	require.Equal(t, "SELECT 1", st.SQL)
	require.Equal(t, "total sales by region", st.Prompt)
	require.Equal(t, 2, st.Original.Count)
	require.Equal(t, st.Original.Rows, st.Current.Rows)
	require.True(t, st.Filters.IsEmpty())
	require.Equal(t, 1, s.Len())
}

func TestCortex_Store_GetUnknown(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok := s.Get("missing")
	require.False(t, ok)
}

func TestCortex_Store_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New()
	s.Put("111.222", "SELECT 1", "prompt", fixture())

	st, ok := s.Get("111.222")
	require.True(t, ok)
	st.Current.Rows[0]["REGION"] = "mutated"
	st.Filters.TopN = 99

	again, ok := s.Get("111.222")
	require.True(t, ok)
	require.Equal(t, "West", again.Current.Rows[0]["REGION"])
	require.True(t, again.Filters.IsEmpty())
}

func TestCortex_Store_DeriveInheritsOriginal(t *testing.T) {
	t.Parallel()

	s := New()
	s.Put("111.222", "SELECT 1", "prompt", fixture())

	narrowed := result.Tabular{
		Columns: []string{"REGION", "TOTAL_SALES"},
		Rows:    []map[string]any{{"REGION": "West", "TOTAL_SALES": 100.0}},
		Count:   1,
	}
	spec := filter.Spec{Categorical: map[string][]string{"REGION": {"West"}}}
	require.True(t, s.Derive("333.444", "111.222", narrowed, spec))

	child, ok := s.Get("333.444")
	require.True(t, ok)
	require.Equal(t, "SELECT 1", child.SQL)
	require.Equal(t, 2, child.Original.Count)
	require.Equal(t, 1, child.Current.Count)
	require.False(t, child.Filters.IsEmpty())

	// The ancestor's view stays untouched.
	parent, ok := s.Get("111.222")
	require.True(t, ok)
	require.Equal(t, 2, parent.Current.Count)
	require.True(t, parent.Filters.IsEmpty())
}

func TestCortex_Store_DeriveUnknownAncestor(t *testing.T) {
	t.Parallel()

	s := New()
	require.False(t, s.Derive("333.444", "missing", fixture(), filter.Spec{}))
}

func TestCortex_Store_SetVerdict(t *testing.T) {
	t.Parallel()

	s := New()
	s.Put("111.222", "SELECT 1", "prompt", fixture())

	v := advisor.Verdict{NeedsRefinement: true, Suggestion: "be more specific"}
	require.True(t, s.SetVerdict("111.222", v))

	st, ok := s.Get("111.222")
	require.True(t, ok)
	require.NotNil(t, st.Verdict)
	require.Equal(t, v, *st.Verdict)

	require.False(t, s.SetVerdict("missing", v))
}

func TestCortex_Store_DisplaySettings(t *testing.T) {
	t.Parallel()

	s := New()
	s.Put("111.222", "SELECT 1", "prompt", fixture())

	st, ok := s.Get("111.222")
	require.True(t, ok)
	require.Zero(t, st.RowLimit)
	require.False(t, st.SQLVisible)
	require.Nil(t, st.Verdict)

	require.True(t, s.SetRowLimit("111.222", 50))
	require.True(t, s.SetSQLVisible("111.222"))

	st, ok = s.Get("111.222")
	require.True(t, ok)
	require.Equal(t, 50, st.RowLimit)
	require.True(t, st.SQLVisible)

	require.False(t, s.SetRowLimit("missing", 50))
	require.False(t, s.SetSQLVisible("missing"))
}
