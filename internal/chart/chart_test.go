package chart

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/result"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCortex_Chart_Render(t *testing.T) {
	t.Parallel()

	var captured renderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chart", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake image"))
	}))
	defer srv.Close()

	tab := result.Tabular{
		Columns: []string{"REGION", "TOTAL_SALES"},
		Rows:    []map[string]any{{"REGION": "West", "TOTAL_SALES": 100.0}},
		Count:   1,
	}

	c := NewClient(srv.URL, testLogger())
	png, err := c.Render(context.Background(), tab, "sales by region")
	require.NoError(t, err)
	require.NotEmpty(t, png)
	require.Equal(t, []string{"REGION", "TOTAL_SALES"}, captured.Columns)
	require.Equal(t, "sales by region", captured.Prompt)
}

func TestCortex_Chart_RenderServiceError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no numeric series", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	_, err := c.Render(context.Background(), result.Tabular{}, "prompt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no numeric series")
}

func TestCortex_Chart_RenderEmptyImage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	_, err := c.Render(context.Background(), result.Tabular{}, "prompt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty image")
}
