package slack

import (
	"log/slog"
	"strings"
	"testing"

	slackapi "github.com/slack-go/slack"
	"github.com/stretchr/testify/require"
)

func TestCortex_Slack_ConvertMarkdownToMrkdwn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bold with double asterisks",
			input:    "This is **bold** text",
			expected: "This is *bold* text",
		},
		{
			name:     "bold with underscores",
			input:    "This is __bold__ text",
			expected: "This is *bold* text",
		},
		{
			name:     "strikethrough",
			input:    "This is ~~deleted~~ text",
			expected: "This is ~deleted~ text",
		},
		{
			name:     "link conversion",
			input:    "See [the dashboard](https://example.com/sales)",
			expected: "See <https://example.com/sales|the dashboard>",
		},
		{
			name:     "header conversion",
			input:    "### Quarterly Summary",
			expected: "*Quarterly Summary*",
		},
		{
			name:     "inline code preserved",
			input:    "Use `SUM(SALES)` here",
			expected: "Use `SUM(SALES)` here",
		},
		{
			name:     "list with bold items",
			input:    "- **West**\n- **East**",
			expected: "- *West*\n- *East*",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := convertMarkdownToMrkdwn(tt.input)
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestCortex_Slack_SanitizeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		errMsg string
		want   string
	}{
		{
			name:   "rate limit error",
			errMsg: "rate_limit_error: too many requests",
			want:   "I'm currently experiencing high demand. Please try again in a moment.",
		},
		{
			name:   "rate limit 429",
			errMsg: "HTTP 429: rate limit exceeded",
			want:   "I'm currently experiencing high demand. Please try again in a moment.",
		},
		{
			name:   "connection refused",
			errMsg: "dial tcp: connection refused",
			want:   "I'm having trouble connecting to the data service. Please try again in a moment.",
		},
		{
			name:   "EOF error",
			errMsg: "EOF error occurred",
			want:   "I'm having trouble connecting to the data service. Please try again in a moment.",
		},
		{
			name:   "clickhouse exception",
			errMsg: "DB::Exception: Unknown identifier REGOIN",
			want:   "I encountered an issue processing your query. Please try rephrasing your question or providing more specific details.",
		},
		{
			name:   "agent error",
			errMsg: "agent error: upstream unavailable (status 502)",
			want:   "I encountered an error processing your request. Please try again.",
		},
		{
			name:   "error with internal details",
			errMsg: "Error occurred\nRequest-ID: abc123\nhttps://api.example.com/error\nActual error message",
			want:   "Sorry, I encountered an error: Error occurred Actual error message",
		},
		{
			name:   "generic error",
			errMsg: "something went wrong",
			want:   "Sorry, I encountered an error: something went wrong",
		},
		{
			name:   "empty error",
			errMsg: "",
			want:   "Sorry, I encountered an error. Please try again.",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, SanitizeErrorMessage(tt.errMsg))
		})
	}
}

func TestCortex_Slack_SetExpandOnSectionBlocks(t *testing.T) {
	t.Parallel()

	t.Run("nil blocks", func(t *testing.T) {
		t.Parallel()
		got := SetExpandOnSectionBlocks(nil, slog.Default())
		require.Nil(t, got)
	})

	t.Run("code fence block stays atomic", func(t *testing.T) {
		t.Parallel()
		text := slackapi.NewTextBlockObject(slackapi.MarkdownType, "```\nSELECT 1\n```\nmore", false, false)
		blocks := SetExpandOnSectionBlocks([]slackapi.Block{
			&slackapi.SectionBlock{Type: slackapi.MBTSection, Text: text},
		}, slog.Default())
		require.Len(t, blocks, 1)
		section := blocks[0].(*slackapi.SectionBlock)
		require.True(t, section.Expand)
	})

	t.Run("prose paragraphs split", func(t *testing.T) {
		t.Parallel()
		text := slackapi.NewTextBlockObject(slackapi.MarkdownType, "first paragraph\n\nsecond paragraph", false, false)
		blocks := SetExpandOnSectionBlocks([]slackapi.Block{
			&slackapi.SectionBlock{Type: slackapi.MBTSection, Text: text},
		}, slog.Default())
		require.Len(t, blocks, 2)
		for _, b := range blocks {
			require.True(t, b.(*slackapi.SectionBlock).Expand)
		}
	})
}

func TestCortex_Slack_ConvertMarkdownToBlocks_CodeBlocks(t *testing.T) {
	t.Parallel()

	input := "Here is the query:\n```sql\nSELECT REGION, SUM(SALES)\nFROM orders\nGROUP BY REGION\n```\nLet me know if you need changes."
	blocks := ConvertMarkdownToBlocks(input, slog.Default())
	require.NotEmpty(t, blocks)

	var codeBlockFound bool
	for _, b := range blocks {
		section, ok := b.(*slackapi.SectionBlock)
		if !ok || section.Text == nil {
			continue
		}
		if strings.Contains(section.Text.Text, "SELECT REGION, SUM(SALES)") {
			codeBlockFound = true
			// Language specifier must be stripped, fence preserved
			require.True(t, strings.HasPrefix(section.Text.Text, "```\n"))
			require.NotContains(t, section.Text.Text, "sql\n")
			require.Contains(t, section.Text.Text, "GROUP BY REGION")
		}
	}
	require.True(t, codeBlockFound, "code block should survive conversion intact")
}

func TestCortex_Slack_SplitIntoParagraphsKeepsLists(t *testing.T) {
	t.Parallel()

	input := "Intro line\n\n- item one\n- item two\n\nClosing line"
	paras := splitIntoParagraphs(input)
	require.Equal(t, []string{"Intro line", "- item one\n- item two", "Closing line"}, paras)
}
