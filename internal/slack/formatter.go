package slack

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	slackutil "github.com/takara2314/slack-go-util"
)

// SetExpandOnSectionBlocks sets expand=true on section blocks to prevent
// "see more" truncation, splitting long prose sections by paragraph. Blocks
// containing code fences or list items are never split.
func SetExpandOnSectionBlocks(blocks []slack.Block, log *slog.Logger) []slack.Block {
	if blocks == nil {
		return nil
	}

	var result []slack.Block
	for _, block := range blocks {
		if block.BlockType() != slack.MBTSection {
			result = append(result, block)
			continue
		}
		sectionBlock := block.(*slack.SectionBlock)

		if sectionBlock.Text == nil || sectionBlock.Text.Text == "" {
			result = append(result, expanded(sectionBlock, sectionBlock.Text))
			continue
		}

		text := sectionBlock.Text.Text
		atomic := strings.Contains(text, "```") ||
			!strings.Contains(text, "\n") ||
			containsListItems(text)
		if atomic {
			result = append(result, expanded(sectionBlock, sectionBlock.Text))
			continue
		}

		for _, para := range splitIntoParagraphs(text) {
			paraText := slack.NewTextBlockObject(sectionBlock.Text.Type, para, false, false)
			result = append(result, expanded(sectionBlock, paraText))
		}
	}
	return result
}

func expanded(src *slack.SectionBlock, text *slack.TextBlockObject) *slack.SectionBlock {
	return &slack.SectionBlock{
		Type:      src.Type,
		Text:      text,
		BlockID:   src.BlockID,
		Fields:    src.Fields,
		Accessory: src.Accessory,
		Expand:    true,
	}
}

func containsListItems(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if isListItem(line) {
			return true
		}
	}
	return false
}

// isListItem checks if a line is a bullet or numbered list item.
func isListItem(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) > 1 && (trimmed[0] == '-' || trimmed[0] == '*') {
		if trimmed[1] == ' ' || trimmed[1] == '\t' {
			return true
		}
	}
	if len(trimmed) > 0 && trimmed[0] >= '0' && trimmed[0] <= '9' {
		for i := 1; i < len(trimmed) && i < 10; i++ {
			if trimmed[i] == '.' || trimmed[i] == ')' {
				if i+1 < len(trimmed) && (trimmed[i+1] == ' ' || trimmed[i+1] == '\t') {
					return true
				}
			}
			if trimmed[i] < '0' || trimmed[i] > '9' {
				break
			}
		}
	}
	return false
}

// splitIntoParagraphs splits text by blank lines, keeping list runs together.
func splitIntoParagraphs(text string) []string {
	var paragraphs []string

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		inList := false
		var currentList []string
		var currentParagraph strings.Builder

		for _, line := range strings.Split(para, "\n") {
			if strings.TrimSpace(line) == "" {
				if inList && len(currentList) > 0 {
					paragraphs = append(paragraphs, strings.Join(currentList, "\n"))
					currentList = nil
					inList = false
				}
				continue
			}

			if isListItem(line) {
				if !inList && currentParagraph.Len() > 0 {
					paragraphs = append(paragraphs, strings.TrimSpace(currentParagraph.String()))
					currentParagraph.Reset()
				}
				inList = true
				currentList = append(currentList, line)
				continue
			}

			if inList {
				if len(currentList) > 0 {
					paragraphs = append(paragraphs, strings.Join(currentList, "\n"))
					currentList = nil
				}
				inList = false
			}
			if currentParagraph.Len() > 0 {
				currentParagraph.WriteString("\n")
			}
			currentParagraph.WriteString(line)
		}

		if inList && len(currentList) > 0 {
			paragraphs = append(paragraphs, strings.Join(currentList, "\n"))
		} else if currentParagraph.Len() > 0 {
			paragraphs = append(paragraphs, strings.TrimSpace(currentParagraph.String()))
		}
	}

	if len(paragraphs) == 0 {
		paragraphs = []string{text}
	}
	return paragraphs
}

// codeBlockPattern matches multi-line code blocks (```...```)
// Handles both ```lang\ncode``` and ```\ncode``` formats
var codeBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z]*\n?(.*?)```")

// ConvertMarkdownToBlocks converts markdown text from the agent to Slack
// blocks. When conversion fails the text is downgraded to a single mrkdwn
// section instead.
func ConvertMarkdownToBlocks(text string, log *slog.Logger) []slack.Block {
	// slackutil tends to split fenced code; handle those segments ourselves
	if strings.Contains(text, "```") {
		return convertMarkdownWithCodeBlocks(text, log)
	}

	convertedBlocks, err := slackutil.ConvertMarkdownTextToBlocks(text)
	if err != nil {
		log.Debug("failed to convert markdown to blocks, falling back to mrkdwn", "error", err)
		return mrkdwnFallback(text)
	}

	return SetExpandOnSectionBlocks(convertedBlocks, log)
}

// mrkdwnFallback wraps the text in one section block after a best-effort
// markdown-to-mrkdwn rewrite.
func mrkdwnFallback(text string) []slack.Block {
	return []slack.Block{&slack.SectionBlock{
		Type:   slack.MBTSection,
		Text:   slack.NewTextBlockObject(slack.MarkdownType, convertMarkdownToMrkdwn(text), false, false),
		Expand: true,
	}}
}

// convertMarkdownToMrkdwn converts standard markdown formatting to Slack
// mrkdwn format.
func convertMarkdownToMrkdwn(text string) string {
	// Convert bold: **text** or __text__ -> *text*
	boldPattern1 := regexp.MustCompile(`\*\*([^*]+)\*\*`)
	text = boldPattern1.ReplaceAllString(text, "*$1*")
	boldPattern2 := regexp.MustCompile(`__([^_]+)__`)
	text = boldPattern2.ReplaceAllString(text, "*$1*")

	// Convert strikethrough: ~~text~~ -> ~text~
	strikePattern := regexp.MustCompile(`~~([^~]+)~~`)
	text = strikePattern.ReplaceAllString(text, "~$1~")

	// Convert headers: ### text -> *text*
	headerPattern := regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	text = headerPattern.ReplaceAllString(text, "*$1*")

	// Convert links: [text](url) -> <url|text>
	linkPattern := regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	text = linkPattern.ReplaceAllString(text, "<$2|$1>")

	return text
}

// convertMarkdownWithCodeBlocks handles text containing fenced code blocks,
// converting the code segments directly so they are never split.
func convertMarkdownWithCodeBlocks(text string, log *slog.Logger) []slack.Block {
	var result []slack.Block

	matches := codeBlockPattern.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		// Unclosed fence, fall back to regular conversion
		convertedBlocks, err := slackutil.ConvertMarkdownTextToBlocks(text)
		if err != nil {
			log.Debug("failed to convert markdown to blocks, falling back to mrkdwn", "error", err)
			return mrkdwnFallback(text)
		}
		return SetExpandOnSectionBlocks(convertedBlocks, log)
	}

	lastEnd := 0
	for _, match := range matches {
		blockStart := match[0]
		blockEnd := match[1]

		if blockStart > lastEnd {
			beforeText := strings.TrimSpace(text[lastEnd:blockStart])
			if beforeText != "" {
				beforeBlocks, err := slackutil.ConvertMarkdownTextToBlocks(beforeText)
				if err == nil {
					result = append(result, SetExpandOnSectionBlocks(beforeBlocks, log)...)
				}
			}
		}

		// Slack mrkdwn does not support language specifiers, so re-fence the
		// bare code content (capture group 1)
		codeContent := text[match[2]:match[3]]
		codeBlock := "```\n" + codeContent + "```"
		codeTextBlock := slack.NewTextBlockObject(slack.MarkdownType, codeBlock, false, false)
		result = append(result, &slack.SectionBlock{
			Type:   slack.MBTSection,
			Text:   codeTextBlock,
			Expand: true,
		})

		lastEnd = blockEnd
	}

	if lastEnd < len(text) {
		afterText := strings.TrimSpace(text[lastEnd:])
		if afterText != "" {
			afterBlocks, err := slackutil.ConvertMarkdownTextToBlocks(afterText)
			if err == nil {
				result = append(result, SetExpandOnSectionBlocks(afterBlocks, log)...)
			}
		}
	}

	return result
}

// SanitizeErrorMessage converts raw error messages to user-friendly messages
func SanitizeErrorMessage(errMsg string) string {
	// Rate limit errors
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate_limit_error") || strings.Contains(errMsg, "rate limit") {
		return "I'm currently experiencing high demand. Please try again in a moment."
	}

	// Connection errors
	if strings.Contains(errMsg, "connection closed") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "EOF") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "connection reset") {
		return "I'm having trouble connecting to the data service. Please try again in a moment."
	}

	// SQL and warehouse errors
	if strings.Contains(errMsg, "query failed") ||
		strings.Contains(errMsg, "SQLSTATE") ||
		strings.Contains(errMsg, "DB::Exception") ||
		strings.Contains(errMsg, "UNKNOWN_IDENTIFIER") ||
		strings.Contains(errMsg, "SYNTAX_ERROR") {
		return "I encountered an issue processing your query. Please try rephrasing your question or providing more specific details."
	}

	// Agent and generic API errors
	if strings.Contains(errMsg, "agent error") ||
		strings.Contains(errMsg, "failed to get response") ||
		strings.Contains(errMsg, "POST") {
		return "I encountered an error processing your request. Please try again."
	}

	// Strip internal details like request ids and URLs
	lines := strings.Split(errMsg, "\n")
	var cleanLines []string
	for _, line := range lines {
		if strings.Contains(line, "Request-ID:") ||
			strings.Contains(line, "https://") ||
			strings.Contains(line, `"type":"error"`) ||
			strings.Contains(line, "POST \"") {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		cleanLines = append(cleanLines, line)
	}

	if len(cleanLines) > 0 {
		return "Sorry, I encountered an error: " + strings.Join(cleanLines, " ")
	}

	return "Sorry, I encountered an error. Please try again."
}
