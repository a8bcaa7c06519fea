// Package advisor judges whether a user's prompt was specific enough for the
// SQL it produced, and suggests a sharper prompt when it was not. The check
// runs after results are posted so it never delays the answer.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

// Verdict is the advisor's judgement of one prompt/SQL pair.
type Verdict struct {
	NeedsRefinement bool
	Suggestion      string
}

// Config configures the advisor. Model and MaxTokens have working defaults.
type Config struct {
	Logger    *slog.Logger
	Client    anthropic.Client
	Model     anthropic.Model
	MaxTokens int64
}

type Advisor struct {
	cfg Config
}

const defaultMaxTokens = 1024

const systemPrompt = `You review natural-language analytics questions and the SQL generated for them.
Judge whether the question was specific enough that the SQL unambiguously answers it.
Respond with exactly one of:
ADEQUATE
NEEDS_REFINEMENT: <a single rewritten question that would remove the ambiguity>`

func New(cfg Config) *Advisor {
	if cfg.Model == "" {
		cfg.Model = anthropic.ModelClaude3_5Haiku20241022
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Advisor{cfg: cfg}
}

// Check asks the model to judge the prompt against the SQL it produced.
func (a *Advisor) Check(ctx context.Context, prompt, sql string) (Verdict, error) {
	user := fmt.Sprintf("Question:\n%s\n\nGenerated SQL:\n%s", prompt, sql)

	resp, err := a.cfg.Client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to get refinement verdict: %w", err)
	}

	var text string
	for _, blk := range resp.Content {
		if t := blk.AsText(); t.Text != "" {
			text += t.Text
		}
	}

	verdict := parseVerdict(text)
	if a.cfg.Logger != nil {
		a.cfg.Logger.Debug("advisor: verdict", "needs_refinement", verdict.NeedsRefinement)
	}
	return verdict, nil
}

func parseVerdict(text string) Verdict {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)

	if idx := strings.Index(upper, "NEEDS_REFINEMENT"); idx >= 0 {
		rest := trimmed[idx+len("NEEDS_REFINEMENT"):]
		rest = strings.TrimLeft(rest, ": \n\t")
		if line := strings.TrimSpace(rest); line != "" {
			return Verdict{NeedsRefinement: true, Suggestion: firstLine(line)}
		}
		return Verdict{NeedsRefinement: true}
	}
	return Verdict{}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
