package slack

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/advisor"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/filter"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/render"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/store"
)

// Action IDs for the interactive elements on a result message.
// maxButtonValueLen is Slack's limit on a button element's value payload.
const maxButtonValueLen = 2000

const (
	ActionShowSQL      = "show_sql"
	ActionRowLimit     = "row_limit"
	ActionOpenFilter   = "open_filter"
	ActionClearFilters = "clear_filters"
	ActionChart        = "render_chart"
	ActionDownload     = "download_csv"
	ActionRefine       = "refine_prompt"
)

// resultView is everything needed to render a result message's blocks. It is
// always derived from stored state, never parsed back out of posted blocks.
type resultView struct {
	TableText    string
	Shown        int
	Total        int
	Unfiltered   int
	Applied      []string
	SQL          string
	SQLVisible   bool
	ChartEnabled bool
	Cleared      bool
	Verdict      *advisor.Verdict
}

// viewFromState re-derives the rendered view for a message from its stored
// state, re-applying the active filters against the original result.
func viewFromState(st store.State, chartEnabled bool) resultView {
	current, applied := filter.Apply(st.Original, st.Filters)
	limit := st.RowLimit
	if limit == 0 {
		limit = render.DefaultRowLimit
	}
	text, shown := render.Table(current, limit)
	return resultView{
		TableText:    text,
		Shown:        shown,
		Total:        current.Count,
		Unfiltered:   st.Original.Count,
		Applied:      applied,
		SQL:          st.SQL,
		SQLVisible:   st.SQLVisible,
		ChartEnabled: chartEnabled,
		Verdict:      st.Verdict,
	}
}

// resultMessageBlocks builds the full block layout for a query result:
// optional filter banner, the rendered table, optional revealed SQL, the
// action row, and the refinement status line once the advisor has spoken.
func resultMessageBlocks(v resultView, log *slog.Logger) []slack.Block {
	blocks := []slack.Block{}

	if banner := filterBanner(v); banner != nil {
		blocks = append(blocks, banner)
	} else if v.Cleared {
		blocks = append(blocks, clearedBanner())
	}

	tableSection := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, v.TableText, false, false), nil, nil)
	blocks = append(blocks, SetExpandOnSectionBlocks([]slack.Block{tableSection}, log)...)

	if v.SQLVisible && v.SQL != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("*Generated SQL:*\n```%s```", v.SQL), false, false), nil, nil))
	}

	if actions := actionRow(v); actions != nil {
		blocks = append(blocks, actions)
	}

	if v.Verdict != nil {
		if v.Verdict.NeedsRefinement {
			blocks = append(blocks, slack.NewContextBlock("",
				slack.NewTextBlockObject(slack.MarkdownType,
					":bulb: This question could be more specific. Use *Refine Question* to improve it.", false, false)))
		} else {
			blocks = append(blocks, slack.NewContextBlock("",
				slack.NewTextBlockObject(slack.MarkdownType,
					":white_check_mark: Question looks good.", false, false)))
		}
	}

	return blocks
}

// filterBanner summarizes the active filters above the table. Unfiltered
// derived messages still get an "All Data" line so the reader can tell the
// filters were cleared rather than never applied.
func filterBanner(v resultView) slack.Block {
	if len(v.Applied) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("*Applied Filters:*\n")
	for _, desc := range v.Applied {
		sb.WriteString("• ")
		sb.WriteString(desc)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "*Results:* %s of %s rows",
		filter.GroupThousands(float64(v.Total)), filter.GroupThousands(float64(v.Unfiltered)))
	return slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, sb.String(), false, false), nil, nil)
}

// clearedBanner replaces the filter banner on a message produced by Clear
// Filters.
func clearedBanner() slack.Block {
	return slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, "*All Data* - no filters applied", false, false), nil, nil)
}

// actionRow builds the interactive controls. Empty results keep the
// inspection buttons but drop the row-limit select and download/chart,
// since there is nothing to page, plot, or export.
func actionRow(v resultView) slack.Block {
	elements := []slack.BlockElement{}

	if v.Total > 1 {
		if sel := rowLimitSelect(v.Shown, v.Total); sel != nil {
			elements = append(elements, sel)
		}
	}

	if !v.SQLVisible {
		elements = append(elements, slack.NewButtonBlockElement(ActionShowSQL, "show",
			slack.NewTextBlockObject(slack.PlainTextType, "Show SQL", false, false)))
	}
	elements = append(elements, slack.NewButtonBlockElement(ActionOpenFilter, "filter",
		slack.NewTextBlockObject(slack.PlainTextType, "Filter", false, false)))
	if len(v.Applied) > 0 {
		elements = append(elements, slack.NewButtonBlockElement(ActionClearFilters, "clear",
			slack.NewTextBlockObject(slack.PlainTextType, "Clear Filters", false, false)))
	}
	if v.Total > 0 {
		if v.ChartEnabled {
			elements = append(elements, slack.NewButtonBlockElement(ActionChart, "chart",
				slack.NewTextBlockObject(slack.PlainTextType, "Chart", false, false)))
		}
		// The button value carries the SQL so a download can fall back to
		// re-executing the query after a restart wiped the state store.
		downloadValue := v.SQL
		if len(downloadValue) > maxButtonValueLen {
			downloadValue = "download"
		}
		elements = append(elements, slack.NewButtonBlockElement(ActionDownload, downloadValue,
			slack.NewTextBlockObject(slack.PlainTextType, "Download CSV", false, false)))
	}
	if v.Verdict != nil && v.Verdict.NeedsRefinement {
		refine := slack.NewButtonBlockElement(ActionRefine, "refine",
			slack.NewTextBlockObject(slack.PlainTextType, "Refine Question", false, false))
		refine.Style = slack.StylePrimary
		elements = append(elements, refine)
	}

	if len(elements) == 0 {
		return nil
	}
	return slack.NewActionBlock("result_actions", elements...)
}

// rowLimitSelect builds the row-count dropdown with the currently shown count
// as the initial option.
func rowLimitSelect(shown, total int) *slack.SelectBlockElement {
	limits := render.RowLimitOptions(total)
	if len(limits) == 0 {
		return nil
	}
	// The renderer's size fallback can land on a count outside the standard
	// set; include it so the dropdown reflects what is actually shown.
	if shown >= 1 && shown < total && !slices.Contains(limits, shown) {
		limits = append(limits, shown)
		slices.Sort(limits)
	}
	options := make([]*slack.OptionBlockObject, 0, len(limits))
	var initial *slack.OptionBlockObject
	for _, n := range limits {
		label := fmt.Sprintf("%d rows", n)
		if n == total {
			label = fmt.Sprintf("All %d rows", n)
		}
		opt := slack.NewOptionBlockObject(strconv.Itoa(n),
			slack.NewTextBlockObject(slack.PlainTextType, label, false, false), nil)
		options = append(options, opt)
		if n == shown {
			initial = opt
		}
	}
	sel := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic,
		slack.NewTextBlockObject(slack.PlainTextType, "Rows to show", false, false),
		ActionRowLimit, options...)
	sel.InitialOption = initial
	return sel
}

// textReplyBlocks renders a plain-text agent answer, with citations in a
// trailing context block when present.
func textReplyBlocks(text string, citations []string, log *slog.Logger) []slack.Block {
	blocks := ConvertMarkdownToBlocks(text, log)
	if len(citations) > 0 {
		var sb strings.Builder
		sb.WriteString("*Sources:*")
		for _, c := range citations {
			sb.WriteString("\n• ")
			sb.WriteString(c)
		}
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, sb.String(), false, false)))
	}
	return blocks
}
