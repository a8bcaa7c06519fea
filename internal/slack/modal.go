package slack

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/filter"
)

// Modal callback IDs.
const (
	CallbackFilterModal = "filter_modal"
	CallbackRefineModal = "refine_modal"
)

// Filter modal block/action IDs. Numeric and categorical blocks are suffixed
// with the column name they filter.
const (
	blockDateStart = "date_start"
	blockDateEnd   = "date_end"
	blockSortBy    = "sort_by"
	blockTopN      = "top_n"

	categoricalBlockPrefix = "cat_"
	numericMinBlockPrefix  = "num_min_"
	numericMaxBlockPrefix  = "num_max_"
)

const blockRefinedPrompt = "refined_prompt"

// Slack caps static-select options at 100; the analyzer already caps distinct
// values well below that, this is a second guard.
const maxModalOptions = 100

// modalMetadata packs the originating message id and channel into a view's
// private metadata so the submission handler can find the state again.
func modalMetadata(messageID, channelID string) string {
	return messageID + "|" + channelID
}

func parseModalMetadata(meta string) (messageID, channelID string) {
	parts := strings.SplitN(meta, "|", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

// BuildFilterModal renders the filter dialog for a result message. Inputs are
// derived from the original (unfiltered) result via filter.Analyze and
// pre-populated from the currently active filter spec.
func BuildFilterModal(opts filter.Options, active filter.Spec, messageID, channelID string) slack.ModalViewRequest {
	blocks := []slack.Block{
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType,
				"Leave every field blank and submit to clear all filters.", false, false)),
	}

	if opts.DateColumn != "" {
		blocks = append(blocks,
			textInputBlock(blockDateStart, fmt.Sprintf("%s from (YYYY-MM-DD)", filter.TitleCase(opts.DateColumn)), active.DateStart),
			textInputBlock(blockDateEnd, fmt.Sprintf("%s to (YYYY-MM-DD)", filter.TitleCase(opts.DateColumn)), active.DateEnd),
		)
	}

	for _, cat := range opts.Categorical {
		blocks = append(blocks, multiSelectBlock(cat, active.Categorical[cat.Column]))
	}

	for _, col := range opts.Numeric {
		var minVal, maxVal string
		if r, ok := active.Numeric[col]; ok {
			if r.Min != nil {
				minVal = strconv.FormatFloat(*r.Min, 'f', -1, 64)
			}
			if r.Max != nil {
				maxVal = strconv.FormatFloat(*r.Max, 'f', -1, 64)
			}
		}
		blocks = append(blocks,
			textInputBlock(numericMinBlockPrefix+col, fmt.Sprintf("%s minimum", filter.TitleCase(col)), minVal),
			textInputBlock(numericMaxBlockPrefix+col, fmt.Sprintf("%s maximum", filter.TitleCase(col)), maxVal),
		)
	}

	if len(opts.Sortable) > 0 {
		blocks = append(blocks, sortSelectBlock(opts.Sortable, active))
	}

	topN := ""
	if active.TopN > 0 {
		topN = strconv.Itoa(active.TopN)
	}
	blocks = append(blocks, textInputBlock(blockTopN, "Limit to top N rows", topN))

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      CallbackFilterModal,
		PrivateMetadata: modalMetadata(messageID, channelID),
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Filter Results", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Apply", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Blocks:          slack.Blocks{BlockSet: blocks},
	}
}

func textInputBlock(blockID, label, initial string) *slack.InputBlock {
	el := slack.NewPlainTextInputBlockElement(nil, blockID)
	el.InitialValue = initial
	block := slack.NewInputBlock(blockID,
		slack.NewTextBlockObject(slack.PlainTextType, label, false, false), nil, el)
	block.Optional = true
	return block
}

func multiSelectBlock(cat filter.CategoricalOption, selected []string) *slack.InputBlock {
	values := cat.Values
	if len(values) > maxModalOptions {
		values = values[:maxModalOptions]
	}
	selectedSet := make(map[string]bool, len(selected))
	for _, v := range selected {
		selectedSet[v] = true
	}

	options := make([]*slack.OptionBlockObject, 0, len(values))
	var initial []*slack.OptionBlockObject
	for _, v := range values {
		opt := slack.NewOptionBlockObject(v,
			slack.NewTextBlockObject(slack.PlainTextType, v, false, false), nil)
		options = append(options, opt)
		if selectedSet[v] {
			initial = append(initial, opt)
		}
	}

	blockID := categoricalBlockPrefix + cat.Column
	el := slack.NewOptionsMultiSelectBlockElement(slack.MultiOptTypeStatic,
		slack.NewTextBlockObject(slack.PlainTextType, "Select values", false, false),
		blockID, options...)
	el.InitialOptions = initial
	block := slack.NewInputBlock(blockID,
		slack.NewTextBlockObject(slack.PlainTextType, filter.TitleCase(cat.Column), false, false), nil, el)
	block.Optional = true
	return block
}

func sortSelectBlock(sortable []string, active filter.Spec) *slack.InputBlock {
	options := make([]*slack.OptionBlockObject, 0, len(sortable)*2)
	var initial *slack.OptionBlockObject
	for _, col := range sortable {
		for _, dir := range []string{"asc", "desc"} {
			label := fmt.Sprintf("%s (ascending)", filter.TitleCase(col))
			if dir == "desc" {
				label = fmt.Sprintf("%s (descending)", filter.TitleCase(col))
			}
			opt := slack.NewOptionBlockObject(col+"|"+dir,
				slack.NewTextBlockObject(slack.PlainTextType, label, false, false), nil)
			options = append(options, opt)
			if col == active.SortColumn && (dir == "desc") == active.SortDesc {
				initial = opt
			}
		}
		if len(options) >= maxModalOptions {
			options = options[:maxModalOptions]
			break
		}
	}

	el := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic,
		slack.NewTextBlockObject(slack.PlainTextType, "Sort by", false, false),
		blockSortBy, options...)
	el.InitialOption = initial
	block := slack.NewInputBlock(blockSortBy,
		slack.NewTextBlockObject(slack.PlainTextType, "Sort", false, false), nil, el)
	block.Optional = true
	return block
}

// ParseFilterSubmission turns a filter modal submission back into a filter
// spec. Unparseable numbers and malformed fields are dropped rather than
// rejected, so a sloppy submission degrades to fewer filters instead of an
// error.
func ParseFilterSubmission(view slack.View) filter.Spec {
	spec := filter.Spec{}
	if view.State == nil {
		return spec
	}

	for blockID, actions := range view.State.Values {
		for _, action := range actions {
			switch {
			case blockID == blockDateStart:
				spec.DateStart = strings.TrimSpace(action.Value)
			case blockID == blockDateEnd:
				spec.DateEnd = strings.TrimSpace(action.Value)
			case blockID == blockSortBy:
				col, dir, ok := strings.Cut(action.SelectedOption.Value, "|")
				if ok && col != "" {
					spec.SortColumn = col
					spec.SortDesc = dir == "desc"
				}
			case blockID == blockTopN:
				if n, err := strconv.Atoi(strings.TrimSpace(action.Value)); err == nil && n > 0 {
					spec.TopN = n
				}
			case strings.HasPrefix(blockID, categoricalBlockPrefix):
				col := strings.TrimPrefix(blockID, categoricalBlockPrefix)
				var vals []string
				for _, opt := range action.SelectedOptions {
					vals = append(vals, opt.Value)
				}
				if len(vals) > 0 {
					if spec.Categorical == nil {
						spec.Categorical = make(map[string][]string)
					}
					spec.Categorical[col] = vals
				}
			case strings.HasPrefix(blockID, numericMinBlockPrefix):
				col := strings.TrimPrefix(blockID, numericMinBlockPrefix)
				if f, ok := parseAmount(action.Value); ok {
					setNumeric(&spec, col, func(r *filter.Range) { r.Min = &f })
				}
			case strings.HasPrefix(blockID, numericMaxBlockPrefix):
				col := strings.TrimPrefix(blockID, numericMaxBlockPrefix)
				if f, ok := parseAmount(action.Value); ok {
					setNumeric(&spec, col, func(r *filter.Range) { r.Max = &f })
				}
			}
		}
	}
	return spec
}

func setNumeric(spec *filter.Spec, col string, apply func(*filter.Range)) {
	if spec.Numeric == nil {
		spec.Numeric = make(map[string]filter.Range)
	}
	r := spec.Numeric[col]
	apply(&r)
	spec.Numeric[col] = r
}

// parseAmount accepts "1000000", "1,000,000", and "$1,000,000".
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// BuildRefineModal renders the prompt-refinement dialog, pre-filled with the
// advisor's suggested rewrite when one exists, otherwise the original prompt.
func BuildRefineModal(prompt, suggestion, messageID, channelID string) slack.ModalViewRequest {
	initial := suggestion
	if initial == "" {
		initial = prompt
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("*Original question:*\n>%s", prompt), false, false), nil, nil),
	}
	if suggestion != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType,
				":bulb: Suggested rewrite pre-filled below. Edit it or write your own.", false, false)))
	}

	el := slack.NewPlainTextInputBlockElement(nil, blockRefinedPrompt)
	el.InitialValue = initial
	el.Multiline = true
	blocks = append(blocks, slack.NewInputBlock(blockRefinedPrompt,
		slack.NewTextBlockObject(slack.PlainTextType, "Refined question", false, false), nil, el))

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      CallbackRefineModal,
		PrivateMetadata: modalMetadata(messageID, channelID),
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Refine Question", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Run", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Blocks:          slack.Blocks{BlockSet: blocks},
	}
}

// ParseRefineSubmission extracts the refined prompt from a refine modal
// submission.
func ParseRefineSubmission(view slack.View) string {
	if view.State == nil {
		return ""
	}
	for blockID, actions := range view.State.Values {
		if blockID != blockRefinedPrompt {
			continue
		}
		for _, action := range actions {
			return strings.TrimSpace(action.Value)
		}
	}
	return ""
}
