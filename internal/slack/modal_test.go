package slack

import (
	"testing"

	slackapi "github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/filter"
)

func TestCortex_Slack_ModalMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	msgID, channelID := parseModalMetadata(modalMetadata("100.1", "C42"))
	require.Equal(t, "100.1", msgID)
	require.Equal(t, "C42", channelID)

	msgID, channelID = parseModalMetadata("garbage")
	require.Empty(t, msgID)
	require.Empty(t, channelID)
}

func TestCortex_Slack_BuildFilterModal(t *testing.T) {
	t.Parallel()

	opts := filter.Options{
		DateColumn: "ORDER_DATE",
		Categorical: []filter.CategoricalOption{
			{Column: "REGION", Values: []string{"East", "West"}},
		},
		Numeric:  []string{"TOTAL_SALES"},
		Sortable: []string{"ORDER_DATE", "REGION", "TOTAL_SALES"},
	}
	min := 1000.0
	active := filter.Spec{
		DateStart:   "2026-01-01",
		Categorical: map[string][]string{"REGION": {"West"}},
		Numeric:     map[string]filter.Range{"TOTAL_SALES": {Min: &min}},
		SortColumn:  "TOTAL_SALES",
		SortDesc:    true,
		TopN:        5,
	}

	view := BuildFilterModal(opts, active, "100.1", "C1")

	require.Equal(t, CallbackFilterModal, view.CallbackID)
	require.Equal(t, "100.1|C1", view.PrivateMetadata)

	byID := map[string]*slackapi.InputBlock{}
	for _, b := range view.Blocks.BlockSet {
		if ib, ok := b.(*slackapi.InputBlock); ok {
			byID[ib.BlockID] = ib
		}
	}

	require.Contains(t, byID, blockDateStart)
	require.Contains(t, byID, blockDateEnd)
	require.Contains(t, byID, categoricalBlockPrefix+"REGION")
	require.Contains(t, byID, numericMinBlockPrefix+"TOTAL_SALES")
	require.Contains(t, byID, numericMaxBlockPrefix+"TOTAL_SALES")
	require.Contains(t, byID, blockSortBy)
	require.Contains(t, byID, blockTopN)

	dateInput, ok := byID[blockDateStart].Element.(*slackapi.PlainTextInputBlockElement)
	require.True(t, ok)
	require.Equal(t, "2026-01-01", dateInput.InitialValue)

	minInput, ok := byID[numericMinBlockPrefix+"TOTAL_SALES"].Element.(*slackapi.PlainTextInputBlockElement)
	require.True(t, ok)
	require.Equal(t, "1000", minInput.InitialValue)

	topNInput, ok := byID[blockTopN].Element.(*slackapi.PlainTextInputBlockElement)
	require.True(t, ok)
	require.Equal(t, "5", topNInput.InitialValue)

	catInput, ok := byID[categoricalBlockPrefix+"REGION"].Element.(*slackapi.MultiSelectBlockElement)
	require.True(t, ok)
	require.Len(t, catInput.Options, 2)
	require.Len(t, catInput.InitialOptions, 1)
	require.Equal(t, "West", catInput.InitialOptions[0].Value)

	sortInput, ok := byID[blockSortBy].Element.(*slackapi.SelectBlockElement)
	require.True(t, ok)
	require.NotNil(t, sortInput.InitialOption)
	require.Equal(t, "TOTAL_SALES|desc", sortInput.InitialOption.Value)
}

func TestCortex_Slack_ParseFilterSubmission(t *testing.T) {
	t.Parallel()

	view := slackapi.View{
		State: &slackapi.ViewState{
			Values: map[string]map[string]slackapi.BlockAction{
				blockDateStart: {blockDateStart: {Value: " 2026-01-01 "}},
				blockDateEnd:   {blockDateEnd: {Value: "2026-06-30"}},
				categoricalBlockPrefix + "REGION": {
					categoricalBlockPrefix + "REGION": {
						SelectedOptions: []slackapi.OptionBlockObject{{Value: "West"}, {Value: "East"}},
					},
				},
				numericMinBlockPrefix + "TOTAL_SALES": {
					numericMinBlockPrefix + "TOTAL_SALES": {Value: "$1,000,000"},
				},
				numericMaxBlockPrefix + "TOTAL_SALES": {
					numericMaxBlockPrefix + "TOTAL_SALES": {Value: "not a number"},
				},
				blockSortBy: {blockSortBy: {
					SelectedOption: slackapi.OptionBlockObject{Value: "TOTAL_SALES|desc"},
				}},
				blockTopN: {blockTopN: {Value: "10"}},
			},
		},
	}

	spec := ParseFilterSubmission(view)

	require.Equal(t, "2026-01-01", spec.DateStart)
	require.Equal(t, "2026-06-30", spec.DateEnd)
	require.ElementsMatch(t, []string{"West", "East"}, spec.Categorical["REGION"])
	require.NotNil(t, spec.Numeric["TOTAL_SALES"].Min)
	require.Equal(t, 1000000.0, *spec.Numeric["TOTAL_SALES"].Min)
	require.Nil(t, spec.Numeric["TOTAL_SALES"].Max, "unparseable max is dropped")
	require.Equal(t, "TOTAL_SALES", spec.SortColumn)
	require.True(t, spec.SortDesc)
	require.Equal(t, 10, spec.TopN)
}

func TestCortex_Slack_ParseFilterSubmission_Empty(t *testing.T) {
	t.Parallel()

	spec := ParseFilterSubmission(slackapi.View{})
	require.True(t, spec.IsEmpty())

	spec = ParseFilterSubmission(slackapi.View{
		State: &slackapi.ViewState{Values: map[string]map[string]slackapi.BlockAction{}},
	})
	require.True(t, spec.IsEmpty())
}

func TestCortex_Slack_BuildRefineModal(t *testing.T) {
	t.Parallel()

	view := BuildRefineModal("show sales", "show Q2 sales by region", "100.1", "C1")
	require.Equal(t, CallbackRefineModal, view.CallbackID)
	require.Equal(t, "100.1|C1", view.PrivateMetadata)

	var input *slackapi.PlainTextInputBlockElement
	for _, b := range view.Blocks.BlockSet {
		if ib, ok := b.(*slackapi.InputBlock); ok && ib.BlockID == blockRefinedPrompt {
			input, _ = ib.Element.(*slackapi.PlainTextInputBlockElement)
		}
	}
	require.NotNil(t, input)
	require.Equal(t, "show Q2 sales by region", input.InitialValue)

	// Without a suggestion the original prompt is the starting point.
	view = BuildRefineModal("show sales", "", "100.1", "C1")
	for _, b := range view.Blocks.BlockSet {
		if ib, ok := b.(*slackapi.InputBlock); ok && ib.BlockID == blockRefinedPrompt {
			input, _ = ib.Element.(*slackapi.PlainTextInputBlockElement)
		}
	}
	require.Equal(t, "show sales", input.InitialValue)
}

func TestCortex_Slack_ParseRefineSubmission(t *testing.T) {
	t.Parallel()

	view := slackapi.View{
		State: &slackapi.ViewState{
			Values: map[string]map[string]slackapi.BlockAction{
				blockRefinedPrompt: {blockRefinedPrompt: {Value: "  show Q2 sales  "}},
			},
		},
	}
	require.Equal(t, "show Q2 sales", ParseRefineSubmission(view))
	require.Empty(t, ParseRefineSubmission(slackapi.View{}))
}
