package slack

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/chart"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/filter"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/render"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/result"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/store"
)

const staleStateNotice = "The data for this message is no longer available. Please ask your question again."

// Controller handles block actions and modal submissions on result messages.
//
// In-place interactions (row limit, Show SQL) edit the message they were
// clicked on. Branching interactions (filter, clear filters, chart, download)
// post a new message so the older view stays intact; the new message gets its
// own state derived from the ancestor's unfiltered rows, so chained filters
// never compound and clear always recovers the true original.
type Controller struct {
	transport Transport
	querier   Querier
	chart     chart.Renderer
	store     *store.Store
	processor *Processor
	log       *slog.Logger
}

// NewController creates an interaction controller. chartRenderer may be nil
// when charting is disabled.
func NewController(
	transport Transport,
	querier Querier,
	chartRenderer chart.Renderer,
	resultStore *store.Store,
	processor *Processor,
	log *slog.Logger,
) *Controller {
	return &Controller{
		transport: transport,
		querier:   querier,
		chart:     chartRenderer,
		store:     resultStore,
		processor: processor,
		log:       log,
	}
}

func (c *Controller) chartEnabled() bool {
	return c.chart != nil
}

// HandleInteraction dispatches an interactive payload. The payload has
// already been acknowledged; anything slow here is fine.
func (c *Controller) HandleInteraction(ctx context.Context, callback slack.InteractionCallback) {
	switch callback.Type {
	case slack.InteractionTypeBlockActions:
		for _, action := range callback.ActionCallback.BlockActions {
			c.handleBlockAction(ctx, callback, action)
		}
	case slack.InteractionTypeViewSubmission:
		c.handleViewSubmission(ctx, callback)
	default:
		c.log.Debug("ignoring interaction", "type", callback.Type)
	}
}

func (c *Controller) handleBlockAction(ctx context.Context, callback slack.InteractionCallback, action *slack.BlockAction) {
	messageTS := callback.Container.MessageTs
	channelID := callback.Container.ChannelID
	userID := callback.User.ID

	InteractionsTotal.WithLabelValues(action.ActionID).Inc()
	c.log.Info("handling block action",
		"action", action.ActionID,
		"channel", channelID,
		"message_ts", messageTS,
		"user", userID,
	)

	switch action.ActionID {
	case ActionRowLimit:
		c.handleRowLimit(ctx, channelID, messageTS, action.SelectedOption.Value)
	case ActionShowSQL:
		c.handleShowSQL(ctx, channelID, messageTS, userID)
	case ActionOpenFilter:
		c.handleOpenFilter(ctx, callback.TriggerID, channelID, messageTS, userID)
	case ActionClearFilters:
		c.handleClearFilters(ctx, channelID, messageTS)
	case ActionChart:
		c.handleChart(ctx, channelID, messageTS)
	case ActionDownload:
		c.handleDownload(ctx, channelID, messageTS, action.Value)
	case ActionRefine:
		c.handleOpenRefine(ctx, callback.TriggerID, channelID, messageTS, userID)
	default:
		c.log.Debug("unknown block action", "action", action.ActionID)
	}
}

// handleRowLimit re-renders the message in place with the requested row count.
func (c *Controller) handleRowLimit(ctx context.Context, channelID, messageTS, value string) {
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 1 {
		c.log.Warn("ignoring row limit selection", "value", value)
		return
	}
	st, ok := c.store.Get(messageTS)
	if !ok {
		c.postStale(ctx, channelID, messageTS)
		return
	}
	c.store.SetRowLimit(messageTS, limit)
	st.RowLimit = limit
	c.updateInPlace(ctx, channelID, messageTS, st)
}

// handleShowSQL reveals the generated SQL on the message. A second click gets
// an ephemeral note instead of a duplicate edit.
func (c *Controller) handleShowSQL(ctx context.Context, channelID, messageTS, userID string) {
	st, ok := c.store.Get(messageTS)
	if !ok {
		c.postStale(ctx, channelID, messageTS)
		return
	}
	if st.SQLVisible {
		if err := c.transport.PostEphemeral(ctx, channelID, userID, "The SQL is already shown on this message."); err != nil {
			SlackAPIErrorsTotal.WithLabelValues("post_ephemeral").Inc()
		}
		return
	}
	c.store.SetSQLVisible(messageTS)
	st.SQLVisible = true
	c.updateInPlace(ctx, channelID, messageTS, st)
}

func (c *Controller) handleOpenFilter(ctx context.Context, triggerID, channelID, messageTS, userID string) {
	st, ok := c.store.Get(messageTS)
	if !ok {
		c.postStale(ctx, channelID, messageTS)
		return
	}
	opts := filter.Analyze(st.Original)
	modal := BuildFilterModal(opts, st.Filters, messageTS, channelID)
	if err := c.transport.OpenView(ctx, triggerID, modal); err != nil {
		SlackAPIErrorsTotal.WithLabelValues("open_view").Inc()
		c.log.Error("failed to open filter modal", "error", err)
		_ = c.transport.PostEphemeral(ctx, channelID, userID, "Could not open the filter dialog. Please try again.")
	}
}

// handleClearFilters posts a fresh unfiltered view as a new message and gives
// it its own state derived from this message's original rows.
func (c *Controller) handleClearFilters(ctx context.Context, channelID, messageTS string) {
	st, ok := c.store.Get(messageTS)
	if !ok {
		c.postStale(ctx, channelID, messageTS)
		return
	}

	full := st.Original.Clone()
	text, shown := render.Table(full, render.DefaultRowLimit)
	view := resultView{
		TableText:    text,
		Shown:        shown,
		Total:        full.Count,
		Unfiltered:   full.Count,
		SQL:          st.SQL,
		ChartEnabled: c.chartEnabled(),
		Cleared:      true,
		Verdict:      st.Verdict,
	}

	ts, err := c.transport.PostMessage(ctx, channelID, text, resultMessageBlocks(view, c.log), messageTS)
	if err != nil {
		SlackAPIErrorsTotal.WithLabelValues("post_message").Inc()
		return
	}
	MessagesPostedTotal.WithLabelValues("success").Inc()
	c.store.Derive(ts, messageTS, full, filter.Spec{})
	StoredResults.Set(float64(c.store.Len()))
}

// handleChart renders the currently displayed rows as a chart image and
// uploads it as a threaded reply.
func (c *Controller) handleChart(ctx context.Context, channelID, messageTS string) {
	st, ok := c.store.Get(messageTS)
	if !ok {
		c.postStale(ctx, channelID, messageTS)
		return
	}
	if c.chart == nil {
		c.log.Warn("chart requested but rendering is disabled")
		return
	}

	png, err := c.chart.Render(ctx, st.Current, st.Prompt)
	if err != nil {
		c.log.Error("chart rendering failed", "error", err)
		c.postFailureNotice(ctx, channelID, messageTS, "Chart rendering failed. Please try again.")
		return
	}

	filename := fmt.Sprintf("chart_%d.png", time.Now().Unix())
	if err := c.transport.UploadFile(ctx, channelID, messageTS, filename, "Chart", png); err != nil {
		SlackAPIErrorsTotal.WithLabelValues("upload_file").Inc()
		c.log.Error("chart upload failed", "error", err)
		c.postFailureNotice(ctx, channelID, messageTS, "Chart upload failed. Please try again.")
	}
}

// postFailureNotice tells the user a button action could not complete.
func (c *Controller) postFailureNotice(ctx context.Context, channelID, threadTS, text string) {
	if _, err := c.transport.PostMessage(ctx, channelID, text, nil, threadTS); err != nil {
		SlackAPIErrorsTotal.WithLabelValues("post_message").Inc()
	}
}

// handleDownload exports the currently displayed rows (after filters) as CSV.
// Cached state is the normal source; when state is gone (restart) and the
// button still carries the SQL, the query is re-executed as a last resort.
func (c *Controller) handleDownload(ctx context.Context, channelID, messageTS, actionValue string) {
	var (
		tab      result.Tabular
		st       store.State
		hadState bool
	)
	if cached, ok := c.store.Get(messageTS); ok {
		st = cached
		tab = st.Current
		hadState = true
	} else if looksLikeSQL(actionValue) {
		c.log.Info("no cached state for download, re-executing query", "message_ts", messageTS)
		fresh, err := c.querier.Query(ctx, actionValue)
		if err != nil {
			QueryErrorsTotal.Inc()
			c.log.Error("fallback re-execution failed", "error", err)
			c.postStale(ctx, channelID, messageTS)
			return
		}
		tab = fresh
	} else {
		c.postStale(ctx, channelID, messageTS)
		return
	}

	var buf bytes.Buffer
	if err := result.WriteCSV(&buf, tab); err != nil {
		c.log.Error("csv export failed", "error", err)
		c.postFailureNotice(ctx, channelID, messageTS, "CSV export failed. Please try again.")
		return
	}

	filename := fmt.Sprintf("query_results_%d.csv", time.Now().Unix())
	if err := c.transport.UploadFile(ctx, channelID, messageTS, filename, "Query Results", buf.Bytes()); err != nil {
		SlackAPIErrorsTotal.WithLabelValues("upload_file").Inc()
		c.log.Error("csv upload failed", "error", err)
		c.postFailureNotice(ctx, channelID, messageTS, "CSV upload failed. Please try again.")
		return
	}

	c.postDownloadConfirmation(ctx, channelID, messageTS, filename, actionValue, tab, st, hadState)
}

// postDownloadConfirmation follows the upload with a short message carrying a
// fresh set of action controls, backed by its own derived state.
func (c *Controller) postDownloadConfirmation(
	ctx context.Context,
	channelID, messageTS, filename, actionValue string,
	tab result.Tabular,
	st store.State,
	hadState bool,
) {
	unfiltered := tab.Count
	sql := actionValue
	shownLimit := render.DefaultRowLimit
	if hadState {
		unfiltered = st.Original.Count
		sql = st.SQL
		if st.RowLimit > 0 {
			shownLimit = st.RowLimit
		}
	}
	if shownLimit > tab.Count {
		shownLimit = tab.Count
	}

	confirmation := fmt.Sprintf("Exported %s rows to `%s`.",
		filter.GroupThousands(float64(tab.Count)), filename)
	v := resultView{
		Shown:        shownLimit,
		Total:        tab.Count,
		Unfiltered:   unfiltered,
		SQL:          sql,
		ChartEnabled: c.chartEnabled(),
	}
	blocks := []slack.Block{slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, confirmation, false, false), nil, nil)}
	if actions := actionRow(v); actions != nil {
		blocks = append(blocks, actions)
	}

	ts, err := c.transport.PostMessage(ctx, channelID, confirmation, blocks, messageTS)
	if err != nil {
		SlackAPIErrorsTotal.WithLabelValues("post_message").Inc()
		return
	}
	MessagesPostedTotal.WithLabelValues("success").Inc()
	if hadState {
		c.store.Derive(ts, messageTS, tab, st.Filters)
	} else {
		c.store.Put(ts, sql, "", tab)
	}
	StoredResults.Set(float64(c.store.Len()))
}

func looksLikeSQL(s string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s)), "SELECT")
}

func (c *Controller) handleOpenRefine(ctx context.Context, triggerID, channelID, messageTS, userID string) {
	st, ok := c.store.Get(messageTS)
	if !ok {
		c.postStale(ctx, channelID, messageTS)
		return
	}
	suggestion := ""
	if st.Verdict != nil {
		suggestion = st.Verdict.Suggestion
	}
	modal := BuildRefineModal(st.Prompt, suggestion, messageTS, channelID)
	if err := c.transport.OpenView(ctx, triggerID, modal); err != nil {
		SlackAPIErrorsTotal.WithLabelValues("open_view").Inc()
		c.log.Error("failed to open refine modal", "error", err)
		_ = c.transport.PostEphemeral(ctx, channelID, userID, "Could not open the refine dialog. Please try again.")
	}
}

func (c *Controller) handleViewSubmission(ctx context.Context, callback slack.InteractionCallback) {
	messageTS, channelID := parseModalMetadata(callback.View.PrivateMetadata)
	if messageTS == "" || channelID == "" {
		c.log.Warn("view submission with unusable metadata", "metadata", callback.View.PrivateMetadata)
		return
	}

	switch callback.View.CallbackID {
	case CallbackFilterModal:
		InteractionsTotal.WithLabelValues("filter_submit").Inc()
		c.applyFilter(ctx, channelID, messageTS, ParseFilterSubmission(callback.View))
	case CallbackRefineModal:
		InteractionsTotal.WithLabelValues("refine_submit").Inc()
		prompt := ParseRefineSubmission(callback.View)
		if prompt == "" {
			return
		}
		// Carry the row limit the user had dialed in on the original message
		// into the re-run.
		rowLimit := 0
		if st, ok := c.store.Get(messageTS); ok {
			rowLimit = st.RowLimit
		}
		c.processor.RunQuery(ctx, channelID, messageTS, callback.User.ID, prompt, rowLimit)
	default:
		c.log.Debug("unknown view submission", "callback_id", callback.View.CallbackID)
	}
}

// applyFilter posts the filtered view as a new threaded message with its own
// derived state. An empty submission behaves like Clear Filters.
func (c *Controller) applyFilter(ctx context.Context, channelID, messageTS string, spec filter.Spec) {
	st, ok := c.store.Get(messageTS)
	if !ok {
		c.postStale(ctx, channelID, messageTS)
		return
	}

	if spec.IsEmpty() {
		c.handleClearFilters(ctx, channelID, messageTS)
		return
	}

	filtered, applied := filter.Apply(st.Original, spec)
	text, shown := render.Table(filtered, render.DefaultRowLimit)
	view := resultView{
		TableText:    text,
		Shown:        shown,
		Total:        filtered.Count,
		Unfiltered:   st.Original.Count,
		Applied:      applied,
		SQL:          st.SQL,
		ChartEnabled: c.chartEnabled(),
		Verdict:      st.Verdict,
	}

	ts, err := c.transport.PostMessage(ctx, channelID, text, resultMessageBlocks(view, c.log), messageTS)
	if err != nil {
		SlackAPIErrorsTotal.WithLabelValues("post_message").Inc()
		return
	}
	MessagesPostedTotal.WithLabelValues("success").Inc()
	c.store.Derive(ts, messageTS, filtered, spec)
	StoredResults.Set(float64(c.store.Len()))
}

// updateInPlace re-renders an existing message from (possibly locally
// adjusted) state.
func (c *Controller) updateInPlace(ctx context.Context, channelID, messageTS string, st store.State) {
	view := viewFromState(st, c.chartEnabled())
	if err := c.transport.UpdateMessage(ctx, channelID, messageTS, view.TableText, resultMessageBlocks(view, c.log)); err != nil {
		SlackAPIErrorsTotal.WithLabelValues("update_message").Inc()
		c.log.Error("failed to update message", "error", err, "message_ts", messageTS)
	}
}

func (c *Controller) postStale(ctx context.Context, channelID, messageTS string) {
	if _, err := c.transport.PostMessage(ctx, channelID, staleStateNotice, nil, messageTS); err != nil {
		SlackAPIErrorsTotal.WithLabelValues("post_message").Inc()
	}
}
