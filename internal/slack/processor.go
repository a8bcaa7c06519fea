package slack

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/advisor"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/agent"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/entitlement"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/render"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/result"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/store"
)

const (
	respondedMessagesMaxAge = 1 * time.Hour

	// refinementTimeout bounds the detached advisor call so a wedged model
	// request can't leak goroutines.
	refinementTimeout = 60 * time.Second

	// generatingNotice is the placeholder posted before the agent round-trip;
	// the answer replaces it in place.
	generatingNotice = "_Generating a response..._"
)

// QueryAgent turns natural language into SQL or a direct text answer.
type QueryAgent interface {
	Chat(ctx context.Context, message string) (agent.Reply, error)
}

// Querier executes SQL against the warehouse.
type Querier interface {
	Query(ctx context.Context, sql string) (result.Tabular, error)
}

// RefinementChecker judges whether a prompt deserves a suggested rewrite.
type RefinementChecker interface {
	Check(ctx context.Context, prompt, sql string) (advisor.Verdict, error)
}

// Processor handles inbound Slack messages: forwards them to the query agent,
// executes generated SQL, and posts interactive result messages.
type Processor struct {
	transport    Transport
	agent        QueryAgent
	querier      Querier
	scoper       entitlement.Scoper
	checker      RefinementChecker
	store        *store.Store
	chartEnabled bool
	log          *slog.Logger

	// Track messages we've already responded to (by message timestamp) to
	// prevent duplicate error messages
	respondedMessages   map[string]time.Time
	respondedMessagesMu sync.RWMutex
}

// NewProcessor creates a new message processor. checker may be nil when
// prompt refinement is disabled.
func NewProcessor(
	transport Transport,
	queryAgent QueryAgent,
	querier Querier,
	scoper entitlement.Scoper,
	checker RefinementChecker,
	resultStore *store.Store,
	chartEnabled bool,
	log *slog.Logger,
) *Processor {
	return &Processor{
		transport:         transport,
		agent:             queryAgent,
		querier:           querier,
		scoper:            scoper,
		checker:           checker,
		store:             resultStore,
		chartEnabled:      chartEnabled,
		log:               log,
		respondedMessages: make(map[string]time.Time),
	}
}

// StartCleanup starts a background goroutine to clean up old responded messages
func (p *Processor) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.cleanup()
			}
		}
	}()
}

func (p *Processor) cleanup() {
	now := time.Now()
	p.respondedMessagesMu.Lock()
	for msgKey, timestamp := range p.respondedMessages {
		if now.Sub(timestamp) > respondedMessagesMaxAge {
			delete(p.respondedMessages, msgKey)
		}
	}
	p.respondedMessagesMu.Unlock()
}

// HasResponded checks if we've already responded to a message
func (p *Processor) HasResponded(messageKey string) bool {
	p.respondedMessagesMu.RLock()
	_, responded := p.respondedMessages[messageKey]
	p.respondedMessagesMu.RUnlock()
	return responded
}

// MarkResponded marks a message as responded to
func (p *Processor) MarkResponded(messageKey string) {
	p.respondedMessagesMu.Lock()
	p.respondedMessages[messageKey] = time.Now()
	p.respondedMessagesMu.Unlock()
}

// containsNonBotMention checks if the message text contains a user mention that is not the bot
func containsNonBotMention(text, botUserID string) bool {
	if botUserID == "" {
		return false
	}
	// Match mention patterns: <@USERID> or <@USERID|username>
	mentionRegex := regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]+)?>`)
	matches := mentionRegex.FindAllStringSubmatch(text, -1)
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		mentionedUserID := match[1]
		if mentionedUserID != botUserID {
			return true
		}
	}
	return false
}

// ProcessMessage processes a single Slack message
func (p *Processor) ProcessMessage(
	ctx context.Context,
	ev *slackevents.MessageEvent,
	messageKey string,
	eventID string,
	isChannel bool,
) {
	startTime := time.Now()

	p.log.Info("replying to message",
		"channel", ev.Channel,
		"user", ev.User,
		"message_ts", ev.TimeStamp,
		"thread_ts", ev.ThreadTimeStamp,
		"text", ev.Text,
		"message_key", messageKey,
		"event_id", eventID,
		"is_channel", isChannel,
	)

	// Skip processing if in a thread and message contains another user being mentioned
	if ev.ThreadTimeStamp != "" && containsNonBotMention(ev.Text, p.transport.BotUserID()) {
		p.log.Info("skipping message in thread that contains non-bot mention",
			"channel", ev.Channel,
			"user", ev.User,
			"message_ts", ev.TimeStamp,
			"text_preview", TruncateString(ev.Text, 100),
		)
		MessagesIgnoredTotal.WithLabelValues("thread_non_bot_mention").Inc()
		return
	}

	// Skip processing if message contains :mute: emoji
	if strings.Contains(ev.Text, ":mute:") {
		p.log.Info("skipping message with :mute: emoji",
			"channel", ev.Channel,
			"user", ev.User,
			"message_ts", ev.TimeStamp,
			"text_preview", TruncateString(ev.Text, 100),
		)
		MessagesIgnoredTotal.WithLabelValues("mute_emoji").Inc()
		return
	}

	txt := strings.TrimSpace(ev.Text)
	if isChannel {
		txt = RemoveBotMention(txt, p.transport.BotUserID())
	}
	if txt == "" {
		MessagesIgnoredTotal.WithLabelValues("empty").Inc()
		return
	}

	defer func() {
		MessageProcessingDuration.Observe(time.Since(startTime).Seconds())
	}()

	// Always thread responses (both channels and DMs)
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}

	if err := p.transport.AddProcessingReaction(ctx, ev.Channel, ev.TimeStamp); err != nil {
		SlackAPIErrorsTotal.WithLabelValues("add_reaction").Inc()
	}

	p.MarkResponded(messageKey)
	p.RunQuery(ctx, ev.Channel, threadTS, ev.User, txt, 0)

	if err := p.transport.RemoveProcessingReaction(ctx, ev.Channel, ev.TimeStamp); err != nil {
		SlackAPIErrorsTotal.WithLabelValues("remove_reaction").Inc()
	}
}

// RunQuery sends a prompt to the query agent and posts the outcome. Both
// fresh messages and refine-modal submissions funnel through here; rowLimit
// carries a previously selected limit across a refine re-run, 0 means the
// default.
func (p *Processor) RunQuery(ctx context.Context, channelID, threadTS, userID, prompt string, rowLimit int) {
	ackTS, err := p.transport.PostMessage(ctx, channelID, generatingNotice, nil, threadTS)
	if err != nil {
		SlackAPIErrorsTotal.WithLabelValues("post_message").Inc()
		ackTS = ""
	}

	reply, err := p.agent.Chat(ctx, prompt)
	if err != nil {
		AgentErrorsTotal.WithLabelValues("chat").Inc()
		p.log.Error("agent error", "error", err, "channel", channelID)
		p.postError(ctx, channelID, threadTS, ackTS, err)
		return
	}

	switch r := reply.(type) {
	case agent.TextReply:
		p.postTextReply(ctx, channelID, threadTS, ackTS, r)
	case agent.SQLReply:
		p.runSQL(ctx, channelID, threadTS, ackTS, userID, prompt, r.SQL, rowLimit)
	default:
		AgentErrorsTotal.WithLabelValues("unknown_reply").Inc()
		p.log.Error("agent returned unknown reply type", "channel", channelID)
	}
}

// deliver replaces the placeholder with the real content. When the placeholder
// never made it up (or the edit fails), the content is posted fresh instead.
func (p *Processor) deliver(ctx context.Context, channelID, threadTS, ackTS, text string, blocks []slack.Block) (string, error) {
	if ackTS != "" {
		if err := p.transport.UpdateMessage(ctx, channelID, ackTS, text, blocks); err == nil {
			return ackTS, nil
		}
		SlackAPIErrorsTotal.WithLabelValues("update_message").Inc()
	}
	return p.transport.PostMessage(ctx, channelID, text, blocks, threadTS)
}

func (p *Processor) postTextReply(ctx context.Context, channelID, threadTS, ackTS string, r agent.TextReply) {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		text = "I didn't get a response. Please try again."
	}
	blocks := textReplyBlocks(text, r.Citations, p.log)
	if _, err := p.deliver(ctx, channelID, threadTS, ackTS, text, blocks); err != nil {
		SlackAPIErrorsTotal.WithLabelValues("post_message").Inc()
		MessagesPostedTotal.WithLabelValues("error").Inc()
		return
	}
	MessagesPostedTotal.WithLabelValues("success").Inc()
}

func (p *Processor) runSQL(ctx context.Context, channelID, threadTS, ackTS, userID, prompt, rawSQL string, rowLimit int) {
	sql, err := p.scoper.Scope(ctx, rawSQL, userID)
	if err != nil {
		// Scope degrades open; an error here means the statement itself
		// could not be processed.
		p.log.Warn("entitlement scoping failed, using original sql", "error", err, "user", userID)
		sql = rawSQL
	}

	tab, err := p.querier.Query(ctx, sql)
	if err != nil {
		QueryErrorsTotal.Inc()
		p.log.Error("query failed", "error", err, "sql", TruncateString(sql, 200))
		p.postError(ctx, channelID, threadTS, ackTS, err)
		return
	}

	limit := rowLimit
	if limit == 0 {
		limit = render.DefaultRowLimit
	}
	text, shown := render.Table(tab, limit)
	view := resultView{
		TableText:    text,
		Shown:        shown,
		Total:        tab.Count,
		Unfiltered:   tab.Count,
		SQL:          sql,
		ChartEnabled: p.chartEnabled,
	}
	blocks := resultMessageBlocks(view, p.log)

	ts, err := p.deliver(ctx, channelID, threadTS, ackTS, text, blocks)
	if err != nil {
		SlackAPIErrorsTotal.WithLabelValues("post_message").Inc()
		MessagesPostedTotal.WithLabelValues("error").Inc()
		return
	}
	MessagesPostedTotal.WithLabelValues("success").Inc()

	p.store.Put(ts, sql, prompt, tab)
	if rowLimit > 0 {
		p.store.SetRowLimit(ts, rowLimit)
	}
	StoredResults.Set(float64(p.store.Len()))

	if p.checker != nil {
		go p.checkRefinement(channelID, ts, prompt, sql)
	}
}

// checkRefinement runs the advisor after the result has already been posted,
// then edits the message to surface the verdict. It deliberately detaches
// from the request context so a finished Slack event doesn't cancel it.
func (p *Processor) checkRefinement(channelID, messageTS, prompt, sql string) {
	ctx, cancel := context.WithTimeout(context.Background(), refinementTimeout)
	defer cancel()

	verdict, err := p.checker.Check(ctx, prompt, sql)
	if err != nil {
		RefinementChecksTotal.WithLabelValues("error").Inc()
		p.log.Warn("refinement check failed", "error", err, "message_ts", messageTS)
		return
	}
	if verdict.NeedsRefinement {
		RefinementChecksTotal.WithLabelValues("needs_refinement").Inc()
	} else {
		RefinementChecksTotal.WithLabelValues("adequate").Inc()
	}

	if !p.store.SetVerdict(messageTS, verdict) {
		return
	}
	st, ok := p.store.Get(messageTS)
	if !ok {
		return
	}

	view := viewFromState(st, p.chartEnabled)
	if err := p.transport.UpdateMessage(ctx, channelID, messageTS, view.TableText, resultMessageBlocks(view, p.log)); err != nil {
		SlackAPIErrorsTotal.WithLabelValues("update_message").Inc()
		p.log.Warn("failed to update message with verdict", "error", err, "message_ts", messageTS)
	}
}

func (p *Processor) postError(ctx context.Context, channelID, threadTS, ackTS string, err error) {
	reply := SanitizeErrorMessage(err.Error())
	if _, postErr := p.deliver(ctx, channelID, threadTS, ackTS, reply, nil); postErr != nil {
		SlackAPIErrorsTotal.WithLabelValues("post_message").Inc()
	} else {
		MessagesPostedTotal.WithLabelValues("error").Inc()
	}
}
