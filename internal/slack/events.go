package slack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const processedEventsMaxAge = 1 * time.Hour

// EventHandler receives Slack events over socket mode or HTTP, deduplicates
// them, and dispatches messages to the processor and interactive payloads to
// the controller.
type EventHandler struct {
	transport  Transport
	processor  *Processor
	controller *Controller
	log        *slog.Logger

	accepting atomic.Bool
	inflight  sync.WaitGroup

	processedEvents   map[string]time.Time
	processedEventsMu sync.Mutex
}

func NewEventHandler(transport Transport, processor *Processor, controller *Controller, log *slog.Logger) *EventHandler {
	h := &EventHandler{
		transport:       transport,
		processor:       processor,
		controller:      controller,
		log:             log,
		processedEvents: make(map[string]time.Time),
	}
	h.accepting.Store(true)
	return h
}

// StopAcceptingNew makes the handler drop newly arriving events and returns a
// function that blocks until all in-flight work has drained.
func (h *EventHandler) StopAcceptingNew() func() {
	h.accepting.Store(false)
	return h.inflight.Wait
}

// StartCleanup periodically drops old dedup entries.
func (h *EventHandler) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				h.processedEventsMu.Lock()
				for id, ts := range h.processedEvents {
					if now.Sub(ts) > processedEventsMaxAge {
						delete(h.processedEvents, id)
					}
				}
				h.processedEventsMu.Unlock()
			}
		}
	}()
}

// seen records an event id and reports whether it was already processed.
func (h *EventHandler) seen(eventID string) bool {
	if eventID == "" {
		return false
	}
	h.processedEventsMu.Lock()
	defer h.processedEventsMu.Unlock()
	if _, ok := h.processedEvents[eventID]; ok {
		return true
	}
	h.processedEvents[eventID] = time.Now()
	return false
}

// HandleSocketMode runs the socket mode event loop until the context is
// cancelled or the connection fails.
func (h *EventHandler) HandleSocketMode(ctx context.Context, client *socketmode.Client) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-client.Events:
				if !ok {
					return
				}
				switch evt.Type {
				case socketmode.EventTypeConnecting:
					h.log.Info("connecting to slack with socket mode")
				case socketmode.EventTypeConnectionError:
					h.log.Error("socket mode connection failed", "error", evt.Data)
				case socketmode.EventTypeConnected:
					h.log.Info("connected to slack with socket mode")
				case socketmode.EventTypeEventsAPI:
					eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
					if !ok {
						continue
					}
					client.Ack(*evt.Request)
					eventID := ""
					if evt.Request != nil {
						eventID = evt.Request.EnvelopeID
					}
					h.DispatchEvent(eventsAPIEvent, eventID)
				case socketmode.EventTypeInteractive:
					callback, ok := evt.Data.(slack.InteractionCallback)
					if !ok {
						continue
					}
					client.Ack(*evt.Request)
					h.dispatchInteraction(callback)
				}
			}
		}
	}()

	return client.RunContext(ctx)
}

// DispatchEvent routes an Events API event. Only message events and app
// mentions are handled; everything else is counted and dropped.
func (h *EventHandler) DispatchEvent(event slackevents.EventsAPIEvent, eventID string) {
	if !h.accepting.Load() {
		h.log.Info("draining, dropping event", "event_id", eventID)
		return
	}

	innerType := ""
	if event.InnerEvent.Data != nil {
		innerType = event.InnerEvent.Type
	}
	EventsReceivedTotal.WithLabelValues(event.Type, innerType).Inc()

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		h.dispatchMessage(ev, eventID)
	case *slackevents.AppMentionEvent:
		h.dispatchMessage(&slackevents.MessageEvent{
			Channel:         ev.Channel,
			ChannelType:     "channel",
			User:            ev.User,
			Text:            ev.Text,
			TimeStamp:       ev.TimeStamp,
			ThreadTimeStamp: ev.ThreadTimeStamp,
		}, eventID)
	}
}

func (h *EventHandler) dispatchMessage(ev *slackevents.MessageEvent, eventID string) {
	// Ignore bot messages, edits, and other subtypes
	if ev.BotID != "" || ev.SubType != "" {
		MessagesIgnoredTotal.WithLabelValues("bot_or_subtype").Inc()
		return
	}

	isDM := ev.ChannelType == "im"
	isChannel := ev.ChannelType == "channel" || ev.ChannelType == "group"

	// In channels, only respond when the bot is mentioned
	if isChannel && !strings.Contains(ev.Text, fmt.Sprintf("<@%s>", h.transport.BotUserID())) {
		MessagesIgnoredTotal.WithLabelValues("no_mention").Inc()
		return
	}
	if !isDM && !isChannel {
		MessagesIgnoredTotal.WithLabelValues("channel_type").Inc()
		return
	}

	messageKey := fmt.Sprintf("%s-%s", ev.Channel, ev.TimeStamp)
	if h.seen(messageKey) || h.processor.HasResponded(messageKey) {
		EventsDuplicateTotal.Inc()
		h.log.Info("skipping duplicate message", "message_key", messageKey, "event_id", eventID)
		return
	}

	MessagesProcessedTotal.WithLabelValues(ev.ChannelType,
		strconv.FormatBool(isDM), strconv.FormatBool(isChannel)).Inc()

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.processor.ProcessMessage(context.Background(), ev, messageKey, eventID, isChannel)
	}()
}

func (h *EventHandler) dispatchInteraction(callback slack.InteractionCallback) {
	if !h.accepting.Load() {
		return
	}
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.controller.HandleInteraction(context.Background(), callback)
	}()
}

// HandleHTTPEvent serves the Events API endpoint in HTTP mode: signature
// verification, the url_verification challenge, then async dispatch.
func (h *EventHandler) HandleHTTPEvent(signingSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		if err := verifySlackSignature(r.Header, body, signingSecret); err != nil {
			h.log.Warn("slack signature verification failed", "error", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
		if err != nil {
			http.Error(w, "failed to parse event", http.StatusBadRequest)
			return
		}

		if event.Type == slackevents.URLVerification {
			var challenge slackevents.ChallengeResponse
			if err := json.Unmarshal(body, &challenge); err != nil {
				http.Error(w, "failed to parse challenge", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(challenge.Challenge))
			return
		}

		// Ack immediately; Slack retries on slow responses
		w.WriteHeader(http.StatusOK)

		var envelope struct {
			EventID string `json:"event_id"`
		}
		_ = json.Unmarshal(body, &envelope)
		if h.seen(envelope.EventID) {
			EventsDuplicateTotal.Inc()
			return
		}

		h.DispatchEvent(event, envelope.EventID)
	}
}

// HandleHTTPInteraction serves the interactivity endpoint in HTTP mode.
// Interactive payloads arrive form-encoded in a "payload" field.
func (h *EventHandler) HandleHTTPInteraction(signingSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		if err := verifySlackSignature(r.Header, body, signingSecret); err != nil {
			h.log.Warn("slack signature verification failed", "error", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		values, err := url.ParseQuery(string(body))
		if err != nil {
			http.Error(w, "failed to parse form", http.StatusBadRequest)
			return
		}

		var callback slack.InteractionCallback
		if err := json.Unmarshal([]byte(values.Get("payload")), &callback); err != nil {
			http.Error(w, "failed to parse payload", http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusOK)
		h.dispatchInteraction(callback)
	}
}

// verifySlackSignature checks the v0 request signature: HMAC-SHA256 of
// "v0:<timestamp>:<body>" with the signing secret, and a five minute replay
// window.
func verifySlackSignature(header http.Header, body []byte, signingSecret string) error {
	if signingSecret == "" {
		return fmt.Errorf("signing secret not configured")
	}

	timestamp := header.Get("X-Slack-Request-Timestamp")
	signature := header.Get("X-Slack-Signature")
	if timestamp == "" || signature == "" {
		return fmt.Errorf("missing signature headers")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	if d := time.Since(time.Unix(ts, 0)); d > 5*time.Minute || d < -5*time.Minute {
		return fmt.Errorf("timestamp outside replay window")
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
