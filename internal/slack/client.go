package slack

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// processingEmoji marks an inbound message while its query is running.
const processingEmoji = "hourglass_flowing_sand"

// Transport is the Slack surface the processor and controller need. The
// concrete Client wraps slack-go; tests use a fake.
type Transport interface {
	BotUserID() string
	PostMessage(ctx context.Context, channelID, text string, blocks []slack.Block, threadTS string) (string, error)
	UpdateMessage(ctx context.Context, channelID, ts, text string, blocks []slack.Block) error
	PostEphemeral(ctx context.Context, channelID, userID, text string) error
	OpenView(ctx context.Context, triggerID string, view slack.ModalViewRequest) error
	UploadFile(ctx context.Context, channelID, threadTS, filename, title string, content []byte) error
	AddProcessingReaction(ctx context.Context, channelID, ts string) error
	RemoveProcessingReaction(ctx context.Context, channelID, ts string) error
}

// Client wraps the slack-go API client.
type Client struct {
	api       *slack.Client
	botUserID string
	log       *slog.Logger
}

// NewClient creates a Slack client. appToken may be empty in HTTP mode.
func NewClient(botToken, appToken string, log *slog.Logger) *Client {
	var api *slack.Client
	if appToken != "" {
		api = slack.New(botToken, slack.OptionAppLevelToken(appToken))
	} else {
		api = slack.New(botToken)
	}
	return &Client{api: api, log: log}
}

// Initialize runs an auth test and caches the bot's user id.
func (c *Client) Initialize(ctx context.Context) (string, error) {
	authTest, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack auth test failed: %w", err)
	}
	c.botUserID = authTest.UserID
	c.log.Info("slack auth test successful", "user_id", authTest.UserID, "team", authTest.Team, "bot_id", authTest.BotID)
	return authTest.UserID, nil
}

// API exposes the underlying client for socket mode.
func (c *Client) API() *slack.Client {
	return c.api
}

func (c *Client) BotUserID() string {
	return c.botUserID
}

// PostMessage posts to a channel, threaded when threadTS is set. Returns the
// new message's timestamp, which doubles as its state key.
func (c *Client) PostMessage(ctx context.Context, channelID, text string, blocks []slack.Block, threadTS string) (string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if blocks != nil {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := c.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to post message: %w", err)
	}
	return ts, nil
}

func (c *Client) UpdateMessage(ctx context.Context, channelID, ts, text string, blocks []slack.Block) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if blocks != nil {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	_, _, _, err := c.api.UpdateMessageContext(ctx, channelID, ts, opts...)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

func (c *Client) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	_, err := c.api.PostEphemeralContext(ctx, channelID, userID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post ephemeral message: %w", err)
	}
	return nil
}

func (c *Client) OpenView(ctx context.Context, triggerID string, view slack.ModalViewRequest) error {
	_, err := c.api.OpenViewContext(ctx, triggerID, view)
	if err != nil {
		return fmt.Errorf("failed to open view: %w", err)
	}
	return nil
}

func (c *Client) UploadFile(ctx context.Context, channelID, threadTS, filename, title string, content []byte) error {
	_, err := c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Reader:          bytes.NewReader(content),
		FileSize:        len(content),
		Filename:        filename,
		Title:           title,
		Channel:         channelID,
		ThreadTimestamp: threadTS,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	return nil
}

func (c *Client) AddProcessingReaction(ctx context.Context, channelID, ts string) error {
	itemRef := slack.NewRefToMessage(channelID, ts)
	if err := c.api.AddReactionContext(ctx, processingEmoji, itemRef); err != nil {
		c.log.Warn("failed to add reaction", "emoji", processingEmoji, "error", err, "channel", channelID)
		return err
	}
	return nil
}

func (c *Client) RemoveProcessingReaction(ctx context.Context, channelID, ts string) error {
	// Give Slack a beat so the reaction removal lands after the reply
	time.Sleep(300 * time.Millisecond)
	itemRef := slack.NewRefToMessage(channelID, ts)
	if err := c.api.RemoveReactionContext(ctx, processingEmoji, itemRef); err != nil {
		c.log.Debug("failed to remove reaction (may not have been added)", "emoji", processingEmoji, "error", err)
		return err
	}
	return nil
}

// RemoveBotMention strips a leading <@BOTID> mention from message text.
func RemoveBotMention(text, botUserID string) string {
	if botUserID == "" {
		return text
	}
	text = strings.ReplaceAll(text, fmt.Sprintf("<@%s>", botUserID), "")
	return strings.TrimSpace(text)
}

// TruncateString shortens s for log previews.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
