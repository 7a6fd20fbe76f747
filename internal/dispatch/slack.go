package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"
)

// SlackSender delivers rendered messages to Slack, resolving DM channel
// ids via conversations.open before posting, and classifying failures as
// retryable (5xx/429/network) or permanent (other 4xx) — the same
// explicit error-code-mapping idiom the teacher's TelegramSender uses
// for its own outbound HTTP calls.
type SlackSender struct {
	client  *slack.Client
	timeout time.Duration
}

// NewSlackSender wraps a bot token in a slack.Client with the spec's
// fixed 10s per-call timeout for Slack API calls.
func NewSlackSender(botToken string) *SlackSender {
	return &SlackSender{
		client:  slack.New(botToken),
		timeout: 10 * time.Second,
	}
}

// ResolveDMChannel opens (or reuses) a direct-message channel with a
// Slack user, required before posting a `dm`-delivery-method message.
func (s *SlackSender) ResolveDMChannel(ctx context.Context, slackUserID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	channel, _, _, err := s.client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{slackUserID},
	})
	if err != nil {
		return "", classifySlackError(err)
	}
	return channel.ID, nil
}

// PostMessage delivers a rendered MessageModel to a channel (DM or
// shared channel) and returns the message timestamp Slack assigns, used
// as the SentRecord's dedupe-adjacent audit field.
func (s *SlackSender) PostMessage(ctx context.Context, channelID string, model MessageModel) (ts string, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	blocks := RenderBlocks(model)
	_, timestamp, err := s.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(FallbackText(model), false),
	)
	if err != nil {
		return "", classifySlackError(err)
	}
	return timestamp, nil
}

// SlackError wraps a Slack API failure with the retry classification
// the Dispatcher needs: transient (5xx/429/timeout/network) vs permanent
// (any other rejection).
type SlackError struct {
	Err       error
	Retryable bool
}

func (e *SlackError) Error() string { return e.Err.Error() }
func (e *SlackError) Unwrap() error { return e.Err }

func classifySlackError(err error) error {
	if err == nil {
		return nil
	}
	if rlErr, ok := err.(*slack.RateLimitedError); ok {
		_ = rlErr
		return &SlackError{Err: err, Retryable: true}
	}
	if sErr, ok := err.(slack.SlackErrorResponse); ok {
		switch sErr.Err {
		case "ratelimited", "fatal_error", "internal_error", "service_unavailable":
			return &SlackError{Err: err, Retryable: true}
		default:
			return &SlackError{Err: err, Retryable: false}
		}
	}
	// Network-level errors (timeouts, connection resets) are transient.
	return &SlackError{Err: fmt.Errorf("slack request failed: %w", err), Retryable: true}
}
