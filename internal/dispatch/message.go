// Package dispatch implements the Dispatcher (component G): the single
// choke point every outbound notification passes through, and the Slack
// rendering/delivery it depends on.
package dispatch

import (
	"fmt"
	"time"

	"github.com/slack-go/slack"
)

// MessageModel is the typed, feature-specific content the Dispatcher
// renders into Slack blocks. Non-goals exclude owning Slack block-kit
// design as a presentation system; this stays a plain data carrier.
type MessageModel struct {
	Title      string
	Summary    string
	ActionURL  string
	ActionText string
	Fields     []MessageField
	Category   string // mirrors the in-app notification's category
	Type       string // mirrors the in-app notification's type
}

// MessageField is one label/value pair rendered as a Slack section field.
type MessageField struct {
	Label string
	Value string
}

// RenderBlocks converts a MessageModel into Slack block-kit blocks —
// a pure function, free of any Slack API calls.
func RenderBlocks(m MessageModel) []slack.Block {
	var blocks []slack.Block

	blocks = append(blocks, slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, m.Title, false, false)))

	if m.Summary != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, m.Summary, false, false), nil, nil))
	}

	if len(m.Fields) > 0 {
		var fieldObjs []*slack.TextBlockObject
		for _, f := range m.Fields {
			fieldObjs = append(fieldObjs, slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("*%s*\n%s", f.Label, f.Value), false, false))
		}
		blocks = append(blocks, slack.NewSectionBlock(nil, fieldObjs, nil))
	}

	if m.ActionURL != "" {
		text := m.ActionText
		if text == "" {
			text = "Open"
		}
		button := slack.NewButtonBlockElement("action", "open", slack.NewTextBlockObject(slack.PlainTextType, text, false, false))
		button.URL = m.ActionURL
		blocks = append(blocks, slack.NewActionBlock("actions", button))
	}

	return blocks
}

// FallbackText renders the plain-text fallback Slack requires alongside
// blocks (shown in notifications and unsupported clients).
func FallbackText(m MessageModel) string {
	if m.Summary != "" {
		return m.Title + ": " + m.Summary
	}
	return m.Title
}

// Outcome is the Dispatcher's verdict for one dispatch attempt.
type Outcome struct {
	Delivered bool
	SlackTS   string
	ChannelID string
	Skipped   bool
	Reason    string // e.g. "feature_disabled", "no_mapping", "deduped", a policy deny reason
	Failed    bool
	Retryable bool
	Err       error
	SentUnrecorded bool // delivered but recordSent failed after retries — flagged for reconciliation
}

// Delivered builds a success outcome.
func Delivered(ts, channelID string) Outcome {
	return Outcome{Delivered: true, SlackTS: ts, ChannelID: channelID}
}

// Skipped builds a non-error, no-op outcome.
func Skipped(reason string) Outcome {
	return Outcome{Skipped: true, Reason: reason}
}

// Failed builds an error outcome, distinguishing retryable transient
// failures from permanent ones.
func Failed(err error, retryable bool) Outcome {
	return Outcome{Failed: true, Err: err, Retryable: retryable}
}

// now is overridable in tests that need deterministic timestamps on
// rendered content (e.g. "as of HH:MM").
var now = time.Now
