package crmdata

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sixtyapp/engagement-engine/internal/webhook"
)

// telephonyPayload is the superset of fields either inbound scheme
// (first-party proxy or JustCall-native) may send. Unknown keys are
// preserved by decoding into Extras separately below.
type telephonyPayload struct {
	Event           string     `json:"event"`
	CallID          string     `json:"call_id"`
	Direction       string     `json:"direction"`
	Status          *string    `json:"status"`
	StartedAt       *time.Time `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	DurationSeconds *int       `json:"duration_seconds"`
	FromNumber      *string    `json:"from_number"`
	ToNumber        *string    `json:"to_number"`
	AgentEmail      *string    `json:"agent_email"`
	RecordingURL    *string    `json:"recording_url"`
	TranscriptText  *string    `json:"transcript_text"`
}

// WebhookParser resolves the org a telephony webhook belongs to from its
// opaque URL token, then normalizes the provider payload into a
// webhook.CallEvent.
type WebhookParser struct {
	db *sql.DB
}

func NewWebhookParser(db *sql.DB) *WebhookParser {
	return &WebhookParser{db: db}
}

// Parse implements the function shape webhook.TelephonyWebhookConfig.Parse
// expects. Only "call.completed"-class events carry work; anything else
// is reported not-applicable so the provider doesn't see a retry-worthy
// error.
func (p *WebhookParser) Parse(rawBody []byte, token string) (orgID, callID string, event webhook.CallEvent, applicable bool, reason string, err error) {
	var orgIDResolved, provider string
	qerr := p.db.QueryRow(
		`SELECT org_id, provider FROM integrations WHERE webhook_token = $1`, token,
	).Scan(&orgIDResolved, &provider)
	if qerr == sql.ErrNoRows {
		return "", "", webhook.CallEvent{}, false, "unknown webhook token", nil
	}
	if qerr != nil {
		return "", "", webhook.CallEvent{}, false, "", fmt.Errorf("crmdata: resolve webhook token: %w", qerr)
	}

	var payload telephonyPayload
	if uerr := json.Unmarshal(rawBody, &payload); uerr != nil {
		return "", "", webhook.CallEvent{}, false, "", fmt.Errorf("crmdata: malformed webhook payload: %w", uerr)
	}

	if payload.Event != "" && payload.Event != "call.completed" && payload.Event != "call.updated" {
		return "", "", webhook.CallEvent{}, false, "non-call event: " + payload.Event, nil
	}
	if payload.CallID == "" {
		return "", "", webhook.CallEvent{}, false, "missing call id", nil
	}

	var extras map[string]any
	_ = json.Unmarshal(rawBody, &extras)

	duration := 0
	if payload.DurationSeconds != nil && *payload.DurationSeconds > 0 {
		duration = *payload.DurationSeconds
	}

	direction := webhook.DirectionUnknown
	switch payload.Direction {
	case string(webhook.DirectionInbound):
		direction = webhook.DirectionInbound
	case string(webhook.DirectionOutbound):
		direction = webhook.DirectionOutbound
	case string(webhook.DirectionInternal):
		direction = webhook.DirectionInternal
	}

	return orgIDResolved, payload.CallID, webhook.CallEvent{
		Provider:        provider,
		ExternalID:      payload.CallID,
		Direction:       direction,
		Status:          payload.Status,
		StartedAt:       payload.StartedAt,
		EndedAt:         payload.EndedAt,
		DurationSeconds: duration,
		FromNumber:      payload.FromNumber,
		ToNumber:        payload.ToNumber,
		AgentEmail:      payload.AgentEmail,
		RecordingURL:    payload.RecordingURL,
		TranscriptText:  payload.TranscriptText,
		Extras:          extras,
	}, true, "", nil
}
