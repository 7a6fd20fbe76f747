package webhook

import "time"

// Direction is the call direction as normalized from provider payloads.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionInternal Direction = "internal"
	DirectionUnknown  Direction = "unknown"
)

// CallEvent is the canonical shape every telephony provider payload is
// normalized into before any internal code touches it.
type CallEvent struct {
	Provider        string
	ExternalID      string
	Direction       Direction
	Status          *string
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds int
	FromNumber      *string
	ToNumber        *string
	AgentEmail      *string
	RecordingURL    *string
	TranscriptText  *string
	Extras          map[string]any
}

// InteractionEvent is the canonical shape for chat-interaction webhooks
// (button clicks, threaded replies).
type InteractionEvent struct {
	SlackUserID string
	ActionID    string
	Value       string
	ThreadTS    *string
	OccurredAt  time.Time
	Extras      map[string]any
}

// Outcome is the result of processing one webhook request.
type Outcome struct {
	StatusCode int
	Ignored    bool
	Reason     string
	Err        error
}

func ok(statusCode int) Outcome { return Outcome{StatusCode: statusCode} }

func ignored(reason string) Outcome {
	return Outcome{StatusCode: 200, Ignored: true, Reason: reason}
}

func unauthorized(reason string) Outcome {
	return Outcome{StatusCode: 401, Reason: reason}
}

func forbidden(reason string) Outcome {
	return Outcome{StatusCode: 403, Reason: reason}
}
