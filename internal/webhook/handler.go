package webhook

import (
	"context"
	"time"
)

// CallUpsertResult tells the handler whether the upserted call is new
// (so step 3's enqueue-on-insert behavior only fires once) and what
// transcript state it already has.
type CallUpsertResult struct {
	Inserted           bool
	HadTranscriptAlready bool
}

// Store is the set of persistence operations Webhook Ingest needs,
// injected so this package stays free of a direct DB dependency — the
// concrete implementation lives alongside the rest of the CRM's entity
// storage, outside this component's scope.
type Store interface {
	UpsertCall(ctx context.Context, orgID string, event CallEvent) (CallUpsertResult, error)
	InsertCommunicationEvent(ctx context.Context, orgID, userID, externalID, source string) error
	InsertOutboundActivity(ctx context.Context, orgID, userID, callID string) error
	UpdateIntegrationHeartbeat(ctx context.Context, orgID, provider string, at time.Time) error
}

// OwnerResolver looks up the CRM user owning an agent email and
// confirms org membership.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, orgID, agentEmail string) (userID string, isMember bool, err error)
}

// TranscriptEnqueuer enqueues a transcript-fetch (component J) or
// transcript-index job.
type TranscriptEnqueuer interface {
	EnqueueFetch(ctx context.Context, orgID, callID string) error
	EnqueueIndex(ctx context.Context, orgID, callID string) error
}

// Handler processes verified, normalized webhook events through the six
// ordered idempotent side effects.
type Handler struct {
	Store      Store
	Owners     OwnerResolver
	Transcript TranscriptEnqueuer
}

// HandleCall runs the six ordered side effects for a normalized
// CallEvent. Each step is idempotent on its own dedupe key, so retried
// or duplicate webhook deliveries never double-write.
func (h *Handler) HandleCall(ctx context.Context, orgID, callID string, event CallEvent) Outcome {
	var ownerUserID string
	if event.AgentEmail != nil {
		resolvedUserID, isMember, err := h.Owners.ResolveOwner(ctx, orgID, *event.AgentEmail)
		if err != nil {
			return Outcome{StatusCode: 500, Err: err}
		}
		if isMember {
			ownerUserID = resolvedUserID
		}
		// Missing membership leaves ownerUserId empty; ownerEmail (the
		// caller already has event.AgentEmail) is retained regardless.
	}

	// 1. Upsert the call row keyed on (orgId, provider, externalId).
	result, err := h.Store.UpsertCall(ctx, orgID, event)
	if err != nil {
		return Outcome{StatusCode: 500, Err: err}
	}

	// 2. No transcript but a recording exists -> enqueue transcript fetch.
	if event.TranscriptText == nil && event.RecordingURL != nil {
		if err := h.Transcript.EnqueueFetch(ctx, orgID, callID); err != nil {
			return Outcome{StatusCode: 500, Err: err}
		}
	}

	// 3. Transcript present on insert -> enqueue indexing.
	if result.Inserted && event.TranscriptText != nil {
		if err := h.Transcript.EnqueueIndex(ctx, orgID, callID); err != nil {
			return Outcome{StatusCode: 500, Err: err}
		}
	}

	// 4. Insert a communication event, deduped on (userId, externalId, source).
	if ownerUserID != "" {
		if err := h.Store.InsertCommunicationEvent(ctx, orgID, ownerUserID, event.ExternalID, event.Provider); err != nil {
			return Outcome{StatusCode: 500, Err: err}
		}

		// 5. For outbound calls, insert an outbound activity deduped on
		// (userId, type=outbound, outboundType=call, originalActivityId=callId).
		if event.Direction == DirectionOutbound {
			if err := h.Store.InsertOutboundActivity(ctx, orgID, ownerUserID, callID); err != nil {
				return Outcome{StatusCode: 500, Err: err}
			}
		}
	}

	// 6. Update integration heartbeat.
	if err := h.Store.UpdateIntegrationHeartbeat(ctx, orgID, event.Provider, time.Now()); err != nil {
		return Outcome{StatusCode: 500, Err: err}
	}

	return ok(200)
}

// HandleNotApplicable builds the 2xx "ignored" response business-level
// not-applicable events require, to prevent upstream retry storms.
func HandleNotApplicable(reason string) Outcome {
	return ignored(reason)
}
