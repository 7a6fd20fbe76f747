package crmdata

import (
	"context"
	"database/sql"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sixtyapp/engagement-engine/internal/jobs"
	"github.com/sixtyapp/engagement-engine/internal/store"
	"github.com/sixtyapp/engagement-engine/internal/webhook"
)

// CallStore implements webhook.Store against the calls/communication
// tables, keeping the upsert/dedupe keys exactly as named in the
// component's six ordered side effects.
type CallStore struct {
	db *sql.DB
}

// NewCallStore wraps a pooled connection to the CRM database.
func NewCallStore(db *sql.DB) *CallStore {
	return &CallStore{db: db}
}

func (s *CallStore) UpsertCall(ctx context.Context, orgID string, event webhook.CallEvent) (webhook.CallUpsertResult, error) {
	var hadTranscript bool
	err := s.db.QueryRowContext(ctx,
		`SELECT (transcript_text IS NOT NULL AND transcript_text != '')
		 FROM calls WHERE org_id = $1 AND provider = $2 AND external_id = $3`,
		orgID, event.Provider, event.ExternalID,
	).Scan(&hadTranscript)
	existed := err == nil

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calls (org_id, provider, external_id, direction, status, started_at, ended_at,
			duration_seconds, from_number, to_number, agent_email, recording_url, transcript_text, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13, now())
		ON CONFLICT (org_id, provider, external_id) DO UPDATE SET
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			duration_seconds = EXCLUDED.duration_seconds,
			recording_url = COALESCE(EXCLUDED.recording_url, calls.recording_url),
			transcript_text = COALESCE(EXCLUDED.transcript_text, calls.transcript_text),
			updated_at = now()`,
		orgID, event.Provider, event.ExternalID, string(event.Direction), event.Status,
		event.StartedAt, event.EndedAt, event.DurationSeconds,
		event.FromNumber, event.ToNumber, event.AgentEmail, event.RecordingURL, event.TranscriptText,
	)
	if err != nil {
		return webhook.CallUpsertResult{}, err
	}

	return webhook.CallUpsertResult{Inserted: !existed, HadTranscriptAlready: hadTranscript}, nil
}

func (s *CallStore) InsertCommunicationEvent(ctx context.Context, orgID, userID, externalID, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO communication_events (org_id, user_id, external_id, source, created_at)
		VALUES ($1,$2,$3,$4, now())
		ON CONFLICT (user_id, external_id, source) DO NOTHING`,
		orgID, userID, externalID, source,
	)
	return err
}

func (s *CallStore) InsertOutboundActivity(ctx context.Context, orgID, userID, callID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (org_id, user_id, type, outbound_type, original_activity_id, created_at)
		VALUES ($1,$2,'outbound','call',$3, now())
		ON CONFLICT (user_id, type, outbound_type, original_activity_id) DO NOTHING`,
		orgID, userID, callID,
	)
	return err
}

func (s *CallStore) UpdateIntegrationHeartbeat(ctx context.Context, orgID, provider string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE integrations SET last_heartbeat_at = $3 WHERE org_id = $1 AND provider = $2`,
		orgID, provider, at,
	)
	return err
}

// IsTranscriptReady and SaveTranscript implement transcript.CallStore.
// callID here is the provider's external_id, the same identifier the
// webhook handler and transcript queue carry end to end — there is no
// separate internal call row id.
func (s *CallStore) IsTranscriptReady(ctx context.Context, orgID, callID string) (bool, error) {
	var text sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT transcript_text FROM calls WHERE org_id = $1 AND external_id = $2`,
		orgID, callID,
	).Scan(&text)
	if err != nil {
		return false, err
	}
	return text.Valid && len(text.String) >= 20, nil
}

func (s *CallStore) SaveTranscript(ctx context.Context, orgID, callID, text string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calls SET transcript_text = $3, updated_at = now() WHERE org_id = $1 AND external_id = $2`,
		orgID, callID, text,
	)
	return err
}

// OwnerForCall resolves the user who owns a call (by its external id)
// for the transcript-driven, call-specific meeting_debrief dispatch,
// satisfying jobs.EntityOwnerLookup. Returns ("", nil) rather than an
// error when the call or its agent can't be resolved to a user, so an
// orphaned call just skips the debrief instead of failing the task.
func (s *CallStore) OwnerForCall(ctx context.Context, orgID, callID string) (string, error) {
	var agentEmail sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_email FROM calls WHERE org_id = $1 AND external_id = $2`,
		orgID, callID,
	).Scan(&agentEmail)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !agentEmail.Valid || agentEmail.String == "" {
		return "", nil
	}

	var userID string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE org_id = $1 AND email = $2`,
		orgID, agentEmail.String,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// OwnerResolver implements webhook.OwnerResolver: look up a user by
// agent email and confirm org membership.
type OwnerResolver struct {
	db *sql.DB
}

func NewOwnerResolver(db *sql.DB) *OwnerResolver {
	return &OwnerResolver{db: db}
}

func (o *OwnerResolver) ResolveOwner(ctx context.Context, orgID, agentEmail string) (string, bool, error) {
	var userID string
	err := o.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE org_id = $1 AND email = $2`,
		orgID, agentEmail,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

// AsynqEnqueuer implements transcript.DebriefEnqueuer by firing a
// one-shot meeting_debrief dispatch through asynq.
type AsynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

func (a *AsynqEnqueuer) EnqueueMeetingDebrief(ctx context.Context, orgID, callID string) error {
	return a.enqueueNow(ctx, jobs.TypeMeetingDebrief, orgID, callID)
}

func (a *AsynqEnqueuer) enqueueNow(ctx context.Context, taskType, orgID, callID string) error {
	payload := []byte(`{"org_id":"` + orgID + `","call_id":"` + callID + `"}`)
	_, err := a.client.EnqueueContext(ctx, asynq.NewTask(taskType, payload))
	return err
}

// TranscriptIngestEnqueuer implements webhook.TranscriptEnqueuer: a
// fetch writes a durable transcript_queue row (component J leases its
// batch from that table, not from an asynq payload), while an index
// fires the same one-shot meeting_debrief dispatch a successful
// transcript fetch eventually triggers.
type TranscriptIngestEnqueuer struct {
	durable *store.DurableStore
	debrief *AsynqEnqueuer
}

func NewTranscriptIngestEnqueuer(durable *store.DurableStore, debrief *AsynqEnqueuer) *TranscriptIngestEnqueuer {
	return &TranscriptIngestEnqueuer{durable: durable, debrief: debrief}
}

func (t *TranscriptIngestEnqueuer) EnqueueFetch(ctx context.Context, orgID, callID string) error {
	return t.durable.UpsertTranscriptQueueItem(ctx, store.TranscriptQueueItem{
		CallID:      callID,
		OrgID:       orgID,
		MaxAttempts: 10,
	})
}

func (t *TranscriptIngestEnqueuer) EnqueueIndex(ctx context.Context, orgID, callID string) error {
	return t.debrief.EnqueueMeetingDebrief(ctx, orgID, callID)
}
