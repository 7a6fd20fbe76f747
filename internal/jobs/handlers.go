package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/sixtyapp/engagement-engine/internal/dispatch"
	"github.com/sixtyapp/engagement-engine/internal/engagement"
	"github.com/sixtyapp/engagement-engine/internal/store"
)

// Bounds on the per-tick fan-out, per the component design: a handful
// of orgs in flight at once, a handful of users within each org, with a
// short pause between user batches so one tick doesn't saturate Slack's
// or the AI provider's rate limits.
const (
	orgConcurrency  = 5
	userConcurrency = 3
	batchPause      = time.Second
)

// OrgLister enumerates every org a scheduled job should run against.
type OrgLister func(ctx context.Context) ([]string, error)

// EntityCandidate pairs a user eligible for a feature's job on this tick
// with the CRM entity (if any) the resulting notification is about — a
// meeting for meeting_prep, a call for meeting_debrief, a deal for
// deal_momentum_nudge. EntityID is empty for features whose content
// isn't about a single entity (reengagement's own-activity nudge).
type EntityCandidate struct {
	UserID   string
	EntityID string
}

// UserLister enumerates the (user, entity) pairs within an org eligible
// for a given feature's job on this tick.
type UserLister func(ctx context.Context, orgID string) ([]EntityCandidate, error)

// EntityOwnerLookup resolves the user who owns a single CRM entity
// (e.g. a call's agent), used by event-driven one-shot dispatches that
// already know which entity they're about rather than enumerating one.
type EntityOwnerLookup func(ctx context.Context, orgID, entityID string) (userID string, err error)

// orgScopedFeatures bypass per-user enumeration entirely: one candidate
// per org, recipient resolved to the org's configured channel rather
// than a per-user Slack mapping, so an org produces exactly one
// dispatch (and one dedupe key) per tick regardless of its user count.
var orgScopedFeatures = map[string]bool{
	"daily_digest":  true,
	"morning_brief": true,
}

// Handlers wires the Dispatcher and per-feature user eligibility into
// asynq task handlers, one method per scheduled job type.
type Handlers struct {
	Dispatcher    *dispatch.Dispatcher
	Durable       *store.DurableStore
	Cfg           engagement.Config
	Orgs          OrgLister
	Users         map[string]UserLister                     // keyed by feature name
	Builders      map[string]dispatch.PayloadContextBuilder // keyed by feature name
	EntityOwners  map[string]EntityOwnerLookup              // keyed by feature name, for event-driven one-shots
	Mirror        dispatch.MirrorFunc
	LogEngagement dispatch.EngagementLogFunc
}

// runFeatureJob fans out a feature's job across every org (bounded
// concurrency) and, within each org, across every eligible user (bounded
// concurrency), pausing briefly between user batches.
func (h *Handlers) runFeatureJob(ctx context.Context, feature string) error {
	return h.runFeatureJobManual(ctx, feature, false)
}

// runFeatureJobManual is runFeatureJob with the manual/admin-triggered
// flag threaded onto every Candidate it builds, so TriggerFeature's
// resends bypass the dedupe gate while scheduled ticks don't.
func (h *Handlers) runFeatureJobManual(ctx context.Context, feature string, manual bool) error {
	orgs, err := h.Orgs(ctx)
	if err != nil {
		return err
	}

	builder, ok := h.Builders[feature]
	if !ok {
		log.Printf("jobs: no payload builder registered for feature %s, skipping", feature)
		return nil
	}

	if orgScopedFeatures[feature] {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(orgConcurrency)
		for _, orgID := range orgs {
			orgID := orgID
			g.Go(func() error {
				candidate := dispatch.Candidate{
					Feature:   feature,
					OrgID:     orgID,
					Priority:  defaultPriorityFor(feature),
					Frequency: engagement.FrequencyModerate,
					Timezone:  "UTC",
					Manual:    manual,
				}
				outcome := h.Dispatcher.Dispatch(gctx, candidate, builder, h.Mirror, h.LogEngagement)
				if outcome.Failed {
					log.Printf("jobs: org dispatch failed feature=%s org=%s err=%v", feature, orgID, outcome.Err)
				}
				return nil
			})
		}
		return g.Wait()
	}

	userLister, ok := h.Users[feature]
	if !ok {
		log.Printf("jobs: no user lister registered for feature %s, skipping", feature)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(orgConcurrency)

	for _, orgID := range orgs {
		orgID := orgID
		g.Go(func() error {
			return h.runFeatureJobForOrg(gctx, feature, orgID, userLister, builder, manual)
		})
	}
	return g.Wait()
}

func (h *Handlers) runFeatureJobForOrg(ctx context.Context, feature, orgID string, userLister UserLister, builder dispatch.PayloadContextBuilder, manual bool) error {
	candidates, err := userLister(ctx, orgID)
	if err != nil {
		return err
	}

	for batchStart := 0; batchStart < len(candidates); batchStart += userConcurrency {
		end := batchStart + userConcurrency
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[batchStart:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, ec := range batch {
			ec := ec
			g.Go(func() error {
				candidate := dispatch.Candidate{
					Feature:   feature,
					OrgID:     orgID,
					UserID:    ec.UserID,
					EntityID:  ec.EntityID,
					Priority:  defaultPriorityFor(feature),
					Frequency: engagement.FrequencyModerate,
					Timezone:  "UTC",
					Manual:    manual,
				}
				outcome := h.Dispatcher.Dispatch(gctx, candidate, builder, h.Mirror, h.LogEngagement)
				if outcome.Failed {
					log.Printf("jobs: dispatch failed feature=%s org=%s user=%s entity=%s err=%v", feature, orgID, ec.UserID, ec.EntityID, outcome.Err)
				}
				return nil // one user's failure never aborts the batch/org
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if end < len(candidates) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(batchPause):
			}
		}
	}
	return nil
}

// runEntityJob dispatches a single candidate for one already-known
// entity, used when an event (not a scheduled scan) is what identifies
// the entity — the transcript worker's call-specific meeting_debrief.
func (h *Handlers) runEntityJob(ctx context.Context, feature, orgID, entityID string) error {
	lookup, ok := h.EntityOwners[feature]
	if !ok {
		return fmt.Errorf("jobs: no entity owner lookup registered for feature %s", feature)
	}
	builder, ok := h.Builders[feature]
	if !ok {
		log.Printf("jobs: no payload builder registered for feature %s, skipping", feature)
		return nil
	}

	userID, err := lookup(ctx, orgID, entityID)
	if err != nil {
		return err
	}
	if userID == "" {
		log.Printf("jobs: no owner resolved for feature=%s org=%s entity=%s, skipping", feature, orgID, entityID)
		return nil
	}

	candidate := dispatch.Candidate{
		Feature:   feature,
		OrgID:     orgID,
		UserID:    userID,
		EntityID:  entityID,
		Priority:  defaultPriorityFor(feature),
		Frequency: engagement.FrequencyModerate,
		Timezone:  "UTC",
	}
	outcome := h.Dispatcher.Dispatch(ctx, candidate, builder, h.Mirror, h.LogEngagement)
	if outcome.Failed {
		log.Printf("jobs: entity dispatch failed feature=%s org=%s entity=%s err=%v", feature, orgID, entityID, outcome.Err)
	}
	return nil
}

func defaultPriorityFor(feature string) engagement.Priority {
	switch feature {
	case "deal_momentum_nudge", "meeting_debrief":
		return engagement.PriorityHigh
	case "reengagement":
		return engagement.PriorityLow
	default:
		return engagement.PriorityNormal
	}
}

// TriggerFeature runs a feature's job immediately, bypassing asynq. Used
// by the admin-triggered HTTP endpoints (operator-initiated re-sends,
// cron-invocation fallback when the asynq scheduler is unavailable).
// Manual dispatches bypass the dedupe gate so an operator resend always
// goes out even if the feature already fired this window.
func (h *Handlers) TriggerFeature(ctx context.Context, feature string) error {
	return h.runFeatureJobManual(ctx, feature, true)
}

// asynqHandler adapts a feature-job closure into an asynq.HandlerFunc.
func (h *Handlers) asynqHandler(feature string) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		return h.runFeatureJob(ctx, feature)
	}
}

// DailyDigest, MorningBrief, MeetingPrep, DealMomentumNudge, and
// Reengagement each delegate to the generic bounded fan-out with their
// own feature name, registered user lister, and payload builder.
func (h *Handlers) DailyDigest() asynq.HandlerFunc       { return h.asynqHandler("daily_digest") }
func (h *Handlers) MorningBrief() asynq.HandlerFunc      { return h.asynqHandler("morning_brief") }
func (h *Handlers) MeetingPrep() asynq.HandlerFunc       { return h.asynqHandler("meeting_prep") }
func (h *Handlers) DealMomentumNudge() asynq.HandlerFunc { return h.asynqHandler("deal_momentum_nudge") }
func (h *Handlers) Reengagement() asynq.HandlerFunc      { return h.asynqHandler("reengagement") }

// meetingDebriefTask is the asynq payload shape the transcript worker's
// one-shot enqueue carries (a specific call) — empty on the recurring
// cron tick, which falls back to the generic ended-meetings scan.
type meetingDebriefTask struct {
	OrgID  string `json:"org_id"`
	CallID string `json:"call_id"`
}

// MeetingDebrief handles both ways a debrief gets triggered: the
// recurring cron tick (empty payload, generic fan-out over recently
// ended calls) and the transcript worker's one-shot dispatch for a
// specific call once its transcript is ready.
func (h *Handlers) MeetingDebrief() asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		payload := task.Payload()
		if len(payload) == 0 {
			return h.runFeatureJob(ctx, "meeting_debrief")
		}

		var t meetingDebriefTask
		if err := json.Unmarshal(payload, &t); err != nil {
			return fmt.Errorf("jobs: decode meeting_debrief payload: %w", err)
		}
		if t.CallID == "" {
			return h.runFeatureJob(ctx, "meeting_debrief")
		}
		return h.runEntityJob(ctx, "meeting_debrief", t.OrgID, t.CallID)
	}
}

// ReconciliationSweep finds leased-but-stuck QueuedNotifications (a
// worker crashed mid-lease) and moves them to the dead letter set for
// operator review rather than leaving them leased forever.
func (h *Handlers) ReconciliationSweep() asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		n, err := h.Durable.ReconcileStale(ctx, 30*time.Minute, 500)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Printf("jobs: reconciliation sweep moved %d stale leases to dead letter", n)
		}
		return nil
	}
}

// DLQReplay re-queues a bounded batch of dead-lettered notifications
// for another delivery attempt, used after a transient outage clears.
func (h *Handlers) DLQReplay() asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		n, err := h.Durable.ReplayDLQ(ctx, 100)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Printf("jobs: replayed %d dead-lettered notifications", n)
		}
		return nil
	}
}

// TranscriptQueueTick delegates to the transcript package's bounded
// per-tick worker (component J); wired here so it runs on the same
// asynq cron cadence as the other housekeeping sweeps.
type TranscriptTicker interface {
	Tick(ctx context.Context) error
}

func (h *Handlers) TranscriptQueueTick(ticker TranscriptTicker) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		return ticker.Tick(ctx)
	}
}
