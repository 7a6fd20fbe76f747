package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sixtyapp/engagement-engine/internal/engagement"
	"github.com/sixtyapp/engagement-engine/internal/store"
)

// FeatureSettings is the per-org/per-feature toggle checked before any
// other dispatch work happens.
type FeatureSettings struct {
	Enabled bool
}

// Recipient is the resolved Slack-delivery target for a user.
type Recipient struct {
	SlackUserID string
	ChannelID   string // pre-resolved shared channel, if delivery isn't a DM
	IsDM        bool
}

// Candidate is everything the caller already knows about a single
// notification to be dispatched; the Dispatcher fills in the rest
// (metrics, policy, rendering, delivery, persistence).
type Candidate struct {
	Feature      string
	OrgID        string
	UserID       string
	EntityID     string // the thing this notification is about (deal id, meeting id, ...)
	Priority     engagement.Priority
	Frequency    engagement.Frequency
	Timezone     string
	DedupeWindow time.Duration // 0 = the feature's fixed window from store.DedupeWindowOverride if it has one, else indefinite
	Manual       bool          // admin-triggered resend; bypasses the lease/lookback dedupe gate
}

// FeatureSettingsLookup resolves whether a feature is enabled for an org.
type FeatureSettingsLookup func(ctx context.Context, orgID, feature string) (FeatureSettings, error)

// RecipientLookup resolves a user id to its Slack delivery target.
type RecipientLookup func(ctx context.Context, orgID, userID string) (Recipient, error)

// MetricsLookup resolves a user's current engagement metrics, consulting
// the cache before falling back to a caller-supplied recompute.
type MetricsLookup func(ctx context.Context, orgID, userID string) (engagement.ComputedScores, engagement.ActivityPatterns, error)

// PayloadContextBuilder renders the feature-specific content for a
// candidate into a MessageModel — the one piece of the pipeline that is
// necessarily feature-specific and supplied by the caller.
type PayloadContextBuilder func(ctx context.Context, c Candidate) (MessageModel, error)

// Dispatcher is the single choke point every outbound Slack notification
// passes through (component G, spec §4.7's nine-step sequence).
type Dispatcher struct {
	durable     *store.DurableStore
	cache       *store.Cache
	sender      *SlackSender
	cfg         engagement.Config
	settings    FeatureSettingsLookup
	recipients  RecipientLookup
	metrics     MetricsLookup
	retryDelays []time.Duration
}

// NewDispatcher wires the store, Slack sender, and policy config into a
// Dispatcher. settings/recipients/metrics are injected so the engagement
// domain logic stays independent of any particular persistence schema.
func NewDispatcher(durable *store.DurableStore, cache *store.Cache, sender *SlackSender, cfg engagement.Config,
	settings FeatureSettingsLookup, recipients RecipientLookup, metrics MetricsLookup) *Dispatcher {
	return &Dispatcher{
		durable:    durable,
		cache:      cache,
		sender:     sender,
		cfg:        cfg,
		settings:   settings,
		recipients: recipients,
		metrics:    metrics,
		// 3 retries, exponential backoff, per the post-delivery
		// recordSent retry described in §4.7.
		retryDelays: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// MirrorFunc writes the in-app notification mirror after a successful
// Slack delivery; the Dispatcher ignores its error and never rolls back
// the Slack send (component K). mirror.Func logs its own failures.
type MirrorFunc func(ctx context.Context, c Candidate, model MessageModel, rec store.SentRecord) error

// EngagementLogFunc records the dispatch outcome for downstream metrics
// fatigue computation feeds on (NotificationInteraction rows).
type EngagementLogFunc func(ctx context.Context, c Candidate, outcome Outcome)

// Dispatch runs the full nine-step sequence for one candidate:
//  1. feature-settings check
//  2. recipient resolution
//  3. dedupe check (lease + durable lookback)
//  4. metrics lookup + fatigue-driven priority downgrade
//  5. policy evaluation
//  6. payload rendering via the caller's context builder
//  7. block rendering
//  8. Slack delivery
//  9. on success: recordSent, mirror, engagement log (with retry/backoff)
func (d *Dispatcher) Dispatch(ctx context.Context, c Candidate, build PayloadContextBuilder, mirror MirrorFunc, logEngagement EngagementLogFunc) Outcome {
	fs, err := d.settings(ctx, c.OrgID, c.Feature)
	if err != nil {
		return Failed(err, true)
	}
	if !fs.Enabled {
		return Skipped("feature_disabled")
	}

	recipient, err := d.recipients(ctx, c.OrgID, c.UserID)
	if err != nil {
		return Failed(err, true)
	}
	if recipient.SlackUserID == "" {
		return Skipped("no_mapping")
	}

	// Any early return past this point must release the lease so a
	// legitimate retry isn't blocked for the full window. Manual
	// (admin-triggered) dispatches skip the dedupe gate entirely, per
	// the operator re-send path, so releaseLease is a no-op for them.
	releaseLease := func() {}
	if !c.Manual {
		if c.DedupeWindow == 0 {
			if hours, indefinite := store.DedupeWindowOverride(c.Feature); !indefinite && hours > 0 {
				c.DedupeWindow = time.Duration(hours * float64(time.Hour))
			}
		}
		dedupeKey := store.DedupeKey(c.Feature, c.OrgID, recipient.SlackUserID, c.EntityID)
		leaseTTL := c.DedupeWindow
		if leaseTTL <= 0 {
			leaseTTL = 24 * time.Hour
		}
		leased, err := d.cache.AcquireDedupeLease(ctx, dedupeKey, leaseTTL)
		if err != nil {
			return Failed(err, true)
		}
		if !leased {
			return Skipped("deduped")
		}
		releaseLease = func() { _ = d.cache.ReleaseDedupeLease(ctx, dedupeKey) }

		if c.DedupeWindow >= 0 {
			existing, err := d.durable.FindRecentSent(ctx, c.Feature, c.OrgID, recipient.SlackUserID, c.EntityID, windowOrIndefinite(c.DedupeWindow))
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				releaseLease()
				return Failed(err, true)
			}
			if existing != nil {
				releaseLease()
				return Skipped("deduped")
			}
		}
	}

	scores, patterns, err := d.metrics(ctx, c.OrgID, c.UserID)
	if err != nil {
		releaseLease()
		return Failed(err, true)
	}

	counts, err := d.durable.CountRecent(ctx, c.OrgID, recipient.SlackUserID, engagement.StartOfHour(now()), startOfDayOrNow(c.Timezone))
	if err != nil {
		releaseLease()
		return Failed(err, true)
	}

	decision := engagement.Evaluate(d.cfg, now(), c.Timezone, c.Priority, c.Frequency,
		scores.Segment, scores.FatigueLevel, patterns, engagement.RecentCounts{
			ThisHour: counts.Hour, ThisDay: counts.Day, LastSentAt: counts.LastSentAt,
		})
	if !decision.Allow {
		releaseLease()
		return Skipped(decision.Reason)
	}

	model, err := build(ctx, c)
	if err != nil {
		releaseLease()
		return Failed(err, false)
	}

	var channelID string
	if recipient.IsDM {
		channelID, err = d.sender.ResolveDMChannel(ctx, recipient.SlackUserID)
		if err != nil {
			releaseLease()
			return toOutcome(err)
		}
	} else {
		channelID = recipient.ChannelID
	}

	ts, err := d.sender.PostMessage(ctx, channelID, model)
	if err != nil {
		releaseLease()
		return toOutcome(err)
	}

	outcome := Delivered(ts, channelID)
	rec := store.SentRecord{
		Feature:     c.Feature,
		OrgID:       c.OrgID,
		SlackUserID: recipient.SlackUserID,
		EntityID:    c.EntityID,
		SentAt:      now(),
		SlackTS:     ts,
		ChannelID:   channelID,
	}

	if recErr := d.recordSentWithRetry(ctx, rec); recErr != nil {
		// Delivered to Slack but the durable write never landed — flag
		// for reconciliation rather than treat the dispatch as failed.
		outcome.SentUnrecorded = true
	}

	if mirror != nil {
		if mErr := mirror(ctx, c, model, rec); mErr != nil {
			// best-effort: the error is dropped here (the mirror logs its
			// own failures) and the delivered Slack send is never rolled back.
			_ = mErr
		}
	}
	if logEngagement != nil {
		logEngagement(ctx, c, outcome)
	}

	return outcome
}

func (d *Dispatcher) recordSentWithRetry(ctx context.Context, rec store.SentRecord) error {
	var lastErr error
	attempts := append([]time.Duration{0}, d.retryDelays...)
	for _, delay := range attempts {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err := d.durable.RecordSent(ctx, rec, "")
		if err == nil || errors.Is(err, store.ErrConflict) {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func windowOrIndefinite(d time.Duration) time.Duration {
	if d <= 0 {
		return 365 * 24 * time.Hour
	}
	return d
}

func startOfDayOrNow(tz string) time.Time {
	start, err := engagement.StartOfDay(now(), tz)
	if err != nil {
		return now()
	}
	return start
}

func toOutcome(err error) Outcome {
	var slackErr *SlackError
	if errors.As(err, &slackErr) {
		return Failed(slackErr.Err, slackErr.Retryable)
	}
	return Failed(err, true)
}

// ErrNoRows surfaces sql.ErrNoRows to callers that need to distinguish
// "nothing found" from a real error without importing database/sql.
var ErrNoRows = sql.ErrNoRows
