package crmdata

import (
	"github.com/sixtyapp/engagement-engine/internal/dispatch"
	"github.com/sixtyapp/engagement-engine/internal/engagement"
	"github.com/sixtyapp/engagement-engine/internal/jobs"
	"github.com/sixtyapp/engagement-engine/internal/mirror"
	"github.com/sixtyapp/engagement-engine/internal/store"
)

// featureNames lists every feature the scheduled-job runner fans out
// for — the same set FeatureUsers.eligibilityQueries and PayloadBuilder
// dispatch on.
var featureNames = []string{
	"daily_digest",
	"morning_brief",
	"meeting_prep",
	"deal_momentum_nudge",
	"meeting_debrief",
	"reengagement",
}

// NewJobHandlers assembles jobs.Handlers from the CRM-backed adapters,
// the one piece of wiring both the API process (for admin-triggered
// runs) and the worker process (for the asynq cron handlers) need
// identically.
func NewJobHandlers(
	dispatcher *dispatch.Dispatcher,
	durable *store.DurableStore,
	cfg engagement.Config,
	orgs *OrgStore,
	users *FeatureUsers,
	payloads *PayloadBuilder,
	calls *CallStore,
	mirrorWriter *NotificationMirror,
	engagementLog *EngagementLog,
) *jobs.Handlers {
	userListers := make(map[string]jobs.UserLister, len(featureNames))
	builders := make(map[string]dispatch.PayloadContextBuilder, len(featureNames))
	for _, feature := range featureNames {
		userListers[feature] = users.ForFeature(feature)
		builders[feature] = payloads.ForFeature(feature)
	}

	return &jobs.Handlers{
		Dispatcher: dispatcher,
		Durable:    durable,
		Cfg:        cfg,
		Orgs:       orgs.ListOrgs,
		Users:      userListers,
		Builders:   builders,
		EntityOwners: map[string]jobs.EntityOwnerLookup{
			"meeting_debrief": calls.OwnerForCall,
		},
		Mirror:        mirror.New(mirrorWriter).Func(),
		LogEngagement: engagementLog.Func(),
	}
}
