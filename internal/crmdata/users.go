package crmdata

import (
	"context"
	"database/sql"

	"github.com/sixtyapp/engagement-engine/internal/jobs"
)

// FeatureUsers resolves the (user, entity) pairs eligible for a given
// scheduled job's feature on this tick. Each feature has its own
// trigger condition (meeting_prep: a meeting starting in the 10-minute
// prep band; deal_momentum_nudge: a deal whose health/risk/clarity
// crossed the at-risk threshold; reengagement: a user past their
// re-engagement trigger) — expressed here as one query per feature
// rather than a single generic predicate, since the trigger shapes
// genuinely differ. Queries for entity-scoped features select the
// entity id alongside the user id; the reengagement query selects the
// user id alone and carries an empty EntityID. daily_digest and
// morning_brief are dispatched once per org by the jobs package and
// never reach these queries.
type FeatureUsers struct {
	db *sql.DB
}

// NewFeatureUsers wraps a pooled connection to the CRM database.
func NewFeatureUsers(db *sql.DB) *FeatureUsers {
	return &FeatureUsers{db: db}
}

// entityQueries select (user_id, entity_id) pairs; the feature's
// notification is about entity_id, not just about user_id.
var entityQueries = map[string]string{
	// meeting_prep: the meeting starts in [now+25m, now+35m] — a
	// 10-minute band centered on "30 minutes out", not a broad
	// lookahead, so a tick firing every few minutes sends exactly once
	// per meeting.
	"meeting_prep": `
		SELECT u.id, m.id FROM users u
		JOIN meetings m ON m.owner_user_id = u.id
		WHERE u.org_id = $1
		  AND m.starts_at BETWEEN now() + interval '25 minutes' AND now() + interval '35 minutes'`,

	// deal_momentum_nudge: health/risk/clarity crossed the at-risk
	// threshold, not a blunt "no activity in N days" age heuristic.
	"deal_momentum_nudge": `
		SELECT u.id, d.id FROM users u
		JOIN deals d ON d.owner_user_id = u.id
		WHERE u.org_id = $1 AND d.status = 'open'
		  AND (
		        d.health IN ('warning', 'critical', 'stalled')
		     OR d.risk IN ('high', 'critical')
		     OR d.clarity < 50
		  )`,

	// meeting_debrief (recurring cron path): a call that ended in the
	// last hour with a transcript present; the query does not check
	// whether a debrief was already sent for the call. The
	// call-specific, transcript-driven one-shot path bypasses this
	// query entirely (see jobs.Handlers.MeetingDebrief).
	"meeting_debrief": `
		SELECT u.id, c.external_id FROM users u
		JOIN calls c ON c.agent_email = u.email AND c.org_id = u.org_id
		WHERE u.org_id = $1
		  AND c.ended_at BETWEEN now() - interval '1 hour' AND now()
		  AND c.transcript_text IS NOT NULL AND c.transcript_text != ''`,
}

// userOnlyQueries select a bare user id; EntityID is always empty.
var userOnlyQueries = map[string]string{
	"reengagement": `
		SELECT id FROM users
		WHERE org_id = $1 AND slack_user_id IS NOT NULL
		  AND (last_active_at IS NULL OR last_active_at < now() - interval '14 days')`,

	"default": `SELECT id FROM users WHERE org_id = $1 AND slack_user_id IS NOT NULL`,
}

// ForFeature returns a jobs.UserLister closure bound to one feature's
// eligibility query.
func (f *FeatureUsers) ForFeature(feature string) jobs.UserLister {
	if query, ok := entityQueries[feature]; ok {
		return func(ctx context.Context, orgID string) ([]jobs.EntityCandidate, error) {
			rows, err := f.db.QueryContext(ctx, query, orgID)
			if err != nil {
				return nil, err
			}
			defer rows.Close()

			var out []jobs.EntityCandidate
			for rows.Next() {
				var ec jobs.EntityCandidate
				if err := rows.Scan(&ec.UserID, &ec.EntityID); err != nil {
					return nil, err
				}
				out = append(out, ec)
			}
			return out, rows.Err()
		}
	}

	query, ok := userOnlyQueries[feature]
	if !ok {
		query = userOnlyQueries["default"]
	}
	return func(ctx context.Context, orgID string) ([]jobs.EntityCandidate, error) {
		rows, err := f.db.QueryContext(ctx, query, orgID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []jobs.EntityCandidate
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			out = append(out, jobs.EntityCandidate{UserID: id})
		}
		return out, rows.Err()
	}
}
