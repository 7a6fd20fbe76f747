// Package crmdata implements the thin, feature-agnostic persistence
// adapters the dispatch/jobs/webhook/transcript/mirror components need
// but stay deliberately decoupled from: org/user enumeration, Slack
// recipient resolution, feature settings, and the CRM read view that
// backs payload rendering. Per the design note that cross-entity
// references (meetings → deals → companies) resolve on demand through
// a read-only CRM view rather than an in-memory object graph, every
// query here is a single flat SELECT against ids already carried on
// the Candidate/CallEvent.
package crmdata

import (
	"context"
	"database/sql"

	"github.com/sixtyapp/engagement-engine/internal/dispatch"
)

// OrgStore enumerates orgs and resolves feature settings/Slack
// recipients directly against the CRM schema.
type OrgStore struct {
	db *sql.DB
}

// NewOrgStore wraps a pooled connection to the CRM database.
func NewOrgStore(db *sql.DB) *OrgStore {
	return &OrgStore{db: db}
}

// ListOrgs returns every org with Slack notifications configured,
// satisfying jobs.OrgLister.
func (o *OrgStore) ListOrgs(ctx context.Context) ([]string, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT id FROM organizations WHERE slack_bot_token IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		orgs = append(orgs, id)
	}
	return orgs, rows.Err()
}

// FeatureSettings resolves whether a feature is enabled for an org,
// satisfying dispatch.FeatureSettingsLookup.
func (o *OrgStore) FeatureSettings(ctx context.Context, orgID, feature string) (dispatch.FeatureSettings, error) {
	var enabled bool
	err := o.db.QueryRowContext(ctx,
		`SELECT enabled FROM notification_feature_settings WHERE org_id = $1 AND feature = $2`,
		orgID, feature,
	).Scan(&enabled)
	if err == sql.ErrNoRows {
		return dispatch.FeatureSettings{Enabled: false}, nil
	}
	if err != nil {
		return dispatch.FeatureSettings{}, err
	}
	return dispatch.FeatureSettings{Enabled: enabled}, nil
}

// Recipient resolves a CRM user id to its Slack delivery target,
// satisfying dispatch.RecipientLookup. An empty userID means the
// org-scoped digest features (daily_digest, morning_brief) — resolve
// to the org's configured channel instead of a per-user mapping, so
// every user in the org shares one recipient and one dedupe key.
func (o *OrgStore) Recipient(ctx context.Context, orgID, userID string) (dispatch.Recipient, error) {
	if userID == "" {
		return o.orgChannelRecipient(ctx, orgID)
	}

	var slackUserID string
	var channelID sql.NullString
	err := o.db.QueryRowContext(ctx,
		`SELECT slack_user_id, slack_channel_id FROM users WHERE id = $1 AND org_id = $2`,
		userID, orgID,
	).Scan(&slackUserID, &channelID)
	if err != nil {
		return dispatch.Recipient{}, err
	}

	if channelID.Valid && channelID.String != "" {
		return dispatch.Recipient{SlackUserID: slackUserID, ChannelID: channelID.String, IsDM: false}, nil
	}
	return dispatch.Recipient{SlackUserID: slackUserID, IsDM: true}, nil
}

// orgChannelRecipient resolves an org's configured digest channel. The
// synthetic SlackUserID (a fixed token per org, not a real Slack id)
// is what the dedupe key keys on, so a digest dispatches exactly once
// per org per window regardless of how many users belong to it.
func (o *OrgStore) orgChannelRecipient(ctx context.Context, orgID string) (dispatch.Recipient, error) {
	var channelID sql.NullString
	err := o.db.QueryRowContext(ctx,
		`SELECT digest_channel_id FROM organizations WHERE id = $1`,
		orgID,
	).Scan(&channelID)
	if err != nil {
		return dispatch.Recipient{}, err
	}
	if !channelID.Valid || channelID.String == "" {
		return dispatch.Recipient{}, nil
	}
	return dispatch.Recipient{SlackUserID: "org:" + orgID, ChannelID: channelID.String, IsDM: false}, nil
}
