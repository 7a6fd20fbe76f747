package crmdata

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sixtyapp/engagement-engine/internal/dispatch"
)

// PayloadBuilder renders a Candidate's feature-specific content by
// reading the one CRM entity (deal, meeting, call) the candidate names,
// per the design note that cross-entity references resolve on demand
// through a read-only view rather than an in-memory graph.
type PayloadBuilder struct {
	db *sql.DB
}

// NewPayloadBuilder wraps a pooled connection to the CRM database.
func NewPayloadBuilder(db *sql.DB) *PayloadBuilder {
	return &PayloadBuilder{db: db}
}

// ForFeature returns a dispatch.PayloadContextBuilder bound to one
// feature's rendering query.
func (p *PayloadBuilder) ForFeature(feature string) dispatch.PayloadContextBuilder {
	return func(ctx context.Context, c dispatch.Candidate) (dispatch.MessageModel, error) {
		switch feature {
		case "meeting_prep":
			return p.meetingModel(ctx, c)
		case "meeting_debrief":
			return p.callDebriefModel(ctx, c)
		case "deal_momentum_nudge":
			return p.dealModel(ctx, c)
		default:
			return p.genericModel(ctx, c)
		}
	}
}

func (p *PayloadBuilder) meetingModel(ctx context.Context, c dispatch.Candidate) (dispatch.MessageModel, error) {
	var title, company string
	var startsAt sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT m.title, COALESCE(co.name, ''), m.starts_at::text
		 FROM meetings m LEFT JOIN companies co ON co.id = m.company_id
		 WHERE m.id = $1 AND m.org_id = $2`,
		c.EntityID, c.OrgID,
	).Scan(&title, &company, &startsAt)
	if err != nil {
		return dispatch.MessageModel{}, fmt.Errorf("crmdata: load meeting %s: %w", c.EntityID, err)
	}

	summary := title
	if company != "" {
		summary = fmt.Sprintf("%s — %s", title, company)
	}

	return dispatch.MessageModel{
		Title:      title,
		Summary:    summary,
		ActionURL:  fmt.Sprintf("/meetings/%s", c.EntityID),
		ActionText: "View meeting",
		Category:   "meeting",
		Type:       "meeting_prep",
		Fields: []dispatch.MessageField{
			{Label: "Starts", Value: startsAt.String},
		},
	}, nil
}

// callDebriefModel renders meeting_debrief content from the calls
// table rather than meetings: a debrief is always about a specific
// transcribed call (both the recurring ended-calls scan and the
// transcript worker's one-shot dispatch key on the call's external id,
// never a meetings.id).
func (p *PayloadBuilder) callDebriefModel(ctx context.Context, c dispatch.Candidate) (dispatch.MessageModel, error) {
	var fromNumber, toNumber sql.NullString
	var endedAt sql.NullString
	var durationSeconds sql.NullInt64
	err := p.db.QueryRowContext(ctx,
		`SELECT from_number, to_number, ended_at::text, duration_seconds
		 FROM calls WHERE external_id = $1 AND org_id = $2`,
		c.EntityID, c.OrgID,
	).Scan(&fromNumber, &toNumber, &endedAt, &durationSeconds)
	if err != nil {
		return dispatch.MessageModel{}, fmt.Errorf("crmdata: load call %s: %w", c.EntityID, err)
	}

	counterpart := toNumber.String
	if counterpart == "" {
		counterpart = fromNumber.String
	}
	title := "Call debrief"
	if counterpart != "" {
		title = fmt.Sprintf("Call with %s", counterpart)
	}

	return dispatch.MessageModel{
		Title:      title,
		Summary:    "Transcript is ready — review before it goes cold.",
		ActionURL:  fmt.Sprintf("/calls/%s", c.EntityID),
		ActionText: "Review debrief",
		Category:   "meeting",
		Type:       "meeting_debrief",
		Fields: []dispatch.MessageField{
			{Label: "Ended", Value: endedAt.String},
			{Label: "Duration", Value: fmt.Sprintf("%ds", durationSeconds.Int64)},
		},
	}, nil
}

func (p *PayloadBuilder) dealModel(ctx context.Context, c dispatch.Candidate) (dispatch.MessageModel, error) {
	var name, stage, health, risk string
	var value, clarity sql.NullFloat64
	err := p.db.QueryRowContext(ctx,
		`SELECT name, stage, value, health, risk, clarity FROM deals WHERE id = $1 AND org_id = $2`,
		c.EntityID, c.OrgID,
	).Scan(&name, &stage, &value, &health, &risk, &clarity)
	if err != nil {
		return dispatch.MessageModel{}, fmt.Errorf("crmdata: load deal %s: %w", c.EntityID, err)
	}

	fields := []dispatch.MessageField{
		{Label: "Stage", Value: stage},
		{Label: "Health", Value: health},
		{Label: "Risk", Value: risk},
	}
	if value.Valid {
		fields = append(fields, dispatch.MessageField{Label: "Value", Value: fmt.Sprintf("$%.0f", value.Float64)})
	}
	if clarity.Valid {
		fields = append(fields, dispatch.MessageField{Label: "Clarity", Value: fmt.Sprintf("%.0f", clarity.Float64)})
	}

	return dispatch.MessageModel{
		Title:      name,
		Summary:    fmt.Sprintf("%s has stalled — health/risk crossed the at-risk threshold", name),
		ActionURL:  fmt.Sprintf("/deals/%s", c.EntityID),
		ActionText: "View deal",
		Category:   "deal",
		Type:       "deal_momentum_nudge",
		Fields:     fields,
	}, nil
}

// genericModel covers daily_digest/morning_brief/reengagement, whose
// content is a rollup rather than a single entity; EntityID is empty
// for these features.
func (p *PayloadBuilder) genericModel(_ context.Context, c dispatch.Candidate) (dispatch.MessageModel, error) {
	return dispatch.MessageModel{
		Title:      fmt.Sprintf("%s update", c.Feature),
		Summary:    "Your update is ready.",
		ActionURL:  "/home",
		ActionText: "Open",
		Category:   "digest",
		Type:       c.Feature,
	}, nil
}
