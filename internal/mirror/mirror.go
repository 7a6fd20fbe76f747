// Package mirror implements the In-app Mirror (component K): a
// synchronous, best-effort write of every successful Slack delivery
// into the CRM's in-app notification feed.
package mirror

import (
	"context"
	"log"

	"github.com/sixtyapp/engagement-engine/internal/dispatch"
	"github.com/sixtyapp/engagement-engine/internal/store"
)

// Row is the in-app notification row written alongside a Slack delivery.
type Row struct {
	UserID     string
	OrgID      string
	Category   string
	Type       string
	Title      string
	Message    string
	ActionURL  string
	Metadata   map[string]any
}

// Writer persists an in-app notification row.
type Writer interface {
	Write(ctx context.Context, row Row) error
}

// Mirror writes the in-app row for a successful dispatch.
type Mirror struct {
	writer Writer
}

// New builds a Mirror over the given Writer.
func New(writer Writer) *Mirror {
	return &Mirror{writer: writer}
}

// Func returns a dispatch.MirrorFunc closing over this Mirror, wired
// directly into a Dispatcher's post-delivery step. Its failure is
// logged, never propagated — a broken in-app write must not roll back
// or retry the Slack send that already succeeded.
func (m *Mirror) Func() dispatch.MirrorFunc {
	return func(ctx context.Context, c dispatch.Candidate, model dispatch.MessageModel, rec store.SentRecord) error {
		row := Row{
			UserID:    c.UserID,
			OrgID:     c.OrgID,
			Category:  model.Category,
			Type:      model.Type,
			Title:     model.Title,
			Message:   model.Summary,
			ActionURL: model.ActionURL,
			Metadata: map[string]any{
				"entityId": c.EntityID,
				"slackTs":  rec.SlackTS,
			},
		}
		if err := m.writer.Write(ctx, row); err != nil {
			log.Printf("mirror: in-app write failed for user=%s feature=%s: %v", c.UserID, c.Feature, err)
			return err
		}
		return nil
	}
}
