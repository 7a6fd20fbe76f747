package crmdata

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sixtyapp/engagement-engine/internal/mirror"
)

// NotificationMirror implements mirror.Writer against an in-app
// notifications table, the read-path counterpart to every Slack
// delivery.
type NotificationMirror struct {
	db *sql.DB
}

func NewNotificationMirror(db *sql.DB) *NotificationMirror {
	return &NotificationMirror{db: db}
}

func (n *NotificationMirror) Write(ctx context.Context, row mirror.Row) error {
	metadata, err := json.Marshal(row.Metadata)
	if err != nil {
		return err
	}

	_, err = n.db.ExecContext(ctx, `
		INSERT INTO in_app_notifications
			(org_id, user_id, category, type, title, message, action_url, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())`,
		row.OrgID, row.UserID, row.Category, row.Type, row.Title, row.Message, row.ActionURL, metadata,
	)
	return err
}
