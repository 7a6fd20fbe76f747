package crmdata

import (
	"context"
	"database/sql"
	"time"

	"github.com/sixtyapp/engagement-engine/internal/engagement"
	"github.com/sixtyapp/engagement-engine/internal/store"
)

// MetricsProvider satisfies dispatch.MetricsLookup: check the Redis LRU
// first, and on a miss recompute from the raw activity/interaction
// history and repopulate the cache.
type MetricsProvider struct {
	db    *sql.DB
	cache *store.Cache
	cfg   engagement.Config
}

// NewMetricsProvider wraps a pooled connection, the shared Cache, and
// the process-global engagement config.
func NewMetricsProvider(db *sql.DB, cache *store.Cache, cfg engagement.Config) *MetricsProvider {
	return &MetricsProvider{db: db, cache: cache, cfg: cfg}
}

func (m *MetricsProvider) Lookup(ctx context.Context, orgID, userID string) (engagement.ComputedScores, engagement.ActivityPatterns, error) {
	if cached, err := m.cache.GetUserMetrics(ctx, userID); err == nil && cached != nil {
		scores := engagement.ComputedScores{
			OverallScore:       cached.OverallScore,
			Segment:            engagement.Segment(cached.Segment),
			FatigueScore:       cached.FatigueScore,
			FatigueLevel:       m.cfg.FatigueLevelFor(cached.FatigueScore),
			PreferredFrequency: engagement.Frequency(cached.PreferredFrequency),
		}
		patterns := engagement.ActivityPatterns{
			PeakHour:           cached.PeakHour,
			TypicalActiveHours: cached.TypicalActiveHours,
		}
		scores.Patterns = patterns
		return scores, patterns, nil
	}

	scores, patterns, err := m.recompute(ctx, orgID, userID)
	if err != nil {
		return engagement.ComputedScores{}, engagement.ActivityPatterns{}, err
	}

	_ = m.cache.SetUserMetrics(ctx, store.CachedUserMetrics{
		UserID:             userID,
		OrgID:              orgID,
		OverallScore:       scores.OverallScore,
		Segment:            string(scores.Segment),
		FatigueScore:       scores.FatigueScore,
		PreferredFrequency: string(scores.PreferredFrequency),
		PeakHour:           patterns.PeakHour,
		TypicalActiveHours: patterns.TypicalActiveHours,
		CachedAt:           time.Now(),
	})

	return scores, patterns, nil
}

func (m *MetricsProvider) recompute(ctx context.Context, orgID, userID string) (engagement.ComputedScores, engagement.ActivityPatterns, error) {
	now := time.Now().UTC()

	var lastAppActiveAt, lastChatActiveAt sql.NullTime
	var daysSinceActive sql.NullFloat64
	err := m.db.QueryRowContext(ctx, `
		SELECT
			(SELECT max(occurred_at) FROM activity_events WHERE user_id = $1 AND source = 'app'),
			(SELECT max(occurred_at) FROM activity_events WHERE user_id = $1 AND source = 'chat'),
			EXTRACT(EPOCH FROM (now() - (SELECT max(occurred_at) FROM activity_events WHERE user_id = $1))) / 86400.0
	`, userID).Scan(&lastAppActiveAt, &lastChatActiveAt, &daysSinceActive)
	if err != nil {
		return engagement.ComputedScores{}, engagement.ActivityPatterns{}, err
	}

	allEvents, err := m.activityEvents(ctx, userID, "")
	if err != nil {
		return engagement.ComputedScores{}, engagement.ActivityPatterns{}, err
	}
	appEvents, err := m.activityEvents(ctx, userID, "app")
	if err != nil {
		return engagement.ComputedScores{}, engagement.ActivityPatterns{}, err
	}
	chatEvents, err := m.activityEvents(ctx, userID, "chat")
	if err != nil {
		return engagement.ComputedScores{}, engagement.ActivityPatterns{}, err
	}
	interactions, err := m.notificationInteractions(ctx, userID)
	if err != nil {
		return engagement.ComputedScores{}, engagement.ActivityPatterns{}, err
	}

	var lastAppPtr, lastChatPtr *time.Time
	if lastAppActiveAt.Valid {
		lastAppPtr = &lastAppActiveAt.Time
	}
	if lastChatActiveAt.Valid {
		lastChatPtr = &lastChatActiveAt.Time
	}
	days := 9999.0
	if daysSinceActive.Valid {
		days = daysSinceActive.Float64
	}

	scores := engagement.ComputeScores(m.cfg, now, lastAppPtr, lastChatPtr, appEvents, chatEvents, interactions, days, allEvents)
	return scores, scores.Patterns, nil
}

func (m *MetricsProvider) activityEvents(ctx context.Context, userID, source string) ([]engagement.ActivityEvent, error) {
	query := `SELECT source, type, occurred_at, session_id FROM activity_events WHERE user_id = $1`
	args := []interface{}{userID}
	if source != "" {
		query += ` AND source = $2`
		args = append(args, source)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []engagement.ActivityEvent
	for rows.Next() {
		var e engagement.ActivityEvent
		var src, sessionID string
		if err := rows.Scan(&src, &e.Type, &e.OccurredAt, &sessionID); err != nil {
			return nil, err
		}
		e.UserID = userID
		e.Source = engagement.ActivitySource(src)
		e.SessionID = sessionID
		e.Weekday = int(e.OccurredAt.Weekday())
		e.Hour = e.OccurredAt.Hour()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (m *MetricsProvider) notificationInteractions(ctx context.Context, userID string) ([]engagement.NotificationInteraction, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT delivered_at, clicked_at, dismissed_at
		FROM notification_interactions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engagement.NotificationInteraction
	for rows.Next() {
		var ni engagement.NotificationInteraction
		var clicked, dismissed sql.NullTime
		if err := rows.Scan(&ni.DeliveredAt, &clicked, &dismissed); err != nil {
			return nil, err
		}
		if clicked.Valid {
			ni.ClickedAt = &clicked.Time
		}
		if dismissed.Valid {
			ni.DismissedAt = &dismissed.Time
		}
		ni.Weekday = int(ni.DeliveredAt.Weekday())
		ni.Hour = ni.DeliveredAt.Hour()
		out = append(out, ni)
	}
	return out, rows.Err()
}
