// Package store implements the Notification Store (component F): the
// durable and cache-backed record of what has been sent, what is queued,
// and what is stuck in the transcript pipeline. It owns the
// at-most-once dedupe guarantee and the lease-based queue used by the
// dispatcher and scheduled jobs.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a QueuedNotification.
type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusDeadLetter Status = "dead_letter" // SPEC_FULL supplemented feature 1
)

// Terminal reports whether a status is terminal — a QueuedNotification
// must never move from a terminal status back to a non-terminal one.
func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusCancelled, StatusDeadLetter:
		return true
	default:
		return false
	}
}

// SentRecord is the primary dedupe key: at most one exists per
// (feature, orgId, slackUserId, entityId) within a dedupe window.
type SentRecord struct {
	Feature     string
	OrgID       string
	SlackUserID string
	EntityID    string
	SentAt      time.Time
	SlackTS     string
	ChannelID   string
}

// QueuedNotification is a notification awaiting (re)delivery, either
// because it was deferred by the policy engine or because it failed
// transiently and is due for retry.
type QueuedNotification struct {
	ID            uuid.UUID
	UserID        string
	OrgID         string
	Feature       string
	Priority      string
	Channel       string
	Payload       json.RawMessage
	ScheduledFor  time.Time
	Status        Status
	Attempts      int
	MaxAttempts   int
	LastAttemptAt *time.Time
	LastError     *string
	DedupeKey     string
}

// RecentCounts tallies how many notifications a user has already
// received in the current hour/day window, and when the last one fired.
type RecentCounts struct {
	Hour       int
	Day        int
	LastSentAt *time.Time
}

// TranscriptQueueItem tracks retry state for a call awaiting transcript
// fetch (component J).
type TranscriptQueueItem struct {
	CallID        string
	OrgID         string
	Attempts      int
	MaxAttempts   int
	LastAttemptAt *time.Time
	LastError     *string
}

// DLQStats summarizes the dead-letter set for operator visibility.
type DLQStats struct {
	TotalCount   int64
	CountByFeature map[string]int64
	OldestItem   *time.Time
}

// DedupeKey computes the sha256-derived dedupe key for a
// (feature, orgId, slackUserId, entityId) tuple. entityId may be empty
// for cohort-wide notifications.
func DedupeKey(feature, orgID, slackUserID, entityID string) string {
	return dedupeKeyHash(feature, orgID, slackUserID, entityID)
}
