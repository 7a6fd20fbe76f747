package engagement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReengagementCandidacyDormantThreeDayTrigger(t *testing.T) {
	// Dormant retries after only 3 days despite the segment itself
	// requiring >=14 days inactive — kept as-is per design notes.
	cfg := NewDefaultConfig()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	state := ReengagementState{Segment: SegmentDormant, Attempts: 0, DaysInactive: 3}
	assert.True(t, IsReengagementCandidate(now, state, cfg))

	state.DaysInactive = 2
	assert.False(t, IsReengagementCandidate(now, state, cfg))
}

func TestReengagementCandidacyRespectsMaxAttemptsAndCooldown(t *testing.T) {
	cfg := NewDefaultConfig()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	state := ReengagementState{Segment: SegmentAtRisk, Attempts: 3, DaysInactive: 10}
	assert.False(t, IsReengagementCandidate(now, state, cfg))

	recentAttempt := now.AddDate(0, 0, -2)
	state = ReengagementState{Segment: SegmentAtRisk, Attempts: 1, DaysInactive: 10, LastAttemptAt: &recentAttempt}
	assert.False(t, IsReengagementCandidate(now, state, cfg))

	oldAttempt := now.AddDate(0, 0, -8)
	state.LastAttemptAt = &oldAttempt
	assert.True(t, IsReengagementCandidate(now, state, cfg))
}

func TestSelectReengagementTriggerPrefersContentDriven(t *testing.T) {
	cfg := NewDefaultConfig()
	got := SelectReengagementTrigger([]ContentTrigger{TriggerChampionChange, TriggerDealUpdate}, SegmentAtRisk, cfg)
	assert.Equal(t, string(TriggerDealUpdate), got)

	got = SelectReengagementTrigger(nil, SegmentAtRisk, cfg)
	assert.Equal(t, "reengagement_gentle", got)
}

func TestReengagementChannelSelection(t *testing.T) {
	assert.Equal(t, "email", ReengagementChannel(SegmentChurned, true))
	assert.Equal(t, "email", ReengagementChannel(SegmentDormant, true))
	assert.Equal(t, "chat", ReengagementChannel(SegmentAtRisk, true))
	assert.Equal(t, "email", ReengagementChannel(SegmentAtRisk, false))
}

func TestReengagementPriorityScoreClamped(t *testing.T) {
	state := ReengagementState{PreviousOverallScore: 90, Attempts: 10, DaysInactive: 40}
	score := ReengagementPriorityScore(state, true)
	require.GreaterOrEqual(t, score, 0)
	require.LessOrEqual(t, score, 100)
}

func TestEvaluateReengagementIneligibleReturnsFalse(t *testing.T) {
	cfg := NewDefaultConfig()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	state := ReengagementState{Segment: SegmentRegular, DaysInactive: 1}

	candidate := EvaluateReengagement(now, state, nil, false, cfg)
	assert.False(t, candidate.Eligible)
}
