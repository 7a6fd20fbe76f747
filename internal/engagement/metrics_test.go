package engagement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAppScoreDecayNoEvents(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		last     *time.Time
		expected int
	}{
		{"within a day", tptr(now.Add(-12 * time.Hour)), 60},
		{"within three days", tptr(now.Add(-48 * time.Hour)), 40},
		{"within a week", tptr(now.Add(-5 * 24 * time.Hour)), 20},
		{"beyond a week", tptr(now.Add(-30 * 24 * time.Hour)), 10},
		{"never active", nil, 10},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ComputeAppScore(now, c.last, nil)
			assert.Equal(t, c.expected, got)
		})
	}
}

func TestComputeAppScoreWithEvents(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	var events []ActivityEvent
	for i := 0; i < 7; i++ {
		events = append(events, ActivityEvent{
			OccurredAt: now.AddDate(0, 0, -i),
			SessionID:  "s1",
		})
	}
	score := ComputeAppScore(now, nil, events)
	require.GreaterOrEqual(t, score, 0)
	require.LessOrEqual(t, score, 100)
}

func TestComputeNotificationScoreNeutralWhenEmpty(t *testing.T) {
	assert.Equal(t, 50, ComputeNotificationScore(nil))
}

func TestInvariantScoresInRange(t *testing.T) {
	// Invariant 1: every score produced by the metric computer is an
	// integer in [0,100].
	cfg := NewDefaultConfig()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	scores := ComputeScores(cfg, now, nil, nil, nil, nil, nil, 100, nil)

	for _, v := range []int{scores.AppScore, scores.ChatScore, scores.NotificationScore, scores.OverallScore, scores.FatigueScore} {
		assert.GreaterOrEqual(t, v, 0)
		assert.LessOrEqual(t, v, 100)
	}
}

func TestAssignSegmentOrderedRules(t *testing.T) {
	// Invariant 2: segment equals the first matching branch.
	cases := []struct {
		overall        int
		daysSince      float64
		sessionsPerDay float64
		expected       Segment
	}{
		{90, 40, 5, SegmentChurned},
		{90, 20, 5, SegmentDormant},
		{90, 10, 5, SegmentAtRisk},
		{10, 2, 5, SegmentAtRisk}, // low score forces at_risk even though recently active
		{85, 1, 4, SegmentPowerUser},
		{85, 1, 1, SegmentRegular}, // high score but not enough sessions -> falls to regular
		{60, 0, 1, SegmentRegular},
		{30, 0, 1, SegmentCasual},
		{10, 0, 1, SegmentAtRisk},
	}
	for _, c := range cases {
		got := AssignSegment(c.overall, c.daysSince, c.sessionsPerDay)
		assert.Equal(t, c.expected, got, "overall=%d days=%f sessions=%f", c.overall, c.daysSince, c.sessionsPerDay)
	}
}

func TestSegmentTransitionLegality(t *testing.T) {
	// Invariant 7 / scenario S6: an illegal transition must be rejected.
	assert.False(t, IsLegalSegmentTransition(SegmentPowerUser, SegmentChurned))
	assert.False(t, IsLegalSegmentTransition(SegmentPowerUser, SegmentDormant))
	assert.True(t, IsLegalSegmentTransition(SegmentPowerUser, SegmentRegular))
	assert.True(t, IsLegalSegmentTransition(SegmentChurned, SegmentDormant))
	assert.False(t, IsLegalSegmentTransition(SegmentChurned, SegmentAtRisk))
}

func TestShouldRequestFeedbackGate(t *testing.T) {
	// Invariant 8: with no prior feedback ask, gate purely on volume.
	cfg := NewDefaultConfig()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	assert.False(t, ShouldRequestFeedback(now, nil, 9, cfg))
	assert.True(t, ShouldRequestFeedback(now, nil, 10, cfg))

	last := now.AddDate(0, 0, -13)
	assert.False(t, ShouldRequestFeedback(now, &last, 100, cfg))

	last = now.AddDate(0, 0, -14)
	assert.True(t, ShouldRequestFeedback(now, &last, 0, cfg))
}

func TestComputeActivityPatternsPeakHour(t *testing.T) {
	var events []ActivityEvent
	for i := 0; i < 10; i++ {
		events = append(events, ActivityEvent{Weekday: 2, Hour: 14})
	}
	events = append(events, ActivityEvent{Weekday: 2, Hour: 9})

	patterns := ComputeActivityPatterns(events)
	require.NotNil(t, patterns.PeakHour)
	assert.Equal(t, 14, *patterns.PeakHour)
	assert.Contains(t, patterns.TypicalActiveHours[2], 14)
}

func tptr(t time.Time) *time.Time { return &t }
