package engagement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDowngradePriorityAsymmetricUnderHighFatigue(t *testing.T) {
	// Source behavior, intentionally kept: under `high` fatigue only
	// normal->low downgrades; high stays high.
	assert.Equal(t, PriorityLow, DowngradePriority(PriorityNormal, FatigueHigh))
	assert.Equal(t, PriorityHigh, DowngradePriority(PriorityHigh, FatigueHigh))

	assert.Equal(t, PriorityNormal, DowngradePriority(PriorityHigh, FatigueCritical))
	assert.Equal(t, PriorityLow, DowngradePriority(PriorityNormal, FatigueCritical))

	assert.Equal(t, PriorityUrgent, DowngradePriority(PriorityUrgent, FatigueCritical))
}

func TestFatigueSuppressionHourlyLimit(t *testing.T) {
	// Scenario S2: fatigueLevel=80(critical), preferredFrequency=moderate
	// (maxPerHour=2) => effectiveMaxPerHour = max(1, floor(2/2.5)) = 1.
	cfg := NewDefaultConfig()
	firstSent := time.Date(2026, 7, 28, 10, 17, 0, 0, time.UTC)
	now := firstSent.Add(10 * time.Minute)

	decision := Evaluate(cfg, now, "UTC", PriorityNormal, FrequencyModerate,
		SegmentRegular, FatigueCritical, ActivityPatterns{}, RecentCounts{
			ThisHour: 1, LastSentAt: &firstSent,
		})

	require.False(t, decision.Allow)
	assert.Equal(t, "hourly_limit", decision.Reason)
	require.NotNil(t, decision.NextAllowedAt)
	expectedNext := time.Date(2026, 7, 28, 11, 0, 0, 0, time.UTC)
	assert.True(t, decision.NextAllowedAt.Equal(expectedNext))
}

func TestUrgentBypassesHourlyLimit(t *testing.T) {
	// Scenario S3: urgent priority is delivered despite the hourly cap,
	// without being downgraded.
	cfg := NewDefaultConfig()
	firstSent := time.Date(2026, 7, 28, 10, 17, 0, 0, time.UTC)
	now := firstSent.Add(10 * time.Minute)

	decision := Evaluate(cfg, now, "UTC", PriorityUrgent, FrequencyModerate,
		SegmentRegular, FatigueCritical, ActivityPatterns{}, RecentCounts{
			ThisHour: 1, LastSentAt: &firstSent,
		})

	assert.True(t, decision.Allow)
	assert.Equal(t, PriorityUrgent, decision.EffectivePriority)
}

func TestCooldownDenialNextAllowedAt(t *testing.T) {
	// Invariant 4: for priority != urgent, if minutesSinceLast is under
	// the effective cooldown, deny with nextAllowedAt = lastSent +
	// effectiveCooldown.
	cfg := NewDefaultConfig()
	lastSent := time.Date(2026, 7, 28, 9, 0, 0, 0, time.UTC)
	now := lastSent.Add(5 * time.Minute)

	decision := Evaluate(cfg, now, "UTC", PriorityNormal, FrequencyHigh,
		SegmentRegular, FatigueLow, ActivityPatterns{}, RecentCounts{
			LastSentAt: &lastSent,
		})

	require.False(t, decision.Allow)
	assert.Equal(t, "cooldown", decision.Reason)
	require.NotNil(t, decision.NextAllowedAt)
	// base cooldown 60min * fatigue 1.0 * segment regular 1.0 = 60min
	assert.True(t, decision.NextAllowedAt.Equal(lastSent.Add(60*time.Minute)))
}

func TestOptimalTimeDefersToPeakHour(t *testing.T) {
	// Scenario S4: typicalActiveHours[Tuesday]=[14,9,15,10,16], peakHour=14;
	// normal priority dispatch arriving Tuesday 08:30 should recommend
	// 14:00 the same day with confidence >= 0.7.
	cfg := NewDefaultConfig()
	now := time.Date(2026, 7, 28, 8, 30, 0, 0, time.UTC) // Tuesday
	require.Equal(t, time.Tuesday, now.Weekday())

	peak := 14
	patterns := ActivityPatterns{
		PeakHour: &peak,
		TypicalActiveHours: map[int][]int{
			2: {14, 9, 15, 10, 16},
		},
	}

	result := ScoreOptimalTime(cfg, now, "UTC", PriorityNormal, SegmentRegular, FatigueLow, 70, patterns)

	assert.Equal(t, 14, result.Hour)
	assert.GreaterOrEqual(t, result.Confidence, 0.7)
	assert.False(t, result.SendNow)
}

func TestShouldBatchRules(t *testing.T) {
	assert.False(t, ShouldBatch(PriorityUrgent, FatigueCritical, 0))
	assert.False(t, ShouldBatch(PriorityHigh, FatigueCritical, 0))
	assert.True(t, ShouldBatch(PriorityNormal, FatigueHigh, 2))
	assert.False(t, ShouldBatch(PriorityNormal, FatigueLow, 2))
	assert.True(t, ShouldBatch(PriorityLow, FatigueLow, 1))
	assert.False(t, ShouldBatch(PriorityLow, FatigueLow, 0))
}

func TestInQuietHoursRespectsTypicalActiveHours(t *testing.T) {
	cfg := NewDefaultConfig()
	patterns := ActivityPatterns{TypicalActiveHours: map[int][]int{3: {20}}}

	assert.False(t, InQuietHours(20, 3, cfg, patterns))
	assert.True(t, InQuietHours(22, 3, cfg, patterns))
	assert.False(t, InQuietHours(10, 3, cfg, patterns))
}
