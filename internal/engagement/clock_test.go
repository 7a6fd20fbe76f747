package engagement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedClockAdvance(t *testing.T) {
	base := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	clock := NewFixedClock(base)
	assert.Equal(t, base, clock.Now())

	clock.Advance(time.Hour)
	assert.Equal(t, base.Add(time.Hour), clock.Now())
}

func TestStartOfDayConvertsTimezone(t *testing.T) {
	t0 := time.Date(2026, 7, 31, 23, 30, 0, 0, time.UTC)
	start, err := StartOfDay(t0, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, 31, start.Day())
}

func TestIsWeekend(t *testing.T) {
	saturday := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	assert.True(t, IsWeekend(saturday, "UTC"))
	assert.False(t, IsWeekend(monday, "UTC"))
}

func TestNextBusinessHourStart(t *testing.T) {
	night := time.Date(2026, 7, 31, 22, 0, 0, 0, time.UTC)
	next, err := NextBusinessHourStart(night, "UTC", BusinessHours{Start: 9, End: 18})
	require.NoError(t, err)
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 1, next.Day())

	midday := time.Date(2026, 7, 31, 11, 0, 0, 0, time.UTC)
	next, err = NextBusinessHourStart(midday, "UTC", BusinessHours{Start: 9, End: 18})
	require.NoError(t, err)
	assert.Equal(t, midday, next)
}
