package engagement

import (
	"fmt"
	"math"
	"time"
)

// Decision is the Policy Engine's verdict for a single dispatch
// candidate.
type Decision struct {
	Allow          bool
	Reason         string // set when !Allow: "hourly_limit", "daily_limit", "cooldown", "quiet_hours"
	NextAllowedAt  *time.Time
	EffectivePriority Priority
}

// RecentCounts is the caller-supplied tally of how many notifications a
// user has already received in the current hour/day windows, and when
// the last one was sent — sourced from the Notification Store.
type RecentCounts struct {
	ThisHour   int
	ThisDay    int
	LastSentAt *time.Time
}

// DowngradePriority implements the fatigue-driven priority downgrade.
// Deliberately asymmetric per the source behavior called out in the
// design notes: under `high` fatigue only normal->low downgrades, never
// high->normal. `urgent` is never downgraded at any fatigue level.
// TODO: if product decides high-fatigue should also downgrade
// high->normal, this is the single place to change it.
func DowngradePriority(priority Priority, fatigue FatigueLevel) Priority {
	if priority == PriorityUrgent {
		return priority
	}
	switch fatigue {
	case FatigueCritical:
		switch priority {
		case PriorityHigh:
			return PriorityNormal
		case PriorityNormal:
			return PriorityLow
		}
	case FatigueHigh:
		if priority == PriorityNormal {
			return PriorityLow
		}
	}
	return priority
}

// InQuietHours reports whether now (at the given weekday/hour in the
// recipient's timezone) falls outside both the default business-hours
// window and the user's own typical active hours for that weekday.
func InQuietHours(hour, weekday int, cfg Config, patterns ActivityPatterns) bool {
	if hour >= cfg.Timing.DefaultHours.Start && hour <= cfg.Timing.DefaultHours.End {
		return false
	}
	for _, h := range patterns.TypicalActiveHours[weekday] {
		if h == hour {
			return false
		}
	}
	return true
}

// Evaluate runs the full Policy Engine gate (component D) for a single
// dispatch candidate: quiet-hours deferral, hourly/daily caps, and
// cooldown, in that order, each capable of short-circuiting to a deny.
func Evaluate(cfg Config, now time.Time, tz string, priority Priority, frequency Frequency,
	segment Segment, fatigueLevel FatigueLevel, patterns ActivityPatterns, counts RecentCounts) Decision {

	effective := DowngradePriority(priority, fatigueLevel)
	override := cfg.PriorityOverrides[effective]
	fatigueMultiplier := cfg.FatigueMultiplier(fatigueLevel)

	weekday := Weekday(now, tz)
	hour := HourOfDay(now, tz)

	if effective != PriorityUrgent && InQuietHours(hour, weekday, cfg, patterns) {
		next, err := NextBusinessHourStart(now, tz, cfg.Timing.DefaultHours)
		if err != nil {
			next = now
		}
		return Decision{Allow: false, Reason: "quiet_hours", NextAllowedAt: &next, EffectivePriority: effective}
	}

	threshold := cfg.NotificationThresholds[frequency]

	effectiveMaxPerHour := int(math.Max(1, math.Floor(float64(threshold.MaxPerHour)/fatigueMultiplier)))
	if counts.ThisHour >= effectiveMaxPerHour && !override.AllowExceed {
		next := StartOfHour(now).Add(time.Hour)
		return Decision{Allow: false, Reason: "hourly_limit", NextAllowedAt: &next, EffectivePriority: effective}
	}

	effectiveMaxPerDay := int(math.Max(1, math.Floor(float64(threshold.MaxPerDay)/fatigueMultiplier)))
	if counts.ThisDay >= effectiveMaxPerDay && !override.AllowExceed {
		startOfDay, err := StartOfDay(now, tz)
		if err != nil {
			startOfDay = now
		}
		next := startOfDay.Add(24 * time.Hour)
		return Decision{Allow: false, Reason: "daily_limit", NextAllowedAt: &next, EffectivePriority: effective}
	}

	if counts.LastSentAt != nil && effective != PriorityUrgent {
		effectiveCooldown := time.Duration(override.CooldownMinutes * fatigueMultiplier * SegmentCooldownMultiplier[segment] * float64(time.Minute))
		minutesSinceLast := now.Sub(*counts.LastSentAt)
		if minutesSinceLast < effectiveCooldown {
			next := counts.LastSentAt.Add(effectiveCooldown)
			return Decision{Allow: false, Reason: "cooldown", NextAllowedAt: &next, EffectivePriority: effective}
		}
	}

	return Decision{Allow: true, EffectivePriority: effective}
}

// CandidateHour is one hour evaluated by the optimal-time scorer.
type CandidateHour struct {
	Hour       int
	Score      float64
	Confidence float64
}

// OptimalTimeResult is the outcome of scoring candidate send hours.
type OptimalTimeResult struct {
	Hour       int
	Confidence float64
	SendNow    bool
}

// ScoreOptimalTime picks the best hour, within the lookahead window, to
// send a notification — weighing peak-hour alignment, typical-active-hour
// rank, notification receptiveness, fatigue, priority, and weekend
// dampening. On a tied score the peak hour is preferred. If no candidate
// clears minConfidence, urgent priority sends immediately; otherwise it
// falls back to the user's peak hour at low confidence.
func ScoreOptimalTime(cfg Config, now time.Time, tz string, priority Priority, segment Segment,
	fatigueLevel FatigueLevel, notificationScore int, patterns ActivityPatterns) OptimalTimeResult {

	fatigueMultiplier := cfg.FatigueMultiplier(fatigueLevel)
	segmentMultiplier := segmentPriorityMultiplier(segment)

	var best *CandidateHour
	weekday := Weekday(now, tz)

	for offset := 0; offset <= cfg.Timing.LookaheadHours; offset++ {
		candidate := now.Add(time.Duration(offset) * time.Hour)
		h := HourOfDay(candidate, tz)
		wd := Weekday(candidate, tz)

		if priority != PriorityUrgent && (h < cfg.Timing.DefaultHours.Start || h > cfg.Timing.DefaultHours.End) {
			continue
		}

		score := 50.0
		if patterns.PeakHour != nil && h == *patterns.PeakHour {
			score += 30
		} else if rank := rankInTypicalHours(patterns.TypicalActiveHours[wd], h); rank >= 0 {
			score += math.Max(0, 25-5*float64(rank))
		}

		score += (float64(notificationScore) / 100) * 20
		score -= math.Min(25, (fatigueMultiplier-1)*20)
		score += PriorityBoost[priority]

		if IsWeekend(candidate, tz) && priority != PriorityUrgent {
			score *= cfg.Timing.WeekendFactor
		}
		score *= segmentMultiplier
		score -= 2 * float64(offset)

		// On a tied score the user's peak hour wins over an earlier hour.
		isPeak := patterns.PeakHour != nil && h == *patterns.PeakHour
		if best == nil || score > best.Score || (score == best.Score && isPeak) {
			best = &CandidateHour{Hour: h, Score: score}
		}
	}

	_ = weekday
	minConfidenceScore := cfg.Timing.MinConfidence * 100

	if best != nil && best.Score >= minConfidenceScore {
		return OptimalTimeResult{Hour: best.Hour, Confidence: best.Score / 100}
	}

	if priority == PriorityUrgent {
		return OptimalTimeResult{Hour: HourOfDay(now, tz), Confidence: 0.5, SendNow: true}
	}

	if patterns.PeakHour != nil {
		return OptimalTimeResult{Hour: *patterns.PeakHour, Confidence: 0.3}
	}

	return OptimalTimeResult{Hour: HourOfDay(now, tz), Confidence: 0.3}
}

func rankInTypicalHours(hours []int, hour int) int {
	for i, h := range hours {
		if h == hour {
			return i
		}
	}
	return -1
}

func segmentPriorityMultiplier(segment Segment) float64 {
	switch segment {
	case SegmentPowerUser:
		return 1.2
	case SegmentRegular:
		return 1.0
	case SegmentCasual:
		return 0.9
	case SegmentAtRisk:
		return 0.8
	case SegmentDormant:
		return 0.7
	case SegmentChurned:
		return 0.5
	default:
		return 1.0
	}
}

// ShouldBatch reports whether a notification should be added to a batch
// rather than dispatched immediately. Urgent and high priority never
// batch; otherwise batching kicks in under high fatigue with headroom in
// the pending batch, or for low priority with a small existing batch.
func ShouldBatch(priority Priority, fatigueLevel FatigueLevel, pendingCount int) bool {
	if priority == PriorityUrgent || priority == PriorityHigh {
		return false
	}
	if (fatigueLevel == FatigueHigh || fatigueLevel == FatigueCritical) && pendingCount < 5 {
		return true
	}
	if priority == PriorityLow && pendingCount > 0 && pendingCount < 3 {
		return true
	}
	return false
}

// DenyReason renders a Decision's deny reason alongside its
// next-allowed-at time for the admin-facing manual-trigger response
// (reason and minutes to wait, e.g. "cooldown:15m").
func DenyReason(d Decision, now time.Time) string {
	if d.Allow {
		return ""
	}
	if d.NextAllowedAt == nil {
		return d.Reason
	}
	wait := d.NextAllowedAt.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return fmt.Sprintf("%s:%dm", d.Reason, int(wait.Minutes()))
}
