package engagement

import (
	"math"
	"sort"
	"time"
)

// ActivitySource names where an ActivityEvent originated.
type ActivitySource string

const (
	ActivityApp  ActivitySource = "app"
	ActivityChat ActivitySource = "chat"
)

// ActivityEvent is a single append-only record of user activity, used by
// the Metric Computer to derive app/chat scores and activity patterns.
type ActivityEvent struct {
	UserID     string
	Source     ActivitySource
	Type       string
	OccurredAt time.Time
	Weekday    int // 0=Sun .. 6=Sat
	Hour       int // 0-23
	SessionID  string
}

// NotificationInteraction is a single append-only record of how a user
// responded to a delivered notification, used to compute the
// notification score and fatigue level.
type NotificationInteraction struct {
	UserID                  string
	DeliveredAt             time.Time
	ClickedAt               *time.Time
	DismissedAt             *time.Time
	TimeToInteractionSeconds *int
	Weekday                 int
	Hour                    int
}

// ActivityPatterns summarizes when a user is typically active, used by
// the policy engine's quiet-hours check and optimal-time scorer.
type ActivityPatterns struct {
	PeakHour          *int
	TypicalActiveHours map[int][]int // weekday -> top-5 hours, descending by count
}

// ComputedScores is the pure output of the Metric Computer: every field
// is an integer in [0,100] except Segment, FatigueLevel, and the derived
// PreferredFrequency/Patterns.
type ComputedScores struct {
	AppScore           int
	ChatScore          int
	NotificationScore  int
	OverallScore       int
	Segment            Segment
	FatigueScore       int
	FatigueLevel       FatigueLevel
	PreferredFrequency Frequency
	Patterns           ActivityPatterns
	AvgDailySessions   float64
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func roundInt(v float64) int {
	return int(math.Round(v))
}

// ComputeAppScore scores in-app engagement. With no events it decays
// purely from recency of lastActive; with events present it blends
// frequency, intensity, and session-count signals.
func ComputeAppScore(now time.Time, lastAppActiveAt *time.Time, events []ActivityEvent) int {
	if len(events) == 0 {
		return decayScore(now, lastAppActiveAt, 60, 40, 20, 10)
	}

	daysWithActivity := countDistinctDays(events)
	totalEvents := len(events)
	uniqueSessions := countDistinctSessions(events)

	frequencyScore := math.Min(float64(daysWithActivity)/7.0, 1) * 40
	intensityScore := math.Min(float64(totalEvents)/50.0, 1) * 30
	sessionScore := math.Min(float64(uniqueSessions)/10.0, 1) * 30

	return clamp(roundInt(frequencyScore + intensityScore + sessionScore))
}

// ComputeChatScore scores chat engagement analogously to ComputeAppScore,
// with its own decay curve and weight split.
func ComputeChatScore(now time.Time, lastChatActiveAt *time.Time, events []ActivityEvent) int {
	if len(events) == 0 {
		return decayScore(now, lastChatActiveAt, 50, 30, 15, 10)
	}

	daysWithActivity := countDistinctDays(events)
	totalEvents := len(events)

	frequencyScore := math.Min(float64(daysWithActivity)/7.0, 1) * 50
	intensityScore := math.Min(float64(totalEvents)/20.0, 1) * 50

	return clamp(roundInt(frequencyScore + intensityScore))
}

// decayScore returns a score based purely on time since lastActiveAt,
// falling through four bands: <1d, <3d, <7d, else.
func decayScore(now time.Time, lastActiveAt *time.Time, within1d, within3d, within7d, beyond int) int {
	if lastActiveAt == nil {
		return beyond
	}
	days := now.Sub(*lastActiveAt).Hours() / 24
	switch {
	case days < 1:
		return within1d
	case days < 3:
		return within3d
	case days < 7:
		return within7d
	default:
		return beyond
	}
}

// ComputeNotificationScore scores how receptive a user is to
// notifications, from click-through rate, response latency, and
// dismissal rate. With no history it returns a neutral 50.
func ComputeNotificationScore(interactions []NotificationInteraction) int {
	if len(interactions) == 0 {
		return 50
	}

	var clicks, dismissals int
	var totalResponseSeconds, respondedCount int
	for _, in := range interactions {
		if in.ClickedAt != nil {
			clicks++
		}
		if in.DismissedAt != nil {
			dismissals++
		}
		if in.TimeToInteractionSeconds != nil {
			totalResponseSeconds += *in.TimeToInteractionSeconds
			respondedCount++
		}
	}

	total := float64(len(interactions))
	ctr := float64(clicks) / total
	ctrScore := ctr * 60

	var avgResponseSeconds float64
	if respondedCount > 0 {
		avgResponseSeconds = float64(totalResponseSeconds) / float64(respondedCount)
	}
	responseTimeScore := math.Max(0, 25-(avgResponseSeconds/3600)*25)

	dismissalPenalty := (float64(dismissals) / total) * 15

	score := ctrScore + responseTimeScore - dismissalPenalty + 15
	return clamp(roundInt(score))
}

// ComputeOverallScore blends app/chat/notification scores by the
// configured weights.
func ComputeOverallScore(weights Weights, appScore, chatScore, notificationScore int) int {
	score := float64(appScore)*weights.App +
		float64(chatScore)*weights.Chat +
		float64(notificationScore)*weights.Notification
	return clamp(roundInt(score))
}

// AssignSegment classifies a user into a Segment using the ordered rule
// chain from the component design — first matching branch wins.
func AssignSegment(overallScore int, daysSinceActive float64, sessionsPerDay float64) Segment {
	switch {
	case daysSinceActive >= 30:
		return SegmentChurned
	case daysSinceActive >= 14:
		return SegmentDormant
	case daysSinceActive >= 7 || overallScore < 25:
		return SegmentAtRisk
	case overallScore >= 80 && sessionsPerDay >= 3:
		return SegmentPowerUser
	case overallScore >= 50:
		return SegmentRegular
	case overallScore >= 25:
		return SegmentCasual
	default:
		return SegmentAtRisk
	}
}

// LegalSegmentTransitions enumerates, per current segment, the set of
// segments a new classification is permitted to move to. A proposed
// transition not present here must be rejected and the previous segment
// retained (invariant 7 / scenario S6).
var LegalSegmentTransitions = map[Segment]map[Segment]bool{
	SegmentPowerUser: {SegmentRegular: true, SegmentAtRisk: true},
	SegmentRegular:   {SegmentPowerUser: true, SegmentCasual: true, SegmentAtRisk: true},
	SegmentCasual:    {SegmentRegular: true, SegmentAtRisk: true, SegmentDormant: true},
	SegmentAtRisk:    {SegmentCasual: true, SegmentRegular: true, SegmentDormant: true},
	SegmentDormant:   {SegmentAtRisk: true, SegmentCasual: true, SegmentChurned: true},
	SegmentChurned:   {SegmentDormant: true},
}

// IsLegalSegmentTransition reports whether moving from `from` to `to` is
// permitted. A segment is always considered legal to "transition" into
// itself (no-op).
func IsLegalSegmentTransition(from, to Segment) bool {
	if from == to {
		return true
	}
	allowed, ok := LegalSegmentTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// ComputeActivityPatterns buckets events by weekday then hour, deriving
// the global peak hour and each weekday's top-5 hours.
func ComputeActivityPatterns(events []ActivityEvent) ActivityPatterns {
	counts := make(map[int]map[int]int) // weekday -> hour -> count
	globalHourCounts := make(map[int]int)

	for _, e := range events {
		if counts[e.Weekday] == nil {
			counts[e.Weekday] = make(map[int]int)
		}
		counts[e.Weekday][e.Hour]++
		globalHourCounts[e.Hour]++
	}

	var peakHour *int
	bestCount := -1
	for h := 0; h < 24; h++ {
		if c := globalHourCounts[h]; c > bestCount {
			bestCount = c
			hh := h
			peakHour = &hh
		}
	}
	if bestCount <= 0 {
		peakHour = nil
	}

	typical := make(map[int][]int)
	for weekday, hourCounts := range counts {
		type hc struct {
			hour  int
			count int
		}
		var list []hc
		for h, c := range hourCounts {
			list = append(list, hc{h, c})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].count != list[j].count {
				return list[i].count > list[j].count
			}
			return list[i].hour < list[j].hour
		})
		if len(list) > 5 {
			list = list[:5]
		}
		hours := make([]int, len(list))
		for i, e := range list {
			hours[i] = e.hour
		}
		typical[weekday] = hours
	}

	return ActivityPatterns{PeakHour: peakHour, TypicalActiveHours: typical}
}

// ComputeFatigue scores fatigue over the most recent 20 interactions as a
// blend of dismissal rate and ignore (non-interaction) rate.
func ComputeFatigue(interactions []NotificationInteraction) int {
	if len(interactions) == 0 {
		return 0
	}

	recent := interactions
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}

	var dismissals, ignored int
	for _, in := range recent {
		if in.DismissedAt != nil {
			dismissals++
		}
		if in.ClickedAt == nil && in.DismissedAt == nil {
			ignored++
		}
	}

	total := float64(len(recent))
	dismissalRate := float64(dismissals) / total
	ignoreRate := float64(ignored) / total

	score := (dismissalRate*50 + ignoreRate*50)
	return clamp(roundInt(score))
}

// ShouldRequestFeedback implements the §4.3 feedback gate (SPEC_FULL
// supplemented feature 4): if the user has never been asked, gate on
// notification volume since signup; otherwise gate on elapsed days since
// the last ask.
func ShouldRequestFeedback(now time.Time, lastFeedbackRequestedAt *time.Time, notificationsSinceFeedback int, cfg Config) bool {
	if lastFeedbackRequestedAt == nil {
		return notificationsSinceFeedback >= cfg.MinNotificationsBeforeFeedback
	}
	daysSince := now.Sub(*lastFeedbackRequestedAt).Hours() / 24
	return daysSince >= float64(cfg.FeedbackIntervalDays)
}

// PreferredFrequencyFor derives a user's preferred notification cadence
// from their notification score and segment — power users and highly
// receptive users tolerate more volume, at-risk/dormant users need a
// lighter touch to avoid accelerating churn.
func PreferredFrequencyFor(segment Segment, notificationScore int) Frequency {
	switch segment {
	case SegmentDormant, SegmentChurned, SegmentAtRisk:
		return FrequencyLow
	case SegmentPowerUser:
		return FrequencyHigh
	default:
		if notificationScore >= 65 {
			return FrequencyHigh
		}
		if notificationScore >= 35 {
			return FrequencyModerate
		}
		return FrequencyLow
	}
}

func countDistinctDays(events []ActivityEvent) int {
	days := make(map[string]bool)
	for _, e := range events {
		days[e.OccurredAt.Format("2006-01-02")] = true
	}
	return len(days)
}

func countDistinctSessions(events []ActivityEvent) int {
	sessions := make(map[string]bool)
	for _, e := range events {
		if e.SessionID != "" {
			sessions[e.SessionID] = true
		}
	}
	return len(sessions)
}

// AvgDailySessions computes the average number of distinct sessions per
// active day over the supplied event window, used by segment assignment
// (power_user requires sessionsPerDay >= 3).
func AvgDailySessions(events []ActivityEvent) float64 {
	days := countDistinctDays(events)
	if days == 0 {
		return 0
	}
	return float64(countDistinctSessions(events)) / float64(days)
}

// ComputeScores runs the full Metric Computer pipeline over a user's raw
// activity and interaction history, producing the ComputedScores row
// that gets persisted onto UserMetrics. It never fails: missing data
// degrades to conservative (low) scores rather than erroring.
func ComputeScores(cfg Config, now time.Time, lastAppActiveAt, lastChatActiveAt *time.Time,
	appEvents, chatEvents []ActivityEvent, interactions []NotificationInteraction,
	daysSinceActive float64, allEvents []ActivityEvent) ComputedScores {

	appScore := ComputeAppScore(now, lastAppActiveAt, appEvents)
	chatScore := ComputeChatScore(now, lastChatActiveAt, chatEvents)
	notificationScore := ComputeNotificationScore(interactions)
	overallScore := ComputeOverallScore(cfg.Weights, appScore, chatScore, notificationScore)

	sessionsPerDay := AvgDailySessions(allEvents)
	segment := AssignSegment(overallScore, daysSinceActive, sessionsPerDay)

	fatigueScore := ComputeFatigue(interactions)
	fatigueLevel := cfg.FatigueLevelFor(fatigueScore)

	patterns := ComputeActivityPatterns(allEvents)
	frequency := PreferredFrequencyFor(segment, notificationScore)

	return ComputedScores{
		AppScore:           appScore,
		ChatScore:          chatScore,
		NotificationScore:  notificationScore,
		OverallScore:       overallScore,
		Segment:            segment,
		FatigueScore:       fatigueScore,
		FatigueLevel:       fatigueLevel,
		PreferredFrequency: frequency,
		Patterns:           patterns,
		AvgDailySessions:   sessionsPerDay,
	}
}
