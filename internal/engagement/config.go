package engagement

// Segment names the engagement tier a user has been classified into.
type Segment string

const (
	SegmentPowerUser Segment = "power_user"
	SegmentRegular   Segment = "regular"
	SegmentCasual    Segment = "casual"
	SegmentAtRisk    Segment = "at_risk"
	SegmentDormant   Segment = "dormant"
	SegmentChurned   Segment = "churned"
)

// Frequency is a user's preferred notification cadence, derived from
// their engagement history.
type Frequency string

const (
	FrequencyHigh     Frequency = "high"
	FrequencyModerate Frequency = "moderate"
	FrequencyLow      Frequency = "low"
)

// Priority orders queued and in-flight notifications.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// FatigueLevel buckets a continuous fatigue score into the tiers the
// policy engine keys its multipliers on.
type FatigueLevel string

const (
	FatigueLow      FatigueLevel = "low"
	FatigueModerate FatigueLevel = "moderate"
	FatigueHigh     FatigueLevel = "high"
	FatigueCritical FatigueLevel = "critical"
)

// Weights are the blend coefficients for the overall engagement score.
// Must sum to 1.0.
type Weights struct {
	App          float64
	Chat         float64
	Notification float64
}

// SegmentThresholds names the per-segment classification bounds used by
// legacy/manual overrides; the canonical segment decision is the ordered
// rule chain in AssignSegment, not a threshold table lookup, but these
// bounds document the intent each segment represents and are exposed for
// introspection/tests.
type SegmentThresholds struct {
	MinScore          int
	MinSessionsPerDay  float64
	MaxDaysInactive   int
	MaxScore          int
}

// NotificationThreshold bounds how many notifications of any kind a user
// at a given frequency preference may receive.
type NotificationThreshold struct {
	MaxPerHour int
	MaxPerDay  int
}

// FatigueBoundaries are the score cutpoints separating fatigue levels.
type FatigueBoundaries struct {
	Moderate int
	High     int
	Critical int
}

// CooldownMultipliers scale the base cooldown window by fatigue level.
type CooldownMultipliers struct {
	Low      float64
	Moderate float64
	High     float64
	Critical float64
}

// PriorityOverride describes how a given priority interacts with the
// hourly/daily caps and the base cooldown window.
type PriorityOverride struct {
	AllowExceed     bool
	CooldownMinutes float64
}

// TimingConfig bounds the business-hours window and the optimal-time
// scorer's lookahead.
type TimingConfig struct {
	DefaultHours    BusinessHours
	WeekendFactor   float64
	LookaheadHours  int
	MinConfidence   float64
}

// ReengagementTrigger configures when and how aggressively a segment is
// retried by the re-engagement pipeline.
type ReengagementTrigger struct {
	AfterDays         int
	MaxAttempts       int
	CooldownDays      int
	NotificationTypes []string
}

// SegmentCooldownMultiplier scales the base cooldown by the recipient's
// segment, applied after the fatigue multiplier.
var SegmentCooldownMultiplier = map[Segment]float64{
	SegmentPowerUser: 0.5,
	SegmentRegular:   1.0,
	SegmentCasual:    1.5,
	SegmentAtRisk:    2.0,
	SegmentDormant:   2.5,
	SegmentChurned:   3.0,
}

// PriorityBoost is the additive optimal-time-scorer bonus per priority.
var PriorityBoost = map[Priority]float64{
	PriorityUrgent: 30,
	PriorityHigh:   15,
	PriorityNormal: 0,
	PriorityLow:    -10,
}

// Config is the engine's immutable, dependency-injected configuration
// registry (component B). Built once via NewDefaultConfig (or a
// test-specific variant) and passed explicitly to every component that
// needs it — never read from a process global, so tests can vary
// thresholds per case.
type Config struct {
	Weights                Weights
	Segments               map[Segment]SegmentThresholds
	NotificationThresholds map[Frequency]NotificationThreshold
	FatigueBoundaries      FatigueBoundaries
	CooldownMultipliers    CooldownMultipliers
	PriorityOverrides      map[Priority]PriorityOverride
	Timing                 TimingConfig
	ReengagementTriggers   map[Segment]ReengagementTrigger
	FeedbackIntervalDays   int
	MinNotificationsBeforeFeedback int
}

// NewDefaultConfig returns the production configuration values named in
// the component design: weights, segment bounds, fatigue boundaries,
// cooldown multipliers, priority overrides, and re-engagement triggers.
func NewDefaultConfig() Config {
	return Config{
		Weights: Weights{App: 0.4, Chat: 0.3, Notification: 0.3},
		Segments: map[Segment]SegmentThresholds{
			SegmentPowerUser: {MinScore: 80, MinSessionsPerDay: 3},
			SegmentRegular:   {MinScore: 50},
			SegmentCasual:    {MinScore: 25},
			SegmentAtRisk:    {MaxDaysInactive: 13, MaxScore: 24},
			SegmentDormant:   {MaxDaysInactive: 29},
			SegmentChurned:   {},
		},
		NotificationThresholds: map[Frequency]NotificationThreshold{
			FrequencyHigh:     {MaxPerHour: 4, MaxPerDay: 20},
			FrequencyModerate: {MaxPerHour: 2, MaxPerDay: 8},
			FrequencyLow:      {MaxPerHour: 1, MaxPerDay: 3},
		},
		FatigueBoundaries: FatigueBoundaries{Moderate: 25, High: 50, Critical: 75},
		CooldownMultipliers: CooldownMultipliers{
			Low: 1.0, Moderate: 1.25, High: 1.75, Critical: 2.5,
		},
		PriorityOverrides: map[Priority]PriorityOverride{
			PriorityUrgent: {AllowExceed: true, CooldownMinutes: 0},
			PriorityHigh:   {AllowExceed: false, CooldownMinutes: 30},
			PriorityNormal: {AllowExceed: false, CooldownMinutes: 60},
			PriorityLow:    {AllowExceed: false, CooldownMinutes: 180},
		},
		Timing: TimingConfig{
			DefaultHours:   BusinessHours{Start: 9, End: 18},
			WeekendFactor:  0.5,
			LookaheadHours: 24,
			MinConfidence:  0.4,
		},
		ReengagementTriggers: map[Segment]ReengagementTrigger{
			SegmentAtRisk: {AfterDays: 5, MaxAttempts: 3, CooldownDays: 7,
				NotificationTypes: []string{"reengagement_gentle"}},
			SegmentDormant: {AfterDays: 3, MaxAttempts: 3, CooldownDays: 7,
				NotificationTypes: []string{"reengagement_urgent"}},
			SegmentChurned: {AfterDays: 14, MaxAttempts: 3, CooldownDays: 7,
				NotificationTypes: []string{"reengagement_last_chance"}},
		},
		FeedbackIntervalDays:           14,
		MinNotificationsBeforeFeedback: 10,
	}
}

// FatigueLevelFor maps a continuous fatigue score onto a FatigueLevel
// bucket using the configured boundaries.
func (c Config) FatigueLevelFor(score int) FatigueLevel {
	switch {
	case score >= c.FatigueBoundaries.Critical:
		return FatigueCritical
	case score >= c.FatigueBoundaries.High:
		return FatigueHigh
	case score >= c.FatigueBoundaries.Moderate:
		return FatigueModerate
	default:
		return FatigueLow
	}
}

// FatigueMultiplier returns the cooldown-scaling multiplier for a fatigue
// level.
func (c Config) FatigueMultiplier(level FatigueLevel) float64 {
	switch level {
	case FatigueCritical:
		return c.CooldownMultipliers.Critical
	case FatigueHigh:
		return c.CooldownMultipliers.High
	case FatigueModerate:
		return c.CooldownMultipliers.Moderate
	default:
		return c.CooldownMultipliers.Low
	}
}
