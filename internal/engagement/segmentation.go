package engagement

import "time"

// ContentTrigger names a content-driven re-engagement reason, preferred
// over a segment's generic default notification type when available.
type ContentTrigger string

const (
	TriggerUpcomingMeeting ContentTrigger = "upcoming_meeting"
	TriggerDealUpdate      ContentTrigger = "deal_update"
	TriggerChampionChange  ContentTrigger = "champion_change"
	TriggerNewEmailSummary ContentTrigger = "new_email_summary"
)

// contentTriggerPriority is the fixed preference order content-driven
// triggers are considered in.
var contentTriggerPriority = []ContentTrigger{
	TriggerUpcomingMeeting, TriggerDealUpdate, TriggerChampionChange, TriggerNewEmailSummary,
}

// ReengagementState is the caller-supplied history needed to decide
// candidacy: attempts so far and when the last one fired.
type ReengagementState struct {
	Segment            Segment
	Attempts           int
	LastAttemptAt      *time.Time
	DaysInactive       float64
	PreviousOverallScore int
}

// ReengagementCandidate is the outcome of evaluating a user for
// re-engagement: whether they qualify, which notification type to send,
// and a priority score to order the batch.
type ReengagementCandidate struct {
	Eligible         bool
	NotificationType string
	Channel          string
	PriorityScore    int
}

// IsReengagementCandidate reports whether a user qualifies for a
// re-engagement attempt today: segment must be one of the three
// re-engagement-eligible tiers, attempts must remain, the per-attempt
// cooldown must have elapsed, and the user must have been inactive at
// least as long as the segment's trigger threshold.
//
// Dormant's threshold is intentionally 3 days even though the segment
// itself requires >=14 days inactive to be assigned — the trigger
// re-evaluates daily once a user is dormant, it does not gate entry into
// the dormant segment. Carried forward as-is; see design notes.
func IsReengagementCandidate(now time.Time, state ReengagementState, cfg Config) bool {
	trigger, ok := cfg.ReengagementTriggers[state.Segment]
	if !ok {
		return false
	}
	if state.Attempts >= trigger.MaxAttempts {
		return false
	}
	if state.LastAttemptAt != nil {
		daysSinceLastAttempt := now.Sub(*state.LastAttemptAt).Hours() / 24
		if daysSinceLastAttempt < float64(trigger.CooldownDays) {
			return false
		}
	}
	return state.DaysInactive >= float64(trigger.AfterDays)
}

// SelectReengagementTrigger picks a notification type: the first
// available content-driven trigger in fixed priority order, falling back
// to the segment's configured default notification type.
func SelectReengagementTrigger(available []ContentTrigger, segment Segment, cfg Config) string {
	availableSet := make(map[ContentTrigger]bool, len(available))
	for _, t := range available {
		availableSet[t] = true
	}
	for _, t := range contentTriggerPriority {
		if availableSet[t] {
			return string(t)
		}
	}
	trigger := cfg.ReengagementTriggers[segment]
	if len(trigger.NotificationTypes) > 0 {
		return trigger.NotificationTypes[0]
	}
	return ""
}

// ReengagementPriorityScore computes the 0-100 ordering score for a
// re-engagement candidate batch: richer prior engagement and
// content-driven triggers push a user up the batch, more attempts and
// longer inactivity push them down.
func ReengagementPriorityScore(state ReengagementState, contentDriven bool) int {
	score := 50

	switch {
	case state.PreviousOverallScore > 70:
		score += 15
	case state.PreviousOverallScore > 50:
		score += 10
	}

	score -= 10 * state.Attempts

	if contentDriven {
		score += 20
	}

	switch {
	case state.DaysInactive < 7:
		score += 5
	case state.DaysInactive >= 14 && state.DaysInactive <= 30:
		score -= 5
	case state.DaysInactive > 30:
		score -= 10
	}

	return clamp(score)
}

// ReengagementChannel picks the delivery channel for a re-engagement
// attempt: churned and dormant users go to email (they've stopped
// checking chat/app); at_risk users with an active chat mapping are
// reached there; everyone else defaults to email.
func ReengagementChannel(segment Segment, hasChatMapping bool) string {
	switch segment {
	case SegmentChurned, SegmentDormant:
		return "email"
	case SegmentAtRisk:
		if hasChatMapping {
			return "chat"
		}
		return "email"
	default:
		return "email"
	}
}

// EvaluateReengagement runs the full component-E decision for one user:
// candidacy, trigger selection, channel, and priority score.
func EvaluateReengagement(now time.Time, state ReengagementState, available []ContentTrigger,
	hasChatMapping bool, cfg Config) ReengagementCandidate {

	if !IsReengagementCandidate(now, state, cfg) {
		return ReengagementCandidate{Eligible: false}
	}

	notificationType := SelectReengagementTrigger(available, state.Segment, cfg)
	channel := ReengagementChannel(state.Segment, hasChatMapping)
	priority := ReengagementPriorityScore(state, len(available) > 0)

	return ReengagementCandidate{
		Eligible:         true,
		NotificationType: notificationType,
		Channel:          channel,
		PriorityScore:    priority,
	}
}
