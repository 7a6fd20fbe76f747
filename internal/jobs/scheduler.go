package jobs

import (
	"log"

	"github.com/hibiken/asynq"
)

// Task type identifiers. One per scheduled job the spec names, plus the
// housekeeping sweeps the Notification Store depends on.
const (
	TypeDailyDigest        = "engagement:daily_digest"
	TypeMorningBrief       = "engagement:morning_brief"
	TypeMeetingPrep        = "engagement:meeting_prep"
	TypeDealMomentumNudge  = "engagement:deal_momentum_nudge"
	TypeMeetingDebrief     = "engagement:meeting_debrief"
	TypeReengagement       = "engagement:reengagement"
	TypeReconciliationSweep = "housekeeping:reconciliation_sweep"
	TypeDLQReplay          = "housekeeping:dlq_replay"
	TypeTranscriptQueueTick = "housekeeping:transcript_queue_tick"
)

// ScheduleConfig carries the cron expressions for every registered job,
// sourced from process configuration rather than hardcoded so operators
// can retune cadence without a redeploy.
type ScheduleConfig struct {
	DailyDigestCron        string
	MorningBriefCron       string
	MeetingPrepCron        string
	DealMomentumNudgeCron  string
	MeetingDebriefCron     string
	ReengagementCron       string
	ReconciliationCron     string
	DLQReplayCron          string
	TranscriptQueueTickCron string
}

// Scheduler manages periodic job scheduling using asynq.
type Scheduler struct {
	scheduler *asynq.Scheduler
}

// NewScheduler creates a new job scheduler and registers every job named
// in the schedule config.
func NewScheduler(redisURL string, cfg ScheduleConfig) (*Scheduler, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(redisOpt, nil)

	entries := []struct {
		taskType string
		cron     string
	}{
		{TypeDailyDigest, cfg.DailyDigestCron},
		{TypeMorningBrief, cfg.MorningBriefCron},
		{TypeMeetingPrep, cfg.MeetingPrepCron},
		{TypeDealMomentumNudge, cfg.DealMomentumNudgeCron},
		{TypeMeetingDebrief, cfg.MeetingDebriefCron},
		{TypeReengagement, cfg.ReengagementCron},
		{TypeReconciliationSweep, cfg.ReconciliationCron},
		{TypeDLQReplay, cfg.DLQReplayCron},
		{TypeTranscriptQueueTick, cfg.TranscriptQueueTickCron},
	}

	for _, e := range entries {
		if e.cron == "" {
			continue
		}
		if _, err := scheduler.Register(e.cron, asynq.NewTask(e.taskType, nil)); err != nil {
			return nil, err
		}
		log.Printf("registered job %s with schedule: %s", e.taskType, e.cron)
	}

	return &Scheduler{scheduler: scheduler}, nil
}

// Run starts the scheduler. Blocks until shutdown.
func (s *Scheduler) Run() error {
	return s.scheduler.Run()
}

// Shutdown gracefully stops the scheduler.
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
