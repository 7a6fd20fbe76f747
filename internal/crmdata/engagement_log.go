package crmdata

import (
	"context"

	"github.com/sixtyapp/engagement-engine/internal/dispatch"
	"github.com/sixtyapp/engagement-engine/internal/monitoring"
)

// EngagementLog turns every dispatch outcome into a metrics observation,
// satisfying dispatch.EngagementLogFunc. It never touches persistence —
// the durable dispatch record is already written by the Dispatcher
// itself; this is purely for operator-facing dashboards.
type EngagementLog struct {
	metrics *monitoring.MetricsCollector
}

func NewEngagementLog(metrics *monitoring.MetricsCollector) *EngagementLog {
	return &EngagementLog{metrics: metrics}
}

func (e *EngagementLog) Func() dispatch.EngagementLogFunc {
	return func(_ context.Context, c dispatch.Candidate, outcome dispatch.Outcome) {
		switch {
		case outcome.Delivered:
			e.metrics.RecordDispatchOutcome(c.Feature, "delivered", "")
		case outcome.Skipped:
			e.metrics.RecordDispatchOutcome(c.Feature, "skipped", outcome.Reason)
		case outcome.Failed:
			reason := "error"
			if outcome.Err != nil {
				reason = outcome.Err.Error()
			}
			e.metrics.RecordDispatchOutcome(c.Feature, "failed", reason)
		}

		if outcome.SentUnrecorded {
			e.metrics.RecordError("dispatch", "sent_unrecorded", "warning")
		}
	}
}
