// Package transcript implements the Transcript Queue Worker (component
// J): a bounded per-tick worker that fetches call transcripts from an
// external provider, with a lease-based retry schedule shared with the
// rest of the Notification Store.
package transcript

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sixtyapp/engagement-engine/internal/store"
)

// maxItemsPerTick bounds how many transcript-queue items one cron tick
// processes, so a large backlog never monopolizes a worker cycle.
const maxItemsPerTick = 50

const defaultMaxAttempts = 10

// readyThreshold is the minimum transcript length (in characters) to
// count as "ready" rather than "transcript_not_ready".
const readyThreshold = 20

// Fetcher retrieves a transcript for a call from the external telephony
// provider.
type Fetcher interface {
	FetchTranscript(ctx context.Context, orgID, callID string) (text string, httpStatus int, err error)
}

// CallStore is the subset of call-entity persistence this worker needs:
// reading whether a call's transcript is already ready, and writing a
// fetched transcript back.
type CallStore interface {
	IsTranscriptReady(ctx context.Context, orgID, callID string) (bool, error)
	SaveTranscript(ctx context.Context, orgID, callID, text string) error
}

// DebriefEnqueuer enqueues the downstream meeting_debrief dispatch once
// a transcript becomes ready.
type DebriefEnqueuer interface {
	EnqueueMeetingDebrief(ctx context.Context, orgID, callID string) error
}

// Worker processes one tick of the transcript queue.
type Worker struct {
	Durable  *store.DurableStore
	Calls    CallStore
	Fetch    Fetcher
	Debrief  DebriefEnqueuer
	leaseFor time.Duration
}

// NewWorker builds a transcript queue worker. leaseFor is set to two
// minutes but is not consulted: LeaseTranscriptQueueBatch takes no
// lease, so two workers ticking at the same time can pick the same items.
func NewWorker(durable *store.DurableStore, calls CallStore, fetch Fetcher, debrief DebriefEnqueuer) *Worker {
	return &Worker{Durable: durable, Calls: calls, Fetch: fetch, Debrief: debrief, leaseFor: 2 * time.Minute}
}

// Tick processes up to maxItemsPerTick queue items. A per-item failure
// is recorded on the item's queue row and never aborts the tick; the
// item is selected again on a later tick while its attempts stay below
// its max.
func (w *Worker) Tick(ctx context.Context) error {
	items, err := w.Durable.LeaseTranscriptQueueBatch(ctx, maxItemsPerTick)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.processItem(ctx, item)
	}
	return nil
}

func (w *Worker) processItem(ctx context.Context, item store.TranscriptQueueItem) {
	// 1. Already ready -> delete the queue item (idempotent no-op on a
	// second pass over a ready call).
	ready, err := w.Calls.IsTranscriptReady(ctx, item.OrgID, item.CallID)
	if err != nil {
		w.recordFailure(ctx, item, fmt.Sprintf("transcript_lookup_failed: %v", err))
		return
	}
	if ready {
		_ = w.Durable.DeleteTranscriptQueueItem(ctx, item.CallID)
		return
	}

	// 2. Exhausted retries -> mark failed and stop retrying.
	maxAttempts := item.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if item.Attempts >= maxAttempts {
		w.recordFailure(ctx, item, "transcript_fetch_exhausted")
		return
	}

	// 3. Fetch from the external provider.
	text, httpStatus, err := w.Fetch.FetchTranscript(ctx, item.OrgID, item.CallID)
	if err != nil {
		w.recordFailure(ctx, item, fmt.Sprintf("transcription_fetch_failed_%d", httpStatus))
		return
	}

	if len(text) < readyThreshold {
		w.recordFailure(ctx, item, "transcript_not_ready")
		return
	}

	// 4. Success: persist, delete the queue item, enqueue the debrief.
	if err := w.Calls.SaveTranscript(ctx, item.OrgID, item.CallID, text); err != nil {
		w.recordFailure(ctx, item, fmt.Sprintf("transcript_save_failed: %v", err))
		return
	}
	_ = w.Durable.DeleteTranscriptQueueItem(ctx, item.CallID)
	_ = w.Debrief.EnqueueMeetingDebrief(ctx, item.OrgID, item.CallID)
}

func (w *Worker) recordFailure(ctx context.Context, item store.TranscriptQueueItem, reason string) {
	item.Attempts++
	item.LastError = &reason
	_ = w.Durable.UpsertTranscriptQueueItem(ctx, item)
}

// RetryDelay computes the linear-with-jitter backoff for a given
// attempt count — attempt count is the only retry signal (the lease
// mechanism, not a scheduled-for timestamp, governs re-visibility).
func RetryDelay(attempt int) time.Duration {
	base := time.Duration(attempt) * 30 * time.Second
	jitter := time.Duration(rand.Intn(10)) * time.Second
	return base + jitter
}
