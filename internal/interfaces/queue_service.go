package interfaces

import (
	"context"

	"github.com/ternarybob/playforge/internal/models"
)

// SubmitReceipt reports how a submission was admitted
type SubmitReceipt struct {
	Job      models.Job
	Position int  // 1-based position in the pending buffer, 0 when started immediately
	Started  bool // promoted to processing on submit
}

// JobScheduler is the single-flight job queue
type JobScheduler interface {
	// Submit admits a validated submission. origin may be nil.
	Submit(ctx context.Context, submission models.Submission, source models.Source, origin ClientSink) (SubmitReceipt, error)

	// Attach runs fn on the scheduler's own goroutine with a consistent snapshot.
	// No job event is emitted between the snapshot and fn returning.
	Attach(ctx context.Context, fn func(snapshot models.ObserverSnapshot)) error

	// Snapshot returns the state a newly connected observer needs
	Snapshot(ctx context.Context) (models.ObserverSnapshot, error)
}

// HistoryLookup finds a history record by job ID
type HistoryLookup interface {
	LookupHistory(ctx context.Context, requestID string) (models.HistoryRecord, bool)
}
