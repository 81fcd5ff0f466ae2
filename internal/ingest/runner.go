package ingest

import (
	"log/slog"
	"sync"
	"time"

	"docvault/internal/store"
	"docvault/pkg/domain"
)

const (
	processingLogs = "Starting ingestion process..."
	completedLogs  = "Document successfully ingested"
	cancelledLogs  = "Ingestion cancelled: source document deleted"

	completedActivityDetails = "Document was successfully ingested"
)

// Runner drives the simulated ingestion pipeline: a fixed delay to
// processing, a further fixed delay to completed, then one "ingestion"
// activity. The actual processing body is a stub; only the observable
// status progression is real.
type Runner struct {
	store           store.Store
	scheduler       Scheduler
	processingDelay time.Duration
	completionDelay time.Duration

	mu   sync.Mutex
	jobs map[int64]*job // keyed by ingestion id
}

type job struct {
	ingestionID int64
	documentID  int64
	cancels     []CancelFunc
}

// NewRunner builds a runner. A nil scheduler defaults to real timers.
func NewRunner(s store.Store, scheduler Scheduler, processingDelay, completionDelay time.Duration) *Runner {
	if scheduler == nil {
		scheduler = TimerScheduler{}
	}
	if processingDelay <= 0 {
		processingDelay = time.Second
	}
	if completionDelay <= 0 {
		completionDelay = 5 * time.Second
	}
	return &Runner{
		store:           s,
		scheduler:       scheduler,
		processingDelay: processingDelay,
		completionDelay: completionDelay,
		jobs:            make(map[int64]*job),
	}
}

// Start schedules the status progression for a freshly created ingestion.
func (r *Runner) Start(ing domain.Ingestion) {
	j := &job{ingestionID: ing.ID, documentID: ing.DocumentID}
	r.mu.Lock()
	r.jobs[ing.ID] = j
	r.mu.Unlock()

	cancel := r.scheduler.AfterFunc(r.processingDelay, func() {
		r.advanceToProcessing(j)
	})
	r.track(j, cancel)
}

func (r *Runner) advanceToProcessing(j *job) {
	if _, ok, err := r.store.SetIngestionStatus(j.ingestionID, domain.IngestionProcessing, processingLogs); err != nil || !ok {
		slog.Error("ingestion status update failed", "ingestion_id", j.ingestionID, "status", "processing", "found", ok, "err", err)
		r.forget(j.ingestionID)
		return
	}
	cancel := r.scheduler.AfterFunc(r.completionDelay, func() {
		r.complete(j)
	})
	r.track(j, cancel)
}

func (r *Runner) complete(j *job) {
	defer r.forget(j.ingestionID)
	updated, ok, err := r.store.SetIngestionStatus(j.ingestionID, domain.IngestionCompleted, completedLogs)
	if err != nil || !ok {
		slog.Error("ingestion status update failed", "ingestion_id", j.ingestionID, "status", "completed", "found", ok, "err", err)
		return
	}
	// A cancelled job was already moved to failed; don't record completion.
	if updated.Status != domain.IngestionCompleted {
		return
	}
	docID := j.documentID
	if _, err := r.store.CreateActivity(domain.Activity{
		Type:       "ingestion",
		DocumentID: &docID,
		UserID:     updated.UserID,
		Details:    completedActivityDetails,
	}); err != nil {
		slog.Error("ingestion activity append failed", "ingestion_id", j.ingestionID, "err", err)
	}
}

// CancelDocument stops in-flight timers for the document and fails its
// non-terminal ingestions. Called when the underlying document is deleted.
func (r *Runner) CancelDocument(documentID int64) {
	r.mu.Lock()
	var cancelled []*job
	for id, j := range r.jobs {
		if j.documentID != documentID {
			continue
		}
		for _, cancel := range j.cancels {
			cancel()
		}
		cancelled = append(cancelled, j)
		delete(r.jobs, id)
	}
	r.mu.Unlock()

	for _, j := range cancelled {
		if _, _, err := r.store.SetIngestionStatus(j.ingestionID, domain.IngestionFailed, cancelledLogs); err != nil {
			slog.Error("ingestion cancel failed", "ingestion_id", j.ingestionID, "err", err)
		}
	}
}

func (r *Runner) track(j *job, cancel CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ingestionID]; !ok {
		// Job was cancelled between scheduling and tracking.
		cancel()
		return
	}
	j.cancels = append(j.cancels, cancel)
}

func (r *Runner) forget(ingestionID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, ingestionID)
}
