package ingest

import (
	"sync"
	"testing"
	"time"

	"docvault/internal/store"
	"docvault/pkg/domain"
)

// manualScheduler collects callbacks and fires them on demand.
type manualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (m *manualScheduler) AfterFunc(_ time.Duration, fn func()) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.queue)
	m.queue = append(m.queue, fn)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.queue[idx] == nil {
			return false
		}
		m.queue[idx] = nil
		return true
	}
}

// fireNext runs the oldest pending callback, if any.
func (m *manualScheduler) fireNext() bool {
	m.mu.Lock()
	var fn func()
	for i, queued := range m.queue {
		if queued != nil {
			fn = queued
			m.queue[i] = nil
			break
		}
	}
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func newTestRunner(t *testing.T) (*Runner, *store.MemoryStore, *manualScheduler) {
	t.Helper()
	s := store.NewMemoryStore()
	sched := &manualScheduler{}
	return NewRunner(s, sched, time.Second, 5*time.Second), s, sched
}

func TestRunnerProgressesThroughStatuses(t *testing.T) {
	r, s, sched := newTestRunner(t)
	ing, _ := s.CreateIngestion(domain.Ingestion{DocumentID: 1, UserID: 2, Status: domain.IngestionPending})
	r.Start(ing)

	got, _, _ := s.GetIngestion(ing.ID)
	if got.Status != domain.IngestionPending {
		t.Fatalf("status before any timer = %q", got.Status)
	}

	if !sched.fireNext() {
		t.Fatal("processing timer not scheduled")
	}
	got, _, _ = s.GetIngestion(ing.ID)
	if got.Status != domain.IngestionProcessing || got.Logs != "Starting ingestion process..." {
		t.Fatalf("after first timer: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Fatal("completedAt must stay null while processing")
	}

	if !sched.fireNext() {
		t.Fatal("completion timer not scheduled")
	}
	got, _, _ = s.GetIngestion(ing.ID)
	if got.Status != domain.IngestionCompleted || got.CompletedAt == nil {
		t.Fatalf("after second timer: %+v", got)
	}
	if got.Logs != "Document successfully ingested" {
		t.Fatalf("completion logs = %q", got.Logs)
	}

	acts, _ := s.ListActivities(0)
	if len(acts) != 1 {
		t.Fatalf("expected exactly one ingestion activity, got %d", len(acts))
	}
	act := acts[0]
	if act.Type != "ingestion" || act.UserID != 2 || act.DocumentID == nil || *act.DocumentID != 1 {
		t.Fatalf("activity mismatch: %+v", act)
	}
}

func TestRunnerCancelBeforeProcessing(t *testing.T) {
	r, s, sched := newTestRunner(t)
	ing, _ := s.CreateIngestion(domain.Ingestion{DocumentID: 7, UserID: 1, Status: domain.IngestionPending})
	r.Start(ing)

	r.CancelDocument(7)

	got, _, _ := s.GetIngestion(ing.ID)
	if got.Status != domain.IngestionFailed || got.CompletedAt == nil {
		t.Fatalf("cancelled ingestion should be failed + terminal: %+v", got)
	}

	// The stopped timer never fires; even if a stale callback ran, the
	// terminal status is immutable.
	sched.fireNext()
	got, _, _ = s.GetIngestion(ing.ID)
	if got.Status != domain.IngestionFailed {
		t.Fatalf("terminal status moved: %+v", got)
	}
	acts, _ := s.ListActivities(0)
	if len(acts) != 0 {
		t.Fatalf("cancelled ingestion must not record an activity, got %d", len(acts))
	}
}

func TestRunnerCancelDuringProcessing(t *testing.T) {
	r, s, sched := newTestRunner(t)
	ing, _ := s.CreateIngestion(domain.Ingestion{DocumentID: 9, UserID: 1, Status: domain.IngestionPending})
	r.Start(ing)
	sched.fireNext() // -> processing

	r.CancelDocument(9)
	got, _, _ := s.GetIngestion(ing.ID)
	if got.Status != domain.IngestionFailed {
		t.Fatalf("expected failed after cancel, got %q", got.Status)
	}
	if got.Logs != "Ingestion cancelled: source document deleted" {
		t.Fatalf("cancel logs = %q", got.Logs)
	}
}

func TestRunnerCancelUnrelatedDocument(t *testing.T) {
	r, s, sched := newTestRunner(t)
	ing, _ := s.CreateIngestion(domain.Ingestion{DocumentID: 1, UserID: 1, Status: domain.IngestionPending})
	r.Start(ing)

	r.CancelDocument(999)

	sched.fireNext()
	sched.fireNext()
	got, _, _ := s.GetIngestion(ing.ID)
	if got.Status != domain.IngestionCompleted {
		t.Fatalf("unrelated cancel disturbed the pipeline: %+v", got)
	}
}

func TestRunnerRealTimers(t *testing.T) {
	s := store.NewMemoryStore()
	r := NewRunner(s, TimerScheduler{}, 5*time.Millisecond, 10*time.Millisecond)
	ing, _ := s.CreateIngestion(domain.Ingestion{DocumentID: 1, UserID: 1, Status: domain.IngestionPending})
	r.Start(ing)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _, _ := s.GetIngestion(ing.ID)
		if got.Status == domain.IngestionCompleted {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("ingestion did not complete with real timers")
}
