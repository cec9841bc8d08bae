package jobs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vision-ocr/vppe/internal/events"
)

func terminalJob(t *testing.T, r *Registry, completedAgo time.Duration) *Job {
	t.Helper()
	job := New("old.pdf", "fa", "")
	job.InitPages(1)
	if err := r.Create(job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	// Give the job a source PDF so PDF eviction has something to delete.
	if err := os.WriteFile(job.PDFPath(r.DataDir()), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("writing input.pdf: %v", err)
	}
	r.Update(job.ID, func(j *Job) {
		j.Status = StatusCompleted
		done := time.Now().UTC().Add(-completedAgo)
		j.CompletedAt = &done
	})
	return job
}

func TestJanitor_DeletesExpiredJobs(t *testing.T) {
	r := newTestRegistry(t)
	hub := events.NewHub(10)
	jn := NewJanitor(r, hub, time.Minute, 24*time.Hour, time.Hour, nil)

	expired := terminalJob(t, r, 25*time.Hour)
	fresh := terminalJob(t, r, 10*time.Minute)
	hub.GetOrCreate(expired.ID)

	jn.Sweep(time.Now().UTC())

	if _, err := r.Get(expired.ID); err != ErrNotFound {
		t.Errorf("expired job still registered: %v", err)
	}
	if _, err := os.Stat(expired.Dir(r.DataDir())); !os.IsNotExist(err) {
		t.Error("expired job directory still on disk")
	}
	if hub.Get(expired.ID) != nil {
		t.Error("expired job's bus still in hub")
	}

	if _, err := r.Get(fresh.ID); err != nil {
		t.Errorf("fresh job was swept: %v", err)
	}
}

func TestJanitor_EvictsPDFOnly(t *testing.T) {
	r := newTestRegistry(t)
	jn := NewJanitor(r, events.NewHub(10), time.Minute, 24*time.Hour, time.Hour, nil)

	job := terminalJob(t, r, 2*time.Hour)
	jn.Sweep(time.Now().UTC())

	if _, err := os.Stat(job.PDFPath(r.DataDir())); !os.IsNotExist(err) {
		t.Error("source PDF should be evicted after the PDF TTL")
	}
	if _, err := os.Stat(filepath.Join(job.Dir(r.DataDir()), "job.json")); err != nil {
		t.Error("job.json must survive PDF eviction")
	}
	if _, err := r.Get(job.ID); err != nil {
		t.Errorf("job should still be registered: %v", err)
	}
}

func TestJanitor_SkipsRunningJobs(t *testing.T) {
	r := newTestRegistry(t)
	jn := NewJanitor(r, events.NewHub(10), time.Minute, time.Nanosecond, time.Nanosecond, nil)

	job := New("busy.pdf", "fa", "")
	job.InitPages(1)
	r.Create(job)
	r.Update(job.ID, func(j *Job) { j.Status = StatusProcessing })

	jn.Sweep(time.Now().UTC().Add(48 * time.Hour))

	if _, err := r.Get(job.ID); err != nil {
		t.Errorf("non-terminal job must never be swept: %v", err)
	}
}
