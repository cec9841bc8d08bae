package jobs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(t.TempDir(), nil)
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r := newTestRegistry(t)

	job := New("book.pdf", "fa", "")
	job.InitPages(3)
	if err := r.Create(job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := r.Get(job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != job.ID || got.TotalPages != 3 {
		t.Errorf("Get() = %+v, want id %s with 3 pages", got, job.ID)
	}

	// job.json must exist on disk immediately after Create.
	if _, err := os.Stat(filepath.Join(job.Dir(r.DataDir()), "job.json")); err != nil {
		t.Errorf("job.json not persisted: %v", err)
	}

	if _, err := r.Get("nope"); err != ErrNotFound {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	r := newTestRegistry(t)
	job := New("book.pdf", "fa", "")
	job.InitPages(1)
	r.Create(job)

	snap, _ := r.Get(job.ID)
	snap.Pages[0].Status = PageSuccess

	again, _ := r.Get(job.ID)
	if again.Pages[0].Status != PagePending {
		t.Error("mutating a snapshot leaked into the registry")
	}
}

func TestRegistry_UpdatePersists(t *testing.T) {
	r := newTestRegistry(t)
	job := New("book.pdf", "fa", "")
	job.InitPages(2)
	r.Create(job)

	updated, err := r.Update(job.ID, func(j *Job) {
		j.Status = StatusProcessing
		now := time.Now().UTC()
		j.StartedAt = &now
		j.Pages[0].Status = PageSuccess
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Status != StatusProcessing || updated.PagesSucceeded() != 1 {
		t.Errorf("Update() snapshot = %+v", updated)
	}

	// The durable copy must reflect the mutation.
	data, err := os.ReadFile(filepath.Join(job.Dir(r.DataDir()), "job.json"))
	if err != nil {
		t.Fatalf("reading job.json: %v", err)
	}
	var onDisk Job
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("unmarshal job.json: %v", err)
	}
	if onDisk.Status != StatusProcessing {
		t.Errorf("on-disk status = %s, want processing", onDisk.Status)
	}
	if onDisk.StartedAt == nil {
		t.Error("on-disk started_at missing")
	}
}

func TestRegistry_PersistReloadRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	r := NewRegistry(dataDir, nil)

	job := New("roundtrip.pdf", "ar", "custom")
	job.InitPages(3)
	r.Create(job)
	r.Update(job.ID, func(j *Job) {
		j.Status = StatusCompleted
		now := time.Now().UTC().Truncate(time.Second)
		j.StartedAt = &now
		j.CompletedAt = &now
		j.Pages[0].Status = PageSuccess
		j.Pages[1].Status = PageFailed
		j.Pages[1].Error = "ocr failed after 3 attempts"
		j.Pages[2].Status = PageSuccess
	})
	before, _ := r.Get(job.ID)

	fresh := NewRegistry(dataDir, nil)
	if err := fresh.LoadFromDisk(); err != nil {
		t.Fatalf("LoadFromDisk() error = %v", err)
	}
	after, err := fresh.Get(job.ID)
	if err != nil {
		t.Fatalf("Get() after reload error = %v", err)
	}

	if !reflect.DeepEqual(before.Pages, after.Pages) {
		t.Errorf("page map changed across reload:\nbefore %+v\nafter  %+v", before.Pages, after.Pages)
	}
	if before.Status != after.Status || before.Language != after.Language || before.OCRPrompt != after.OCRPrompt {
		t.Error("job fields changed across reload")
	}
}

func TestRegistry_RecoverInterrupted(t *testing.T) {
	dataDir := t.TempDir()
	r := NewRegistry(dataDir, nil)

	// A 5-page job killed mid-flight: two pages done, one in the model,
	// two never started.
	job := New("crash.pdf", "fa", "")
	job.InitPages(5)
	r.Create(job)
	r.Update(job.ID, func(j *Job) {
		j.Status = StatusProcessing
		now := time.Now().UTC()
		j.StartedAt = &now
		j.Pages[0].Status = PageSuccess
		j.Pages[1].Status = PageSuccess
		j.Pages[2].Status = PageProcessing
	})

	fresh := NewRegistry(dataDir, nil)
	if err := fresh.LoadFromDisk(); err != nil {
		t.Fatalf("LoadFromDisk() error = %v", err)
	}
	got, _ := fresh.Get(job.ID)

	if got.Status != StatusFailed {
		t.Errorf("recovered status = %s, want failed", got.Status)
	}
	if got.Error != "interrupted by restart" {
		t.Errorf("recovered error = %q, want %q", got.Error, "interrupted by restart")
	}
	if got.CompletedAt == nil {
		t.Error("recovered job should have completed_at set")
	}

	for i := 0; i <= 1; i++ {
		if got.Pages[i].Status != PageSuccess {
			t.Errorf("page %d = %s, want success preserved", i, got.Pages[i].Status)
		}
	}
	for i := 2; i <= 4; i++ {
		if got.Pages[i].Status != PageFailed || got.Pages[i].Error != "interrupted" {
			t.Errorf("page %d = %s/%q, want failed/interrupted", i, got.Pages[i].Status, got.Pages[i].Error)
		}
	}

	// The recovered state must also be durable.
	data, _ := os.ReadFile(filepath.Join(job.Dir(dataDir), "job.json"))
	var onDisk Job
	json.Unmarshal(data, &onDisk)
	if onDisk.Status != StatusFailed {
		t.Error("recovery was not persisted")
	}
}

func TestRegistry_AcquireRun(t *testing.T) {
	r := newTestRegistry(t)
	job := New("book.pdf", "fa", "")
	job.InitPages(1)
	r.Create(job)

	if err := r.AcquireRun(job.ID); err != nil {
		t.Fatalf("AcquireRun() error = %v", err)
	}
	if err := r.AcquireRun(job.ID); err != ErrConflict {
		t.Errorf("second AcquireRun() = %v, want ErrConflict", err)
	}
	r.ReleaseRun(job.ID)
	if err := r.AcquireRun(job.ID); err != nil {
		t.Errorf("AcquireRun() after release = %v", err)
	}

	if err := r.AcquireRun("nope"); err != ErrNotFound {
		t.Errorf("AcquireRun(unknown) = %v, want ErrNotFound", err)
	}
}

func TestRegistry_LoadSkipsGarbage(t *testing.T) {
	dataDir := t.TempDir()
	bad := filepath.Join(dataDir, "jobs", "badjob")
	os.MkdirAll(bad, 0o755)
	os.WriteFile(filepath.Join(bad, "job.json"), []byte("{not json"), 0o644)

	r := NewRegistry(dataDir, nil)
	if err := r.LoadFromDisk(); err != nil {
		t.Fatalf("LoadFromDisk() should tolerate bad files, got %v", err)
	}
	if len(r.All()) != 0 {
		t.Error("garbage job should not be loaded")
	}
}
