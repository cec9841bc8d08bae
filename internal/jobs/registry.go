package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrConflict is returned when an operation requires a terminal job
	// but the job is still running, or when a pipeline is already active.
	ErrConflict = errors.New("job is not in a terminal state")
	// ErrSourceGone is returned when retry is requested after the source
	// PDF has been evicted by the TTL sweep.
	ErrSourceGone = errors.New("source PDF has been cleaned up")
)

// Registry is the durable in-memory map of jobs. Each job is persisted
// to jobs/<id>/job.json after every mutation; mutations are serialized
// with a per-job lock, and reads return deep-copied snapshots.
type Registry struct {
	mu      sync.Mutex
	dataDir string
	entries map[string]*entry
	logger  *slog.Logger
}

type entry struct {
	mu      sync.Mutex
	job     *Job
	running bool
}

// NewRegistry creates a registry rooted at dataDir.
func NewRegistry(dataDir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		dataDir: dataDir,
		entries: make(map[string]*entry),
		logger:  logger.With("component", "registry"),
	}
}

// DataDir returns the data root the registry persists under.
func (r *Registry) DataDir() string {
	return r.dataDir
}

// Create registers a new job, creates its directory, and persists it.
func (r *Registry) Create(job *Job) error {
	if err := os.MkdirAll(job.Dir(r.dataDir), 0o755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}
	if err := r.persist(job); err != nil {
		return err
	}

	r.mu.Lock()
	r.entries[job.ID] = &entry{job: job.Clone()}
	r.mu.Unlock()
	return nil
}

// Get returns a snapshot of a job.
func (r *Registry) Get(id string) (*Job, error) {
	e := r.entry(id)
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// Update applies fn to the job under its lock, persists the result,
// and returns a snapshot of the updated job.
func (r *Registry) Update(id string, fn func(*Job)) (*Job, error) {
	e := r.entry(id)
	if e == nil {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fn(e.job)
	if err := r.persist(e.job); err != nil {
		return nil, err
	}
	return e.job.Clone(), nil
}

// Delete removes a job from the registry. Files on disk are not touched.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// All returns snapshots of every registered job.
func (r *Registry) All() []*Job {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	jobs := make([]*Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		jobs = append(jobs, e.job.Clone())
		e.mu.Unlock()
	}
	return jobs
}

// AcquireRun marks a job as having an active pipeline. It fails with
// ErrConflict if a pipeline is already running for the job. This is the
// single-orchestrator-per-job guarantee.
func (r *Registry) AcquireRun(id string) error {
	e := r.entry(id)
	if e == nil {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrConflict
	}
	e.running = true
	return nil
}

// ReleaseRun clears the active-pipeline mark.
func (r *Registry) ReleaseRun(id string) {
	if e := r.entry(id); e != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}
}

// LoadFromDisk loads every persisted job at startup. Jobs found in a
// non-terminal state were interrupted by a crash or restart: they are
// marked failed, and their unfinished pages are marked failed so that a
// retry reprocesses exactly those pages. Successful pages keep their
// on-disk text.
func (r *Registry) LoadFromDisk() error {
	jobsDir := filepath.Join(r.dataDir, "jobs")
	dirs, err := os.ReadDir(jobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read jobs directory: %w", err)
	}

	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		metaPath := filepath.Join(jobsDir, d.Name(), "job.json")
		data, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}

		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			r.logger.Warn("skipping unreadable job file", "path", metaPath, "error", err)
			continue
		}

		if !job.Status.Terminal() {
			r.recoverInterrupted(&job)
			if err := r.persist(&job); err != nil {
				r.logger.Warn("failed to persist recovered job", "job_id", job.ID, "error", err)
			}
		}

		r.mu.Lock()
		r.entries[job.ID] = &entry{job: &job}
		r.mu.Unlock()
		r.logger.Info("loaded job from disk", "job_id", job.ID, "status", job.Status)
	}
	return nil
}

// recoverInterrupted rewrites a non-terminal job found at startup.
func (r *Registry) recoverInterrupted(job *Job) {
	job.Status = StatusFailed
	job.Error = "interrupted by restart"
	now := time.Now().UTC()
	job.CompletedAt = &now
	for _, p := range job.Pages {
		if p.Status == PageProcessing || p.Status == PagePending {
			p.Status = PageFailed
			p.Error = "interrupted"
		}
	}
}

func (r *Registry) entry(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

// persist writes job.json atomically (temp file + rename). Callers hold
// the job's entry lock.
func (r *Registry) persist(job *Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	dir := job.Dir(r.dataDir)
	tmp, err := os.CreateTemp(dir, "job-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close job file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, "job.json")); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace job file: %w", err)
	}
	return nil
}
