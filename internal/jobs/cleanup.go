package jobs

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/vision-ocr/vppe/internal/events"
)

// DefaultCleanupInterval is how often the janitor sweeps.
const DefaultCleanupInterval = 10 * time.Minute

// Janitor deletes expired job artifacts in the background. Terminal
// jobs older than the job TTL are removed entirely; the source PDF of
// a terminal job is evicted earlier, after the PDF TTL.
type Janitor struct {
	registry *Registry
	hub      *events.Hub
	interval time.Duration
	jobTTL   time.Duration
	pdfTTL   time.Duration
	logger   *slog.Logger
}

// NewJanitor creates a cleanup loop over the registry and event hub.
func NewJanitor(registry *Registry, hub *events.Hub, interval, jobTTL, pdfTTL time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		registry: registry,
		hub:      hub,
		interval: interval,
		jobTTL:   jobTTL,
		pdfTTL:   pdfTTL,
		logger:   logger.With("component", "janitor"),
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
// Per-job I/O errors are logged and swallowed; the loop never dies.
func (jn *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(jn.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jn.Sweep(time.Now().UTC())
		}
	}
}

// Sweep applies the TTL policy once, relative to now.
func (jn *Janitor) Sweep(now time.Time) {
	for _, job := range jn.registry.All() {
		if !job.Status.Terminal() || job.CompletedAt == nil {
			continue
		}
		age := now.Sub(*job.CompletedAt)

		if age > jn.jobTTL {
			if err := os.RemoveAll(job.Dir(jn.registry.DataDir())); err != nil {
				jn.logger.Warn("failed to delete job directory", "job_id", job.ID, "error", err)
				continue
			}
			jn.registry.Delete(job.ID)
			jn.hub.Remove(job.ID)
			jn.logger.Info("cleaned up job", "job_id", job.ID, "age_hours", age.Hours())
			continue
		}

		if age > jn.pdfTTL {
			pdfPath := job.PDFPath(jn.registry.DataDir())
			if _, err := os.Stat(pdfPath); err != nil {
				continue
			}
			if err := os.Remove(pdfPath); err != nil {
				jn.logger.Warn("failed to delete source PDF", "job_id", job.ID, "error", err)
				continue
			}
			jn.logger.Info("deleted source PDF", "job_id", job.ID)
		}
	}
}
