// Package pipeline coordinates the per-job conversion: rendering pages,
// fanning them out to OCR workers under back-pressure, persisting
// progress, and assembling the final EPUB.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vision-ocr/vppe/internal/epub"
	"github.com/vision-ocr/vppe/internal/events"
	"github.com/vision-ocr/vppe/internal/jobs"
)

// Event names emitted on the per-job bus.
const (
	EventJobStarted    = "job.started"
	EventPageCompleted = "page.completed"
	EventJobAssembling = "job.assembling"
	EventJobCompleted  = "job.completed"
	EventJobFailed     = "job.failed"
)

// previewLen is how many characters of extracted text ride along on a
// page.completed event.
const previewLen = 200

// Renderer is an open PDF that can rasterize pages. Satisfied by
// *render.Document; tests substitute fakes.
type Renderer interface {
	PageCount() int
	RenderJPEG(ctx context.Context, page int) ([]byte, error)
	Close() error
}

// OpenFunc opens the PDF at path for rendering.
type OpenFunc func(path string) (Renderer, error)

// OCRClient extracts text from a page image.
type OCRClient interface {
	ExtractText(ctx context.Context, image []byte, prompt string) (string, error)
}

// Config tunes the pipeline.
type Config struct {
	Workers         int // concurrent OCR calls
	QueueSize       int // rendered pages buffered ahead of the workers
	PagesPerChapter int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4
	}
	if c.PagesPerChapter <= 0 {
		c.PagesPerChapter = 20
	}
	return c
}

// Runner executes conversion pipelines, one goroutine group per job.
// At most one pipeline runs per job at a time; the registry's run lock
// enforces that.
type Runner struct {
	registry *jobs.Registry
	hub      *events.Hub
	ocr      OCRClient
	open     OpenFunc
	cfg      Config
	logger   *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a pipeline runner.
func NewRunner(registry *jobs.Registry, hub *events.Hub, ocr OCRClient, open OpenFunc, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		registry: registry,
		hub:      hub,
		ocr:      ocr,
		open:     open,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start launches the pipeline for a job in the background. pages
// restricts processing to those 0-based indices; nil means all pages.
// Returns jobs.ErrConflict if the job already has a running pipeline
// and jobs.ErrNotFound for unknown jobs.
func (r *Runner) Start(ctx context.Context, jobID string, pages []int) error {
	if err := r.registry.AcquireRun(jobID); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.registry.ReleaseRun(jobID)
		defer func() {
			r.mu.Lock()
			delete(r.cancels, jobID)
			r.mu.Unlock()
			cancel()
		}()
		r.run(runCtx, jobID, pages)
	}()
	return nil
}

// Retry re-processes a terminal job's failed pages and returns their
// indices. An empty failed set is still a full run over zero OCR
// calls: lifecycle events are re-emitted and the EPUB is regenerated.
// Returns jobs.ErrNotFound for unknown jobs, jobs.ErrConflict when the
// job is still running, and jobs.ErrSourceGone when the source PDF has
// been evicted by cleanup.
func (r *Runner) Retry(ctx context.Context, jobID string) ([]int, error) {
	job, err := r.registry.Get(jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, jobs.ErrConflict
	}
	if _, err := os.Stat(job.PDFPath(r.registry.DataDir())); err != nil {
		return nil, jobs.ErrSourceGone
	}

	failed := job.FailedPages()
	if _, err := r.registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusPending
		j.Error = ""
		j.CompletedAt = nil
		for _, p := range failed {
			j.Pages[p].Status = jobs.PagePending
			j.Pages[p].Error = ""
		}
	}); err != nil {
		return nil, err
	}

	// Subscribers of the finished run hold a closed bus; the retry gets
	// a fresh one so event ids restart from 1.
	r.hub.Replace(jobID)

	if err := r.Start(ctx, jobID, failed); err != nil {
		return nil, err
	}
	return failed, nil
}

// Shutdown cancels all running pipelines and waits for them to wind
// down or for ctx to expire. Interrupted jobs are recovered as failed
// on the next startup.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives one pipeline from job.started through the terminal event.
func (r *Runner) run(ctx context.Context, jobID string, pages []int) {
	bus := r.hub.GetOrCreate(jobID)
	log := r.logger.With("job_id", jobID)
	started := time.Now().UTC()

	job, err := r.registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusProcessing
		j.StartedAt = &started
		j.CompletedAt = nil
		j.Error = ""
	})
	if err != nil {
		log.Error("failed to mark job processing", "error", err)
		return
	}

	r.emit(bus, EventJobStarted, map[string]any{
		"total_pages": job.TotalPages,
		"status":      string(jobs.StatusProcessing),
	})
	log.Info("pipeline started", "total_pages", job.TotalPages, "pages", len(pages))

	if err := r.process(ctx, job, pages, bus); err != nil {
		r.fail(jobID, bus, log, err)
		return
	}

	completed := time.Now().UTC()
	job, err = r.registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusCompleted
		j.CompletedAt = &completed
	})
	if err != nil {
		log.Error("failed to mark job completed", "error", err)
		return
	}

	r.emit(bus, EventJobCompleted, map[string]any{
		"download_url":     fmt.Sprintf("/api/jobs/%s/result", jobID),
		"duration_seconds": completed.Sub(started).Seconds(),
		"pages_succeeded":  job.PagesSucceeded(),
		"failed_pages":     job.FailedPages(),
	})
	bus.Close()
	log.Info("pipeline completed",
		"duration", completed.Sub(started).Round(time.Millisecond),
		"succeeded", job.PagesSucceeded(),
		"failed", job.PagesFailed())
}

// fail records a pipeline-level failure. Per-page OCR failures never
// reach here; they are absorbed by the workers.
func (r *Runner) fail(jobID string, bus *events.Bus, log *slog.Logger, cause error) {
	now := time.Now().UTC()
	if _, err := r.registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusFailed
		j.CompletedAt = &now
		j.Error = cause.Error()
	}); err != nil {
		log.Error("failed to mark job failed", "error", err)
	}

	r.emit(bus, EventJobFailed, map[string]any{"error": cause.Error()})
	bus.Close()
	log.Error("pipeline failed", "error", cause)
}

// renderedPage travels from the producer to the OCR workers.
type renderedPage struct {
	index int
	image []byte
}

// process runs rendering, OCR, and assembly. Any returned error is a
// pipeline-level failure.
func (r *Runner) process(ctx context.Context, job *jobs.Job, pages []int, bus *events.Bus) error {
	doc, err := r.open(job.PDFPath(r.registry.DataDir()))
	if err != nil {
		return fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	if err := os.MkdirAll(job.PagesDir(r.registry.DataDir()), 0o755); err != nil {
		return fmt.Errorf("failed to create pages directory: %w", err)
	}

	selected := selectPages(job.TotalPages, pages)

	// Producer renders ahead of the workers into a bounded channel.
	// Closing the channel replaces per-worker sentinels: every worker
	// observes end-of-stream directly.
	queue := make(chan renderedPage, r.cfg.QueueSize)

	// Workers bound OCR parallelism through the queue; the semaphore
	// caps concurrent model calls independently of that, so the ceiling
	// holds even if queue draining changes.
	sem := semaphore.NewWeighted(int64(r.cfg.Workers))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		for _, idx := range selected {
			image, err := doc.RenderJPEG(gctx, idx)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// A page that cannot be rasterized fails like a page
				// whose OCR failed; the rest of the book proceeds.
				r.logger.Warn("page render failed", "job_id", job.ID, "page", idx, "error", err)
				if perr := r.recordPage(job, idx, "", fmt.Errorf("render failed: %w", err), bus); perr != nil {
					return perr
				}
				continue
			}
			select {
			case queue <- renderedPage{index: idx, image: image}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < r.cfg.Workers; i++ {
		g.Go(func() error {
			for page := range queue {
				if err := r.processPage(gctx, job, page, bus, sem); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.assemble(ctx, job.ID, bus)
}

// processPage runs OCR for one rendered page. OCR failures are
// recorded on the page and absorbed; only persistence errors
// propagate.
func (r *Runner) processPage(ctx context.Context, job *jobs.Job, page renderedPage, bus *events.Bus, sem *semaphore.Weighted) error {
	if _, err := r.registry.Update(job.ID, func(j *jobs.Job) {
		j.Pages[page.index].Status = jobs.PageProcessing
		j.Pages[page.index].Error = ""
	}); err != nil {
		return err
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	text, ocrErr := r.ocr.ExtractText(ctx, page.image, job.OCRPrompt)
	sem.Release(1)
	if ocrErr == nil {
		path := job.PageTextPath(r.registry.DataDir(), page.index)
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write page %d text: %w", page.index, err)
		}
	} else {
		r.logger.Warn("page ocr failed", "job_id", job.ID, "page", page.index, "error", ocrErr)
	}

	return r.recordPage(job, page.index, text, ocrErr, bus)
}

// recordPage persists a page outcome and emits page.completed. cause
// is nil for success.
func (r *Runner) recordPage(job *jobs.Job, index int, text string, cause error, bus *events.Bus) error {
	if _, err := r.registry.Update(job.ID, func(j *jobs.Job) {
		p := j.Pages[index]
		if cause == nil {
			p.Status = jobs.PageSuccess
			p.Error = ""
		} else {
			p.Status = jobs.PageFailed
			p.Error = cause.Error()
		}
	}); err != nil {
		return err
	}

	data := map[string]any{
		"page":        index,
		"total_pages": job.TotalPages,
	}
	if cause == nil {
		data["status"] = "success"
		data["text_preview"] = preview(text)
	} else {
		data["status"] = "failed"
		data["error"] = cause.Error()
	}

	r.emit(bus, EventPageCompleted, data)
	return nil
}

// assemble marks the job assembling and writes the EPUB from the
// on-disk page texts. Pages without a success result contribute empty
// text and render as placeholders.
func (r *Runner) assemble(ctx context.Context, jobID string, bus *events.Bus) error {
	job, err := r.registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusAssembling
	})
	if err != nil {
		return err
	}

	r.emit(bus, EventJobAssembling, map[string]any{
		"pages_succeeded": job.PagesSucceeded(),
		"pages_failed":    job.PagesFailed(),
	})

	if err := ctx.Err(); err != nil {
		return err
	}

	dataDir := r.registry.DataDir()
	texts := make([]string, job.TotalPages)
	for i := 0; i < job.TotalPages; i++ {
		if p, ok := job.Pages[i]; !ok || p.Status != jobs.PageSuccess {
			continue
		}
		raw, err := os.ReadFile(job.PageTextPath(dataDir, i))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to read page %d text: %w", i, err)
		}
		texts[i] = string(raw)
	}

	book := epub.Book{
		ID:       job.ID,
		Title:    job.Title(),
		Author:   "Vision OCR",
		Language: job.Language,
	}
	builder := epub.NewBuilder(book, epub.ChaptersFromPages(texts, r.cfg.PagesPerChapter))
	if err := builder.Build(job.EPUBPath(dataDir)); err != nil {
		return fmt.Errorf("failed to build epub: %w", err)
	}
	return nil
}

// emit pushes an event, tolerating a bus closed by cleanup racing the
// tail of a pipeline.
func (r *Runner) emit(bus *events.Bus, name string, data map[string]any) {
	if _, err := bus.Emit(name, data); err != nil {
		r.logger.Debug("event dropped", "event", name, "error", err)
	}
}

// selectPages expands the page selection: nil means every page, an
// explicit list is filtered to valid indices and sorted.
func selectPages(total int, pages []int) []int {
	if pages == nil {
		all := make([]int, total)
		for i := range all {
			all[i] = i
		}
		return all
	}

	seen := make(map[int]struct{}, len(pages))
	var out []int
	for _, p := range pages {
		if p < 0 || p >= total {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// preview returns the first previewLen characters of text.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLen {
		return text
	}
	return string(runes[:previewLen])
}
