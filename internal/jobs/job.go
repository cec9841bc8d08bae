// Package jobs defines the conversion job model and its durable registry.
package jobs

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusAssembling Status = "assembling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PageStatus is the state of a single page.
type PageStatus string

const (
	PagePending    PageStatus = "pending"
	PageProcessing PageStatus = "processing"
	PageSuccess    PageStatus = "success"
	PageFailed     PageStatus = "failed"
)

// PageResult tracks one page of the source PDF. Extracted text is kept
// on disk (pages/NNNNN.txt), not in the job record.
type PageResult struct {
	Page   int        `json:"page"`
	Status PageStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// Job is one user-submitted PDF and its conversion state. Counters are
// always derived from the page map, never stored.
type Job struct {
	ID          string              `json:"id"`
	Status      Status              `json:"status"`
	TotalPages  int                 `json:"total_pages"`
	Pages       map[int]*PageResult `json:"pages"`
	Language    string              `json:"language"`
	OCRPrompt   string              `json:"ocr_prompt,omitempty"`
	PDFFilename string              `json:"pdf_filename"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// NewID returns an opaque 12-hex-character job token.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// New creates a pending job for an uploaded PDF.
func New(filename, language, ocrPrompt string) *Job {
	return &Job{
		ID:          NewID(),
		Status:      StatusPending,
		Pages:       make(map[int]*PageResult),
		Language:    language,
		OCRPrompt:   ocrPrompt,
		PDFFilename: filename,
		CreatedAt:   time.Now().UTC(),
	}
}

// InitPages creates one pending PageResult per page.
func (j *Job) InitPages(total int) {
	j.TotalPages = total
	for i := 0; i < total; i++ {
		j.Pages[i] = &PageResult{Page: i, Status: PagePending}
	}
}

// PagesSucceeded counts pages in the success state.
func (j *Job) PagesSucceeded() int {
	n := 0
	for _, p := range j.Pages {
		if p.Status == PageSuccess {
			n++
		}
	}
	return n
}

// PagesFailed counts pages in the failed state.
func (j *Job) PagesFailed() int {
	n := 0
	for _, p := range j.Pages {
		if p.Status == PageFailed {
			n++
		}
	}
	return n
}

// PagesCompleted counts pages in a terminal state.
func (j *Job) PagesCompleted() int {
	return j.PagesSucceeded() + j.PagesFailed()
}

// FailedPages returns the failed page indices in ascending order.
func (j *Job) FailedPages() []int {
	pages := []int{}
	for _, p := range j.Pages {
		if p.Status == PageFailed {
			pages = append(pages, p.Page)
		}
	}
	sort.Ints(pages)
	return pages
}

// Title derives the book title from the source filename.
func (j *Job) Title() string {
	name := j.PDFFilename
	if name == "" {
		return "Converted Book"
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Dir returns the job's directory under the data root.
func (j *Job) Dir(dataDir string) string {
	return filepath.Join(dataDir, "jobs", j.ID)
}

// PDFPath returns the path of the uploaded source PDF.
func (j *Job) PDFPath(dataDir string) string {
	return filepath.Join(j.Dir(dataDir), "input.pdf")
}

// EPUBPath returns the path of the assembled EPUB.
func (j *Job) EPUBPath(dataDir string) string {
	return filepath.Join(j.Dir(dataDir), "output.epub")
}

// PagesDir returns the directory holding per-page text files.
func (j *Job) PagesDir(dataDir string) string {
	return filepath.Join(j.Dir(dataDir), "pages")
}

// PageTextPath returns the text file path for one page.
func (j *Job) PageTextPath(dataDir string, page int) string {
	return filepath.Join(j.PagesDir(dataDir), fmt.Sprintf("%05d.txt", page))
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Pages = make(map[int]*PageResult, len(j.Pages))
	for k, v := range j.Pages {
		pv := *v
		cp.Pages[k] = &pv
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
