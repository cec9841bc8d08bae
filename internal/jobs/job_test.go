package jobs

import (
	"path/filepath"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID()
	if len(id) != 12 {
		t.Errorf("NewID() length = %d, want 12", len(id))
	}
	for _, c := range id {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Errorf("NewID() contains non-hex character %q", c)
		}
	}
	if NewID() == id {
		t.Error("two ids should not collide")
	}
}

func TestJob_DerivedCounters(t *testing.T) {
	job := New("book.pdf", "fa", "")
	job.InitPages(5)

	job.Pages[0].Status = PageSuccess
	job.Pages[1].Status = PageSuccess
	job.Pages[3].Status = PageFailed
	job.Pages[3].Error = "ocr failed"
	job.Pages[4].Status = PageFailed

	if got := job.PagesSucceeded(); got != 2 {
		t.Errorf("PagesSucceeded() = %d, want 2", got)
	}
	if got := job.PagesFailed(); got != 2 {
		t.Errorf("PagesFailed() = %d, want 2", got)
	}
	if got := job.PagesCompleted(); got != 4 {
		t.Errorf("PagesCompleted() = %d, want 4", got)
	}
	if got := job.PagesCompleted(); got > job.TotalPages {
		t.Errorf("PagesCompleted() = %d exceeds TotalPages %d", got, job.TotalPages)
	}

	failed := job.FailedPages()
	if len(failed) != 2 || failed[0] != 3 || failed[1] != 4 {
		t.Errorf("FailedPages() = %v, want [3 4]", failed)
	}
}

func TestJob_FailedPagesEmptyNotNil(t *testing.T) {
	job := New("book.pdf", "en", "")
	job.InitPages(2)
	if got := job.FailedPages(); got == nil || len(got) != 0 {
		t.Errorf("FailedPages() = %v, want empty non-nil slice", got)
	}
}

func TestJob_Title(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"divan-hafez.pdf", "divan-hafez"},
		{"My Book.PDF", "My Book"},
		{"", "Converted Book"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		job := New(tt.filename, "fa", "")
		if got := job.Title(); got != tt.want {
			t.Errorf("Title(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestJob_Paths(t *testing.T) {
	job := New("book.pdf", "fa", "")
	dataDir := "/data"

	if got := job.Dir(dataDir); got != filepath.Join("/data", "jobs", job.ID) {
		t.Errorf("Dir() = %q", got)
	}
	if got := job.PageTextPath(dataDir, 7); filepath.Base(got) != "00007.txt" {
		t.Errorf("PageTextPath(7) = %q, want zero-padded 00007.txt", got)
	}
	if filepath.Base(job.PDFPath(dataDir)) != "input.pdf" {
		t.Error("PDFPath should end in input.pdf")
	}
	if filepath.Base(job.EPUBPath(dataDir)) != "output.epub" {
		t.Error("EPUBPath should end in output.epub")
	}
}

func TestJob_Clone(t *testing.T) {
	job := New("book.pdf", "ar", "custom prompt")
	job.InitPages(2)

	cp := job.Clone()
	cp.Pages[0].Status = PageSuccess
	cp.Status = StatusCompleted

	if job.Pages[0].Status != PagePending {
		t.Error("mutating the clone changed the original page map")
	}
	if job.Status != StatusPending {
		t.Error("mutating the clone changed the original status")
	}
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusAssembling} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
