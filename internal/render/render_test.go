package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// minimalPDF is a single blank US Letter page. Offsets in the xref
// table are exact; changing any object changes them.
const minimalPDF = "%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n" +
	"xref\n0 4\n" +
	"0000000000 65535 f \n" +
	"0000000009 00000 n \n" +
	"0000000058 00000 n \n" +
	"0000000115 00000 n \n" +
	"trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n187\n%%EOF\n"

func writeTestPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pdf")
	if err := os.WriteFile(path, []byte(minimalPDF), 0o644); err != nil {
		t.Fatalf("writing test pdf: %v", err)
	}
	return path
}

func TestPageCount(t *testing.T) {
	n, err := PageCount(writeTestPDF(t))
	if err != nil {
		t.Fatalf("PageCount() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PageCount() = %d, want 1", n)
	}
}

func TestPageCount_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	os.WriteFile(path, []byte("this is not a pdf"), 0o644)

	if _, err := PageCount(path); err == nil {
		t.Error("PageCount() should reject non-PDF content")
	}
}

func TestPageCount_MissingFile(t *testing.T) {
	if _, err := PageCount(filepath.Join(t.TempDir(), "absent.pdf")); err == nil {
		t.Error("PageCount() should fail for a missing file")
	}
}

func TestDocument_RenderJPEG(t *testing.T) {
	doc, err := Open(writeTestPDF(t), Options{DPI: 72, Quality: 60})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()

	if got := doc.PageCount(); got != 1 {
		t.Errorf("PageCount() = %d, want 1", got)
	}

	data, err := doc.RenderJPEG(context.Background(), 0)
	if err != nil {
		t.Fatalf("RenderJPEG() error = %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("output does not start with a JPEG SOI marker")
	}
}

func TestDocument_RenderJPEG_Cancelled(t *testing.T) {
	doc, err := Open(writeTestPDF(t), Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := doc.RenderJPEG(ctx, 0); err != context.Canceled {
		t.Errorf("RenderJPEG() with cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.DPI != DefaultDPI || o.Quality != DefaultQuality {
		t.Errorf("defaults = %d dpi / q%d", o.DPI, o.Quality)
	}
	o = Options{DPI: 150, Quality: 101}.withDefaults()
	if o.DPI != 150 || o.Quality != DefaultQuality {
		t.Errorf("out-of-range quality should fall back, got q%d", o.Quality)
	}
}
