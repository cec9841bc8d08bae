// Package render rasterizes PDF pages to JPEG images using MuPDF.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const (
	// DefaultDPI is the rasterization resolution.
	DefaultDPI = 300
	// DefaultQuality is the JPEG encoding quality.
	DefaultQuality = 85
)

// Options controls rasterization.
type Options struct {
	DPI     int
	Quality int
}

func (o Options) withDefaults() Options {
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// PageCount returns the number of pages in the PDF at path. It also
// serves as upload validation: a file pdfcpu cannot parse is rejected
// before a job is created.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pdf: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return n, nil
}

// Document is an open PDF ready for page rendering. The underlying
// MuPDF handle is not safe for concurrent use, so rendering is
// serialized with a mutex.
type Document struct {
	mu   sync.Mutex
	doc  *fitz.Document
	opts Options
}

// Open opens the PDF at path for rendering.
func Open(path string, opts Options) (*Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	return &Document{doc: doc, opts: opts.withDefaults()}, nil
}

// PageCount returns the number of pages in the document.
func (d *Document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

// RenderJPEG rasterizes the 0-based page at the configured DPI and
// encodes it as JPEG. Cancellation is checked before rendering starts;
// an in-flight render runs to completion.
func (d *Document) RenderJPEG(ctx context.Context, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := d.doc.ImageDPI(page, float64(d.opts.DPI))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: d.opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}

// Close releases the MuPDF handle.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}
