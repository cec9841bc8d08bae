// Package epub generates EPUB 3.0 files from recognized page text.
package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Book contains the metadata needed for epub generation.
type Book struct {
	ID       string // unique identifier (the job id)
	Title    string
	Author   string
	Language string // ISO 639-1 code: fa, ar, en

	// Modified is the dcterms:modified timestamp. It must be a fixed
	// value per book so that re-assembly is byte-for-byte reproducible;
	// the zero value falls back to the Unix epoch.
	Modified time.Time
}

// Page is one source page inside a chapter. Text is empty for pages
// whose OCR failed; those render as a placeholder.
type Page struct {
	Number int // 0-based index in the source PDF
	Text   string
}

// Chapter is a group of consecutive pages.
type Chapter struct {
	ID    string // e.g. "chapter_001"
	Title string // e.g. "Chapter 1"
	Pages []Page
}

// ChaptersFromPages partitions ordered page texts into chapters of
// perChapter pages. Chapter k (1-indexed) covers pages
// [(k-1)*perChapter, min(k*perChapter, total)).
func ChaptersFromPages(texts []string, perChapter int) []Chapter {
	if perChapter <= 0 {
		perChapter = 20
	}

	var chapters []Chapter
	for start := 0; start < len(texts); start += perChapter {
		end := start + perChapter
		if end > len(texts) {
			end = len(texts)
		}
		num := start/perChapter + 1

		ch := Chapter{
			ID:    fmt.Sprintf("chapter_%03d", num),
			Title: fmt.Sprintf("Chapter %d", num),
		}
		for i := start; i < end; i++ {
			ch.Pages = append(ch.Pages, Page{Number: i, Text: texts[i]})
		}
		chapters = append(chapters, ch)
	}
	return chapters
}

// Builder creates EPUB 3.0 files.
type Builder struct {
	book     Book
	chapters []Chapter
}

// NewBuilder creates a new epub builder.
func NewBuilder(book Book, chapters []Chapter) *Builder {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	if book.Language == "" {
		book.Language = "en"
	}
	return &Builder{
		book:     book,
		chapters: chapters,
	}
}

// rtl reports whether the book language reads right-to-left.
func (b *Builder) rtl() bool {
	return b.book.Language == "fa" || b.book.Language == "ar"
}

// dir returns the text direction attribute value.
func (b *Builder) dir() string {
	if b.rtl() {
		return "rtl"
	}
	return "ltr"
}

// Build generates the epub and writes it to the specified path.
func (b *Builder) Build(outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	return b.WriteTo(f)
}

// WriteTo writes the epub to a writer.
func (b *Builder) WriteTo(w io.Writer) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	// 1. mimetype (must be first, uncompressed)
	if err := b.writeMimetype(zw); err != nil {
		return err
	}

	// 2. META-INF/container.xml
	if err := b.writeContainer(zw); err != nil {
		return err
	}

	// 3. OEBPS/content.opf (package document)
	if err := b.writeFile(zw, "OEBPS/content.opf", b.generatePackage()); err != nil {
		return err
	}

	// 4. OEBPS/nav.xhtml (navigation)
	if err := b.writeFile(zw, "OEBPS/nav.xhtml", b.generateNavigation()); err != nil {
		return err
	}

	// 5. OEBPS/toc.ncx (NCX for ePub 2 compatibility)
	if err := b.writeFile(zw, "OEBPS/toc.ncx", b.generateNCX()); err != nil {
		return err
	}

	// 6. OEBPS/styles/style.css
	if err := b.writeFile(zw, "OEBPS/styles/style.css", b.generateStylesheet()); err != nil {
		return err
	}

	// 7. Chapter files
	for _, ch := range b.chapters {
		path := fmt.Sprintf("OEBPS/chapters/%s.xhtml", ch.ID)
		if err := b.writeFile(zw, path, b.generateChapterXHTML(ch)); err != nil {
			return fmt.Errorf("failed to write chapter %s: %w", ch.ID, err)
		}
	}

	return nil
}

// writeMimetype writes the mimetype file (must be first and uncompressed).
func (b *Builder) writeMimetype(zw *zip.Writer) error {
	header := &zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	_, err = w.Write([]byte("application/epub+zip"))
	return err
}

// writeContainer writes META-INF/container.xml.
func (b *Builder) writeContainer(zw *zip.Writer) error {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`
	return b.writeFile(zw, "META-INF/container.xml", content)
}

// writeFile writes one zip entry with a fixed (zero) timestamp so the
// archive is deterministic.
func (b *Builder) writeFile(zw *zip.Writer, name, content string) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	_, err = w.Write([]byte(content))
	return err
}
