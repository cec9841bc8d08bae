package epub

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

func buildToMap(t *testing.T, b *Builder) map[string]string {
	t.Helper()
	var buf bytes.Buffer
	if err := b.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("output is not a zip: %v", err)
	}

	files := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		files[f.Name] = string(data)
	}
	return files
}

func testBook() Book {
	return Book{
		ID:       "abc123def456",
		Title:    "My Book",
		Author:   "Vision OCR",
		Language: "fa",
		Modified: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestChaptersFromPages(t *testing.T) {
	texts := make([]string, 45)
	for i := range texts {
		texts[i] = "page"
	}

	chapters := ChaptersFromPages(texts, 20)
	if len(chapters) != 3 {
		t.Fatalf("got %d chapters, want 3", len(chapters))
	}
	if len(chapters[0].Pages) != 20 || len(chapters[1].Pages) != 20 || len(chapters[2].Pages) != 5 {
		t.Errorf("chapter sizes = %d/%d/%d, want 20/20/5",
			len(chapters[0].Pages), len(chapters[1].Pages), len(chapters[2].Pages))
	}
	if chapters[0].ID != "chapter_001" || chapters[2].ID != "chapter_003" {
		t.Errorf("chapter ids = %s, %s", chapters[0].ID, chapters[2].ID)
	}
	if chapters[1].Title != "Chapter 2" {
		t.Errorf("chapter title = %s", chapters[1].Title)
	}
	if chapters[1].Pages[0].Number != 20 {
		t.Errorf("chapter 2 first page = %d, want 20", chapters[1].Pages[0].Number)
	}
}

func TestBuilder_Structure(t *testing.T) {
	chapters := ChaptersFromPages([]string{"first page", "second page"}, 20)
	files := buildToMap(t, NewBuilder(testBook(), chapters))

	for _, name := range []string{
		"mimetype",
		"META-INF/container.xml",
		"OEBPS/content.opf",
		"OEBPS/nav.xhtml",
		"OEBPS/toc.ncx",
		"OEBPS/styles/style.css",
		"OEBPS/chapters/chapter_001.xhtml",
	} {
		if _, ok := files[name]; !ok {
			t.Errorf("missing %s", name)
		}
	}
	if files["mimetype"] != "application/epub+zip" {
		t.Errorf("mimetype = %q", files["mimetype"])
	}
}

func TestBuilder_MimetypeFirstAndStored(t *testing.T) {
	var buf bytes.Buffer
	b := NewBuilder(testBook(), ChaptersFromPages([]string{"text"}, 20))
	if err := b.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	first := zr.File[0]
	if first.Name != "mimetype" {
		t.Errorf("first entry = %s, want mimetype", first.Name)
	}
	if first.Method != zip.Store {
		t.Error("mimetype must be stored uncompressed")
	}
}

func TestBuilder_PackageMetadata(t *testing.T) {
	files := buildToMap(t, NewBuilder(testBook(), ChaptersFromPages([]string{"text"}, 20)))
	opf := files["OEBPS/content.opf"]

	for _, want := range []string{
		`<dc:identifier id="book-id">urn:uuid:abc123def456</dc:identifier>`,
		`<dc:title>My Book</dc:title>`,
		`<dc:creator>Vision OCR</dc:creator>`,
		`<dc:language>fa</dc:language>`,
		`<meta property="dcterms:modified">2024-06-01T12:00:00Z</meta>`,
		`page-progression-direction="rtl"`,
		`<itemref idref="chapter_001"/>`,
	} {
		if !strings.Contains(opf, want) {
			t.Errorf("content.opf missing %s", want)
		}
	}

	css := files["OEBPS/styles/style.css"]
	if !strings.Contains(css, "html, body {\n  direction: rtl;\n}") {
		t.Error("stylesheet should set rtl direction on both html and body")
	}
}

func TestBuilder_LTRHasNoProgressionDirection(t *testing.T) {
	book := testBook()
	book.Language = "en"
	files := buildToMap(t, NewBuilder(book, ChaptersFromPages([]string{"text"}, 20)))

	if strings.Contains(files["OEBPS/content.opf"], "page-progression-direction") {
		t.Error("LTR books must not set page-progression-direction")
	}
	if !strings.Contains(files["OEBPS/styles/style.css"], "direction: ltr") {
		t.Error("stylesheet should set ltr direction")
	}
	if !strings.Contains(files["OEBPS/styles/style.css"], "Georgia") {
		t.Error("LTR stylesheet should use the Latin font stack")
	}
}

func TestBuilder_ChapterContent(t *testing.T) {
	texts := []string{"First para.\n\nSecond para\nwith a wrapped line.", ""}
	files := buildToMap(t, NewBuilder(testBook(), ChaptersFromPages(texts, 20)))
	ch := files["OEBPS/chapters/chapter_001.xhtml"]

	if !strings.Contains(ch, `<p dir="auto">First para.</p>`) {
		t.Errorf("missing first paragraph:\n%s", ch)
	}
	if !strings.Contains(ch, `Second para<br/>with a wrapped line.`) {
		t.Error("newline inside paragraph should become <br/>")
	}
	if !strings.Contains(ch, `<hr class="page-sep"/>`) {
		t.Error("pages should be separated by a rule")
	}
	if !strings.Contains(ch, `<p class="failed-page">[Page 2: OCR failed]</p>`) {
		t.Error("empty page should render a failure placeholder")
	}
}

func TestBuilder_EscapesXML(t *testing.T) {
	book := testBook()
	book.Title = `Tom & "Jerry" <uncut>`
	files := buildToMap(t, NewBuilder(book, ChaptersFromPages([]string{"a < b & c"}, 20)))

	if !strings.Contains(files["OEBPS/content.opf"], "Tom &amp; &quot;Jerry&quot; &lt;uncut&gt;") {
		t.Error("title not escaped in package document")
	}
	if !strings.Contains(files["OEBPS/chapters/chapter_001.xhtml"], "a &lt; b &amp; c") {
		t.Error("page text not escaped")
	}
}

func TestBuilder_Deterministic(t *testing.T) {
	build := func() []byte {
		var buf bytes.Buffer
		b := NewBuilder(testBook(), ChaptersFromPages([]string{"same text"}, 20))
		if err := b.WriteTo(&buf); err != nil {
			t.Fatalf("WriteTo() error = %v", err)
		}
		return buf.Bytes()
	}

	if !bytes.Equal(build(), build()) {
		t.Error("same inputs must produce byte-identical output")
	}
}

func TestBuilder_DefaultsIDAndLanguage(t *testing.T) {
	b := NewBuilder(Book{Title: "t"}, nil)
	if b.book.ID == "" {
		t.Error("empty ID should be replaced with a generated one")
	}
	if b.book.Language != "en" {
		t.Errorf("default language = %s, want en", b.book.Language)
	}
}
