package epub

import (
	"fmt"
	"strings"
)

// generateStylesheet creates the shared CSS. RTL languages get an
// appropriate serif stack with Arabic-script fallbacks.
func (b *Builder) generateStylesheet() string {
	family := `Georgia, serif`
	if b.rtl() {
		family = `Tahoma, "Noto Naskh Arabic", serif`
	}

	return fmt.Sprintf(`html, body {
  direction: %s;
}

body {
  font-family: %s;
  line-height: 1.8;
  margin: 1em;
}

h1 {
  text-align: center;
  margin-bottom: 1.5em;
}

p {
  margin: 0 0 0.8em 0;
  text-align: justify;
}

hr.page-sep {
  border: none;
  border-top: 1px dashed #999;
  margin: 1.5em 2em;
}

p.failed-page {
  color: #888;
  font-style: italic;
  text-align: center;
}
`, b.dir(), family)
}

// generateChapterXHTML creates one chapter content document. Pages are
// separated by a horizontal rule; a page with no text renders as a
// failure placeholder so readers can see the gap.
func (b *Builder) generateChapterXHTML(ch Chapter) string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
`)
	sb.WriteString(fmt.Sprintf(`<html xmlns="http://www.w3.org/1999/xhtml" xml:lang="%s" dir="%s">
`, escapeXML(b.book.Language), b.dir()))
	sb.WriteString(fmt.Sprintf(`<head>
  <title>%s</title>
  <link rel="stylesheet" type="text/css" href="../styles/style.css"/>
</head>
<body>
`, escapeXML(ch.Title)))
	sb.WriteString(fmt.Sprintf(`  <h1>%s</h1>
`, escapeXML(ch.Title)))

	for i, page := range ch.Pages {
		if i > 0 {
			sb.WriteString(`  <hr class="page-sep"/>
`)
		}
		if strings.TrimSpace(page.Text) == "" {
			sb.WriteString(fmt.Sprintf(`  <p class="failed-page">[Page %d: OCR failed]</p>
`, page.Number+1))
			continue
		}
		writePageText(&sb, page.Text)
	}

	sb.WriteString(`</body>
</html>`)

	return sb.String()
}

// writePageText splits page text into paragraphs on blank lines. Single
// newlines inside a paragraph become line breaks.
func writePageText(sb *strings.Builder, text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i, line := range lines {
			lines[i] = escapeXML(strings.TrimSpace(line))
		}
		sb.WriteString(`  <p dir="auto">`)
		sb.WriteString(strings.Join(lines, "<br/>"))
		sb.WriteString(`</p>
`)
	}
}
