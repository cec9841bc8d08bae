package epub

import (
	"fmt"
	"strings"
)

// generatePackage creates the OPF package document.
func (b *Builder) generatePackage() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
`)
	sb.WriteString(`<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="book-id">
`)

	// Metadata
	modified := b.book.Modified.UTC()
	sb.WriteString(`  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	sb.WriteString(fmt.Sprintf(`    <dc:identifier id="book-id">urn:uuid:%s</dc:identifier>
`, escapeXML(b.book.ID)))
	sb.WriteString(fmt.Sprintf(`    <dc:title>%s</dc:title>
`, escapeXML(b.book.Title)))
	sb.WriteString(fmt.Sprintf(`    <dc:creator>%s</dc:creator>
`, escapeXML(b.book.Author)))
	sb.WriteString(fmt.Sprintf(`    <dc:language>%s</dc:language>
`, escapeXML(b.book.Language)))
	sb.WriteString(fmt.Sprintf(`    <meta property="dcterms:modified">%s</meta>
`, modified.Format("2006-01-02T15:04:05Z")))
	sb.WriteString(`  </metadata>
`)

	// Manifest
	sb.WriteString(`  <manifest>
`)
	sb.WriteString(`    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
`)
	sb.WriteString(`    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
`)
	sb.WriteString(`    <item id="css" href="styles/style.css" media-type="text/css"/>
`)
	for _, ch := range b.chapters {
		sb.WriteString(fmt.Sprintf(`    <item id="%s" href="chapters/%s.xhtml" media-type="application/xhtml+xml"/>
`, ch.ID, ch.ID))
	}
	sb.WriteString(`  </manifest>
`)

	// Spine
	ppd := ""
	if b.rtl() {
		ppd = ` page-progression-direction="rtl"`
	}
	sb.WriteString(fmt.Sprintf(`  <spine toc="ncx"%s>
`, ppd))
	for _, ch := range b.chapters {
		sb.WriteString(fmt.Sprintf(`    <itemref idref="%s"/>
`, ch.ID))
	}
	sb.WriteString(`  </spine>
`)
	sb.WriteString(`</package>`)

	return sb.String()
}

// escapeXML escapes special characters for XML content.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
