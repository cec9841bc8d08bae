package epub

import (
	"fmt"
	"strings"
)

// generateNavigation creates the EPUB 3 navigation document.
func (b *Builder) generateNavigation() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
`)
	sb.WriteString(fmt.Sprintf(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops" xml:lang="%s" dir="%s">
`, escapeXML(b.book.Language), b.dir()))
	sb.WriteString(`<head>
  <title>Table of Contents</title>
  <link rel="stylesheet" type="text/css" href="styles/style.css"/>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>Table of Contents</h1>
    <ol>
`)
	for _, ch := range b.chapters {
		sb.WriteString(fmt.Sprintf(`      <li><a href="chapters/%s.xhtml">%s</a></li>
`, ch.ID, escapeXML(ch.Title)))
	}
	sb.WriteString(`    </ol>
  </nav>
</body>
</html>`)

	return sb.String()
}

// generateNCX creates the legacy NCX table of contents for readers that
// predate EPUB 3 navigation documents.
func (b *Builder) generateNCX() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
`)
	sb.WriteString(`<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
`)
	sb.WriteString(`  <head>
`)
	sb.WriteString(fmt.Sprintf(`    <meta name="dtb:uid" content="urn:uuid:%s"/>
`, escapeXML(b.book.ID)))
	sb.WriteString(`    <meta name="dtb:depth" content="1"/>
    <meta name="dtb:totalPageCount" content="0"/>
    <meta name="dtb:maxPageNumber" content="0"/>
  </head>
`)
	sb.WriteString(fmt.Sprintf(`  <docTitle><text>%s</text></docTitle>
`, escapeXML(b.book.Title)))
	sb.WriteString(`  <navMap>
`)
	for i, ch := range b.chapters {
		sb.WriteString(fmt.Sprintf(`    <navPoint id="nav-%d" playOrder="%d">
      <navLabel><text>%s</text></navLabel>
      <content src="chapters/%s.xhtml"/>
    </navPoint>
`, i+1, i+1, escapeXML(ch.Title), ch.ID))
	}
	sb.WriteString(`  </navMap>
</ncx>`)

	return sb.String()
}
