// Package epubtest builds small in-memory e-book archives for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// Chapter is one content document of a fixture book.
type Chapter struct {
	ID   string
	Href string
	Body string
}

// Fixture describes a book with an NCX, a nav document, one image and the
// given chapters, listed in that order in the manifest and spine.
type Fixture struct {
	Title      string
	Identifier string
	Chapters   []Chapter
}

// Document wraps body in a complete XHTML document.
func Document(title, body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>` + title + `</title></head><body>` + body + `</body></html>`
}

// DefaultFixture has two short chapters.
func DefaultFixture() Fixture {
	return Fixture{
		Title:      "A Study in Scarlet",
		Identifier: "urn:uuid:1b2c3d4e-0000-4000-8000-000000000001",
		Chapters: []Chapter{
			{ID: "ch1", Href: "text/ch1.xhtml", Body: Document("One", "<h1>Chapter One</h1><p>It was a dark night. The wind howled!</p>")},
			{ID: "ch2", Href: "text/ch2.xhtml", Body: Document("Two", "<h1>Chapter Two</h1><p>Morning came. Was it over?</p>")},
		},
	}
}

// ImageBytes is the content of the fixture's image entry.
var ImageBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3, 4}

// Build encodes f as an archive.
func Build(t testing.TB, f Fixture) []byte {
	t.Helper()

	var manifest, spine, nav strings.Builder
	for _, ch := range f.Chapters {
		fmt.Fprintf(&manifest, `<item id="%s" href="%s" media-type="application/xhtml+xml"/>`+"\n", ch.ID, ch.Href)
		fmt.Fprintf(&spine, `<itemref idref="%s"/>`+"\n", ch.ID)
		fmt.Fprintf(&nav, `<li><a href="%s">%s</a></li>`, ch.Href, ch.ID)
	}

	opf := `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
<metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
<dc:identifier id="isbn">978-0000000000</dc:identifier>
<dc:identifier id="bookid">` + f.Identifier + `</dc:identifier>
<dc:title>` + f.Title + `</dc:title>
<dc:language>en</dc:language>
</metadata>
<manifest>
<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
<item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
<item id="img" href="images/cover.png" media-type="image/png"/>
` + manifest.String() + `</manifest>
<spine toc="ncx">
` + spine.String() + `<itemref idref="nav" linear="no"/>
</spine>
</package>`

	files := []struct {
		name   string
		data   []byte
		method uint16
	}{
		{"mimetype", []byte("application/epub+zip"), zip.Store},
		{"META-INF/container.xml", []byte(`<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
<rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`), zip.Deflate},
		{"OEBPS/content.opf", []byte(opf), zip.Deflate},
		{"OEBPS/toc.ncx", []byte(`<?xml version="1.0"?><ncx xmlns="http://www.daisy.org/z3986/2005/ncx/"><navMap/></ncx>`), zip.Deflate},
		{"OEBPS/nav.xhtml", []byte(Document("Contents", `<nav epub:type="toc"><ol>`+nav.String()+`</ol></nav>`)), zip.Deflate},
		{"OEBPS/images/cover.png", ImageBytes, zip.Store},
	}
	for _, ch := range f.Chapters {
		files = append(files, struct {
			name   string
			data   []byte
			method uint16
		}{"OEBPS/" + ch.Href, []byte(ch.Body), zip.Deflate})
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, file := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: file.name, Method: file.method})
		if err != nil {
			t.Fatalf("epubtest: create %s: %v", file.name, err)
		}
		if _, err := w.Write(file.data); err != nil {
			t.Fatalf("epubtest: write %s: %v", file.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("epubtest: close: %v", err)
	}
	return buf.Bytes()
}

// Entries returns every entry of an archive keyed by name, in order.
func Entries(t testing.TB, data []byte) ([]string, map[string][]byte) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("epubtest: open: %v", err)
	}
	var names []string
	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("epubtest: open %s: %v", f.Name, err)
		}
		var b bytes.Buffer
		if _, err := b.ReadFrom(rc); err != nil {
			t.Fatalf("epubtest: read %s: %v", f.Name, err)
		}
		rc.Close()
		names = append(names, f.Name)
		out[f.Name] = b.Bytes()
	}
	return names, out
}
