package epub

import (
	"bytes"
	"fmt"

	ebook "github.com/simp-lee/epub"
)

// Outline is the reader-facing summary of a book: its descriptive metadata
// and table of contents. It is used for reports and dry runs and plays no
// part in translation.
type Outline struct {
	Title     string
	Authors   []string
	Language  string
	Publisher string
	Chapters  int
	TOC       []TOCEntry
	Warnings  []string
}

// TOCEntry is one flattened table of contents line. Depth starts at 0.
type TOCEntry struct {
	Title string
	Href  string
	Depth int
}

// ReadOutline parses the navigation and metadata of an archive.
func ReadOutline(data []byte) (*Outline, error) {
	b, err := ebook.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read book outline: %w", err)
	}
	defer b.Close()

	md := b.Metadata()
	o := &Outline{
		Publisher: md.Publisher,
		Warnings:  b.Warnings(),
	}
	if len(md.Titles) > 0 {
		o.Title = md.Titles[0]
	}
	if len(md.Language) > 0 {
		o.Language = md.Language[0]
	}
	for _, a := range md.Authors {
		o.Authors = append(o.Authors, a.Name)
	}
	for _, ch := range b.Chapters() {
		if ch.Linear {
			o.Chapters++
		}
	}
	o.TOC = flattenTOC(b.TOC(), 0, nil)
	return o, nil
}

func flattenTOC(items []ebook.TOCItem, depth int, out []TOCEntry) []TOCEntry {
	for _, it := range items {
		out = append(out, TOCEntry{Title: it.Title, Href: it.Href, Depth: depth})
		out = flattenTOC(it.Children, depth+1, out)
	}
	return out
}
