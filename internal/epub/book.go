// Package epub reads an e-book container into its content documents and
// writes it back with only those documents replaced. Every other archive
// entry, including the package document, is carried over byte for byte.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Item is one manifest entry. Content is loaded for markup documents only.
type Item struct {
	ID         string
	Href       string
	Path       string
	MediaType  string
	Properties string
	Content    []byte
}

// IsDocument reports whether the item is a translatable content document.
// The navigation document is excluded: its labels are structural and it is
// carried over unchanged.
func (it *Item) IsDocument() bool {
	return isMarkup(it.MediaType) && !it.IsNav()
}

// IsNav reports whether the item is the navigation document.
func (it *Item) IsNav() bool {
	for _, p := range strings.Fields(it.Properties) {
		if p == "nav" {
			return true
		}
	}
	return false
}

func isMarkup(mediaType string) bool {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "application/xhtml+xml", "text/html":
		return true
	}
	return false
}

// ItemRef is one spine entry.
type ItemRef struct {
	IDRef  string
	Linear bool
}

// Spine is the reading order plus the id of the NCX table of contents.
type Spine struct {
	TOC      string
	ItemRefs []ItemRef
}

// Book is a decoded container. Title, Identifier, Spine and the TOC
// reference come from the package document and are never modified.
type Book struct {
	Title      string
	Identifier string
	Language   string
	Version    string
	Items      []*Item
	Spine      Spine

	packagePath string
	archive     *zip.Reader
}

// PackagePath is the archive path of the package document.
func (b *Book) PackagePath() string {
	return b.packagePath
}

// Documents returns the content documents in manifest order.
func (b *Book) Documents() []*Item {
	var docs []*Item
	for _, it := range b.Items {
		if it.IsDocument() {
			docs = append(docs, it)
		}
	}
	return docs
}

// Item returns the manifest entry with the given id.
func (b *Book) Item(id string) (*Item, bool) {
	for _, it := range b.Items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// Derive returns a book that shares b's archive and package metadata but
// holds items instead of b's. Items not mentioned keep b's version.
func (b *Book) Derive(items []*Item) *Book {
	byID := make(map[string]*Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	out := &Book{
		Title:       b.Title,
		Identifier:  b.Identifier,
		Language:    b.Language,
		Version:     b.Version,
		Spine:       Spine{TOC: b.Spine.TOC, ItemRefs: append([]ItemRef(nil), b.Spine.ItemRefs...)},
		packagePath: b.packagePath,
		archive:     b.archive,
	}
	for _, it := range b.Items {
		if repl, ok := byID[it.ID]; ok {
			out.Items = append(out.Items, repl)
			continue
		}
		out.Items = append(out.Items, it)
	}
	return out
}

type opfPackage struct {
	XMLName          xml.Name `xml:"package"`
	Version          string   `xml:"version,attr"`
	UniqueIdentifier string   `xml:"unique-identifier,attr"`
	Metadata         struct {
		Titles      []string `xml:"http://purl.org/dc/elements/1.1/ title"`
		Languages   []string `xml:"http://purl.org/dc/elements/1.1/ language"`
		Identifiers []struct {
			ID    string `xml:"id,attr"`
			Value string `xml:",chardata"`
		} `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		TOC      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// Read decodes a container. data must stay unmodified for the lifetime of
// the returned Book and every Book derived from it.
func Read(data []byte) (*Book, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %v: %w", err, ErrInvalidEPub)
	}

	opfPath, err := locatePackage(zr)
	if err != nil {
		return nil, err
	}
	opfFile := findFile(zr, opfPath)
	if opfFile == nil {
		return nil, fmt.Errorf("package document %s: %w", opfPath, ErrFileNotFound)
	}
	opfData, err := readEntry(opfFile)
	if err != nil {
		return nil, err
	}

	var pkg opfPackage
	dec := xml.NewDecoder(bytes.NewReader(stripBOM(opfData)))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	if err := dec.Decode(&pkg); err != nil {
		return nil, fmt.Errorf("failed to parse package document: %v: %w", err, ErrInvalidEPub)
	}

	b := &Book{
		Version:     pkg.Version,
		packagePath: opfFile.Name,
		archive:     zr,
	}
	if len(pkg.Metadata.Titles) > 0 {
		b.Title = strings.TrimSpace(pkg.Metadata.Titles[0])
	}
	if len(pkg.Metadata.Languages) > 0 {
		b.Language = strings.TrimSpace(pkg.Metadata.Languages[0])
	}
	for i, id := range pkg.Metadata.Identifiers {
		if i == 0 || (pkg.UniqueIdentifier != "" && id.ID == pkg.UniqueIdentifier) {
			b.Identifier = strings.TrimSpace(id.Value)
		}
	}

	for _, mi := range pkg.Manifest.Items {
		it := &Item{
			ID:         mi.ID,
			Href:       mi.Href,
			Path:       resolve(opfFile.Name, mi.Href),
			MediaType:  mi.MediaType,
			Properties: mi.Properties,
		}
		if isMarkup(it.MediaType) {
			f := findFile(zr, it.Path)
			if it.Path == "" || f == nil {
				return nil, fmt.Errorf("manifest item %s (%s): %w", it.ID, it.Href, ErrFileNotFound)
			}
			it.Path = f.Name
			if it.Content, err = readEntry(f); err != nil {
				return nil, err
			}
		}
		b.Items = append(b.Items, it)
	}

	b.Spine.TOC = pkg.Spine.TOC
	for _, ref := range pkg.Spine.ItemRefs {
		b.Spine.ItemRefs = append(b.Spine.ItemRefs, ItemRef{
			IDRef:  ref.IDRef,
			Linear: !strings.EqualFold(strings.TrimSpace(ref.Linear), "no"),
		})
	}

	return b, nil
}
