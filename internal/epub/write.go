package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Write encodes b. Entries keep their original order and compressed bytes;
// only content documents whose markup changed are recompressed. The
// mimetype entry is written first and stored.
func Write(b *Book) ([]byte, error) {
	if b.archive == nil {
		return nil, fmt.Errorf("book has no source archive")
	}

	replaced := make(map[string][]byte)
	for _, it := range b.Items {
		if it.Content != nil && it.Path != "" {
			replaced[it.Path] = it.Content
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	ordered := make([]*zip.File, 0, len(b.archive.File))
	for _, f := range b.archive.File {
		if f.Name == mimetypeName {
			ordered = append([]*zip.File{f}, ordered...)
			continue
		}
		ordered = append(ordered, f)
	}

	for _, f := range ordered {
		content, ok := replaced[f.Name]
		if ok && f.Name != mimetypeName {
			orig, err := readEntry(f)
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(orig, content) {
				if err := writeEntry(zw, f, content); err != nil {
					return nil, err
				}
				continue
			}
		}
		if err := copyRaw(zw, f); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, f *zip.File, content []byte) error {
	hdr := &zip.FileHeader{
		Name:     f.Name,
		Comment:  f.Comment,
		Method:   zip.Deflate,
		Modified: f.Modified,
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to create entry %s: %w", f.Name, err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", f.Name, err)
	}
	return nil
}

func copyRaw(zw *zip.Writer, f *zip.File) error {
	hdr := f.FileHeader
	w, err := zw.CreateRaw(&hdr)
	if err != nil {
		return fmt.Errorf("failed to create entry %s: %w", f.Name, err)
	}
	r, err := f.OpenRaw()
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("failed to copy entry %s: %w", f.Name, err)
	}
	return nil
}

// OutputName is the file name of a translated book: "<jobID>.epub" when a
// job id is given, otherwise "<title>_<target>.epub".
func OutputName(title, target, jobID string) string {
	if jobID != "" {
		return sanitize(jobID) + ".epub"
	}
	if title = sanitize(title); title == "" {
		title = "book"
	}
	return title + "_" + sanitize(target) + ".epub"
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return strings.Trim(strings.TrimSpace(s), ".")
}
