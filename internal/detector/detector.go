// Package detector identifies the natural language of text or markup.
package detector

import (
	"bytes"
	"strings"
	"sync"

	lingua "github.com/pemistahl/lingua-go"
	"golang.org/x/net/html"
)

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector over all languages. Building is slow and the result
// is large; prefer Shared.
func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

var (
	sharedOnce sync.Once
	shared     *Detector
)

// Shared returns a process-wide detector built on first use.
func Shared() *Detector {
	sharedOnce.Do(func() { shared = New() })
	return shared
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// DetectMarkup detects the language of the visible text of a markup
// document.
func (d *Detector) DetectMarkup(markup []byte) (string, bool) {
	return d.DetectISO(Text(markup))
}

// Text returns the visible text of markup with runs of whitespace collapsed.
// Script and style contents are skipped.
func Text(markup []byte) string {
	z := html.NewTokenizer(bytes.NewReader(markup))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a tokenizer error; either way the text so far is all
			// there is.
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if isHidden(string(name)) {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isHidden(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func isHidden(tag string) bool {
	switch tag {
	case "script", "style", "head":
		return true
	}
	return false
}
