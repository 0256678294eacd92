package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tagRe matches a single complete tag.
var tagRe = regexp.MustCompile(`<[^>]+>`)

// StripTags removes every complete tag from markup. Entities are left as-is.
func StripTags(markup string) string {
	return tagRe.ReplaceAllString(markup, "")
}

// Sentences strips tags from markup, trims surrounding whitespace and splits
// the remaining text after each '.', '!' or '?' that is followed by
// whitespace. The whitespace itself is dropped. Abbreviations, decimals and
// quoted punctuation get no special handling.
func Sentences(markup string) []string {
	text := strings.TrimSpace(StripTags(markup))
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i
		j := i
		for j < len(text) {
			ws, wsize := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(ws) {
				break
			}
			j += wsize
		}
		if j == end {
			continue
		}
		sentences = append(sentences, text[start:end])
		start = j
		i = j
	}
	sentences = append(sentences, text[start:])

	return sentences
}

// FirstSentence returns the first sentence of the visible text in markup,
// or "" when there is no visible text.
func FirstSentence(markup string) string {
	s := Sentences(markup)
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// LastSentence returns the last sentence of the visible text in markup,
// or "" when there is no visible text.
func LastSentence(markup string) string {
	s := Sentences(markup)
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

// Context returns the coherence hints for chunks[j]: the last sentence of
// the previous chunk and the first sentence of the next one.
func Context(chunks []string, j int) (before, after string) {
	if j > 0 {
		before = LastSentence(chunks[j-1])
	}
	if j+1 < len(chunks) {
		after = FirstSentence(chunks[j+1])
	}
	return before, after
}
