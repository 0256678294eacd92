// Package chunker splits a markup document into bounded fragments that never
// cut through a tag or a word, and extracts short sentence snippets from
// neighbouring fragments so an LLM translator can keep continuity across
// fragment boundaries.
package chunker

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrChunking reports a split whose fragments no longer reproduce the input.
// It should never surface for any input; SplitChecked guards against it.
var ErrChunking = errors.New("chunker: fragments do not reproduce input")

// unitRe matches the delimiting units of a document: whitespace runs and
// complete tags. Everything between two matches is a text run.
var unitRe = regexp.MustCompile(`\s+|<[^>]+>`)

// Units tokenizes markup into indivisible units: a tag, a contiguous
// whitespace run, or a contiguous run of other text. Joining the units
// reproduces markup exactly.
func Units(markup string) []string {
	if markup == "" {
		return nil
	}

	var units []string
	last := 0
	for _, loc := range unitRe.FindAllStringIndex(markup, -1) {
		if loc[0] > last {
			units = append(units, markup[last:loc[0]])
		}
		units = append(units, markup[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(markup) {
		units = append(units, markup[last:])
	}
	return units
}

// Split greedily packs the units of markup into fragments of at most maxChars
// characters. A unit that alone exceeds maxChars becomes its own oversized
// fragment. A unit that fits exactly is kept in the current fragment.
// If maxChars ≤ 0 the whole markup is returned as a single fragment.
// An empty markup yields no fragments.
func Split(markup string, maxChars int) []string {
	if markup == "" {
		return nil
	}
	if maxChars <= 0 {
		return []string{markup}
	}

	var (
		chunks  []string
		current strings.Builder
		curLen  int
	)

	for _, unit := range Units(markup) {
		n := utf8.RuneCountInString(unit)
		if curLen+n > maxChars && curLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			curLen = 0
		}
		current.WriteString(unit)
		curLen += n
	}
	if curLen > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// SplitChecked is Split plus a verification that the fragments join back to
// markup.
func SplitChecked(markup string, maxChars int) ([]string, error) {
	chunks := Split(markup, maxChars)
	if strings.Join(chunks, "") != markup {
		return nil, ErrChunking
	}
	return chunks, nil
}

// Len returns the length of a fragment in characters.
func Len(fragment string) int {
	return utf8.RuneCountInString(fragment)
}
