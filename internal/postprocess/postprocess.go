// Package postprocess removes common LLM artifacts from translated markup
// fragments.
//
// It is applied to the raw text returned by every LLM-backed oracle before
// the fragment is stitched back into its document.
package postprocess

import (
	"regexp"
	"strings"
	"unicode"
)

// Clean removes LLM artifacts from text in three phases and returns the
// trimmed result:
//  1. Thinking / reasoning block removal
//  2. Markdown code fence unwrapping
//  3. Instruction echo removal (prompt leakage)
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeCodeFence(text)
	text = removeInstructionEchoes(text)
	return strings.TrimSpace(text)
}

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: code fences ---

// fenceRe matches a response wrapped entirely in a ``` fence, with an
// optional language tag such as ```html or ```xhtml.
var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*[ \t]*\r?\n(.*?)\r?\n?```$")

func removeCodeFence(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// --- Phase 3: instruction echoes ---

// echoPatterns match introductory phrases that LLMs sometimes prepend even
// when instructed not to. Each pattern is anchored to the start of the string
// and requires a colon to reduce false positives on legitimate content.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the] [translated] [HTML] [fragment|translation]:"
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:translated )?(?:html )?(?:fragment|translation|text)\s*:`),
	// "[The] [translated] [HTML] fragment:"
	regexp.MustCompile(`(?i)^(?:the )?(?:translated )?(?:html )?(?:fragment|translation|translated text)\s*:`),
	// "Certainly / Sure / Of course[,] here is [the] translation:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:translated )?(?:html )?(?:fragment|translation|text)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// RestoreEdges puts the leading and trailing whitespace of original back
// around translated when the oracle dropped it. Fragments are concatenated
// verbatim, so a lost edge would glue two words or tags together.
func RestoreEdges(original, translated string) string {
	if translated == "" {
		return translated
	}
	lead := original[:len(original)-len(strings.TrimLeftFunc(original, unicode.IsSpace))]
	trail := original[len(strings.TrimRightFunc(original, unicode.IsSpace)):]
	if lead == original {
		// all whitespace
		return translated
	}

	if lead != "" && !strings.HasPrefix(translated, lead) {
		translated = lead + strings.TrimLeftFunc(translated, unicode.IsSpace)
	}
	if trail != "" && !strings.HasSuffix(translated, trail) {
		translated = strings.TrimRightFunc(translated, unicode.IsSpace) + trail
	}
	return translated
}
