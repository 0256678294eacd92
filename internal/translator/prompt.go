package translator

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Prompt is everything a prompt function may use for one chunk.
type Prompt struct {
	Target   string
	Before   string
	Fragment string
	After    string
	Glossary map[string]string
}

// PromptFunc renders the text sent to the oracle.
type PromptFunc func(p Prompt) string

// BuildPrompt renders the instruction prompt for generative oracles.
func BuildPrompt(p Prompt) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Translate the following HTML fragment into %s.\n\n", p.Target)

	sb.WriteString("Do NOT modify the HTML structure in any way:\n")
	sb.WriteString("- Do NOT add, remove, or change any HTML tags or attributes.\n")
	sb.WriteString("- Keep all HTML entities (e.g., &nbsp;, &amp;, &lt;) exactly as they are.\n")
	sb.WriteString("- Do NOT wrap your answer in code blocks (no triple backticks).\n\n")

	sb.WriteString("Translate ONLY the human-visible text content between HTML tags.\n")
	sb.WriteString("- Leave all HTML tags and attributes untouched.\n")
	sb.WriteString("- If there is no translatable text in the fragment, return it unchanged.\n\n")

	sb.WriteString("Maintain context and consistency:\n")
	sb.WriteString("- Use the previous and next context to guide your translation and ensure coherence.\n")
	fmt.Fprintf(&sb, "- Do NOT translate names of people, places, or fictional entities unless a well-known %s equivalent exists.\n", p.Target)

	if len(p.Glossary) > 0 {
		terms := make([]string, 0, len(p.Glossary))
		for src := range p.Glossary {
			terms = append(terms, src)
		}
		sort.Strings(terms)

		sb.WriteString("\nTERMINOLOGY (use these exact translations):\n")
		for _, src := range terms {
			fmt.Fprintf(&sb, "  %s → %s\n", src, p.Glossary[src])
		}
	}

	fmt.Fprintf(&sb, "\nContext before:\n%s\n\n", p.Before)
	fmt.Fprintf(&sb, "HTML fragment to translate (only translate the visible text):\n%s\n\n", p.Fragment)
	fmt.Fprintf(&sb, "Context after:\n%s\n\n", p.After)

	sb.WriteString("Final output: ONLY the translated HTML fragment with the original structure preserved. ")
	sb.WriteString("DO NOT include any explanation, markdown formatting, or comments.")

	return sb.String()
}

// RawFragment sends the bare fragment, for machine translation backends
// that take markup directly.
func RawFragment(p Prompt) string {
	return p.Fragment
}

// ParseTarget reports whether target is a known language code.
func ParseTarget(target string) (language.Tag, bool) {
	tag, err := language.Parse(strings.TrimSpace(target))
	if err != nil || tag == language.Und {
		return language.Und, false
	}
	return tag, true
}

// LanguageName expands a language code to its English name ("pl" becomes
// "Polish"). Anything that is not a code, e.g. "polish", is returned as is.
func LanguageName(target string) string {
	tag, ok := ParseTarget(target)
	if !ok {
		return target
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return target
}
