package markdown

import (
	"strings"
	"testing"
	"time"

	"github.com/valpere/epubtran/internal/epub"
	"github.com/valpere/epubtran/internal/orchestrator"
)

func TestReport_Markdown(t *testing.T) {
	r := Report{
		JobID:      "job-1",
		InputName:  "scarlet.epub",
		OutputName: "A Study in Scarlet_pl.epub",
		TargetLang: "pl",
		Provider:   "gemini",
		Status:     "succeeded",
		Outline: &epub.Outline{
			Title:    "A Study in Scarlet",
			Authors:  []string{"Arthur Conan Doyle"},
			Language: "en",
			TOC: []epub.TOCEntry{
				{Title: "Part I", Depth: 0},
				{Title: "Mr. Sherlock Holmes", Depth: 1},
			},
		},
		Stats: &orchestrator.Stats{
			Documents:        2,
			Chunks:           5,
			Translated:       4,
			EmptyFallbacks:   1,
			Requests:         6,
			RateLimitWaits:   2,
			RateLimitWaited:  75 * time.Second,
			Duration:         90 * time.Second,
			MarkupWarnings:   []string{"text/ch1.xhtml: unbalanced markup"},
			LanguageWarnings: []string{"text/ch2.xhtml: wrong language"},
		},
	}

	md := r.Markdown()
	for _, want := range []string{
		"# Translation report: A Study in Scarlet",
		"| Target language | Polish (pl) |",
		"| Authors | Arthur Conan Doyle |",
		"| Duration | 1m30s |",
		"| Kept original (empty response) | 1 |",
		"| Oracle requests | 6 |",
		"| Rate limit waits | 2 |",
		"| Waiting for rate limit | 1m15s |",
		"## Markup warnings\n\n- text/ch1.xhtml: unbalanced markup",
		"- text/ch2.xhtml: wrong language",
		"- Part I\n  - Mr. Sherlock Holmes\n",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "## Error") {
		t.Error("no error section expected")
	}
}

func TestReport_Failed(t *testing.T) {
	md := Report{JobID: "j", InputName: "a|b.epub", TargetLang: "polish", Status: "failed", Error: "invalid markup"}.Markdown()

	if !strings.Contains(md, "# Translation report: a\\|b.epub") {
		t.Errorf("expected the escaped input name as title:\n%s", md)
	}
	if !strings.Contains(md, "| Target language | polish |") {
		t.Errorf("language names are shown as given:\n%s", md)
	}
	if !strings.Contains(md, "## Error\n\n```\ninvalid markup\n```") {
		t.Errorf("missing error section:\n%s", md)
	}
	if strings.Contains(md, "## Statistics") {
		t.Error("no statistics expected without stats")
	}
}

func TestToHTML(t *testing.T) {
	out := ToHTML([]byte("# Title\n\n| A | B |\n|---|---|\n| 1 | 2 |\n"))
	if !strings.Contains(out, "<h1") || !strings.Contains(out, "<table>") {
		t.Errorf("expected heading and table, got %s", out)
	}
}

func TestToPlainText(t *testing.T) {
	out := ToPlainText([]byte("Some **bold** text"))
	if !strings.Contains(out, "Some bold text") {
		t.Errorf("unexpected plain text %q", out)
	}
}

func TestToPlainText_Table(t *testing.T) {
	md := "# Title\n\n| Field | Value |\n|---|---|\n| Chunks | 3 |\n| Input | a & b |\n"
	out := ToPlainText([]byte(md))

	if strings.Contains(out, "<") || strings.Contains(out, "&amp;") {
		t.Errorf("markup left in %q", out)
	}
	if strings.Contains(out, reportTitle) {
		t.Errorf("page title should not be part of the text: %q", out)
	}
	for _, want := range []string{"Title\n", "Chunks\t3", "a & b"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}
