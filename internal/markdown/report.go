package markdown

import (
	"fmt"
	"strings"
	"time"

	"github.com/valpere/epubtran/internal/epub"
	"github.com/valpere/epubtran/internal/orchestrator"
	"github.com/valpere/epubtran/internal/translator"
)

// Report collects what is known about one finished or failed job.
type Report struct {
	JobID      string
	InputName  string
	OutputName string
	TargetLang string
	Provider   string
	Status     string
	Error      string
	Outline    *epub.Outline
	Stats      *orchestrator.Stats
}

// Markdown renders r. Sections without data are left out.
func (r Report) Markdown() string {
	var sb strings.Builder

	title := r.InputName
	if r.Outline != nil && r.Outline.Title != "" {
		title = r.Outline.Title
	}
	fmt.Fprintf(&sb, "# Translation report: %s\n\n", escape(title))

	sb.WriteString("| Field | Value |\n|---|---|\n")
	row(&sb, "Job", r.JobID)
	row(&sb, "Source file", r.InputName)
	if r.Outline != nil {
		row(&sb, "Authors", strings.Join(r.Outline.Authors, ", "))
		row(&sb, "Source language", r.Outline.Language)
	}
	row(&sb, "Target language", targetLabel(r.TargetLang))
	row(&sb, "Oracle", r.Provider)
	row(&sb, "Status", r.Status)
	row(&sb, "Output", r.OutputName)
	if r.Stats != nil {
		row(&sb, "Duration", r.Stats.Duration.Round(time.Second).String())
		if r.Stats.RateLimitWaited > 0 {
			row(&sb, "Waiting for rate limit", r.Stats.RateLimitWaited.Round(time.Second).String())
		}
	}
	sb.WriteString("\n")

	if r.Error != "" {
		fmt.Fprintf(&sb, "## Error\n\n```\n%s\n```\n\n", r.Error)
	}

	if s := r.Stats; s != nil {
		sb.WriteString("## Statistics\n\n| Metric | Count |\n|---|---|\n")
		rowInt(&sb, "Documents", s.Documents)
		rowInt(&sb, "Resumed documents", s.Resumed)
		rowInt(&sb, "Chunks", s.Chunks)
		rowInt(&sb, "Translated by oracle", s.Translated)
		rowInt(&sb, "From translation memory", s.Cached)
		rowInt(&sb, "Kept original (empty response)", s.EmptyFallbacks)
		rowInt(&sb, "Kept original (oracle error)", s.ErrorFallbacks)
		rowInt(&sb, "Oracle requests", s.Requests)
		rowInt(&sb, "Rate limit waits", s.RateLimitWaits)
		sb.WriteString("\n")

		if len(s.MarkupWarnings) > 0 {
			sb.WriteString("## Markup warnings\n\n")
			for _, w := range s.MarkupWarnings {
				fmt.Fprintf(&sb, "- %s\n", w)
			}
			sb.WriteString("\n")
		}

		if len(s.LanguageWarnings) > 0 {
			sb.WriteString("## Language warnings\n\n")
			for _, w := range s.LanguageWarnings {
				fmt.Fprintf(&sb, "- %s\n", w)
			}
			sb.WriteString("\n")
		}
	}

	if r.Outline != nil && len(r.Outline.TOC) > 0 {
		sb.WriteString("## Contents\n\n")
		for _, e := range r.Outline.TOC {
			fmt.Fprintf(&sb, "%s- %s\n", strings.Repeat("  ", e.Depth), e.Title)
		}
	}

	return sb.String()
}

func targetLabel(target string) string {
	name := translator.LanguageName(target)
	if name == target {
		return target
	}
	return fmt.Sprintf("%s (%s)", name, target)
}

func row(sb *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "| %s | %s |\n", key, escape(value))
}

func rowInt(sb *strings.Builder, key string, n int) {
	fmt.Fprintf(sb, "| %s | %d |\n", key, n)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
