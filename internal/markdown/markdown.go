// Package markdown renders job reports. Reports are written as markdown so
// they read well in a terminal and are converted to HTML for the web host.
package markdown

import (
	"bytes"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"golang.org/x/net/html"
)

const reportTitle = "Translation report"

func render(md []byte, flags mdhtml.Flags) []byte {
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: flags, Title: reportTitle})
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	return markdown.Render(p.Parse(md), renderer)
}

// ToHTML renders md as a complete page.
func ToHTML(md []byte) string {
	return string(render(md, mdhtml.CommonFlags|mdhtml.HrefTargetBlank|mdhtml.CompletePage))
}

// blockEnds are the elements after which plain text starts a new line.
var blockEnds = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"li": true, "tr": true, "pre": true, "br": true, "hr": true,
}

// ToPlainText renders md and keeps only the visible text. Table cells are
// separated by tabs and rows end with a newline.
func ToPlainText(md []byte) string {
	z := html.NewTokenizer(bytes.NewReader(render(md, mdhtml.CommonFlags)))
	var sb strings.Builder
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(collapseBlankLines(sb.String()))
		case html.TextToken:
			text := z.Text()
			// layout newlines between block tags
			if len(bytes.TrimSpace(text)) == 0 && bytes.ContainsRune(text, '\n') {
				continue
			}
			sb.Write(text)
		case html.EndTagToken, html.SelfClosingTagToken, html.StartTagToken:
			name, _ := z.TagName()
			switch {
			case tt == html.EndTagToken && (string(name) == "td" || string(name) == "th"):
				sb.WriteByte('\t')
			case tt != html.StartTagToken && blockEnds[string(name)]:
				sb.WriteByte('\n')
			case tt == html.StartTagToken && (string(name) == "br" || string(name) == "hr"):
				sb.WriteByte('\n')
			}
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
