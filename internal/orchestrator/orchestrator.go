// Package orchestrator drives one book through the pipeline: every content
// document is chunked, each chunk is translated with its neighbours'
// sentences as context, and the reassembled document must pass structural
// validation before the book is handed back.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valpere/epubtran/internal/chunker"
	"github.com/valpere/epubtran/internal/epub"
	"github.com/valpere/epubtran/internal/logging"
	"github.com/valpere/epubtran/internal/translator"
	"github.com/valpere/epubtran/internal/validator"
)

// ErrValidation marks a translated document that is not well-formed.
var ErrValidation = errors.New("translated document failed validation")

// ValidationError names the document that failed.
type ValidationError struct {
	ItemID string
	Path   string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid markup in %s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invoker translates one chunk. Commit receives a document's results once
// the document has passed validation. *translator.Invoker implements it.
type Invoker interface {
	Invoke(ctx context.Context, before, chunk, after string) translator.Result
	Commit(ctx context.Context, results []translator.Result)
}

// Checkpoint persists finished documents so a later run can skip them.
type Checkpoint interface {
	Load(ctx context.Context) (map[string][]byte, error)
	Save(ctx context.Context, itemID string, content []byte) error
}

// ProgressFunc receives the completed fraction of documents. It is never
// called with 1.0; completion is reported by whoever persists the book.
type ProgressFunc func(fraction float64)

type Config struct {
	MaxInputChars int
	TargetLang    string
	CheckLanguage bool
}

// Stats describe one run.
type Stats struct {
	Documents        int
	Resumed          int
	Chunks           int
	Translated       int
	Cached           int
	EmptyFallbacks   int
	ErrorFallbacks   int
	Requests         int
	RateLimitWaits   int
	RateLimitWaited  time.Duration
	Duration         time.Duration
	MarkupWarnings   []string
	LanguageWarnings []string
}

type Orchestrator struct {
	invoker    Invoker
	cfg        Config
	logger     *slog.Logger
	progress   ProgressFunc
	checkpoint Checkpoint
	language   *validator.LanguageCheck
	split      func(markup string, maxChars int) ([]string, error)
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

func WithCheckpoint(cp Checkpoint) Option {
	return func(o *Orchestrator) { o.checkpoint = cp }
}

func New(invoker Invoker, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker:  invoker,
		cfg:      cfg,
		logger:   logging.Discard(),
		progress: func(float64) {},
		split:    chunker.SplitChecked,
	}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.CheckLanguage {
		if _, ok := translator.ParseTarget(cfg.TargetLang); ok {
			o.language = validator.NewLanguageCheck()
		}
	}
	return o
}

// Translate returns a book whose content documents are translated. Nothing
// of book is modified. The returned error is a *ValidationError when a
// document is malformed, or the context's error.
func (o *Orchestrator) Translate(ctx context.Context, book *epub.Book) (*epub.Book, *Stats, error) {
	start := time.Now()
	docs := book.Documents()
	stats := &Stats{Documents: len(docs)}
	defer func() { stats.Duration = time.Since(start) }()

	saved := map[string][]byte{}
	if o.checkpoint != nil {
		var err error
		if saved, err = o.checkpoint.Load(ctx); err != nil {
			return nil, stats, fmt.Errorf("failed to load checkpoint: %w", err)
		}
	}

	translated := make([]*epub.Item, 0, len(docs))
	for i, doc := range docs {
		if content, ok := saved[doc.ID]; ok {
			o.logger.Info("document already translated, skipping",
				"document", doc.Path, "index", i+1, "total", len(docs))
			stats.Resumed++
			translated = append(translated, withContent(doc, content))
			o.report(i+1, len(docs))
			continue
		}

		o.logger.Info("translating document", "document", doc.Path, "index", i+1, "total", len(docs))

		content, results, err := o.translateDocument(ctx, doc, stats)
		if err != nil {
			return nil, stats, err
		}
		if err := validator.Structure(content); err != nil {
			o.logger.Error("translated document is invalid", "document", doc.Path, "error", err)
			return nil, stats, &ValidationError{ItemID: doc.ID, Path: doc.Path, Err: err}
		}
		if err := validator.Balance(doc.Content, content); err != nil {
			o.logger.Warn("translated document has unbalanced tags", "document", doc.Path, "error", err)
			stats.MarkupWarnings = append(stats.MarkupWarnings, fmt.Sprintf("%s: %v", doc.Path, err))
		}
		o.invoker.Commit(ctx, results)
		o.checkLanguage(doc, content, stats)

		if o.checkpoint != nil {
			if err := o.checkpoint.Save(ctx, doc.ID, content); err != nil {
				o.logger.Warn("failed to save checkpoint", "document", doc.Path, "error", err)
			}
		}

		translated = append(translated, withContent(doc, content))
		o.report(i+1, len(docs))
	}

	return book.Derive(translated), stats, nil
}

func (o *Orchestrator) translateDocument(ctx context.Context, doc *epub.Item, stats *Stats) ([]byte, []translator.Result, error) {
	chunks, err := o.split(string(doc.Content), o.cfg.MaxInputChars)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split %s: %w", doc.Path, err)
	}

	results := make([]translator.Result, 0, len(chunks))
	var sb strings.Builder
	sb.Grow(len(doc.Content))
	for j, chunk := range chunks {
		before, after := chunker.Context(chunks, j)

		res := o.invoker.Invoke(ctx, before, chunk, after)
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		results = append(results, res)

		stats.Chunks++
		stats.Requests += res.Requests
		switch res.Outcome {
		case translator.Translated:
			stats.Translated++
		case translator.Cached:
			stats.Cached++
		case translator.FallbackEmpty:
			stats.EmptyFallbacks++
		case translator.FallbackError:
			stats.ErrorFallbacks++
		}

		o.logger.Debug("chunk done",
			"document", doc.Path,
			"chunk", j+1,
			"chunks", len(chunks),
			"outcome", res.Outcome.String(),
			"context_before", before,
			"context_after", after)

		sb.WriteString(res.Text)
	}
	return []byte(sb.String()), results, nil
}

func (o *Orchestrator) checkLanguage(doc *epub.Item, content []byte, stats *Stats) {
	if o.language == nil {
		return
	}
	tag, _ := translator.ParseTarget(o.cfg.TargetLang)
	base, _ := tag.Base()
	if err := o.language.Check(content, base.String()); err != nil {
		o.logger.Warn("translated document may not be in the target language", "document", doc.Path, "error", err)
		stats.LanguageWarnings = append(stats.LanguageWarnings, fmt.Sprintf("%s: %v", doc.Path, err))
	}
}

// report pushes progress for every document but the last; the final 1.0
// belongs to the caller once the book is saved.
func (o *Orchestrator) report(done, total int) {
	if done < total {
		o.progress(float64(done) / float64(total))
	}
}

func withContent(doc *epub.Item, content []byte) *epub.Item {
	cp := *doc
	cp.Content = content
	return &cp
}
