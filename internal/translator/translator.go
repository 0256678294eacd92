// Package translator turns one markup chunk into its translation. It builds
// the prompt, passes the rate limiter, calls the oracle and applies the
// fail-open policy: whatever goes wrong, the caller gets usable markup back.
package translator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/valpere/epubtran/internal/logging"
	"github.com/valpere/epubtran/internal/oracle"
	"github.com/valpere/epubtran/internal/postprocess"
	"github.com/valpere/epubtran/internal/ratelimit"
)

// DefaultEmptyBackoff is the pause before retrying an empty response.
const DefaultEmptyBackoff = 15 * time.Second

var (
	// ErrEmptyResponse marks an oracle reply with no usable text.
	ErrEmptyResponse = errors.New("oracle returned an empty response")
)

// Limiter gates oracle calls. *ratelimit.Limiter implements it.
type Limiter interface {
	Admit(ctx context.Context, estimatedTokens int) error
}

// Memory is a translation cache keyed by fragment and target language.
type Memory interface {
	Lookup(ctx context.Context, fragment, targetLang string) (string, bool, error)
	Remember(ctx context.Context, fragment, targetLang, translated string) error
}

// Outcome says where a chunk's text came from.
type Outcome int

const (
	Translated Outcome = iota
	Cached
	FallbackEmpty
	FallbackError
)

func (o Outcome) String() string {
	switch o {
	case Translated:
		return "translated"
	case Cached:
		return "cached"
	case FallbackEmpty:
		return "fallback_empty"
	case FallbackError:
		return "fallback_error"
	default:
		return "unknown"
	}
}

// Result is the text for one chunk and how it was obtained. Source is the
// chunk that was asked for.
type Result struct {
	Source   string
	Text     string
	Outcome  Outcome
	Requests int
	Err      error
}

// Stats accumulates outcomes over the lifetime of an Invoker.
type Stats struct {
	Chunks         int
	Translated     int
	Cached         int
	EmptyFallbacks int
	ErrorFallbacks int
	Requests       int
}

// Invoker translates chunks for one job. It is used sequentially.
type Invoker struct {
	oracle  oracle.Oracle
	limiter Limiter
	logger  *slog.Logger

	target          string
	targetName      string
	maxOutputTokens int
	emptyBackoff    time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
	prompt          PromptFunc
	memory          Memory
	glossary        map[string]string

	stats Stats
}

// Option customises an Invoker.
type Option func(*Invoker)

// WithMaxOutputTokens sets the output reservation added to every estimate.
func WithMaxOutputTokens(n int) Option {
	return func(inv *Invoker) { inv.maxOutputTokens = n }
}

func WithEmptyBackoff(d time.Duration) Option {
	return func(inv *Invoker) { inv.emptyBackoff = d }
}

// WithSleeper replaces the backoff wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(inv *Invoker) { inv.sleep = sleep }
}

func WithPromptFunc(fn PromptFunc) Option {
	return func(inv *Invoker) { inv.prompt = fn }
}

func WithMemory(m Memory) Option {
	return func(inv *Invoker) { inv.memory = m }
}

// WithGlossary adds fixed term translations to every prompt.
func WithGlossary(terms map[string]string) Option {
	return func(inv *Invoker) { inv.glossary = terms }
}

func WithLogger(logger *slog.Logger) Option {
	return func(inv *Invoker) { inv.logger = logger }
}

// New creates an Invoker for target, which may be a language code or name.
// Backends that take bare fragments get RawFragment as their prompt.
func New(o oracle.Oracle, limiter Limiter, target string, opts ...Option) *Invoker {
	inv := &Invoker{
		oracle:       o,
		limiter:      limiter,
		logger:       logging.Discard(),
		target:       target,
		targetName:   LanguageName(target),
		emptyBackoff: DefaultEmptyBackoff,
		sleep:        ratelimit.Sleep,
		prompt:       BuildPrompt,
	}
	if oracle.RawFragments(o) {
		inv.prompt = RawFragment
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Stats returns the accumulated outcome counters.
func (inv *Invoker) Stats() Stats {
	return inv.stats
}

// Invoke translates one chunk and reports the outcome. An empty response is
// retried once after the backoff; the retry is a new oracle call and passes
// the limiter again. An error is not retried. Both fall back to the original
// chunk. When ctx ends the result is a FallbackError carrying ctx's error.
//
// Nothing is written to translation memory here; see Commit.
func (inv *Invoker) Invoke(ctx context.Context, before, chunk, after string) Result {
	inv.stats.Chunks++

	if text, ok := inv.lookup(ctx, chunk); ok {
		inv.stats.Cached++
		return Result{Source: chunk, Text: text, Outcome: Cached}
	}

	prompt := inv.prompt(Prompt{
		Target:   inv.targetName,
		Before:   before,
		Fragment: chunk,
		After:    after,
		Glossary: inv.glossary,
	})
	estimate := ratelimit.EstimateTokens(len([]rune(prompt)), inv.maxOutputTokens)

	var res Result
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			inv.logger.Warn("empty response from oracle, retrying",
				"oracle", inv.oracle.Name(),
				"backoff", inv.emptyBackoff,
				"chunk_chars", len(chunk))
			if err := inv.sleep(ctx, inv.emptyBackoff); err != nil {
				return inv.fallback(chunk, FallbackError, res.Requests, err)
			}
		}

		if err := inv.limiter.Admit(ctx, estimate); err != nil {
			return inv.fallback(chunk, FallbackError, res.Requests, err)
		}
		res.Requests++
		inv.stats.Requests++

		raw, err := inv.oracle.Generate(ctx, prompt)
		if err != nil {
			inv.logger.Error("oracle call failed, keeping original chunk",
				"oracle", inv.oracle.Name(),
				"error", err)
			inv.logger.Debug("untranslated chunk", "chunk", chunk)
			return inv.fallback(chunk, FallbackError, res.Requests, err)
		}

		text := postprocess.Clean(raw)
		if strings.TrimSpace(text) == "" {
			continue
		}

		text = postprocess.RestoreEdges(chunk, text)
		inv.stats.Translated++
		return Result{Source: chunk, Text: text, Outcome: Translated, Requests: res.Requests}
	}

	inv.logger.Warn("empty response from oracle after retry, keeping original chunk",
		"oracle", inv.oracle.Name(),
		"chunk_chars", len(chunk))
	inv.logger.Debug("untranslated chunk", "chunk", chunk)
	return inv.fallback(chunk, FallbackEmpty, res.Requests, ErrEmptyResponse)
}

func (inv *Invoker) fallback(chunk string, outcome Outcome, requests int, err error) Result {
	if outcome == FallbackEmpty {
		inv.stats.EmptyFallbacks++
	} else {
		inv.stats.ErrorFallbacks++
	}
	return Result{Source: chunk, Text: chunk, Outcome: outcome, Requests: requests, Err: err}
}

func (inv *Invoker) lookup(ctx context.Context, chunk string) (string, bool) {
	if inv.memory == nil {
		return "", false
	}
	text, ok, err := inv.memory.Lookup(ctx, chunk, inv.target)
	if err != nil {
		inv.logger.Warn("translation memory lookup failed", "error", err)
		return "", false
	}
	return text, ok
}

// Commit stores the oracle translations among results in translation
// memory. Callers commit a document's results once the reassembled document
// is known to be valid, so a fragment that broke its document is asked for
// again next time. Cached results and fallbacks are skipped.
func (inv *Invoker) Commit(ctx context.Context, results []Result) {
	if inv.memory == nil {
		return
	}
	for _, r := range results {
		if r.Outcome != Translated {
			continue
		}
		if err := inv.memory.Remember(ctx, r.Source, inv.target, r.Text); err != nil {
			inv.logger.Warn("failed to store translation", "error", err)
		}
	}
}
