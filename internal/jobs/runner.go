package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/config"
	"github.com/valpere/epubtran/internal/epub"
	"github.com/valpere/epubtran/internal/logging"
	"github.com/valpere/epubtran/internal/markdown"
	"github.com/valpere/epubtran/internal/oracle"
	"github.com/valpere/epubtran/internal/orchestrator"
	"github.com/valpere/epubtran/internal/ratelimit"
	"github.com/valpere/epubtran/internal/store"
	"github.com/valpere/epubtran/internal/translator"
)

// OracleFactory builds the backend for one job.
type OracleFactory func(ctx context.Context, s oracle.Settings) (oracle.Oracle, error)

// Request carries what a run needs besides the job record.
type Request struct {
	Input  []byte
	Limits config.LimitsConfig
	// APIKey replaces the configured oracle key when set.
	APIKey string
	// Name, when set, names the output file instead of title and target.
	// Without it the job record's OutputName is used.
	Name string
}

// Runner executes jobs one at a time per call; separate calls may run
// concurrently since every run builds its own limiter and invoker.
type Runner struct {
	cfg       *config.Config
	store     *store.Store
	newOracle OracleFactory
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	observe   func(jobID string, fraction float64)
}

type RunnerOption func(*Runner)

func WithOracleFactory(f OracleFactory) RunnerOption {
	return func(r *Runner) { r.newOracle = f }
}

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithSleeper replaces every wait of a run: rate limiting and the
// empty-response backoff.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) { r.sleep = sleep }
}

// WithProgressFunc is told about every progress change, including the
// final 1.0.
func WithProgressFunc(fn func(jobID string, fraction float64)) RunnerOption {
	return func(r *Runner) { r.observe = fn }
}

func NewRunner(cfg *config.Config, st *store.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:       cfg,
		store:     st,
		newOracle: oracle.New,
		logger:    logging.Discard(),
		sleep:     ratelimit.Sleep,
		observe:   func(string, float64) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create persists a new pending job. A missing id is generated.
func (r *Runner) Create(ctx context.Context, rec internal.JobRecord) (*Job, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Provider == "" {
		rec.Provider = r.cfg.Oracle.Provider
	}
	rec.Status = internal.JobPending
	rec.Progress = 0
	if err := r.store.CreateJob(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return NewJob(rec), nil
}

// Load returns a persisted job, ready to be run again.
func (r *Runner) Load(ctx context.Context, id string) (*Job, error) {
	rec, err := r.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return NewJob(*rec), nil
}

// Run translates the book in req.Input for job j and writes the result to
// the output directory. The job record is persisted at every status change.
// Progress reaches 1.0 only after the output file is written.
func (r *Runner) Run(ctx context.Context, j *Job, req Request) error {
	if err := j.Transition(internal.JobRunning); err != nil {
		return err
	}
	r.persist(ctx, j)

	rec := j.Snapshot()
	logger := r.logger.With("job", rec.ID)
	logger.Info("job started", "input", rec.InputName, "target", rec.TargetLang, "provider", rec.Provider)

	outline, err := epub.ReadOutline(req.Input)
	if err != nil {
		logger.Warn("failed to read book outline", "error", err)
	}

	res, err := r.run(ctx, j, req, logger)
	report := markdown.Report{
		JobID:      rec.ID,
		InputName:  rec.InputName,
		TargetLang: rec.TargetLang,
		Provider:   rec.Provider,
		Outline:    outline,
		Stats:      res.stats,
	}

	// the record must be saved even when ctx was cancelled
	ctx = context.WithoutCancel(ctx)

	if err != nil {
		report.Status = string(internal.JobFailed)
		report.Error = err.Error()
		j.update(func(rec *internal.JobRecord) {
			rec.Error = err.Error()
			rec.Report = report.Markdown()
		})
		if terr := j.Transition(internal.JobFailed); terr != nil {
			logger.Error("failed to mark job failed", "error", terr)
		}
		r.persist(ctx, j)
		logger.Error("job failed", "error", err)
		return err
	}

	report.Status = string(internal.JobSucceeded)
	report.OutputName = filepath.Base(res.outputPath)
	j.update(func(rec *internal.JobRecord) {
		rec.OutputPath = res.outputPath
		rec.Report = report.Markdown()
	})
	j.SetProgress(1)
	if err := j.Transition(internal.JobSucceeded); err != nil {
		return err
	}
	r.persist(ctx, j)
	r.observe(rec.ID, 1)

	if err := r.store.DeleteJobDocuments(ctx, rec.ID); err != nil {
		logger.Warn("failed to drop job checkpoints", "error", err)
	}

	s := res.stats
	logger.Info("job finished",
		"output", res.outputPath,
		"documents", s.Documents,
		"chunks", s.Chunks,
		"translated", s.Translated,
		"cached", s.Cached,
		"empty_fallbacks", s.EmptyFallbacks,
		"error_fallbacks", s.ErrorFallbacks,
		"requests", s.Requests,
		"rate_limit_waits", s.RateLimitWaits,
		"duration", s.Duration.Round(time.Millisecond))
	return nil
}

type runResult struct {
	outputPath string
	stats      *orchestrator.Stats
}

func (r *Runner) run(ctx context.Context, j *Job, req Request, logger *slog.Logger) (runResult, error) {
	var res runResult
	rec := j.Snapshot()

	if errs := req.Limits.Validate(); len(errs) > 0 {
		return res, fmt.Errorf("invalid job limits: %w", errors.Join(errs...))
	}

	book, err := epub.Read(req.Input)
	if err != nil {
		return res, fmt.Errorf("failed to read book: %w", err)
	}

	settings := oracle.Settings{
		OracleConfig:    r.cfg.Oracle,
		MaxOutputTokens: req.Limits.MaxOutputTokens,
		TargetLang:      rec.TargetLang,
	}
	settings.Provider = rec.Provider
	if req.APIKey != "" {
		settings.APIKey = req.APIKey
	}
	o, err := r.newOracle(ctx, settings)
	if err != nil {
		return res, fmt.Errorf("failed to create oracle: %w", err)
	}
	defer func() {
		if err := oracle.Close(o); err != nil {
			logger.Warn("failed to close oracle", "error", err)
		}
	}()

	limiter := ratelimit.New(ratelimit.Limits{
		RequestsPerMinute: req.Limits.RequestsPerMinute,
		TokensPerMinute:   req.Limits.TokensPerMinute,
	}, ratelimit.WithLogger(logger), ratelimit.WithSleeper(r.sleep))

	invOpts := []translator.Option{
		translator.WithMaxOutputTokens(req.Limits.MaxOutputTokens),
		translator.WithEmptyBackoff(r.cfg.Retry.EmptyBackoff),
		translator.WithSleeper(r.sleep),
		translator.WithLogger(logger),
	}
	if r.cfg.Cache.Enabled {
		invOpts = append(invOpts, translator.WithMemory(r.store.Memory(o.Name())))
	}
	terms, err := r.store.GetGlossaryTerms(ctx, book.Language, rec.TargetLang)
	if err != nil {
		logger.Warn("failed to load glossary", "error", err)
	} else if len(terms) > 0 {
		invOpts = append(invOpts, translator.WithGlossary(terms))
	}
	invoker := translator.New(o, limiter, rec.TargetLang, invOpts...)

	orch := orchestrator.New(invoker, orchestrator.Config{
		MaxInputChars: req.Limits.MaxInputChars(),
		TargetLang:    rec.TargetLang,
		CheckLanguage: r.cfg.CheckLanguage,
	},
		orchestrator.WithLogger(logger),
		orchestrator.WithCheckpoint(r.store.Checkpoint(rec.ID)),
		orchestrator.WithProgress(func(p float64) { r.progress(ctx, j, p) }),
	)

	translated, stats, err := orch.Translate(ctx, book)
	res.stats = stats
	if stats != nil {
		usage := limiter.Usage()
		stats.RateLimitWaits = usage.Waits
		stats.RateLimitWaited = usage.Waited
		logger.Debug("rate limiter usage", "admitted", usage.Total, "waits", usage.Waits, "waited", usage.Waited)
	}
	if err != nil {
		return res, err
	}

	data, err := epub.Write(translated)
	if err != nil {
		return res, fmt.Errorf("failed to encode book: %w", err)
	}

	if err := os.MkdirAll(r.cfg.Paths.OutputDir, 0o755); err != nil {
		return res, fmt.Errorf("failed to create output directory: %w", err)
	}
	name := req.Name
	if name == "" {
		name = rec.OutputName
	}
	res.outputPath = filepath.Join(r.cfg.Paths.OutputDir, epub.OutputName(book.Title, rec.TargetLang, name))
	if err := os.WriteFile(res.outputPath, data, 0o644); err != nil {
		return res, fmt.Errorf("failed to write output: %w", err)
	}
	return res, nil
}

func (r *Runner) progress(ctx context.Context, j *Job, fraction float64) {
	j.SetProgress(fraction)
	r.observe(j.ID(), fraction)
	if err := r.store.UpdateJobProgress(ctx, j.ID(), j.Snapshot().Progress); err != nil {
		r.logger.Warn("failed to save progress", "job", j.ID(), "error", err)
	}
}

func (r *Runner) persist(ctx context.Context, j *Job) {
	if err := r.store.UpdateJob(ctx, j.Snapshot()); err != nil {
		r.logger.Warn("failed to save job", "job", j.ID(), "error", err)
	}
}
