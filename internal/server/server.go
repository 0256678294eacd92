// Package server is the HTTP job host: books are uploaded for translation,
// polled for progress and downloaded once finished.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/config"
	"github.com/valpere/epubtran/internal/jobs"
	"github.com/valpere/epubtran/internal/logging"
	"github.com/valpere/epubtran/internal/markdown"
)

const epubMediaType = "application/epub+zip"

// Server routes HTTP requests to a jobs.Manager.
type Server struct {
	cfg     config.ServerConfig
	limits  config.LimitsConfig
	manager *jobs.Manager
	submits *rate.Limiter
	logger  *slog.Logger
	mux     *http.ServeMux
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a Server. cfg.Limits are the per-job defaults a submission
// may override.
func New(cfg *config.Config, manager *jobs.Manager, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg.Server,
		limits:  cfg.Limits,
		manager: manager,
		submits: rate.NewLimiter(rate.Limit(cfg.Server.SubmitRate), cfg.Server.SubmitBurst),
		logger:  logging.Discard(),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /translate", s.handleTranslate)
	s.mux.HandleFunc("GET /jobs", s.handleList)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleGet)
	s.mux.HandleFunc("GET /jobs/{id}/download", s.handleDownload)
	s.mux.HandleFunc("GET /jobs/{id}/report", s.handleReport)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// jobView is the public shape of a job. Progress is a percentage.
type jobView struct {
	ID          string    `json:"id"`
	InputName   string    `json:"input_name"`
	TargetLang  string    `json:"target_lang"`
	Provider    string    `json:"provider"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	Error       string    `json:"error,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	ReportURL   string    `json:"report_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newJobView(rec internal.JobRecord) jobView {
	v := jobView{
		ID:         rec.ID,
		InputName:  rec.InputName,
		TargetLang: rec.TargetLang,
		Provider:   rec.Provider,
		Status:     string(rec.Status),
		Progress:   int(math.Round(rec.Progress * 100)),
		Error:      rec.Error,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	if rec.Status == internal.JobSucceeded {
		v.DownloadURL = "/jobs/" + rec.ID + "/download"
	}
	if rec.Report != "" {
		v.ReportURL = "/jobs/" + rec.ID + "/report"
	}
	return v
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if !s.submits.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many submissions, try again later")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxUploadMB)<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}

	target := r.FormValue("target_lang")
	if target == "" {
		writeError(w, http.StatusBadRequest, "target_lang is required")
		return
	}

	limits, err := s.parseLimits(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.manager.Submit(jobs.Submission{
		InputName:  filepath.Base(header.Filename),
		Input:      data,
		TargetLang: target,
		Limits:     limits,
		APIKey:     r.FormValue("api_key"),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("job submitted", "job", rec.ID, "input", rec.InputName, "target", rec.TargetLang, "bytes", len(data))
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": rec.ID, "status": string(rec.Status)})
}

// parseLimits applies the optional per-job form overrides to the defaults.
func (s *Server) parseLimits(r *http.Request) (config.LimitsConfig, error) {
	limits := s.limits
	fields := []struct {
		name string
		dst  *int
	}{
		{"max_input_tokens", &limits.MaxInputTokens},
		{"max_output_tokens", &limits.MaxOutputTokens},
		{"max_requests_per_minute", &limits.RequestsPerMinute},
		{"max_tokens_per_minute", &limits.TokensPerMinute},
	}
	for _, f := range fields {
		raw := r.FormValue(f.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return limits, fmt.Errorf("%s: not an integer: %q", f.name, raw)
		}
		*f.dst = n
	}
	return limits, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recs, err := s.manager.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	views := make([]jobView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, newJobView(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newJobView(rec))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if rec.Status != internal.JobSucceeded {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", rec.Status))
		return
	}

	f, err := os.Open(rec.OutputPath)
	if err != nil {
		s.logger.Error("failed to open output", "job", rec.ID, "error", err)
		writeError(w, http.StatusGone, "output file is no longer available")
		return
	}
	defer f.Close()

	name := filepath.Base(rec.OutputPath)
	w.Header().Set("Content-Type", epubMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, rec.UpdatedAt, f)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if rec.Report == "" {
		writeError(w, http.StatusNotFound, "no report yet")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, markdown.ToHTML([]byte(rec.Report)))
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (internal.JobRecord, bool) {
	rec, err := s.manager.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return rec, false
	}
	if err != nil {
		s.logger.Error("failed to load job", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return rec, false
	}
	return rec, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
