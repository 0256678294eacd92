package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/config"
	"github.com/valpere/epubtran/internal/epub/epubtest"
	"github.com/valpere/epubtran/internal/jobs"
	"github.com/valpere/epubtran/internal/oracle"
	"github.com/valpere/epubtran/internal/store"
)

type echoOracle struct {
	generate func(prompt string) string
}

func (o echoOracle) Name() string       { return "echo" }
func (o echoOracle) RawFragments() bool { return true }

func (o echoOracle) Generate(ctx context.Context, prompt string) (string, error) {
	if o.generate != nil {
		return o.generate(prompt), nil
	}
	return prompt, nil
}

type testHost struct {
	srv     *httptest.Server
	manager *jobs.Manager
}

func newTestHost(t *testing.T, o echoOracle, tweak func(*config.Config)) *testHost {
	t.Helper()
	cfg, err := config.Load("", nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Server.SubmitRate = 100
	cfg.Server.SubmitBurst = 100
	if tweak != nil {
		tweak(cfg)
	}

	st, err := store.New(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatal(err)
	}
	runner := jobs.NewRunner(cfg, st,
		jobs.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }),
		jobs.WithOracleFactory(func(ctx context.Context, s oracle.Settings) (oracle.Oracle, error) {
			return o, nil
		}),
	)
	m := jobs.NewManager(context.Background(), runner, st)
	srv := httptest.NewServer(New(cfg, m).Handler())
	t.Cleanup(func() {
		srv.Close()
		m.Shutdown()
		st.Close()
	})
	return &testHost{srv: srv, manager: m}
}

func (h *testHost) submit(t *testing.T, fields map[string]string, book []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if book != nil {
		fw, _ := mw.CreateFormFile("file", "scarlet.epub")
		fw.Write(book)
	}
	mw.Close()

	resp, err := http.Post(h.srv.URL+"/translate", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestTranslate_Lifecycle(t *testing.T) {
	h := newTestHost(t, echoOracle{}, nil)

	resp := h.submit(t, map[string]string{"target_lang": "pl"}, epubtest.Build(t, epubtest.DefaultFixture()))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var accepted map[string]string
	decode(t, resp, &accepted)
	id := accepted["job_id"]
	if id == "" {
		t.Fatal("missing job id")
	}
	h.manager.Wait()

	resp, _ = http.Get(h.srv.URL + "/jobs/" + id)
	var job jobView
	decode(t, resp, &job)
	if job.Status != "succeeded" || job.Progress != 100 {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.DownloadURL != "/jobs/"+id+"/download" || job.ReportURL == "" {
		t.Errorf("missing links: %+v", job)
	}

	resp, _ = http.Get(h.srv.URL + job.DownloadURL)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != epubMediaType {
		t.Fatalf("unexpected download response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), id+".epub") {
		t.Errorf("download should be named after the job: %s", resp.Header.Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("download is not an archive")
	}

	resp, _ = http.Get(h.srv.URL + job.ReportURL)
	html, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(html), "<table>") || !strings.Contains(string(html), "A Study in Scarlet") {
		t.Errorf("unexpected report: %s", html)
	}

	resp, _ = http.Get(h.srv.URL + "/jobs")
	var list []jobView
	decode(t, resp, &list)
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestTranslate_BadRequests(t *testing.T) {
	h := newTestHost(t, echoOracle{}, nil)
	book := epubtest.Build(t, epubtest.DefaultFixture())

	tests := []struct {
		name   string
		fields map[string]string
		book   []byte
	}{
		{"missing file", map[string]string{"target_lang": "pl"}, nil},
		{"missing target", map[string]string{}, book},
		{"non-numeric limit", map[string]string{"target_lang": "pl", "max_input_tokens": "many"}, book},
		{"input above output", map[string]string{"target_lang": "pl", "max_input_tokens": "9000", "max_output_tokens": "100"}, book},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.submit(t, tt.fields, tt.book)
			var body map[string]string
			decode(t, resp, &body)
			if resp.StatusCode != http.StatusBadRequest || body["error"] == "" {
				t.Errorf("expected 400 with an error, got %d %v", resp.StatusCode, body)
			}
		})
	}
}

func TestTranslate_Throttled(t *testing.T) {
	h := newTestHost(t, echoOracle{}, func(cfg *config.Config) {
		cfg.Server.SubmitRate = 0.001
		cfg.Server.SubmitBurst = 1
	})
	book := epubtest.Build(t, epubtest.DefaultFixture())

	first := h.submit(t, map[string]string{"target_lang": "pl"}, book)
	first.Body.Close()
	second := h.submit(t, map[string]string{"target_lang": "pl"}, book)
	second.Body.Close()

	if first.StatusCode != http.StatusAccepted {
		t.Errorf("first submission should pass, got %d", first.StatusCode)
	}
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", second.StatusCode)
	}
}

func TestJobs_NotFound(t *testing.T) {
	h := newTestHost(t, echoOracle{}, nil)
	for _, path := range []string{"/jobs/nope", "/jobs/nope/download", "/jobs/nope/report"} {
		resp, err := http.Get(h.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestDownload_FailedJob(t *testing.T) {
	h := newTestHost(t, echoOracle{generate: func(p string) string {
		return strings.ReplaceAll(p, "<html", "<div")
	}}, nil)

	resp := h.submit(t, map[string]string{"target_lang": "pl"}, epubtest.Build(t, epubtest.DefaultFixture()))
	var accepted map[string]string
	decode(t, resp, &accepted)
	h.manager.Wait()

	resp, _ = http.Get(h.srv.URL + "/jobs/" + accepted["job_id"])
	var job jobView
	decode(t, resp, &job)
	if job.Status != "failed" || job.Error == "" || job.DownloadURL != "" {
		t.Errorf("unexpected job %+v", job)
	}

	resp, _ = http.Get(h.srv.URL + "/jobs/" + accepted["job_id"] + "/download")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestList_BadLimit(t *testing.T) {
	h := newTestHost(t, echoOracle{}, nil)
	resp, _ := http.Get(h.srv.URL + "/jobs?limit=-1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestHost(t, echoOracle{}, nil)
	resp, _ := http.Get(h.srv.URL + "/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestJobView_ProgressPercent(t *testing.T) {
	tests := []struct {
		progress float64
		want     int
	}{
		{0, 0},
		{0.29, 29},
		{0.5, 50},
		{2.0 / 3.0, 67},
		{1, 100},
	}
	for _, tt := range tests {
		v := newJobView(internal.JobRecord{ID: "j", Status: internal.JobRunning, Progress: tt.progress})
		if v.Progress != tt.want {
			t.Errorf("progress %v: got %d, want %d", tt.progress, v.Progress, tt.want)
		}
	}
}
