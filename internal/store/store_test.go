package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/valpere/epubtran/internal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_New(t *testing.T) {
	s := newTestStore(t)
	if s == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_GetCachedTranslation_Miss(t *testing.T) {
	s := newTestStore(t)

	text, found, err := s.GetCachedTranslation(context.Background(), "<p>Hello</p>", "uk")
	if err != nil {
		t.Errorf("GetCachedTranslation failed: %v", err)
	}
	if found {
		t.Error("expected not found for uncached translation")
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestStore_GetCachedTranslation_Hit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveToMemory(ctx, "<p>Hello</p>", "uk", "<p>Привіт</p>", "gemini"); err != nil {
		t.Fatalf("SaveToMemory failed: %v", err)
	}

	text, found, err := s.GetCachedTranslation(ctx, "<p>Hello</p>", "UK")
	if err != nil {
		t.Errorf("GetCachedTranslation failed: %v", err)
	}
	if !found {
		t.Error("expected to find cached translation")
	}
	if text != "<p>Привіт</p>" {
		t.Errorf("expected '<p>Привіт</p>', got %q", text)
	}

	entries, err := s.ListMemory(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].UsageCount != 2 || entries[0].ServiceUsed != "gemini" {
		t.Errorf("expected usage count bumped, got %+v", entries)
	}
}

func TestStore_CacheKeyKeepsEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToMemory(ctx, " <p>Hello</p>\n", "uk", " <p>Привіт</p>\n", "gemini")

	if _, found, _ := s.GetCachedTranslation(ctx, "<p>Hello</p>", "uk"); found {
		t.Error("fragments differing in edge whitespace must not share an entry")
	}
	if _, found, _ := s.GetCachedTranslation(ctx, " <p>Hello</p>\n", "uk"); !found {
		t.Error("expected exact fragment to hit")
	}
}

func TestStore_CacheKeyNFC(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "é" precomposed vs "e" + combining acute
	s.SaveToMemory(ctx, "<p>caf\u00e9</p>", "pl", "<p>kawiarnia</p>", "gemini")

	text, found, _ := s.GetCachedTranslation(ctx, "<p>cafe\u0301</p>", "pl")
	if !found || text != "<p>kawiarnia</p>" {
		t.Errorf("expected NFC-equivalent hit, got %v %q", found, text)
	}
}

func TestStore_GetCachedTranslation_Invalidated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveToMemory(ctx, "Hello", "uk", "Привіт", "gemini"); err != nil {
		t.Fatalf("SaveToMemory failed: %v", err)
	}

	entries, err := s.ListMemory(ctx, 0)
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one entry")
	}

	if err := s.InvalidateMemory(ctx, entries[0].ID); err != nil {
		t.Fatalf("InvalidateMemory failed: %v", err)
	}

	text, found, err := s.GetCachedTranslation(ctx, "Hello", "uk")
	if err != nil {
		t.Errorf("GetCachedTranslation failed: %v", err)
	}
	if found {
		t.Error("expected not found for invalidated translation")
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}

	if err := s.InvalidateMemory(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Errorf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 0 {
		t.Errorf("expected 0 total entries, got %d", stats.TotalEntries)
	}

	s.SaveToMemory(ctx, "Hello", "uk", "Привіт", "gemini")
	s.SaveToMemory(ctx, "World", "uk", "Світ", "gemini")

	stats, err = s.Stats(ctx)
	if err != nil {
		t.Errorf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 2 {
		t.Errorf("expected 2 total entries, got %d", stats.TotalEntries)
	}
	if stats.ActiveEntries != 2 {
		t.Errorf("expected 2 active entries, got %d", stats.ActiveEntries)
	}
}

func TestStore_DeleteMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToMemory(ctx, "Hello", "uk", "Привіт", "gemini")

	entries, err := s.ListMemory(ctx, 0)
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one entry")
	}

	if err := s.DeleteMemory(ctx, entries[0].ID); err != nil {
		t.Errorf("DeleteMemory failed: %v", err)
	}

	entries, err = s.ListMemory(ctx, 0)
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries after delete, got %d", len(entries))
	}
}

func TestStore_ClearMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToMemory(ctx, "Hello", "uk", "Привіт", "gemini")
	s.SaveToMemory(ctx, "World", "uk", "Світ", "gemini")

	count, err := s.ClearMemory(ctx)
	if err != nil {
		t.Errorf("ClearMemory failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 cleared, got %d", count)
	}

	entries, err := s.ListMemory(ctx, 0)
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries after clear, got %d", len(entries))
	}
}

func TestStore_MultipleTargets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToMemory(ctx, "Hello", "uk", "Привіт", "gemini")
	s.SaveToMemory(ctx, "Hello", "de", "Hallo", "gemini")
	s.SaveToMemory(ctx, "Hello", "fr", "Bonjour", "gemini")

	for target, want := range map[string]string{"uk": "Привіт", "de": "Hallo", "fr": "Bonjour"} {
		text, found, _ := s.GetCachedTranslation(ctx, "Hello", target)
		if !found || text != want {
			t.Errorf("%s: expected found=true and %q, got found=%v and %q", target, want, found, text)
		}
	}

	if _, found, _ := s.GetCachedTranslation(ctx, "Hello", "es"); found {
		t.Error("es: expected not found")
	}
}

func TestMemory_Adapter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := s.Memory("ollama")

	if err := m.Remember(ctx, "<p>a</p>", "pl", "<p>b</p>"); err != nil {
		t.Fatal(err)
	}
	text, ok, err := m.Lookup(ctx, "<p>a</p>", "pl")
	if err != nil || !ok || text != "<p>b</p>" {
		t.Errorf("unexpected lookup result %q %v %v", text, ok, err)
	}
}

func TestStore_Glossary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.AddGlossaryTerm(ctx, "", "pl", "Shire", "Shire")
	s.AddGlossaryTerm(ctx, "", "pl", "hobbit", "hobbit")
	s.AddGlossaryTerm(ctx, "en", "pl", "hobbit", "niziołek")
	s.AddGlossaryTerm(ctx, "en", "de", "hobbit", "Hobbit")

	terms, err := s.GetGlossaryTerms(ctx, "en", "pl")
	if err != nil {
		t.Fatalf("GetGlossaryTerms failed: %v", err)
	}
	if len(terms) != 2 || terms["hobbit"] != "niziołek" || terms["Shire"] != "Shire" {
		t.Errorf("expected language-specific term to win, got %v", terms)
	}

	terms, _ = s.GetGlossaryTerms(ctx, "fr", "pl")
	if terms["hobbit"] != "hobbit" {
		t.Errorf("expected wildcard term for other sources, got %v", terms)
	}

	entries, err := s.ListGlossaryTerms(ctx, "", "de")
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one de entry, got %v, %v", entries, err)
	}
	if err := s.DeleteGlossaryTerm(ctx, entries[0].ID); err != nil {
		t.Errorf("DeleteGlossaryTerm failed: %v", err)
	}
	if err := s.DeleteGlossaryTerm(ctx, entries[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStore_Jobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := internal.JobRecord{
		ID:         "job-1",
		InputName:  "book.epub",
		InputPath:  "/tmp/book.epub",
		TargetLang: "pl",
		Provider:   "gemini",
		Status:     internal.JobPending,
		OutputName: "my-book",
	}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	if err := s.UpdateJobProgress(ctx, "job-1", 0.5); err != nil {
		t.Fatalf("UpdateJobProgress failed: %v", err)
	}
	got, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Progress != 0.5 || got.Status != internal.JobPending || got.InputPath != "/tmp/book.epub" || got.OutputName != "my-book" {
		t.Errorf("unexpected job %+v", got)
	}

	got.Status = internal.JobSucceeded
	got.Progress = 1
	got.OutputPath = "/out/book_pl.epub"
	got.Report = "# Report"
	if err := s.UpdateJob(ctx, *got); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	jobs, err := s.ListJobs(ctx, 10)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != internal.JobSucceeded || jobs[0].Report != "# Report" {
		t.Errorf("unexpected jobs %+v", jobs)
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_JobDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateJob(ctx, internal.JobRecord{ID: "job-2", InputName: "b.epub", TargetLang: "de", Status: internal.JobRunning})
	s.SaveJobDocument(ctx, "job-2", "ch1", []byte("<html>eins</html>"))
	s.SaveJobDocument(ctx, "job-2", "ch1", []byte("<html>Eins</html>"))
	s.SaveJobDocument(ctx, "job-2", "ch2", []byte("<html>Zwei</html>"))

	docs, err := s.JobDocuments(ctx, "job-2")
	if err != nil {
		t.Fatalf("JobDocuments failed: %v", err)
	}
	if len(docs) != 2 || string(docs["ch1"]) != "<html>Eins</html>" {
		t.Errorf("unexpected documents %v", docs)
	}

	if err := s.DeleteJob(ctx, "job-2"); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	docs, _ = s.JobDocuments(ctx, "job-2")
	if len(docs) != 0 {
		t.Errorf("expected documents removed with the job, got %d", len(docs))
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Hello  ", "  Hello  "},
		{"cafe\u0301", "caf\u00e9"},
		{"", ""},
	}

	for _, tt := range tests {
		result := normalizeText(tt.input)
		if result != tt.expected {
			t.Errorf("normalizeText(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestJobCheckpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateJob(ctx, internal.JobRecord{ID: "job-3", InputName: "b.epub", TargetLang: "pl", Status: internal.JobRunning})

	cp := s.Checkpoint("job-3")
	if err := cp.Save(ctx, "ch1", []byte("<html/>")); err != nil {
		t.Fatal(err)
	}
	docs, err := cp.Load(ctx)
	if err != nil || string(docs["ch1"]) != "<html/>" {
		t.Errorf("unexpected checkpoint contents %v, %v", docs, err)
	}
	other, _ := s.Checkpoint("job-4").Load(ctx)
	if len(other) != 0 {
		t.Error("checkpoints must be scoped to their job")
	}
}
