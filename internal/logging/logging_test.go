package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":  slog.LevelDebug,
		" WARN ": slog.LevelWarn,
		"error":  slog.LevelError,
		"info":   slog.LevelInfo,
		"chatty": slog.LevelInfo,
		"":       slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("chunk translated", "document", "ch01.xhtml", "chunk", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, `"document":"ch01.xhtml"`) {
		t.Errorf("expected structured document field, got %s", out)
	}
}

func TestSetup_WritesLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	logger, closer, err := Setup(dir, "info", "text")
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Warn("empty response from oracle", "chunk", 1)
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if !strings.Contains(string(data), "empty response from oracle") {
		t.Errorf("log file does not contain the record: %s", data)
	}
}
