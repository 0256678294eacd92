/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valpere/epubtran/internal/epub/epubtest"
	"github.com/valpere/epubtran/internal/store"
)

// execute runs the root command with a temporary database and logs
// directory and returns the database path.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "data", "epubtran.db")
	rootCmd.SetArgs(append(args, "--db", db, "--logs-dir", filepath.Join(dir, "logs")))
	return db, rootCmd.Execute()
}

func TestInspect(t *testing.T) {
	book := filepath.Join(t.TempDir(), "scarlet.epub")
	if err := os.WriteFile(book, epubtest.Build(t, epubtest.DefaultFixture()), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "inspect", "-i", book, "--max-input-tokens", "10"); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if cfg.Limits.MaxInputTokens != 10 {
		t.Errorf("flag not applied to config: %d", cfg.Limits.MaxInputTokens)
	}
}

func TestTranslate_RequiresInput(t *testing.T) {
	inputFile, targetLang, resumeID = "", "", ""
	_, err := execute(t, "translate")
	if err == nil || !strings.Contains(err.Error(), "--input and --target are required") {
		t.Errorf("expected a missing flags error, got %v", err)
	}
}

func TestGlossaryImport(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "names.csv")
	data := "# names\nSherlock Holmes,Sherlock Holmes\n\"Baker Street, 221B\",\"Baker Street 221B\"\n"
	if err := os.WriteFile(csvPath, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := execute(t, "glossary", "import", csvPath, "--target", "pl")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	st, err := store.New(db)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	terms, err := st.GetGlossaryTerms(context.Background(), "en", "pl")
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 2 || terms["Baker Street, 221B"] != "Baker Street 221B" {
		t.Errorf("unexpected terms %v", terms)
	}
}
