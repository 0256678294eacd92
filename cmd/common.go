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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valpere/epubtran/internal/jobs"
	"github.com/valpere/epubtran/internal/store"
)

// openStore opens the configured database, creating its directory.
func openStore() (*store.Store, error) {
	if dir := filepath.Dir(cfg.Paths.DB); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.New(cfg.Paths.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func newRunner(db *store.Store, opts ...jobs.RunnerOption) *jobs.Runner {
	return jobs.NewRunner(cfg, db, append([]jobs.RunnerOption{jobs.WithLogger(logger)}, opts...)...)
}

// addOracleFlags registers the oracle and per-job limit overrides.
func addOracleFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "Oracle: gemini, ollama, openrouter, google")
	cmd.Flags().String("model", "", "Model name for LLM oracles")
	cmd.Flags().String("base-url", "", "Oracle base URL")
	cmd.Flags().String("api-key", "", "Oracle API key")
	cmd.Flags().String("credentials", "", "Path to Google Cloud credentials")
	cmd.Flags().Int("max-input-tokens", 0, "Input token allowance per fragment (default 4000)")
	cmd.Flags().Int("max-output-tokens", 0, "Output token allowance per call (default 6000)")
	cmd.Flags().Int("rpm", 0, "Requests per minute (default 15)")
	cmd.Flags().Int("tpm", 0, "Estimated tokens per minute (default 1000000)")
	cmd.Flags().StringP("output-dir", "o", "", "Directory for translated books (default ./translated_books)")
	cmd.Flags().Bool("check-language", false, "Warn when a translated document is not in the target language")
}
