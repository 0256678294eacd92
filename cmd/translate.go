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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/jobs"
)

var (
	inputFile  string
	targetLang string
	outputName string
	resumeID   string
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate an EPUB book",
	Long: `Translate every content document of an EPUB book into the target language.

Each document is split into fragments that never cut through a tag or a
word; every fragment is translated with the neighbouring sentences as
context. Untranslatable fragments are kept in the original language. A
document whose translated markup is malformed fails the job.

The target may be a language code (pl) or a name (polish).

Finished documents are checkpointed; a failed or interrupted job can be
continued with --resume <job-id>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		runner := newRunner(db, jobs.WithProgressFunc(func(id string, p float64) {
			fmt.Fprintf(os.Stderr, "Progress: %3.0f%%\n", p*100)
		}))

		var job *jobs.Job
		if resumeID != "" {
			job, err = runner.Load(ctx, resumeID)
			if err != nil {
				return err
			}
			if inputFile == "" {
				inputFile = job.Snapshot().InputPath
			}
		} else {
			if inputFile == "" || targetLang == "" {
				return fmt.Errorf("--input and --target are required")
			}
			abs, err := filepath.Abs(inputFile)
			if err != nil {
				return fmt.Errorf("failed to resolve input path: %w", err)
			}
			job, err = runner.Create(ctx, internal.JobRecord{
				InputName:  filepath.Base(inputFile),
				InputPath:  abs,
				TargetLang: targetLang,
				OutputName: outputName,
			})
			if err != nil {
				return err
			}
		}

		data, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Job %s: %s -> %s\n", job.ID(), job.Snapshot().InputName, job.Snapshot().TargetLang)
		err = runner.Run(ctx, job, jobs.Request{
			Input:  data,
			Limits: cfg.Limits,
			Name:   outputName,
		})
		if errors.Is(err, jobs.ErrInvalidTransition) {
			return fmt.Errorf("job %s cannot be run again: %w", job.ID(), err)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Resume with: epubtran translate --resume %s\n", job.ID())
			return err
		}

		fmt.Printf("Successfully translated %s to %s\n", job.Snapshot().InputName, job.Snapshot().TargetLang)
		fmt.Printf("Output: %s\n", job.Snapshot().OutputPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "EPUB file to translate")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language code or name")
	translateCmd.Flags().StringVarP(&outputName, "name", "n", "", "Output file name without extension (default <title>_<target>); kept on --resume")
	translateCmd.Flags().StringVar(&resumeID, "resume", "", "Continue a failed job by id")
	addOracleFlags(translateCmd)
}
