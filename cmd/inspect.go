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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/epubtran/internal/chunker"
	"github.com/valpere/epubtran/internal/detector"
	"github.com/valpere/epubtran/internal/epub"
)

var inspectInput string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show how a book would be split for translation",
	Long: `Read a book without translating it and print its outline, its content
documents and the number of chunks each would be sent as under the
current input limit.

Example:
  epubtran inspect -i book.epub --max-input-tokens 2000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectInput == "" {
			return fmt.Errorf("--input is required")
		}
		if errs := cfg.Limits.Validate(); len(errs) > 0 {
			return fmt.Errorf("invalid limits: %v", errs[0])
		}

		data, err := os.ReadFile(inspectInput)
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		book, err := epub.Read(data)
		if err != nil {
			return err
		}

		if outline, err := epub.ReadOutline(data); err != nil {
			logger.Warn("failed to read outline", "error", err)
		} else {
			printOutline(outline)
		}

		fmt.Printf("Package:   %s (EPUB %s)\n", book.PackagePath(), book.Version)
		fmt.Printf("Language:  %s\n", book.Language)
		fmt.Printf("Max chunk: %d characters\n\n", cfg.Limits.MaxInputChars())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPATH\tCHARS\tCHUNKS\tDETECTED")
		total := 0
		for _, doc := range book.Documents() {
			chunks := chunker.Split(string(doc.Content), cfg.Limits.MaxInputChars())
			total += len(chunks)
			detected, ok := detector.Shared().DetectMarkup(doc.Content)
			if !ok {
				detected = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				doc.ID, doc.Path, chunker.Len(string(doc.Content)), len(chunks), detected)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d documents, %d chunks\n", len(book.Documents()), total)
		return nil
	},
}

func printOutline(o *epub.Outline) {
	fmt.Printf("Title:     %s\n", o.Title)
	if len(o.Authors) > 0 {
		fmt.Printf("Authors:   %s\n", strings.Join(o.Authors, ", "))
	}
	if o.Publisher != "" {
		fmt.Printf("Publisher: %s\n", o.Publisher)
	}
	fmt.Printf("Chapters:  %d\n", o.Chapters)
	for _, e := range o.TOC {
		fmt.Printf("  %s%s\n", strings.Repeat("  ", e.Depth), e.Title)
	}
	for _, w := range o.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectInput, "input", "i", "", "Input EPUB file")
	inspectCmd.Flags().Int("max-input-tokens", 0, "Max input tokens per chunk")
}
