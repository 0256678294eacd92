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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage the terminology glossary",
	Long: `Add, import, list, and delete terminology glossary entries.

Glossary terms are added to every translation prompt whose book language
and target language match, so names and recurring vocabulary stay
consistent across chapters. A term without a source language applies to
books in any language.`,
}

var (
	glossaryListSource string
	glossaryListTarget string
)

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all glossary entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListGlossaryTerms(context.Background(), glossaryListSource, glossaryListTarget)
		if err != nil {
			return fmt.Errorf("failed to list glossary: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("Glossary is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE LANG\tTARGET LANG\tSOURCE TERM\tTARGET TERM")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.ID, e.SourceLang, e.TargetLang, e.SourceTerm, e.TargetTerm)
		}
		return w.Flush()
	},
}

var (
	glossaryAddSource string
	glossaryAddTarget string
)

var glossaryAddCmd = &cobra.Command{
	Use:   "add <source-term> <target-term>",
	Short: "Add or update a glossary entry",
	Long: `Add a glossary entry mapping a source-language term to a target-language term.

Example:
  epubtran glossary add "Baker Street" "Baker Street" --target pl
  epubtran glossary add "Kyiv" "Київ" --source en --target uk`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if glossaryAddTarget == "" {
			return fmt.Errorf("--target language flag is required")
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.AddGlossaryTerm(context.Background(), glossaryAddSource, glossaryAddTarget, args[0], args[1]); err != nil {
			return fmt.Errorf("failed to add glossary entry: %w", err)
		}
		source := glossaryAddSource
		if source == "" {
			source = "any"
		}
		fmt.Printf("Added: [%s→%s] %q → %q\n", source, glossaryAddTarget, args[0], args[1])
		return nil
	},
}

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a glossary entry by ID",
	Long: `Delete a glossary entry by its ID (shown in "epubtran glossary list").

Example:
  epubtran glossary delete gl_1234567890123456789`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteGlossaryTerm(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete glossary entry: %w", err)
		}
		fmt.Printf("Deleted glossary entry: %s\n", args[0])
		return nil
	},
}

var (
	glossaryImportSource string
	glossaryImportTarget string
)

var glossaryImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Add glossary entries from a two-column CSV file",
	Long: `Read "source term,target term" rows from a CSV file and add each one.
Blank rows and rows starting with # are skipped.

Example:
  epubtran glossary import names.csv --source en --target pl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if glossaryImportTarget == "" {
			return fmt.Errorf("--target language flag is required")
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open glossary file: %w", err)
		}
		defer f.Close()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		reader := csv.NewReader(f)
		reader.Comment = '#'
		reader.FieldsPerRecord = 2
		reader.TrimLeadingSpace = true

		ctx := context.Background()
		added := 0
		for {
			rec, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read glossary file: %w", err)
			}
			source, target := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
			if source == "" || target == "" {
				continue
			}
			if err := db.AddGlossaryTerm(ctx, glossaryImportSource, glossaryImportTarget, source, target); err != nil {
				return fmt.Errorf("failed to add %q: %w", source, err)
			}
			added++
		}
		fmt.Printf("Imported %d glossary entries.\n", added)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	glossaryListCmd.Flags().StringVarP(&glossaryListSource, "source", "s", "", "Filter by source language code (e.g. en)")
	glossaryListCmd.Flags().StringVarP(&glossaryListTarget, "target", "t", "", "Filter by target language code (e.g. uk)")

	glossaryAddCmd.Flags().StringVarP(&glossaryAddSource, "source", "s", "", "Book language code (e.g. en); empty for any")
	glossaryAddCmd.Flags().StringVarP(&glossaryAddTarget, "target", "t", "", "Target language code (e.g. uk)")

	glossaryImportCmd.Flags().StringVarP(&glossaryImportSource, "source", "s", "", "Book language code (e.g. en); empty for any")
	glossaryImportCmd.Flags().StringVarP(&glossaryImportTarget, "target", "t", "", "Target language code (e.g. uk)")

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryDeleteCmd)
	glossaryCmd.AddCommand(glossaryImportCmd)
}
