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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/epubtran/internal/markdown"
	"github.com/valpere/epubtran/internal/store"
)

var (
	jobsLimit  int
	showReport bool
	plainText  bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect translation jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		list, err := db.ListJobs(context.Background(), jobsLimit)
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No jobs.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tINPUT\tTARGET\tPROVIDER\tSTATUS\tPROGRESS\tUPDATED")
		for _, j := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
				j.ID, j.InputName, j.TargetLang, j.Provider, j.Status,
				j.Progress*100, j.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		j, err := db.GetJob(context.Background(), args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("job not found: %s", args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to load job: %w", err)
		}

		if showReport {
			if j.Report == "" {
				return fmt.Errorf("job %s has no report yet", j.ID)
			}
			if plainText {
				fmt.Println(markdown.ToPlainText([]byte(j.Report)))
			} else {
				fmt.Println(j.Report)
			}
			return nil
		}

		fmt.Printf("ID:        %s\n", j.ID)
		fmt.Printf("Input:     %s\n", j.InputPath)
		fmt.Printf("Target:    %s\n", j.TargetLang)
		fmt.Printf("Provider:  %s\n", j.Provider)
		fmt.Printf("Status:    %s\n", j.Status)
		fmt.Printf("Progress:  %.0f%%\n", j.Progress*100)
		if j.OutputPath != "" {
			fmt.Printf("Output:    %s\n", j.OutputPath)
		}
		if j.Error != "" {
			fmt.Printf("Error:     %s\n", j.Error)
		}
		fmt.Printf("Created:   %s\n", j.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Updated:   %s\n", j.UpdatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a job record and its checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteJob(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		fmt.Printf("Deleted job: %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)

	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum number of jobs (0 for all)")
	jobsShowCmd.Flags().BoolVar(&showReport, "report", false, "Print the job report")
	jobsShowCmd.Flags().BoolVar(&plainText, "plain", false, "Print the report without markdown")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
}
