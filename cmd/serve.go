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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/epubtran/internal/jobs"
	"github.com/valpere/epubtran/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP job host",
	Long: `Accept EPUB uploads over HTTP and translate them as background jobs.

Endpoints:
  POST /translate            multipart: file, target_lang, optional
                             max_input_tokens, max_output_tokens,
                             max_requests_per_minute, max_tokens_per_minute,
                             api_key
  GET  /jobs                 list jobs
  GET  /jobs/{id}            status and progress (0-100)
  GET  /jobs/{id}/download   translated book
  GET  /jobs/{id}/report     job report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		manager := jobs.NewManager(ctx, newRunner(db), db)
		defer manager.Shutdown()

		return server.New(cfg, manager, server.WithLogger(logger)).ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default :8080)")
	addOracleFlags(serveCmd)
}
