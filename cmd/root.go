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
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/valpere/epubtran/internal/config"
	"github.com/valpere/epubtran/internal/logging"
)

var version = "0.3.0"

var (
	configFile string

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

// flagKeys maps command-line flags to configuration keys. A flag overrides
// the config file and the environment only when it is set.
var flagKeys = map[string]string{
	"provider":          "oracle.provider",
	"model":             "oracle.model",
	"base-url":          "oracle.base_url",
	"api-key":           "oracle.api_key",
	"credentials":       "oracle.credentials",
	"max-input-tokens":  "limits.max_input_tokens",
	"max-output-tokens": "limits.max_output_tokens",
	"rpm":               "limits.requests_per_minute",
	"tpm":               "limits.tokens_per_minute",
	"output-dir":        "paths.output_dir",
	"logs-dir":          "paths.logs_dir",
	"db":                "paths.db",
	"log-level":         "logging.level",
	"log-format":        "logging.format",
	"addr":              "server.addr",
	"check-language":    "check_language",
}

var rootCmd = &cobra.Command{
	Use:   "epubtran",
	Short: "EPUB book translator",
	Long: `A CLI application that translates EPUB books with an LLM, one bounded
markup fragment at a time, keeping the book's structure intact.

Supported oracles: Gemini (default), Ollama, OpenRouter, Google Cloud Translation

Use "epubtran translate --help" for translation options.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFile, boundFlags(cmd))
		if err != nil {
			return err
		}
		logger, logCloser, err = logging.Setup(cfg.Paths.LogsDir, cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func boundFlags(cmd *cobra.Command) map[string]*pflag.Flag {
	flags := make(map[string]*pflag.Flag)
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			flags[key] = f
		}
	}
	return flags
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("db", "", "Database path (default ./data/epubtran.db)")
	rootCmd.PersistentFlags().String("logs-dir", "", "Directory for the log file (default ./logs)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}
