// Package config loads the runtime configuration from defaults, an optional
// config file, EPUBTRAN_* environment variables and bound command-line flags.
// Unknown keys are rejected when the file is decoded.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// EPUBTRAN_LIMITS_REQUESTS_PER_MINUTE.
const EnvPrefix = "EPUBTRAN"

// Oracle providers.
const (
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
	ProviderGoogle     = "google"
)

// CharsPerToken is the rough characters-per-token ratio used for budgeting.
const CharsPerToken = 4

type Config struct {
	Oracle        OracleConfig  `mapstructure:"oracle"`
	Limits        LimitsConfig  `mapstructure:"limits"`
	Retry         RetryConfig   `mapstructure:"retry"`
	Paths         PathsConfig   `mapstructure:"paths"`
	Logging       LoggingConfig `mapstructure:"logging"`
	Server        ServerConfig  `mapstructure:"server"`
	Cache         CacheConfig   `mapstructure:"cache"`
	CheckLanguage bool          `mapstructure:"check_language"`
}

type OracleConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Credentials string        `mapstructure:"credentials"`
	ProjectID   string        `mapstructure:"project_id"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LimitsConfig holds the model and quota ceilings of one job.
type LimitsConfig struct {
	MaxInputTokens    int `mapstructure:"max_input_tokens"`
	MaxOutputTokens   int `mapstructure:"max_output_tokens"`
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	TokensPerMinute   int `mapstructure:"tokens_per_minute"`
}

type RetryConfig struct {
	EmptyBackoff time.Duration `mapstructure:"empty_backoff"`
}

type PathsConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	LogsDir   string `mapstructure:"logs_dir"`
	DB        string `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr        string  `mapstructure:"addr"`
	SubmitRate  float64 `mapstructure:"submit_rate"`
	SubmitBurst int     `mapstructure:"submit_burst"`
	MaxUploadMB int     `mapstructure:"max_upload_mb"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("oracle.provider", ProviderGemini)
	v.SetDefault("oracle.model", "gemini-2.0-flash")
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.credentials", "")
	v.SetDefault("oracle.project_id", "")
	v.SetDefault("oracle.timeout", 120*time.Second)

	v.SetDefault("limits.max_input_tokens", 4000)
	v.SetDefault("limits.max_output_tokens", 6000)
	v.SetDefault("limits.requests_per_minute", 15)
	v.SetDefault("limits.tokens_per_minute", 1_000_000)

	v.SetDefault("retry.empty_backoff", 15*time.Second)

	v.SetDefault("paths.output_dir", "./translated_books")
	v.SetDefault("paths.logs_dir", "./logs")
	v.SetDefault("paths.db", "./data/epubtran.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.submit_rate", 0.2)
	v.SetDefault("server.submit_burst", 3)
	v.SetDefault("server.max_upload_mb", 100)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("check_language", false)
}

// Load builds a Config. path may be empty. flags, when non-nil, are bound
// by their key names (see BindFlag) before decoding.
func Load(path string, flags map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, f := range flags {
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field eagerly so a bad value fails at startup.
func (c *Config) Validate() error {
	var errs []error

	switch c.Oracle.Provider {
	case ProviderGemini, ProviderOllama, ProviderOpenRouter, ProviderGoogle:
	default:
		errs = append(errs, fmt.Errorf("oracle.provider: unknown provider %q", c.Oracle.Provider))
	}
	if c.Oracle.Timeout < 0 {
		errs = append(errs, fmt.Errorf("oracle.timeout: must not be negative"))
	}

	errs = append(errs, c.Limits.Validate()...)

	if c.Retry.EmptyBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry.empty_backoff: must not be negative"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: must be text or json, got %q", c.Logging.Format))
	}

	if c.Server.SubmitRate <= 0 {
		errs = append(errs, fmt.Errorf("server.submit_rate: must be positive"))
	}
	if c.Server.SubmitBurst <= 0 {
		errs = append(errs, fmt.Errorf("server.submit_burst: must be positive"))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb: must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks the per-job ceilings. The input allowance may not exceed
// the output allowance: a translated fragment is about as long as its
// source.
func (l LimitsConfig) Validate() []error {
	var errs []error
	if l.MaxInputTokens <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_input_tokens: must be positive"))
	}
	if l.MaxOutputTokens <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_output_tokens: must be positive"))
	}
	if l.MaxInputTokens > l.MaxOutputTokens {
		errs = append(errs, fmt.Errorf("limits.max_input_tokens (%d) must not exceed limits.max_output_tokens (%d)", l.MaxInputTokens, l.MaxOutputTokens))
	}
	if l.RequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("limits.requests_per_minute: must be positive"))
	}
	if l.TokensPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("limits.tokens_per_minute: must be positive"))
	}
	return errs
}

// MaxInputChars is the chunk size limit derived from the input token
// allowance.
func (l LimitsConfig) MaxInputChars() int {
	return l.MaxInputTokens * CharsPerToken
}
