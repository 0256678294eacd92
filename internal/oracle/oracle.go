// Package oracle provides the text-generation backends that translate
// markup fragments. Every backend exposes one operation, Generate, which
// may return empty text or an error; the caller decides how to recover.
package oracle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/valpere/epubtran/internal/config"
)

// Oracle generates text for a prompt.
type Oracle interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Settings configure a backend. TargetLang is only used by backends that
// take the target language as a request parameter.
type Settings struct {
	config.OracleConfig
	MaxOutputTokens int
	TargetLang      string
}

// New builds the backend named by s.Provider.
func New(ctx context.Context, s Settings) (Oracle, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch s.Provider {
	case config.ProviderGemini:
		return NewGemini(s.APIKey, s.BaseURL, s.Model, s.MaxOutputTokens, client)
	case config.ProviderOllama:
		return NewOllama(s.BaseURL, s.Model, s.MaxOutputTokens, client), nil
	case config.ProviderOpenRouter:
		return NewOpenRouter(s.APIKey, s.BaseURL, s.Model, s.MaxOutputTokens, client)
	case config.ProviderGoogle:
		return NewGoogle(ctx, s.TargetLang, s.Credentials, s.APIKey)
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s", s.Provider)
	}
}

// Close releases backend resources when the backend holds any.
func Close(o Oracle) error {
	if c, ok := o.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// RawFragments reports whether the backend translates bare markup
// fragments instead of following an instruction prompt.
func RawFragments(o Oracle) bool {
	r, ok := o.(interface{ RawFragments() bool })
	return ok && r.RawFragments()
}
