package oracle

import (
	"context"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// Google wraps the Cloud Translation API. It is not a generative model: it
// receives the bare markup fragment and returns its HTML translation.
type Google struct {
	client *translate.Client
	target language.Tag
}

// NewGoogle creates a client authenticated by a credentials file, an API
// key, or application default credentials, in that order of preference.
func NewGoogle(ctx context.Context, targetLang, credentials, apiKey string, extra ...option.ClientOption) (*Google, error) {
	target, err := language.Parse(targetLang)
	if err != nil {
		return nil, fmt.Errorf("invalid target language: %w", err)
	}

	opts := append([]option.ClientOption{}, extra...)
	switch {
	case credentials != "":
		opts = append(opts, option.WithCredentialsFile(credentials))
	case apiKey != "":
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &Google{client: client, target: target}, nil
}

func (s *Google) Name() string {
	return "google"
}

func (s *Google) RawFragments() bool {
	return true
}

func (s *Google) Generate(ctx context.Context, fragment string) (string, error) {
	translations, err := s.client.Translate(ctx, []string{fragment}, s.target, &translate.Options{
		Format: translate.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}
	if len(translations) == 0 {
		return "", nil
	}
	return translations[0].Text, nil
}

func (s *Google) Close() error {
	return s.client.Close()
}
