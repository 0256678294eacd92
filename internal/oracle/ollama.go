package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama3.2"
)

// Ollama calls a local Ollama server's /api/generate endpoint.
type Ollama struct {
	baseURL         string
	model           string
	maxOutputTokens int
	client          *http.Client
}

func NewOllama(baseURL, model string, maxOutputTokens int, client *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Ollama{
		baseURL:         strings.TrimRight(baseURL, "/"),
		model:           model,
		maxOutputTokens: maxOutputTokens,
		client:          client,
	}
}

func (s *Ollama) Name() string {
	return "ollama"
}

func (s *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	ollamaReq := map[string]interface{}{
		"model":  s.model,
		"prompt": prompt,
		"stream": false,
	}
	if s.maxOutputTokens > 0 {
		ollamaReq["options"] = map[string]interface{}{"num_predict": s.maxOutputTokens}
	}

	jsonData, err := json.Marshal(ollamaReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return ollamaResp.Response, nil
}

// IsAvailable checks that the server answers on /api/tags.
func (s *Ollama) IsAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not available: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}
