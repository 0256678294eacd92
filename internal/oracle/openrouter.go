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
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "google/gemini-2.0-flash-exp:free"
)

// OpenRouter calls an OpenAI-compatible chat completions endpoint.
type OpenRouter struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	client          *http.Client
}

func NewOpenRouter(apiKey, baseURL, model string, maxOutputTokens int, client *http.Client) (*OpenRouter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key required")
	}
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	if model == "" {
		model = defaultOpenRouterModel
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenRouter{
		apiKey:          apiKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		model:           model,
		maxOutputTokens: maxOutputTokens,
		client:          client,
	}, nil
}

func (s *OpenRouter) Name() string {
	return "openrouter"
}

// Generate sends the prompt as a single user message. A response with no
// choices yields "".
func (s *OpenRouter) Generate(ctx context.Context, prompt string) (string, error) {
	openrouterReq := map[string]interface{}{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if s.maxOutputTokens > 0 {
		openrouterReq["max_tokens"] = s.maxOutputTokens
	}

	jsonData, err := json.Marshal(openrouterReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://epubtran.local")
	httpReq.Header.Set("X-Title", "EpubTran")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openrouter returned status %d: %v", resp.StatusCode, errResp)
	}

	var openrouterResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&openrouterResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(openrouterResp.Choices) == 0 {
		return "", nil
	}
	return openrouterResp.Choices[0].Message.Content, nil
}
