// Package analysis provides AI enrichment of health events: prompt
// construction, reasoning model invocation with bounded retry, response
// parsing, and the rule-based fallback used when the model is unavailable.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ModelClient invokes the external reasoning model: prompt in, raw response
// text out. Implementations must be safe for concurrent use.
type ModelClient interface {
	Analyze(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// HTTPModelClient calls a reasoning model behind an HTTP JSON endpoint.
type HTTPModelClient struct {
	endpoint   string
	modelID    string
	httpClient *http.Client
}

// NewHTTPModelClient creates a model client for the given endpoint and model
// identifier.
func NewHTTPModelClient(endpoint, modelID string) *HTTPModelClient {
	return &HTTPModelClient{
		endpoint: endpoint,
		modelID:  modelID,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type modelRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type modelResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Analyze posts the prompt to the model endpoint and returns the response
// text. Throttling and gateway errors surface with their status code so the
// retry policy classifies them as transient.
func (c *HTTPModelClient) Analyze(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	body, err := json.Marshal(modelRequest{
		Model:       c.modelID,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal model request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read model response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model returned status %d: %s", resp.StatusCode, truncateForError(respBody))
	}

	var parsed modelResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse model response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("model error: %s", parsed.Error)
	}
	if parsed.Content == "" {
		return "", fmt.Errorf("model returned empty content")
	}

	return parsed.Content, nil
}

func truncateForError(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
