package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"UpdatesDigest/internal/config"
	"UpdatesDigest/internal/ports"
)

const (
	// DefaultAnthropicEndpoint is the Messages API URL.
	DefaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion         = "2023-06-01"
	defaultAnthropicTokens   = 1024
)

// AnthropicClient implements ports.TextGenerator for the Messages API.
type AnthropicClient struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

var _ ports.TextGenerator = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration.
func NewAnthropicClient(cfg config.LLMConfig) *AnthropicClient {
	endpoint := cfg.Endpoint
	if endpoint == "" || endpoint == DefaultOpenAIEndpoint {
		endpoint = DefaultAnthropicEndpoint
	}
	return &AnthropicClient{
		endpoint: endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete concatenates the text blocks of the response.
func (c *AnthropicClient) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	if c.apiKey == "" || c.model == "" {
		return ports.Completion{}, fmt.Errorf("anthropic client misconfigured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicTokens
	}
	temperature := req.Temperature

	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      strings.TrimSpace(req.System),
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
		Temperature: &temperature,
	})
	if err != nil {
		return ports.Completion{}, fmt.Errorf("marshal anthropic payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("read anthropic response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr anthropicError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return ports.Completion{}, fmt.Errorf("anthropic error %s: %s: %s", resp.Status, apiErr.Error.Type, apiErr.Error.Message)
		}
		return ports.Completion{}, fmt.Errorf("anthropic error %s", resp.Status)
	}

	var out anthropicResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ports.Completion{}, fmt.Errorf("decode anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	model := out.Model
	if model == "" {
		model = c.model
	}
	return ports.Completion{Text: strings.TrimSpace(text.String()), Model: model}, nil
}
