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

// DefaultOpenAIEndpoint is the chat-completions URL used when none is configured.
const DefaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// ChatGPTClient implements ports.TextGenerator backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ ports.TextGenerator = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.LLMConfig) *ChatGPTClient {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultOpenAIEndpoint
	}
	return &ChatGPTClient{
		endpoint: endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one system+user exchange and returns the first choice.
func (c *ChatGPTClient) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	if c == nil {
		return ports.Completion{}, fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return ports.Completion{}, fmt.Errorf("chatgpt client misconfigured")
	}

	messages := make([]chatMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.User})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return ports.Completion{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ports.Completion{}, fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ports.Completion{}, fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(out.Choices) == 0 {
		return ports.Completion{}, fmt.Errorf("chatgpt returned no choices")
	}

	model := out.Model
	if model == "" {
		model = c.model
	}
	return ports.Completion{Text: strings.TrimSpace(out.Choices[0].Message.Content), Model: model}, nil
}
