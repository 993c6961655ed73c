package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"UpdatesDigest/internal/config"
	"UpdatesDigest/internal/ports"
)

func TestChatGPTComplete(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"model":"gpt-test","choices":[{"message":{"role":"assistant","content":"  digest body \n"}}]}`))
	}))
	defer srv.Close()

	client := NewChatGPTClient(config.LLMConfig{Endpoint: srv.URL, Model: "gpt-test", APIKey: "key"})
	out, err := client.Complete(context.Background(), ports.CompletionRequest{System: "sys", User: "items", MaxTokens: 100, Temperature: 0.2})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Text != "digest body" || out.Model != "gpt-test" {
		t.Fatalf("unexpected completion %+v", out)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "items" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
	if got.MaxTokens != 100 || got.Temperature != 0.2 {
		t.Fatalf("unexpected sampling %+v", got)
	}
}

func TestChatGPTErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewChatGPTClient(config.LLMConfig{Endpoint: srv.URL, Model: "gpt-test", APIKey: "key"})
	_, err := client.Complete(context.Background(), ports.CompletionRequest{User: "x"})
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestChatGPTNoChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewChatGPTClient(config.LLMConfig{Endpoint: srv.URL, Model: "gpt-test", APIKey: "key"})
	if _, err := client.Complete(context.Background(), ports.CompletionRequest{User: "x"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestAnthropicComplete(t *testing.T) {
	t.Parallel()

	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" || r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("missing anthropic headers")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"model":"claude-test","content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}]}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(config.LLMConfig{Endpoint: srv.URL, Model: "claude-test", APIKey: "key"})
	out, err := client.Complete(context.Background(), ports.CompletionRequest{System: "sys", User: "items"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Text != "part one part two" || out.Model != "claude-test" {
		t.Fatalf("unexpected completion %+v", out)
	}
	if got.System != "sys" || got.MaxTokens != defaultAnthropicTokens || len(got.Messages) != 1 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestAnthropicErrorBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(config.LLMConfig{Endpoint: srv.URL, Model: "claude-test", APIKey: "key"})
	_, err := client.Complete(context.Background(), ports.CompletionRequest{User: "x"})
	if err == nil || !strings.Contains(err.Error(), "overloaded_error") {
		t.Fatalf("expected overloaded error, got %v", err)
	}
}

func TestNewGenerator(t *testing.T) {
	t.Parallel()

	if g, err := NewGenerator(config.LLMConfig{Vendor: "openai"}); g != nil || err != nil {
		t.Fatalf("missing key must disable generation, got %v %v", g, err)
	}
	g, err := NewGenerator(config.LLMConfig{Vendor: "anthropic", APIKey: "k", Model: "m", Endpoint: DefaultOpenAIEndpoint})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	a, ok := g.(*AnthropicClient)
	if !ok || a.endpoint != DefaultAnthropicEndpoint {
		t.Fatalf("unexpected generator %#v", g)
	}
	if _, err := NewGenerator(config.LLMConfig{Vendor: "mystery", APIKey: "k"}); err == nil {
		t.Fatal("expected unknown vendor error")
	}
}
