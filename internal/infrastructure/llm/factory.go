package llm

import (
	"fmt"
	"strings"

	"UpdatesDigest/internal/config"
	"UpdatesDigest/internal/ports"
)

// NewGenerator picks the vendor adapter named in configuration. An empty API
// key yields nil so the pipeline can run without generation.
func NewGenerator(cfg config.LLMConfig) (ports.TextGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Vendor)) {
	case "", "openai", "chatgpt":
		return NewChatGPTClient(cfg), nil
	case "anthropic", "claude":
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm vendor %q", cfg.Vendor)
	}
}
