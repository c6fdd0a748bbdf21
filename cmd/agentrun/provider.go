package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/agentrun/internal/agent/providers"
)

// buildProvider resolves the requested provider name against the
// environment and returns the wire-format client the rest of the runtime
// talks to only through the providers.ChatProvider contract.
func buildProvider(name, model string) (providers.ChatProvider, string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		if model == "" {
			model = "claude-sonnet-4-20250514"
		}
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       apiKey,
			MaxRetries:   3,
			RetryDelay:   time.Second,
			DefaultModel: model,
		})
		if err != nil {
			return nil, "", err
		}
		return p, model, nil
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY is not set")
		}
		if model == "" {
			model = "gpt-4o"
		}
		return providers.NewOpenAIProvider(apiKey), model, nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q (want anthropic or openai)", name)
	}
}
