package providers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/agentrun/internal/agent"
)

// mockTool implements agent.Tool for testing.
type mockTool struct {
	name        string
	description string
	schema      json.RawMessage
}

func (m *mockTool) Name() string               { return m.name }
func (m *mockTool) Description() string        { return m.description }
func (m *mockTool) Schema() json.RawMessage    { return m.schema }
func (m *mockTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: "test result"}, nil
}

func TestNewAnthropicProvider(t *testing.T) {
	tests := []struct {
		name        string
		config      AnthropicConfig
		expectError bool
	}{
		{
			name: "valid config",
			config: AnthropicConfig{
				APIKey:       "test-key",
				MaxRetries:   3,
				RetryDelay:   time.Second,
				DefaultModel: "claude-sonnet-4-20250514",
			},
		},
		{
			name:        "missing API key",
			config:      AnthropicConfig{MaxRetries: 3},
			expectError: true,
		},
		{
			name:   "defaults applied",
			config: AnthropicConfig{APIKey: "test-key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewAnthropicProvider(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if provider.maxRetries <= 0 {
				t.Error("expected default maxRetries to be applied")
			}
			if provider.defaultModel == "" {
				t.Error("expected default model to be applied")
			}
		})
	}
}

func TestAnthropicProviderModels(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	models := provider.Models()
	if len(models) == 0 {
		t.Fatal("expected at least one model")
	}
	for _, m := range models {
		if m.ID == "" {
			t.Error("model missing ID")
		}
	}
}

func TestAnthropicConvertMessages(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	messages := []ChatMessage{
		{Role: RoleSystem, Content: "ignored: carried separately via params.System"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	}

	converted, err := provider.convertMessages(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(converted) != 2 {
		t.Fatalf("expected system message to be dropped, got %d messages", len(converted))
	}
}

func TestAnthropicConvertTools(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tools := []agent.Tool{
		&mockTool{
			name:        "run_command",
			description: "runs a shell command",
			schema:      json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`),
		},
	}

	converted, err := provider.convertTools(tools)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(converted) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(converted))
	}
}

func TestAnthropicIsRetryableError(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"rate limit", errWithMessage("429 rate_limit exceeded"), true},
		{"server error", errWithMessage("500 internal server error"), true},
		{"timeout", errWithMessage("context deadline exceeded"), true},
		{"invalid request", errWithMessage("400 invalid request: missing field"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := provider.isRetryableError(tt.err); got != tt.retryable {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestMapAnthropicStopReason(t *testing.T) {
	tests := []struct {
		reason string
		want   FinishReason
	}{
		{"end_turn", FinishStop},
		{"stop_sequence", FinishStop},
		{"tool_use", FinishToolCalls},
		{"max_tokens", FinishLength},
		{"unknown_reason", FinishOther},
	}
	for _, tt := range tests {
		if got := mapAnthropicStopReason(tt.reason); got != tt.want {
			t.Errorf("mapAnthropicStopReason(%q) = %v, want %v", tt.reason, got, tt.want)
		}
	}
}

func TestGetModelAndMaxTokens(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", DefaultModel: "claude-sonnet-4-20250514"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := provider.getModel(""); got != "claude-sonnet-4-20250514" {
		t.Errorf("getModel(\"\") = %q, want default", got)
	}
	if got := provider.getModel("claude-3-haiku-20240307"); got != "claude-3-haiku-20240307" {
		t.Errorf("getModel override not respected: %q", got)
	}
	if got := provider.getMaxTokens(0); got != 4096 {
		t.Errorf("getMaxTokens(0) = %d, want 4096 default", got)
	}
	if got := provider.getMaxTokens(1000); got != 1000 {
		t.Errorf("getMaxTokens(1000) = %d, want 1000", got)
	}
}

type simpleError struct{ msg string }

func (e *simpleError) Error() string { return e.msg }

func errWithMessage(msg string) error { return &simpleError{msg: msg} }
