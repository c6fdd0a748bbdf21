package agentloop

import "github.com/haasonsaas/agentrun/internal/backoff"

// RetryConfig bounds the inference retry loop's exponential backoff
// (base, factor, cap, attempt).
type RetryConfig struct {
	MaxAttempts int
	BasePolicy  backoff.Policy
}

// DefaultRetryConfig mirrors backoff.DefaultPolicy but with jitter disabled,
// since these numeric semantics are deterministic
// (min(cap, base*factor^(attempt-1))).
func DefaultRetryConfig() RetryConfig {
	p := backoff.DefaultPolicy()
	p.Jitter = 0
	return RetryConfig{MaxAttempts: 3, BasePolicy: p}
}

// CompactionConfig toggles the overflow-triggered compaction pass.
type CompactionConfig struct {
	Enabled bool
}

// Config is the Agent Loop's run configuration.
type Config struct {
	Model           string
	SystemPrompt    string
	Tools           []ToolSpec
	MaxTurns        int
	MaxOutputTokens int
	Retry           RetryConfig
	Compaction      CompactionConfig
	ProviderOptions map[string]any

	// AutoApprove pre-populates tool decisions for blanket-approved tool
	// classes. Nil means "prompt" for everything.
	AutoApprove AutoApprovePredicate
}
