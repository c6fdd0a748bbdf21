package providers

import (
	"context"

	"github.com/haasonsaas/agentrun/internal/agent"
	"github.com/haasonsaas/agentrun/pkg/models"
)

// Role identifies the author of a ChatMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is one message in a ChatRequest's conversation history.
type ChatMessage struct {
	Role        Role
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
	Attachments []models.Attachment
}

// ChatRequest carries the parameters for a single stream_chat call.
type ChatRequest struct {
	Model                string
	System               string
	Messages             []ChatMessage
	Tools                []agent.Tool
	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int
}

// DeltaKind tags the payload carried by a GenerationDelta.
type DeltaKind string

const (
	DeltaContent  DeltaKind = "content"
	DeltaThinking DeltaKind = "thinking"
	DeltaToolUse  DeltaKind = "tool_use"
	DeltaUsage    DeltaKind = "usage"
)

// GenerationDelta is one incremental unit of a streaming completion: one
// flat struct tagged by Kind, with only the fields relevant to that kind
// populated.
type GenerationDelta struct {
	Kind DeltaKind

	// Text holds the incremental text for DeltaContent/DeltaThinking.
	Text string

	// ToolUse* fields apply to DeltaToolUse. Index identifies which
	// tool call this chunk belongs to; ID/Name are populated once, on
	// the first chunk for that index; InputChunk is a fragment of the
	// tool's JSON arguments to be concatenated by the caller.
	ToolUseIndex int
	ToolUseID    string
	ToolUseName  string
	InputChunk   string

	// Usage applies to DeltaUsage.
	Usage *TokenUsage
}

// DeltaSink receives GenerationDelta values as a stream_chat call progresses.
type DeltaSink func(GenerationDelta)

// TokenUsage is a provider-agnostic accounting of tokens consumed by one
// inference call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Add accumulates another usage record into this one, saturating instead of
// wrapping on overflow.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens = saturatingAdd(u.PromptTokens, other.PromptTokens)
	u.CompletionTokens = saturatingAdd(u.CompletionTokens, other.CompletionTokens)
	u.TotalTokens = saturatingAdd(u.TotalTokens, other.TotalTokens)
	u.CacheReadTokens = saturatingAdd(u.CacheReadTokens, other.CacheReadTokens)
	u.CacheWriteTokens = saturatingAdd(u.CacheWriteTokens, other.CacheWriteTokens)
}

func saturatingAdd(a, b int) int {
	sum := a + b
	if sum < a || sum < b {
		return int(^uint(0) >> 1) // math.MaxInt
	}
	return sum
}

// FinishReason is the unified set of reasons an inference call can end,
// after mapping from whatever provider-specific string arrived.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength         FinishReason = "length"
	FinishError          FinishReason = "error"
	FinishContentFilter  FinishReason = "content_filter"
	FinishOther          FinishReason = "other"
)

// Choice is one candidate response within a CompletionResponse. Providers in
// this package always return exactly one.
type Choice struct {
	FinishReason *FinishReason
	Index        int
	Message      ChatMessage
}

// CompletionResponse is the fully assembled result of one stream_chat call.
type CompletionResponse struct {
	ID        string
	Model     string
	Object    string
	CreatedMs int64
	Choices   []Choice
	Usage     *TokenUsage
}

// ChatProvider is the contract both wire-format clients in this package
// implement: a single streaming call that both reports incremental deltas
// through sink and returns the fully assembled response.
type ChatProvider interface {
	// StreamChat streams a completion for req, invoking sink for every
	// delta as it arrives, and returns the fully assembled response once
	// the stream ends.
	StreamChat(ctx context.Context, req *ChatRequest, sink DeltaSink) (*CompletionResponse, error)

	// Name returns the provider identifier used for routing and logging.
	Name() string

	// Models returns the list of available models.
	Models() []agent.Model

	// SupportsTools reports whether this provider supports tool calling.
	SupportsTools() bool
}
