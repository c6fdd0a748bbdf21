package agentloop

import "context"

// ToolExecutionStatus tags the outcome of one tool dispatch.
type ToolExecutionStatus string

const (
	ToolCompleted ToolExecutionStatus = "completed"
	ToolCancelled ToolExecutionStatus = "cancelled"
)

// ToolExecutionResult is what a ToolExecutor returns for one call.
type ToolExecutionResult struct {
	Status  ToolExecutionStatus
	Content string
	IsError bool
}

// ToolExecutor dispatches a proposed tool call to its handler and returns
// once the call finishes, is rejected upstream, or is cancelled.
type ToolExecutor interface {
	Execute(ctx context.Context, call ProposedToolCall) (ToolExecutionResult, error)
}

// InferenceClient is the capability the loop drives once per turn. It is
// satisfied by an adapter over providers.ChatProvider; kept as its own
// interface here so the loop depends on agentloop's own Message/ProposedToolCall
// shapes rather than the wire-protocol package directly.
type InferenceClient interface {
	Infer(ctx context.Context, model string, messages []Message, opts InferOptions, sink func(TextOrThinkingDelta)) (InferResult, error)
}

// InferOptions carries the per-run configuration relevant to one inference
// call.
type InferOptions struct {
	SystemPrompt   string
	Tools          []ToolSpec
	MaxOutputTokens int
	Temperature    *float64
	ProviderOptions map[string]any
}

// ToolSpec describes a tool the provider may call, independent of the
// agentloop.ToolExecutor that will later run it.
type ToolSpec struct {
	Name        string
	Description string
	Schema      []byte
}

// TextOrThinkingDelta is forwarded to the loop as inference streams in;
// the loop re-emits these as TextDelta/ThinkingDelta events.
type TextOrThinkingDelta struct {
	Thinking bool
	Text     string
}

// InferResult is the assembled result of one inference call.
type InferResult struct {
	Message      Message // assistant message: text + tool-call parts only
	Usage        TokenUsage
	FinishReason TurnFinishReason
}

// CompactionResult is what a CompactionEngine returns.
type CompactionResult struct {
	Messages     []Message
	TokensBefore int
	TokensAfter  int
	Truncated    bool
}

// CompactionEngine rewrites history into a summary + tail when the provider
// reports a context overflow.
type CompactionEngine interface {
	Compact(ctx context.Context, messages []Message, model string) (CompactionResult, error)
}

// ContextReducer is the deterministic, cheap pre-inference reducer.
// It never calls the model; it is applied to a clone of the history on
// every turn before the inference call.
type ContextReducer interface {
	Reduce(messages []Message) []Message
}

// Hooks are invoked sequentially, never concurrently, at fixed points.
// Any hook may be nil.
type Hooks struct {
	BeforeInference     func(ctx context.Context, messages []Message)
	AfterInference      func(ctx context.Context, result InferResult)
	BeforeToolExecution func(ctx context.Context, call ProposedToolCall)
	AfterToolExecution  func(ctx context.Context, call ProposedToolCall, result ToolExecutionResult)
	OnError             func(ctx context.Context, err error)
}

func (h *Hooks) beforeInference(ctx context.Context, messages []Message) {
	if h != nil && h.BeforeInference != nil {
		h.BeforeInference(ctx, messages)
	}
}

func (h *Hooks) afterInference(ctx context.Context, result InferResult) {
	if h != nil && h.AfterInference != nil {
		h.AfterInference(ctx, result)
	}
}

func (h *Hooks) beforeToolExecution(ctx context.Context, call ProposedToolCall) {
	if h != nil && h.BeforeToolExecution != nil {
		h.BeforeToolExecution(ctx, call)
	}
}

func (h *Hooks) afterToolExecution(ctx context.Context, call ProposedToolCall, result ToolExecutionResult) {
	if h != nil && h.AfterToolExecution != nil {
		h.AfterToolExecution(ctx, call, result)
	}
}

func (h *Hooks) onError(ctx context.Context, err error) {
	if h != nil && h.OnError != nil {
		h.OnError(ctx, err)
	}
}
