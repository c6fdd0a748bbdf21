package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/agentrun/internal/agent"
	"github.com/haasonsaas/agentrun/internal/agent/providers"
	"github.com/haasonsaas/agentrun/pkg/models"
)

// ProviderAdapter satisfies InferenceClient by driving a providers.ChatProvider
// and translating between agentloop's typed-parts Message and the
// provider layer's role+content-plus-tool-calls ChatMessage.
type ProviderAdapter struct {
	Provider providers.ChatProvider
}

func NewProviderAdapter(p providers.ChatProvider) *ProviderAdapter {
	return &ProviderAdapter{Provider: p}
}

func (a *ProviderAdapter) Infer(ctx context.Context, model string, messages []Message, opts InferOptions, sink func(TextOrThinkingDelta)) (InferResult, error) {
	req := &providers.ChatRequest{
		Model:     model,
		System:    opts.SystemPrompt,
		Messages:  toChatMessages(messages),
		Tools:     toAgentTools(opts.Tools),
		MaxTokens: opts.MaxOutputTokens,
	}

	resp, err := a.Provider.StreamChat(ctx, req, func(d providers.GenerationDelta) {
		switch d.Kind {
		case providers.DeltaContent:
			if sink != nil {
				sink(TextOrThinkingDelta{Text: d.Text})
			}
		case providers.DeltaThinking:
			if sink != nil {
				sink(TextOrThinkingDelta{Thinking: true, Text: d.Text})
			}
		}
	})
	if err != nil {
		return InferResult{}, err
	}
	if len(resp.Choices) == 0 {
		return InferResult{}, fmt.Errorf("agentloop: provider returned no choices")
	}
	choice := resp.Choices[0]

	var usage TokenUsage
	if resp.Usage != nil {
		usage = *resp.Usage
	}
	finish := providers.FinishStop
	if choice.FinishReason != nil {
		finish = *choice.FinishReason
	}

	return InferResult{
		Message:      fromChatMessage(choice.Message),
		Usage:        usage,
		FinishReason: finish,
	}, nil
}

func toChatMessages(messages []Message) []providers.ChatMessage {
	out := make([]providers.ChatMessage, 0, len(messages))
	for _, m := range messages {
		cm := providers.ChatMessage{Role: providers.Role(m.Role)}
		for _, p := range m.Parts {
			switch p.Kind {
			case PartText:
				cm.Content += p.Text
			case PartToolCall:
				cm.ToolCalls = append(cm.ToolCalls, models.ToolCall{ID: p.ToolCallID, Name: p.ToolCallName, Input: p.ToolCallArgs})
			case PartToolResult:
				content := string(p.ToolResultPayload)
				cm.ToolResults = append(cm.ToolResults, models.ToolResult{ToolCallID: p.ToolResultCallID, Content: content, IsError: p.ToolResultIsError})
			case PartImage:
				cm.Attachments = append(cm.Attachments, models.Attachment{Type: "image", URL: p.ImageRef})
			}
		}
		out = append(out, cm)
	}
	return out
}

func fromChatMessage(m providers.ChatMessage) Message {
	var parts []ContentPart
	if m.Content != "" {
		parts = append(parts, Text(m.Content))
	}
	for _, tc := range m.ToolCalls {
		parts = append(parts, ToolCall(tc.ID, tc.Name, tc.Input))
	}
	return Message{Role: Role(m.Role), Parts: parts}
}

// specTool adapts a ToolSpec to agent.Tool so it can flow through
// providers.ChatRequest.Tools. Execute is never called on this path: the
// provider layer only reads Name/Description/Schema to build the wire
// tool definition; actual dispatch goes through agentloop.ToolExecutor.
type specTool struct {
	spec ToolSpec
}

func (t specTool) Name() string            { return t.spec.Name }
func (t specTool) Description() string     { return t.spec.Description }
func (t specTool) Schema() json.RawMessage { return json.RawMessage(t.spec.Schema) }
func (t specTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return nil, fmt.Errorf("agentloop: specTool.Execute is not reachable from the inference path")
}

func toAgentTools(specs []ToolSpec) []agent.Tool {
	out := make([]agent.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, specTool{spec: s})
	}
	return out
}
