package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/haasonsaas/agentrun/internal/agent"
	"github.com/haasonsaas/agentrun/internal/backoff"
	"github.com/haasonsaas/agentrun/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements ChatProvider against OpenAI's chat completions
// API (Protocol B: chunked choices[].delta events).
type OpenAIProvider struct {
	client     *openai.Client
	apiKey     string
	maxRetries int
	retry      backoff.Policy
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	retry := backoff.Policy{Base: time.Second, Max: 30 * time.Second, Factor: 2}
	if apiKey == "" {
		return &OpenAIProvider{apiKey: "", maxRetries: 3, retry: retry}
	}
	return &OpenAIProvider{
		client:     openai.NewClient(apiKey),
		apiKey:     apiKey,
		maxRetries: 3,
		retry:      retry,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Models returns available OpenAI models.
func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextSize: 16385, SupportsVision: false},
		{ID: "gpt-4", Name: "GPT-4", ContextSize: 8192, SupportsVision: false},
	}
}

func (p *OpenAIProvider) SupportsTools() bool { return true }

// StreamChat implements ChatProvider. It opens a chunked chat-completion
// stream, forwards each delta to sink as it arrives, and assembles the
// final CompletionResponse from the accumulated text and tool calls.
func (p *OpenAIProvider) StreamChat(ctx context.Context, req *ChatRequest, sink DeltaSink) (*CompletionResponse, error) {
	if p.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	messages, err := p.convertToOpenAIMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.getModel(req.Model),
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertToOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	err = backoff.Do(ctx, p.retry, p.maxRetries+1, p.isRetryableError, func(int) error {
		var serr error
		stream, serr = p.client.CreateChatCompletionStream(ctx, chatReq)
		return serr
	})
	if err != nil {
		if err == ctx.Err() {
			return nil, err
		}
		return nil, fmt.Errorf("openai: request failed: %w", p.wrapError(err, chatReq.Model))
	}
	defer stream.Close()

	return p.processStream(ctx, stream, sink, chatReq.Model)
}

// processStream consumes the chunked response, accumulating tool-call
// arguments by index (a tool_call_index -> (id, name, accumulated_args)
// map) and forwarding every delta to sink as it arrives.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, sink DeltaSink, model string) (*CompletionResponse, error) {
	var content strings.Builder
	toolCalls := make(map[int]*models.ToolCall)
	toolCallOrder := []int{}
	var usage TokenUsage
	finish := FinishStop
	responseID := ""

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, p.wrapError(err, model)
		}

		if responseID == "" {
			responseID = response.ID
		}
		if response.Usage != nil {
			usage.PromptTokens = response.Usage.PromptTokens
			usage.CompletionTokens = response.Usage.CompletionTokens
			usage.TotalTokens = response.Usage.TotalTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			sink(GenerationDelta{Kind: DeltaContent, Text: delta.Content})
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			existing, seen := toolCalls[index]
			if !seen {
				existing = &models.ToolCall{}
				toolCalls[index] = existing
				toolCallOrder = append(toolCallOrder, index)
			}
			if tc.ID != "" {
				existing.ID = tc.ID
			}
			if tc.Function.Name != "" {
				existing.Name = tc.Function.Name
			}
			if !seen || (tc.ID != "" && tc.Function.Name != "") {
				sink(GenerationDelta{Kind: DeltaToolUse, ToolUseIndex: index, ToolUseID: existing.ID, ToolUseName: existing.Name})
			}
			if tc.Function.Arguments != "" {
				accumulated := string(existing.Input) + tc.Function.Arguments
				existing.Input = json.RawMessage(accumulated)
				sink(GenerationDelta{Kind: DeltaToolUse, ToolUseIndex: index, InputChunk: tc.Function.Arguments})
			}
		}

		if reason := string(response.Choices[0].FinishReason); reason != "" {
			finish = mapOpenAIFinishReason(reason)
		}
	}

	sink(GenerationDelta{Kind: DeltaUsage, Usage: &usage})

	msg := ChatMessage{Role: RoleAssistant, Content: content.String()}
	for _, index := range toolCallOrder {
		tc := toolCalls[index]
		if tc.ID == "" || tc.Name == "" {
			continue
		}
		if !json.Valid(tc.Input) {
			encoded, _ := json.Marshal(string(tc.Input))
			tc.Input = encoded
		}
		msg.ToolCalls = append(msg.ToolCalls, *tc)
	}
	if len(msg.ToolCalls) > 0 {
		finish = FinishToolCalls
	}

	return &CompletionResponse{
		ID:     responseID,
		Model:  model,
		Object: "chat.completion",
		Choices: []Choice{{
			FinishReason: &finish,
			Index:        0,
			Message:      msg,
		}},
		Usage: &usage,
	}, nil
}

func mapOpenAIFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishOther
	}
}

// convertToOpenAIMessages converts ChatMessages to OpenAI's wire format.
func (p *OpenAIProvider) convertToOpenAIMessages(messages []ChatMessage, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleUser, RoleSystem:
			oaiMsg := openai.ChatCompletionMessage{Role: string(msg.Role)}
			hasImages := false
			for _, att := range msg.Attachments {
				if att.Type == "image" {
					hasImages = true
					break
				}
			}
			if hasImages {
				var parts []openai.ChatMessagePart
				if msg.Content != "" {
					parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: msg.Content})
				}
				for _, att := range msg.Attachments {
					if att.Type == "image" {
						parts = append(parts, openai.ChatMessagePart{
							Type:     openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{URL: att.URL, Detail: openai.ImageURLDetailAuto},
						})
					}
				}
				oaiMsg.MultiContent = parts
			} else {
				oaiMsg.Content = msg.Content
			}
			result = append(result, oaiMsg)

		case RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					}
				}
			}
			result = append(result, oaiMsg)

		case RoleTool:
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		}
	}

	return result, nil
}

// convertToOpenAITools converts agent.Tool definitions to OpenAI's function
// schema.
func (p *OpenAIProvider) convertToOpenAITools(tools []agent.Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema(), &schemaMap); err != nil {
			schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

func (p *OpenAIProvider) getModel(model string) string {
	if model == "" {
		return "gpt-4o"
	}
	return model
}

func (p *OpenAIProvider) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded", "connection reset"} {
		if strings.Contains(errMsg, marker) {
			return true
		}
	}
	return false
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr := NewProviderError("openai", model, err)
		providerErr = providerErr.WithStatus(apiErr.HTTPStatusCode).WithMessage(apiErr.Message)
		if apiErr.Code != nil {
			if code, ok := apiErr.Code.(string); ok {
				providerErr = providerErr.WithCode(code)
			}
		}
		return providerErr
	}

	return NewProviderError("openai", model, err)
}
