// Package providers implements the streaming chat clients used by the agent
// loop: one for Anthropic's tagged-event SSE protocol, one for the
// OpenAI-style chunked-choices protocol. Both expose the same
// ChatProvider.StreamChat contract so the loop never has to know which wire
// format is behind a given model.
//
// Example usage:
//
//	provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
//	    APIKey:       os.Getenv("ANTHROPIC_API_KEY"),
//	    DefaultModel: "claude-sonnet-4-20250514",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := provider.StreamChat(ctx, &providers.ChatRequest{
//	    Messages: []providers.ChatMessage{{Role: providers.RoleUser, Content: "Hello!"}},
//	}, func(d providers.GenerationDelta) {
//	    if d.Kind == providers.DeltaContent {
//	        fmt.Print(d.Text)
//	    }
//	})
package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/haasonsaas/agentrun/internal/agent"
	"github.com/haasonsaas/agentrun/internal/backoff"
	"github.com/haasonsaas/agentrun/pkg/models"
)

// AnthropicProvider implements ChatProvider against Anthropic's Messages API
// (Protocol A: tagged SSE events). It converts ChatRequest/ChatMessage into
// the SDK's MessageNewParams, drives the SDK's own SSE stream, and adapts its
// tagged event union into GenerationDelta values.
type AnthropicProvider struct {
	client       anthropic.Client
	apiKey       string
	maxRetries   int
	retry        backoff.Policy
	defaultModel string
}

// AnthropicConfig configures a new AnthropicProvider. Only APIKey is
// required; the rest default to sane values.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewAnthropicProvider builds an AnthropicProvider, applying defaults for any
// unset optional fields. Returns an error if APIKey is empty.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(options...),
		apiKey:       config.APIKey,
		maxRetries:   config.MaxRetries,
		retry:        backoff.Policy{Base: config.RetryDelay, Max: 30 * time.Second, Factor: 2},
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Models returns the Claude models this provider is known to support.
func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextSize: 200000, SupportsVision: true},
	}
}

func (p *AnthropicProvider) SupportsTools() bool { return true }

// StreamChat implements ChatProvider. It retries transient failures up to
// maxRetries times with exponential backoff, then streams SSE events,
// forwarding deltas to sink as they arrive and assembling the final
// CompletionResponse.
func (p *AnthropicProvider) StreamChat(ctx context.Context, req *ChatRequest, sink DeltaSink) (*CompletionResponse, error) {
	model := p.getModel(req.Model)

	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	err := backoff.Do(ctx, p.retry, p.maxRetries+1, p.isRetryableError, func(int) error {
		var serr error
		stream, serr = p.createStream(ctx, req)
		if serr != nil {
			return p.wrapError(serr, model)
		}
		return nil
	})
	if err != nil {
		if err == ctx.Err() {
			return nil, err
		}
		return nil, fmt.Errorf("anthropic: request failed: %w", p.wrapError(err, model))
	}

	return p.processStream(stream, sink, model)
}

func (p *AnthropicProvider) createStream(ctx context.Context, req *ChatRequest) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.getModel(req.Model)),
		Messages:  messages,
		MaxTokens: int64(p.getMaxTokens(req.MaxTokens)),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	if req.EnableThinking {
		budget := int64(req.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	return p.client.Messages.NewStreaming(ctx, params), nil
}

// maxEmptyStreamEvents bounds how many consecutive no-op SSE events (pings,
// unrecognized types) a stream may emit before it's treated as malformed.
const maxEmptyStreamEvents = 300

// processStream consumes the SDK's tagged-event stream, forwarding each
// delta to sink as it arrives, and assembles the final CompletionResponse
// once message_stop arrives.
func (p *AnthropicProvider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], sink DeltaSink, model string) (*CompletionResponse, error) {
	var assistantContent strings.Builder
	var pendingToolCalls []pendingAnthropicToolCall
	var currentToolCall *pendingAnthropicToolCall
	var currentToolInput strings.Builder
	var usage TokenUsage
	var finish FinishReason
	emptyEvents := 0
	responseID := ""

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			messageStart := event.AsMessageStart()
			responseID = messageStart.Message.ID
			if messageStart.Message.Usage.InputTokens > 0 {
				usage.PromptTokens = int(messageStart.Message.Usage.InputTokens)
			}
			if messageStart.Message.Usage.CacheReadInputTokens > 0 {
				usage.CacheReadTokens = int(messageStart.Message.Usage.CacheReadInputTokens)
			}
			if messageStart.Message.Usage.CacheCreationInputTokens > 0 {
				usage.CacheWriteTokens = int(messageStart.Message.Usage.CacheCreationInputTokens)
			}
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolCall = &pendingAnthropicToolCall{id: toolUse.ID, name: toolUse.Name}
				currentToolInput.Reset()
				sink(GenerationDelta{Kind: DeltaToolUse, ToolUseIndex: len(pendingToolCalls), ToolUseID: toolUse.ID, ToolUseName: toolUse.Name})
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					assistantContent.WriteString(delta.Text)
					sink(GenerationDelta{Kind: DeltaContent, Text: delta.Text})
					processed = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					sink(GenerationDelta{Kind: DeltaThinking, Text: delta.Thinking})
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
					idx := len(pendingToolCalls)
					sink(GenerationDelta{Kind: DeltaToolUse, ToolUseIndex: idx, InputChunk: delta.PartialJSON})
					processed = true
				}
			}

		case "content_block_stop":
			if currentToolCall != nil {
				currentToolCall.rawInput = currentToolInput.String()
				pendingToolCalls = append(pendingToolCalls, *currentToolCall)
				currentToolCall = nil
				processed = true
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Usage.OutputTokens > 0 {
				usage.CompletionTokens = int(messageDelta.Usage.OutputTokens)
			}
			finish = mapAnthropicStopReason(string(messageDelta.Delta.StopReason))
			processed = true

		case "message_stop":
			sink(GenerationDelta{Kind: DeltaUsage, Usage: &usage})
			return p.assembleResponse(responseID, model, assistantContent.String(), pendingToolCalls, usage, finish), nil

		case "error":
			return nil, p.wrapError(errors.New("anthropic stream error"), model)
		}

		if processed {
			emptyEvents = 0
		} else if event.Type != "ping" {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				return nil, p.wrapError(fmt.Errorf("stream appears malformed: %d consecutive unrecognized events", emptyEvents), model)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, p.wrapError(err, model)
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return p.assembleResponse(responseID, model, assistantContent.String(), pendingToolCalls, usage, finish), nil
}

type pendingAnthropicToolCall struct {
	id, name, rawInput string
}

func (p *AnthropicProvider) assembleResponse(id, model, text string, toolCalls []pendingAnthropicToolCall, usage TokenUsage, finish FinishReason) *CompletionResponse {
	msg := ChatMessage{Role: RoleAssistant, Content: text}
	for _, tc := range toolCalls {
		raw := json.RawMessage(tc.rawInput)
		if !json.Valid(raw) {
			// Keep the raw string as the tool
			// call's arguments rather than failing assembly.
			encoded, _ := json.Marshal(tc.rawInput)
			raw = encoded
		}
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{ID: tc.id, Name: tc.name, Input: raw})
	}
	if len(toolCalls) > 0 && finish == "" {
		finish = FinishToolCalls
	} else if finish == "" {
		finish = FinishStop
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return &CompletionResponse{
		ID:     id,
		Model:  model,
		Object: "message",
		Choices: []Choice{{
			FinishReason: &finish,
			Index:        0,
			Message:      msg,
		}},
		Usage: &usage,
	}
}

func mapAnthropicStopReason(reason string) FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "tool_use":
		return FinishToolCalls
	case "max_tokens":
		return FinishLength
	default:
		return FinishOther
	}
}

// convertMessages converts ChatMessages into Anthropic's MessageParam shape.
// System-role messages are skipped; they are carried separately via
// params.System.
func (p *AnthropicProvider) convertMessages(messages []ChatMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, toolResult := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(toolResult.ToolCallID, toolResult.Content, toolResult.IsError))
		}
		for _, toolCall := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(toolCall.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(toolCall.ID, input, toolCall.Name))
		}

		if msg.Role == RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

// convertTools converts agent.Tool definitions into Anthropic's tool schema.
func (p *AnthropicProvider) convertTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name())
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description())
		result = append(result, toolParam)
	}
	return result, nil
}

func (p *AnthropicProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *AnthropicProvider) getMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return 4096
	}
	return maxTokens
}

// isRetryableError classifies whether a request should be retried: rate
// limits, server errors, timeouts, and connection failures are transient.
func (p *AnthropicProvider) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Transient()
	}
	errMsg := err.Error()
	for _, marker := range []string{"rate_limit", "429", "too many requests", "500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded", "connection reset", "connection refused", "no such host"} {
		if strings.Contains(errMsg, marker) {
			return true
		}
	}
	return false
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		providerErr := &ProviderError{Provider: "anthropic", Model: model, Cause: err, Kind: KindAPI}
		providerErr = providerErr.WithStatus(apiErr.StatusCode)

		message, code, requestID := "", "", apiErr.RequestID
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				message = payload.Error.Message
				code = payload.Error.Type
				if payload.RequestID != "" {
					requestID = payload.RequestID
				}
			}
		}
		if message != "" {
			providerErr = providerErr.WithMessage(message)
		} else if providerErr.Message == "" {
			providerErr.Message = "anthropic request failed"
		}
		if code != "" {
			providerErr = providerErr.WithCode(code)
		}
		if requestID != "" {
			providerErr = providerErr.WithRequestID(requestID)
		}
		return providerErr
	}

	return NewProviderError("anthropic", model, err)
}

// ParseSSEStream is a low-level SSE parser for callers that need to handle
// the `event:`/`data:` framing manually rather than through the SDK's own
// stream type: double-newline framed events, each passed to handler as its
// event type and raw data: payload (multi-line data joined with "\n").
// A "[DONE]" payload is skipped; ping events and JSON decoding are left
// to handler. Exported for tests and advanced use.
func ParseSSEStream(reader io.Reader, handler func(eventType, data string) error) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var eventType string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if eventType != "" || len(dataLines) > 0 {
				data := strings.Join(dataLines, "\n")
				if data == "[DONE]" {
					eventType, dataLines = "", nil
					continue
				}
				if err := handler(eventType, data); err != nil {
					return err
				}
				eventType, dataLines = "", nil
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return scanner.Err()
}
