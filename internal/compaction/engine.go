package compaction

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/agentrun/internal/agentloop"
)

// Engine implements agentloop.CompactionEngine: on context overflow it
// keeps the head (system + earliest user goal) and the tail (most recent
// KeepTailTurns "turns" worth of messages) verbatim, and replaces the
// middle with a single summarization message produced by Summarizer, using
// this package's chunked-summarize-with-fallback toolkit.
type Engine struct {
	Summarizer    Summarizer
	Config        *SummarizationConfig
	KeepHead      int // messages kept verbatim from the start (system + goal)
	KeepTailTurns int // assistant messages kept verbatim from the end, and everything after the oldest of them
}

// NewEngine builds an Engine with the following defaults: keep the
// first message (system prompt) plus the first user message, and the most
// recent 2 assistant turns verbatim.
func NewEngine(summarizer Summarizer, cfg *SummarizationConfig) *Engine {
	if cfg == nil {
		cfg = DefaultSummarizationConfig()
	}
	return &Engine{Summarizer: summarizer, Config: cfg, KeepHead: 2, KeepTailTurns: 2}
}

// Compact satisfies agentloop.CompactionEngine.
func (e *Engine) Compact(ctx context.Context, messages []agentloop.Message, model string) (agentloop.CompactionResult, error) {
	before := estimateAgentLoopTokens(messages)

	if len(messages) <= e.KeepHead {
		return agentloop.CompactionResult{Messages: messages, TokensBefore: before, TokensAfter: before, Truncated: false}, nil
	}

	tailStart := findTailStart(messages, e.KeepTailTurns)
	if tailStart <= e.KeepHead {
		// Nothing meaningful to summarize in the middle.
		return agentloop.CompactionResult{Messages: messages, TokensBefore: before, TokensAfter: before, Truncated: false}, nil
	}

	head := messages[:e.KeepHead]
	middle := messages[e.KeepHead:tailStart]
	tail := messages[tailStart:]

	cfg := *e.Config
	cfg.Model = model
	summary, truncated, err := e.summarizeMiddle(ctx, middle, &cfg)
	if err != nil {
		return agentloop.CompactionResult{}, err
	}

	out := make([]agentloop.Message, 0, len(head)+1+len(tail))
	out = append(out, head...)
	out = append(out, agentloop.TextMessage(agentloop.RoleSystem, "[conversation summary]\n"+summary))
	out = append(out, tail...)

	after := estimateAgentLoopTokens(out)
	return agentloop.CompactionResult{Messages: out, TokensBefore: before, TokensAfter: after, Truncated: truncated}, nil
}

func (e *Engine) summarizeMiddle(ctx context.Context, middle []agentloop.Message, cfg *SummarizationConfig) (string, bool, error) {
	converted := toCompactionMessages(middle)
	summary, err := SummarizeWithFallback(ctx, converted, e.Summarizer, cfg)
	if err != nil {
		return "", false, err
	}
	truncated := IsOversizedForSummary(&Message{Content: summary}, cfg.ContextWindow)
	return summary, truncated, nil
}

// findTailStart returns the index of the first message belonging to the
// last keepTailTurns assistant turns (an assistant message plus the
// tool/user messages that follow it before the next assistant message).
func findTailStart(messages []agentloop.Message, keepTailTurns int) int {
	if keepTailTurns <= 0 {
		return len(messages)
	}
	remaining := keepTailTurns
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == agentloop.RoleAssistant {
			remaining--
			if remaining == 0 {
				return i
			}
		}
	}
	return 0
}

func toCompactionMessages(messages []agentloop.Message) []*Message {
	out := make([]*Message, 0, len(messages))
	for _, m := range messages {
		cm := &Message{Role: string(m.Role), Content: m.PlainText()}
		var calls []json.RawMessage
		var results []json.RawMessage
		for _, p := range m.Parts {
			switch p.Kind {
			case agentloop.PartToolCall:
				calls = append(calls, p.ToolCallArgs)
			case agentloop.PartToolResult:
				results = append(results, p.ToolResultPayload)
			}
		}
		if len(calls) > 0 {
			if b, err := json.Marshal(calls); err == nil {
				cm.ToolCalls = string(b)
			}
		}
		if len(results) > 0 {
			if b, err := json.Marshal(results); err == nil {
				cm.ToolResults = string(b)
			}
		}
		out = append(out, cm)
	}
	return out
}

func estimateAgentLoopTokens(messages []agentloop.Message) int {
	return EstimateMessagesTokens(toCompactionMessages(messages))
}
