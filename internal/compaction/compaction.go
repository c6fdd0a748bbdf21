// Package compaction rewrites conversation history into a shorter form
// when the provider reports context overflow: the head and the most recent
// turns are kept verbatim, and the middle is replaced with an LLM-written
// summary. The toolkit in this file handles token estimation, chunking,
// and summarize-with-fallback; Engine wires it to the agent loop.
package compaction

import (
	"context"
	"fmt"
	"strings"
)

const (
	// ChunkRatio is the default fraction of the context window used per
	// summarization chunk when MaxChunkTokens is unset.
	ChunkRatio = 0.4

	// OversizedThreshold is the fraction of the context window above
	// which a single message is noted rather than summarized.
	OversizedThreshold = 0.5

	// CharsPerToken is the approximate character-to-token ratio used for
	// estimation.
	CharsPerToken = 4

	// DefaultContextWindow is the fallback context window size in tokens.
	DefaultContextWindow = 100000

	// SummaryFallback stands in when there is no prior history to
	// summarize.
	SummaryFallback = "No prior history."
)

// Message is the summarizer-facing view of one conversation message: its
// role, text, and serialized tool traffic.
type Message struct {
	// Role is the message role ("user", "assistant", "system", "tool").
	Role string

	// Content is the text content of the message.
	Content string

	// ToolCalls holds serialized tool-call arguments, if any.
	ToolCalls string

	// ToolResults holds serialized tool-result payloads, if any.
	ToolResults string
}

// EstimateTokens estimates token count for a message at ~4 characters per
// token, rounding up.
func EstimateTokens(msg *Message) int {
	if msg == nil {
		return 0
	}
	chars := len(msg.Content) + len(msg.ToolCalls) + len(msg.ToolResults)
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// EstimateMessagesTokens estimates total tokens across all messages.
func EstimateMessagesTokens(messages []*Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg)
	}
	return total
}

// ChunkMessagesByMaxTokens splits messages into chunks no larger than
// maxTokens each. A single message over the limit gets its own chunk.
func ChunkMessagesByMaxTokens(messages []*Message, maxTokens int) [][]*Message {
	if len(messages) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		return [][]*Message{messages}
	}

	result := make([][]*Message, 0)
	currentChunk := make([]*Message, 0)
	currentTokens := 0

	for _, msg := range messages {
		msgTokens := EstimateTokens(msg)

		if msgTokens > maxTokens {
			if len(currentChunk) > 0 {
				result = append(result, currentChunk)
				currentChunk = make([]*Message, 0)
				currentTokens = 0
			}
			result = append(result, []*Message{msg})
			continue
		}

		if currentTokens+msgTokens > maxTokens && len(currentChunk) > 0 {
			result = append(result, currentChunk)
			currentChunk = make([]*Message, 0)
			currentTokens = 0
		}

		currentChunk = append(currentChunk, msg)
		currentTokens += msgTokens
	}

	if len(currentChunk) > 0 {
		result = append(result, currentChunk)
	}

	return result
}

// IsOversizedForSummary reports whether a single message is too large to
// feed through summarization (over half the context window).
func IsOversizedForSummary(msg *Message, contextWindow int) bool {
	if msg == nil || contextWindow <= 0 {
		return false
	}
	return float64(EstimateTokens(msg)) > float64(contextWindow)*OversizedThreshold
}

// SummarizationConfig parameterizes one summarization pass.
type SummarizationConfig struct {
	// Model is the LLM model identifier to use for summarization.
	Model string

	// MaxChunkTokens is the maximum tokens per chunk. Zero derives it
	// from ContextWindow and ChunkRatio.
	MaxChunkTokens int

	// ContextWindow is the total context window size in tokens.
	ContextWindow int

	// CustomInstructions replace the summarizer's default prompt.
	CustomInstructions string

	// PreviousSummary is a prior summary to build upon.
	PreviousSummary string
}

// DefaultSummarizationConfig returns a config with sensible defaults.
func DefaultSummarizationConfig() *SummarizationConfig {
	return &SummarizationConfig{
		MaxChunkTokens: 20000,
		ContextWindow:  DefaultContextWindow,
	}
}

// Summarizer generates summaries; InferenceSummarizer is the live
// implementation, tests supply fakes.
type Summarizer interface {
	// GenerateSummary generates a summary of the given messages.
	GenerateSummary(ctx context.Context, messages []*Message, config *SummarizationConfig) (string, error)
}

// SummarizeChunks summarizes messages chunk by chunk, then merges the
// chunk summaries into one.
func SummarizeChunks(ctx context.Context, messages []*Message, summarizer Summarizer, config *SummarizationConfig) (string, error) {
	if len(messages) == 0 {
		return SummaryFallback, nil
	}
	if summarizer == nil {
		return "", fmt.Errorf("summarizer is nil")
	}
	if config == nil {
		config = DefaultSummarizationConfig()
	}

	maxChunkTokens := config.MaxChunkTokens
	if maxChunkTokens <= 0 {
		maxChunkTokens = int(float64(config.ContextWindow) * ChunkRatio)
	}

	chunks := ChunkMessagesByMaxTokens(messages, maxChunkTokens)
	if len(chunks) == 0 {
		return SummaryFallback, nil
	}
	if len(chunks) == 1 {
		return summarizer.GenerateSummary(ctx, chunks[0], config)
	}

	chunkSummaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		summary, err := summarizer.GenerateSummary(ctx, chunk, config)
		if err != nil {
			return "", fmt.Errorf("summarizing chunk %d: %w", i, err)
		}
		chunkSummaries = append(chunkSummaries, summary)
	}

	return mergeSummaries(ctx, chunkSummaries, summarizer, config)
}

// mergeSummaries combines multiple chunk summaries into a final summary
// with one more summarization pass over synthetic messages.
func mergeSummaries(ctx context.Context, summaries []string, summarizer Summarizer, config *SummarizationConfig) (string, error) {
	if len(summaries) == 0 {
		return SummaryFallback, nil
	}
	if len(summaries) == 1 {
		return summaries[0], nil
	}

	mergeMessages := make([]*Message, len(summaries))
	for i, s := range summaries {
		mergeMessages[i] = &Message{
			Role:    "system",
			Content: fmt.Sprintf("Chunk %d summary:\n%s", i+1, s),
		}
	}

	mergeConfig := *config
	mergeConfig.CustomInstructions = "Merge these chunk summaries into a single coherent summary. Preserve key details and maintain chronological flow."
	if config.CustomInstructions != "" {
		mergeConfig.CustomInstructions = config.CustomInstructions + "\n\n" + mergeConfig.CustomInstructions
	}

	return summarizer.GenerateSummary(ctx, mergeMessages, &mergeConfig)
}

// SummarizeWithFallback summarizes everything that fits and notes the
// messages too large to feed through, instead of failing on them.
func SummarizeWithFallback(ctx context.Context, messages []*Message, summarizer Summarizer, config *SummarizationConfig) (string, error) {
	if len(messages) == 0 {
		return SummaryFallback, nil
	}
	if summarizer == nil {
		return "", fmt.Errorf("summarizer is nil")
	}
	if config == nil {
		config = DefaultSummarizationConfig()
	}

	var normal []*Message
	var oversizedNotes []string

	for _, msg := range messages {
		if IsOversizedForSummary(msg, config.ContextWindow) {
			oversizedNotes = append(oversizedNotes,
				fmt.Sprintf("[Oversized %s message with %d tokens - content omitted]", msg.Role, EstimateTokens(msg)))
		} else {
			normal = append(normal, msg)
		}
	}

	summary := SummaryFallback
	if len(normal) > 0 {
		var err error
		summary, err = SummarizeChunks(ctx, normal, summarizer, config)
		if err != nil {
			return "", fmt.Errorf("summarizing messages: %w", err)
		}
	}

	if len(oversizedNotes) > 0 {
		summary = summary + "\n\n" + strings.Join(oversizedNotes, "\n")
	}

	return summary, nil
}

// FormatMessagesForSummary renders messages into the plain-text transcript
// handed to the summarization prompt.
func FormatMessagesForSummary(messages []*Message) string {
	var sb strings.Builder

	for _, msg := range messages {
		if msg == nil {
			continue
		}

		sb.WriteString(fmt.Sprintf("[%s]: ", msg.Role))
		sb.WriteString(msg.Content)

		if msg.ToolCalls != "" {
			sb.WriteString(fmt.Sprintf("\n  [Tool calls: %s]", truncateString(msg.ToolCalls, 200)))
		}
		if msg.ToolResults != "" {
			sb.WriteString(fmt.Sprintf("\n  [Tool results: %s]", truncateString(msg.ToolResults, 200)))
		}

		sb.WriteString("\n\n")
	}

	return sb.String()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
