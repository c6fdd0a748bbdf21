package compaction

import (
	"context"
	"fmt"

	"github.com/haasonsaas/agentrun/internal/agentloop"
)

// InferenceSummarizer implements Summarizer on top of any
// agentloop.InferenceClient, issuing a dedicated (non-streamed-to-the-user)
// inference call per chunk rather than folding the summary into the
// surrounding conversation.
type InferenceSummarizer struct {
	Client agentloop.InferenceClient
}

func (s *InferenceSummarizer) GenerateSummary(ctx context.Context, messages []*Message, config *SummarizationConfig) (string, error) {
	prompt := "Summarize the conversation below, preserving the user's goal, key decisions, file paths touched, and any unresolved tasks. Be concise."
	if config != nil && config.CustomInstructions != "" {
		prompt = config.CustomInstructions
	}
	if config != nil && config.PreviousSummary != "" {
		prompt += "\n\nBuild on this previous summary:\n" + config.PreviousSummary
	}

	convo := FormatMessagesForSummary(messages)
	req := []agentloop.Message{
		agentloop.TextMessage(agentloop.RoleUser, prompt+"\n\n---\n"+convo),
	}

	model := ""
	if config != nil {
		model = config.Model
	}
	result, err := s.Client.Infer(ctx, model, req, agentloop.InferOptions{}, nil)
	if err != nil {
		return "", fmt.Errorf("compaction: summarize call failed: %w", err)
	}
	return result.Message.PlainText(), nil
}
