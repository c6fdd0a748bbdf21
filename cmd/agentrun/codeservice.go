package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/agentrun/internal/agent/providers"
)

// chatCodeService implements builtin.CodeService directly on top of a
// providers.ChatProvider: generate_code and smart_search_code are each a
// single streamed completion, collected into one string, against the same
// model the agent loop uses, rather than a dedicated RAG/code-gen backend.
type chatCodeService struct {
	provider providers.ChatProvider
	model    string
}

func newChatCodeService(provider providers.ChatProvider, model string) *chatCodeService {
	return &chatCodeService{provider: provider, model: model}
}

func (s *chatCodeService) GenerateCode(ctx context.Context, prompt string, language string) (string, error) {
	sys := "You generate code only. Reply with the code in a single fenced block and nothing else."
	if language != "" {
		sys = fmt.Sprintf("%s Target language: %s.", sys, language)
	}
	return s.complete(ctx, sys, prompt)
}

func (s *chatCodeService) SmartSearch(ctx context.Context, query string, path string) (string, error) {
	sys := "You answer questions about a codebase's structure and content. Be concise and cite file paths when you can infer them from the query."
	userMsg := query
	if path != "" {
		userMsg = fmt.Sprintf("Search scope: %s\nQuery: %s", path, query)
	}
	return s.complete(ctx, sys, userMsg)
}

func (s *chatCodeService) complete(ctx context.Context, system, userMsg string) (string, error) {
	req := &providers.ChatRequest{
		Model:     s.model,
		System:    system,
		Messages:  []providers.ChatMessage{{Role: providers.RoleUser, Content: userMsg}},
		MaxTokens: 2048,
	}
	var sb strings.Builder
	_, err := s.provider.StreamChat(ctx, req, func(d providers.GenerationDelta) {
		if d.Kind == providers.DeltaContent {
			sb.WriteString(d.Text)
		}
	})
	if err != nil {
		return "", fmt.Errorf("code service: %w", err)
	}
	return sb.String(), nil
}
