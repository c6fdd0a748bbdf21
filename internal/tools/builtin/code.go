package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/agentrun/internal/agent"
)

// CodeService is the upstream collaborator `generate_code` and
// `smart_search_code` forward to; errors bubble up unwrapped. The tools
// do no retrying or interpretation of their own.
type CodeService interface {
	GenerateCode(ctx context.Context, prompt string, language string) (string, error)
	SmartSearch(ctx context.Context, query string, path string) (string, error)
}

// GenerateCodeTool forwards to CodeService.GenerateCode.
type GenerateCodeTool struct {
	service CodeService
}

// NewGenerateCodeTool creates a generate_code tool backed by service.
func NewGenerateCodeTool(service CodeService) *GenerateCodeTool {
	return &GenerateCodeTool{service: service}
}

func (t *GenerateCodeTool) Name() string { return "generate_code" }

func (t *GenerateCodeTool) Description() string {
	return "Generate code for a described task, forwarded to an upstream code-generation service."
}

func (t *GenerateCodeTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"prompt":   map[string]interface{}{"type": "string", "description": "Description of the code to generate."},
			"language": map[string]interface{}{"type": "string", "description": "Target language, if known."},
		},
		"required": []string{"prompt"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *GenerateCodeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Prompt   string `json:"prompt"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if t.service == nil {
		return &agent.ToolResult{Content: "generate_code service is not configured", IsError: true}, nil
	}
	out, err := t.service.GenerateCode(ctx, input.Prompt, input.Language)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: truncateMiddle(out)}, nil
}

// SmartSearchCodeTool forwards to CodeService.SmartSearch.
type SmartSearchCodeTool struct {
	service CodeService
}

// NewSmartSearchCodeTool creates a smart_search_code tool backed by service.
func NewSmartSearchCodeTool(service CodeService) *SmartSearchCodeTool {
	return &SmartSearchCodeTool{service: service}
}

func (t *SmartSearchCodeTool) Name() string { return "smart_search_code" }

func (t *SmartSearchCodeTool) Description() string {
	return "Search the codebase semantically, forwarded to an upstream code-search service."
}

func (t *SmartSearchCodeTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "Natural-language search query."},
			"path":  map[string]interface{}{"type": "string", "description": "Optional path scope for the search."},
		},
		"required": []string{"query"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *SmartSearchCodeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query string `json:"query"`
		Path  string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if t.service == nil {
		return &agent.ToolResult{Content: "smart_search_code service is not configured", IsError: true}, nil
	}
	out, err := t.service.SmartSearch(ctx, input.Query, input.Path)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: truncateMiddle(out)}, nil
}
