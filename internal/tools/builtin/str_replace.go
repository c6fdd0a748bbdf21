package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/agentrun/internal/agent"
	"github.com/haasonsaas/agentrun/internal/tools/files"
)

// StrReplaceTool replaces the single occurrence of old_str with new_str
// in a file; errors NO_MATCH or MULTIPLE_MATCHES{n} otherwise.
type StrReplaceTool struct {
	resolver files.Resolver
}

// NewStrReplaceTool creates a str_replace tool scoped to the workspace root.
func NewStrReplaceTool(workspace string) *StrReplaceTool {
	return &StrReplaceTool{resolver: files.Resolver{Root: workspace}}
}

func (t *StrReplaceTool) Name() string { return "str_replace" }

func (t *StrReplaceTool) Description() string {
	return "Replace the single occurrence of old_str with new_str in a file."
}

func (t *StrReplaceTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "Path to edit (relative to workspace)."},
			"old_str": map[string]interface{}{"type": "string", "description": "Text that must appear exactly once."},
			"new_str": map[string]interface{}{"type": "string", "description": "Replacement text."},
		},
		"required": []string{"path", "old_str", "new_str"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *StrReplaceTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path   string `json:"path"`
		OldStr string `json:"old_str"`
		NewStr string `json:"new_str"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolErr("NO_MATCH", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.OldStr == "" {
		return toolErr("NO_MATCH", "old_str is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolErr("NO_MATCH", err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolErr("NO_MATCH", fmt.Sprintf("read file: %v", err)), nil
	}
	content := string(data)

	count := strings.Count(content, input.OldStr)
	switch {
	case count == 0:
		return toolErr("NO_MATCH", "old_str was not found in the file"), nil
	case count > 1:
		return &agent.ToolResult{
			Content: fmt.Sprintf("MULTIPLE_MATCHES: old_str matches %d times, expected exactly one", count),
			IsError: true,
		}, nil
	}

	updated := strings.Replace(content, input.OldStr, input.NewStr, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return toolErr("NO_MATCH", fmt.Sprintf("write file: %v", err)), nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("Replaced 1 occurrence in %s", input.Path)}, nil
}
