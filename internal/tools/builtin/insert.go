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

// InsertTool inserts text after a 1-indexed line (insert_line=0 prepends),
// preserving trailing-newline presence.
type InsertTool struct {
	resolver files.Resolver
}

// NewInsertTool creates an insert tool scoped to the workspace root.
func NewInsertTool(workspace string) *InsertTool {
	return &InsertTool{resolver: files.Resolver{Root: workspace}}
}

func (t *InsertTool) Name() string { return "insert" }

func (t *InsertTool) Description() string {
	return "Insert text after the given 1-indexed line (0 prepends at the start of the file)."
}

func (t *InsertTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":        map[string]interface{}{"type": "string", "description": "Path to edit (relative to workspace)."},
			"insert_line": map[string]interface{}{"type": "integer", "description": "1-indexed line to insert after; 0 prepends.", "minimum": 0},
			"new_str":     map[string]interface{}{"type": "string", "description": "Text to insert."},
		},
		"required": []string{"path", "insert_line", "new_str"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *InsertTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path       string `json:"path"`
		InsertLine int    `json:"insert_line"`
		NewStr     string `json:"new_str"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolErr("INVALID_RANGE", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.InsertLine < 0 {
		return toolErr("INVALID_RANGE", "insert_line must be >= 0"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolErr("INVALID_RANGE", err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolErr("INVALID_RANGE", fmt.Sprintf("read file: %v", err)), nil
	}

	trailingNewline := len(data) > 0 && strings.HasSuffix(string(data), "\n")
	content := strings.TrimSuffix(string(data), "\n")
	var lines []string
	if content != "" {
		lines = strings.Split(content, "\n")
	}

	if input.InsertLine > len(lines) {
		return toolErr("INVALID_RANGE", fmt.Sprintf("insert_line %d is out of bounds for a %d-line file", input.InsertLine, len(lines))), nil
	}

	inserted := strings.Split(input.NewStr, "\n")
	result := make([]string, 0, len(lines)+len(inserted))
	result = append(result, lines[:input.InsertLine]...)
	result = append(result, inserted...)
	result = append(result, lines[input.InsertLine:]...)

	out := strings.Join(result, "\n")
	if trailingNewline || len(data) == 0 {
		out += "\n"
	}

	if err := os.WriteFile(resolved, []byte(out), 0o644); err != nil {
		return toolErr("INVALID_RANGE", fmt.Sprintf("write file: %v", err)), nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("Inserted %d line(s) into %s after line %d", len(inserted), input.Path, input.InsertLine)}, nil
}
