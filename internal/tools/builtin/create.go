package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/agentrun/internal/agent"
	"github.com/haasonsaas/agentrun/internal/tools/files"
)

// CreateTool creates a new file, refusing to overwrite an existing one,
// creating parent directories as needed and returning a line count.
type CreateTool struct {
	resolver files.Resolver
}

// NewCreateTool creates a create tool scoped to the workspace root.
func NewCreateTool(workspace string) *CreateTool {
	return &CreateTool{resolver: files.Resolver{Root: workspace}}
}

func (t *CreateTool) Name() string { return "create" }

func (t *CreateTool) Description() string {
	return "Create a new file with the given contents; refuses to overwrite an existing file."
}

func (t *CreateTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":      map[string]interface{}{"type": "string", "description": "Path to create (relative to workspace)."},
			"file_text": map[string]interface{}{"type": "string", "description": "Contents of the new file."},
		},
		"required": []string{"path", "file_text"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *CreateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path     string `json:"path"`
		FileText string `json:"file_text"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolErr("CREATE_ERROR", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolErr("CREATE_ERROR", "path is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolErr("CREATE_ERROR", err.Error()), nil
	}

	if _, err := os.Stat(resolved); err == nil {
		return toolErr("FILE_EXISTS", fmt.Sprintf("%s already exists", input.Path)), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolErr("CREATE_ERROR", fmt.Sprintf("create directory: %v", err)), nil
	}

	if err := os.WriteFile(resolved, []byte(input.FileText), 0o644); err != nil {
		return toolErr("CREATE_ERROR", fmt.Sprintf("write file: %v", err)), nil
	}

	lineCount := strings.Count(input.FileText, "\n")
	if input.FileText != "" && !strings.HasSuffix(input.FileText, "\n") {
		lineCount++
	}
	return &agent.ToolResult{Content: fmt.Sprintf("Created %s (%d lines)", input.Path, lineCount)}, nil
}
