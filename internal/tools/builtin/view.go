package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/haasonsaas/agentrun/internal/agent"
	"github.com/haasonsaas/agentrun/internal/tools/files"
)

// ViewTool lists a directory (sorted, dirs first) or prints file contents
// with 1-indexed line numbers; view_range=[start,end] (-1 end = EOF).
type ViewTool struct {
	resolver files.Resolver
}

// NewViewTool creates a view tool scoped to the workspace root.
func NewViewTool(workspace string) *ViewTool {
	return &ViewTool{resolver: files.Resolver{Root: workspace}}
}

func (t *ViewTool) Name() string { return "view" }

func (t *ViewTool) Description() string {
	return "View a directory listing or a file's contents with 1-indexed line numbers."
}

func (t *ViewTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to view (relative to workspace).",
			},
			"view_range": map[string]interface{}{
				"type":        "array",
				"description": "Optional [start, end] 1-indexed line range. end=-1 means EOF.",
				"items":       map[string]interface{}{"type": "integer"},
				"minItems":    2,
				"maxItems":    2,
			},
		},
		"required": []string{"path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ViewTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path      string `json:"path"`
		ViewRange []int  `json:"view_range"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolErr("INVALID_RANGE", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolErr("FILE_NOT_FOUND", "path is required"), nil
	}
	if len(input.ViewRange) != 0 && len(input.ViewRange) != 2 {
		return toolErr("INVALID_RANGE", "view_range must be [start, end]"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolErr("FILE_NOT_FOUND", err.Error()), nil
	}

	info, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return toolErr("FILE_NOT_FOUND", fmt.Sprintf("%s does not exist", input.Path)), nil
	}
	if err != nil {
		return toolErr("READ_ERROR", err.Error()), nil
	}

	if info.IsDir() {
		return t.viewDir(resolved)
	}
	return t.viewFile(resolved, input.ViewRange)
}

func (t *ViewTool) viewDir(resolved string) (*agent.ToolResult, error) {
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return toolErr("READ_ERROR", err.Error()), nil
	}
	sort.Slice(entries, func(i, j int) bool {
		di, dj := entries[i].IsDir(), entries[j].IsDir()
		if di != dj {
			return di
		}
		return entries[i].Name() < entries[j].Name()
	})

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&b, "%s/\n", e.Name())
		} else {
			fmt.Fprintf(&b, "%s\n", e.Name())
		}
	}
	return &agent.ToolResult{Content: truncateMiddle(b.String())}, nil
}

func (t *ViewTool) viewFile(resolved string, viewRange []int) (*agent.ToolResult, error) {
	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolErr("READ_ERROR", err.Error()), nil
	}

	lines := strings.Split(string(data), "\n")
	// A trailing newline produces one spurious empty final "line"; drop it
	// so line numbers match what an editor would show.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	start, end := 1, len(lines)
	if len(viewRange) == 2 {
		start, end = viewRange[0], viewRange[1]
		if end == -1 {
			end = len(lines)
		}
		if start < 1 || start > len(lines)+1 || end < start {
			return toolErr("INVALID_RANGE", fmt.Sprintf("view_range [%d, %d] is out of bounds for a %d-line file", viewRange[0], viewRange[1], len(lines))), nil
		}
		if end > len(lines) {
			end = len(lines)
		}
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%d\t%s\n", i, lines[i-1])
	}
	return &agent.ToolResult{Content: truncateMiddle(b.String())}, nil
}

func toolErr(code, message string) *agent.ToolResult {
	return &agent.ToolResult{Content: fmt.Sprintf("%s: %s", code, message), IsError: true}
}
