package tools

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestResolveToolDisplayKnownTools(t *testing.T) {
	tests := []struct {
		name       string
		args       map[string]any
		wantLabel  string
		wantDetail string
	}{
		{
			name:       "run_command",
			args:       map[string]any{"command": "go vet ./...", "work_dir": "/src"},
			wantLabel:  "Running",
			wantDetail: "go vet ./... · /src",
		},
		{
			name:       "view",
			args:       map[string]any{"path": "/src/main.go", "view_range": []any{float64(1), float64(40)}},
			wantLabel:  "Viewing",
			wantDetail: "/src/main.go · 1, 40",
		},
		{
			name:       "str_replace",
			args:       map[string]any{"path": "/src/main.go", "old_str": "a", "new_str": "b"},
			wantLabel:  "Editing",
			wantDetail: "/src/main.go",
		},
		{
			name:       "smart_search_code",
			args:       map[string]any{"query": "TODO", "path": "/project"},
			wantLabel:  "Searching",
			wantDetail: "TODO · /project",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			display := ResolveToolDisplay(tt.name, tt.args)
			if display.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", display.Label, tt.wantLabel)
			}
			if display.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", display.Detail, tt.wantDetail)
			}
		})
	}
}

func TestResolveToolDisplayUnknownToolFallsBack(t *testing.T) {
	display := ResolveToolDisplay("custom_probe", map[string]any{"target": "db"})
	if display.Title != "Custom Probe" {
		t.Errorf("Title = %q, want derived title", display.Title)
	}
	if display.Emoji == "" {
		t.Error("fallback emoji missing")
	}
	if display.Detail != "" {
		t.Errorf("Detail = %q, want empty for unknown tool", display.Detail)
	}
}

func TestResolveToolDisplayJSON(t *testing.T) {
	raw := json.RawMessage(`{"command":"ls -la"}`)
	display := ResolveToolDisplayJSON("run_command", raw)
	if display.Detail != "ls -la" {
		t.Errorf("Detail = %q", display.Detail)
	}

	// Garbage arguments degrade to an empty detail, not a failure.
	display = ResolveToolDisplayJSON("run_command", json.RawMessage(`{"command":`))
	if display.Detail != "" {
		t.Errorf("Detail = %q, want empty on undecodable args", display.Detail)
	}
}

func TestFormatToolSummary(t *testing.T) {
	display := ResolveToolDisplay("create", map[string]any{"path": "notes.md", "file_text": "x"})
	summary := FormatToolSummary(display)
	if !strings.Contains(summary, "Creating") || !strings.Contains(summary, "notes.md") {
		t.Errorf("summary = %q", summary)
	}
}

func TestNormalizeToolName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"view", "view"},
		{"View", "view"},
		{"mcp__files__view", "view"},
		{"files.view", "view"},
		{"str_replace_tool", "str_replace"},
	}
	for _, tt := range tests {
		if got := normalizeToolName(tt.in); got != tt.want {
			t.Errorf("normalizeToolName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultTitle(t *testing.T) {
	if got := defaultTitle("smart_search_code"); got != "Smart Search Code" {
		t.Errorf("defaultTitle = %q", got)
	}
}

func TestCoerceDisplayValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{true, "true"},
		{float64(3), "3"},
		{float64(1.5), "1.5"},
		{[]any{"a", "", "b"}, "a, b"},
	}
	for _, tt := range tests {
		if got := coerceDisplayValue(tt.in); got != tt.want {
			t.Errorf("coerceDisplayValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveDetailCapsEntries(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e", "f"}
	args := map[string]any{}
	for _, k := range keys {
		args[k] = k
	}
	detail := resolveDetailFromKeys(args, keys)
	if got := len(strings.Split(detail, " · ")); got != MaxDetailEntries {
		t.Errorf("detail entries = %d, want %d", got, MaxDetailEntries)
	}
}
