// Package tools provides display helpers shared by UI surfaces that render
// proposed tool calls: per-tool titles, labels, and one-line detail strings
// derived from the call's arguments.
package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ToolDisplay contains formatted display info for one tool call.
type ToolDisplay struct {
	Name   string
	Emoji  string
	Title  string
	Label  string
	Detail string
}

// ToolDisplaySpec defines display configuration for a tool.
type ToolDisplaySpec struct {
	Emoji      string   `json:"emoji,omitempty"`
	Title      string   `json:"title,omitempty"`
	Label      string   `json:"label,omitempty"`
	DetailKeys []string `json:"detailKeys,omitempty"`
}

// ToolDisplayConfig contains the full display configuration.
type ToolDisplayConfig struct {
	Version  int                        `json:"version,omitempty"`
	Fallback *ToolDisplaySpec           `json:"fallback,omitempty"`
	Tools    map[string]ToolDisplaySpec `json:"tools,omitempty"`
}

// MaxDetailEntries limits the number of detail items shown.
const MaxDetailEntries = 4

// DefaultToolDisplayConfig covers the runtime's fixed tool set.
func DefaultToolDisplayConfig() *ToolDisplayConfig {
	return &ToolDisplayConfig{
		Version: 1,
		Fallback: &ToolDisplaySpec{
			Emoji:      "🧩",
			DetailKeys: []string{},
		},
		Tools: map[string]ToolDisplaySpec{
			"run_command": {
				Emoji:      "💻",
				Title:      "Run Command",
				Label:      "Running",
				DetailKeys: []string{"command", "work_dir"},
			},
			"view": {
				Emoji:      "📖",
				Title:      "View",
				Label:      "Viewing",
				DetailKeys: []string{"path", "view_range"},
			},
			"str_replace": {
				Emoji:      "✏️",
				Title:      "Edit",
				Label:      "Editing",
				DetailKeys: []string{"path"},
			},
			"create": {
				Emoji:      "✏️",
				Title:      "Create",
				Label:      "Creating",
				DetailKeys: []string{"path"},
			},
			"insert": {
				Emoji:      "✏️",
				Title:      "Insert",
				Label:      "Inserting",
				DetailKeys: []string{"path", "insert_line"},
			},
			"generate_code": {
				Emoji:      "🤖",
				Title:      "Generate Code",
				Label:      "Generating",
				DetailKeys: []string{"language", "prompt"},
			},
			"smart_search_code": {
				Emoji:      "🔍",
				Title:      "Search Code",
				Label:      "Searching",
				DetailKeys: []string{"query", "path"},
			},
		},
	}
}

// ResolveToolDisplay resolves display info for a tool call. args is the
// call's decoded argument object (a map), or nil.
func ResolveToolDisplay(name string, args any) *ToolDisplay {
	config := DefaultToolDisplayConfig()
	normalizedName := normalizeToolName(name)

	display := &ToolDisplay{
		Name:  name,
		Title: defaultTitle(name),
	}

	spec, found := config.Tools[normalizedName]
	if !found {
		spec, found = config.Tools[name]
	}
	if !found && config.Fallback != nil {
		spec = *config.Fallback
	}

	display.Emoji = spec.Emoji
	if display.Emoji == "" && config.Fallback != nil {
		display.Emoji = config.Fallback.Emoji
	}
	if spec.Title != "" {
		display.Title = spec.Title
	}
	if spec.Label != "" {
		display.Label = spec.Label
	}

	display.Detail = resolveDetailFromKeys(args, spec.DetailKeys)

	return display
}

// ResolveToolDisplayJSON is ResolveToolDisplay for raw JSON arguments as
// they arrive from the provider. Undecodable arguments yield an empty
// detail rather than an error.
func ResolveToolDisplayJSON(name string, raw json.RawMessage) *ToolDisplay {
	var args map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	return ResolveToolDisplay(name, args)
}

// FormatToolSummary formats a complete one-line tool summary.
func FormatToolSummary(display *ToolDisplay) string {
	parts := []string{}

	if display.Emoji != "" {
		parts = append(parts, display.Emoji)
	}

	label := display.Label
	if label == "" {
		label = display.Title
	}
	if label != "" {
		parts = append(parts, label)
	}

	summary := strings.Join(parts, " ")
	if display.Detail != "" {
		summary += ": " + display.Detail
	}
	return summary
}

// normalizeToolName lowercases and strips namespace prefixes
// ("server__tool", "server.tool") and a trailing "_tool" suffix.
func normalizeToolName(name string) string {
	normalized := strings.ToLower(name)

	if strings.Contains(normalized, "__") {
		parts := strings.Split(normalized, "__")
		normalized = parts[len(parts)-1]
	}
	if strings.Contains(normalized, ".") {
		parts := strings.Split(normalized, ".")
		normalized = parts[len(parts)-1]
	}

	return strings.TrimSuffix(normalized, "_tool")
}

// defaultTitle derives a title-cased name for tools with no spec.
func defaultTitle(name string) string {
	normalized := normalizeToolName(name)
	normalized = strings.ReplaceAll(normalized, "_", " ")
	normalized = strings.ReplaceAll(normalized, "-", " ")

	words := strings.Fields(normalized)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(string(word[0])) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// coerceDisplayValue converts an argument value to a display string.
func coerceDisplayValue(value any) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case int, int64, int32:
		return fmt.Sprintf("%d", v)
	case []any:
		if len(v) == 0 {
			return ""
		}
		items := make([]string, 0, len(v))
		for _, item := range v {
			if s := coerceDisplayValue(item); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// resolveDetailFromKeys joins the values of the given argument keys, in
// order, with " · ".
func resolveDetailFromKeys(args any, keys []string) string {
	argsMap, ok := args.(map[string]any)
	if !ok || len(keys) == 0 {
		return ""
	}

	details := []string{}
	for _, key := range keys {
		if len(details) >= MaxDetailEntries {
			break
		}
		value, ok := argsMap[key]
		if !ok {
			continue
		}
		strValue := coerceDisplayValue(value)
		if strValue == "" {
			continue
		}
		details = append(details, shortenHomePath(strValue))
	}

	return strings.Join(details, " · ")
}

// shortenHomePath replaces the home directory prefix with ~.
func shortenHomePath(path string) string {
	if path == "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}

	cleanPath := filepath.Clean(path)
	cleanHome := filepath.Clean(home)

	if strings.HasPrefix(cleanPath, cleanHome) {
		return "~" + cleanPath[len(cleanHome):]
	}
	return path
}
