package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateTool_NewFile(t *testing.T) {
	root := t.TempDir()
	tool := NewCreateTool(root)

	params, _ := json.Marshal(map[string]any{"path": "nested/a.txt", "file_text": "line1\nline2\n"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "2 lines") {
		t.Fatalf("expected line count in result, got %q", result.Content)
	}
	data, err := os.ReadFile(filepath.Join(root, "nested", "a.txt"))
	if err != nil {
		t.Fatalf("read created file: %v", err)
	}
	if string(data) != "line1\nline2\n" {
		t.Fatalf("content = %q", data)
	}
}

func TestCreateTool_RefusesOverwrite(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("existing"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tool := NewCreateTool(root)

	params, _ := json.Marshal(map[string]any{"path": "a.txt", "file_text": "new"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || !strings.HasPrefix(result.Content, "FILE_EXISTS") {
		t.Fatalf("expected FILE_EXISTS, got %+v", result)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "existing" {
		t.Fatalf("file should be unchanged, got %q", data)
	}
}
