package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStrReplaceTool_SingleMatch(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("hello world\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tool := NewStrReplaceTool(root)

	params, _ := json.Marshal(map[string]any{"path": "a.txt", "old_str": "world", "new_str": "there"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "hello there\n" {
		t.Fatalf("file content = %q", data)
	}
}

func TestStrReplaceTool_NoMatch(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("hello world\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tool := NewStrReplaceTool(root)

	params, _ := json.Marshal(map[string]any{"path": "a.txt", "old_str": "missing", "new_str": "x"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || !strings.HasPrefix(result.Content, "NO_MATCH") {
		t.Fatalf("expected NO_MATCH, got %+v", result)
	}
}

func TestStrReplaceTool_MultipleMatches(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("foo foo\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tool := NewStrReplaceTool(root)

	params, _ := json.Marshal(map[string]any{"path": "a.txt", "old_str": "foo", "new_str": "bar"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || !strings.HasPrefix(result.Content, "MULTIPLE_MATCHES") {
		t.Fatalf("expected MULTIPLE_MATCHES, got %+v", result)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "foo foo\n" {
		t.Fatalf("file should be unchanged, got %q", data)
	}
}
