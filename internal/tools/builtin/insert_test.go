package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInsertTool_Middle(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tool := NewInsertTool(root)

	params, _ := json.Marshal(map[string]any{"path": "a.txt", "insert_line": 1, "new_str": "ONE_FIVE"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	data, _ := os.ReadFile(path)
	want := "one\nONE_FIVE\ntwo\nthree\n"
	if string(data) != want {
		t.Fatalf("content = %q, want %q", data, want)
	}
}

func TestInsertTool_Prepend(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("two\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tool := NewInsertTool(root)

	params, _ := json.Marshal(map[string]any{"path": "a.txt", "insert_line": 0, "new_str": "one"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "one\ntwo\n" {
		t.Fatalf("content = %q", data)
	}
}

func TestInsertTool_OutOfBounds(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("one\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tool := NewInsertTool(root)

	params, _ := json.Marshal(map[string]any{"path": "a.txt", "insert_line": 5, "new_str": "x"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || !strings.HasPrefix(result.Content, "INVALID_RANGE") {
		t.Fatalf("expected INVALID_RANGE, got %+v", result)
	}
}

func TestInsertTool_PreservesNoTrailingNewline(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("one\ntwo"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tool := NewInsertTool(root)

	params, _ := json.Marshal(map[string]any{"path": "a.txt", "insert_line": 2, "new_str": "three"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "one\ntwo\nthree" {
		t.Fatalf("content = %q", data)
	}
}
