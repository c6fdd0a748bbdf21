package builtin

import (
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/haasonsaas/agentrun/internal/shellsession"
)

func TestExtractExitCode_ParsesSentinel(t *testing.T) {
	raw := "some output\n" + exitCodeSentinel + ":0\n"
	cleaned, code := extractExitCode(raw)
	if code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}
	if cleaned != "some output" {
		t.Fatalf("cleaned = %q", cleaned)
	}
}

func TestExtractExitCode_NonZero(t *testing.T) {
	raw := "oops\n" + exitCodeSentinel + ":7\n"
	cleaned, code := extractExitCode(raw)
	if code != 7 {
		t.Fatalf("code = %d, want 7", code)
	}
	if cleaned != "oops" {
		t.Fatalf("cleaned = %q", cleaned)
	}
}

func TestExtractExitCode_MissingSentinelDefaultsToZero(t *testing.T) {
	raw := "no sentinel here"
	cleaned, code := extractExitCode(raw)
	if code != 0 || cleaned != raw {
		t.Fatalf("cleaned = %q, code = %d", cleaned, code)
	}
}

func TestShellQuote_EscapesEmbeddedQuotes(t *testing.T) {
	got := shellQuote("it's a dir")
	want := `'it'\''s a dir'`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRunCommandTool_ExecutesAndCapturesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pty not supported on windows")
	}

	workspace := t.TempDir()
	sessions := shellsession.NewManager()
	defer sessions.CloseAll()

	tool := NewRunCommandTool(sessions, "run_command_test", "/bin/sh", workspace)

	params, _ := json.Marshal(map[string]any{"command": "echo hello-from-run-command"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hello-from-run-command") {
		t.Fatalf("output missing expected text: %q", result.Content)
	}
}

func TestRunCommandTool_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pty not supported on windows")
	}

	workspace := t.TempDir()
	sessions := shellsession.NewManager()
	defer sessions.CloseAll()

	tool := NewRunCommandTool(sessions, "run_command_test_exit", "/bin/sh", workspace)

	params, _ := json.Marshal(map[string]any{"command": "exit 3"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected IsError for non-zero exit, got %+v", result)
	}
	if !strings.Contains(result.Content, "exited with code 3") {
		t.Fatalf("expected exit code in content, got %q", result.Content)
	}
}
