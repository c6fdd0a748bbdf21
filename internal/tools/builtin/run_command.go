package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/haasonsaas/agentrun/internal/agent"
	"github.com/haasonsaas/agentrun/internal/shellsession"
)

// exitCodeSentinel is appended to every command this tool sends so the
// shell's best-effort exit code can be recovered without changing the
// shared shellsession marker protocol.
const exitCodeSentinel = "__AGENTRUN_EXIT_CODE__"

var exitCodeLine = regexp.MustCompile(`(?m)^` + exitCodeSentinel + `:(-?\d+)$`)

// RunCommandTool executes a command via the associated shell session,
// streams output chunks back as progress notifications, and returns
// assembled stdout+stderr with a trailing "Command exited with code N"
// line when non-zero. Commands dispatch through a persistent shell
// session, so cwd, env, and aliases carry across calls within a run.
// The session is local by default; an "ssh://user@host[:port]"
// connection string routes every call through a remote SSH session.
type RunCommandTool struct {
	sessions  *shellsession.Manager
	connStr   string
	shell     string
	workspace string
	auth      shellsession.RemoteAuth
}

// NewRunCommandTool creates a run_command tool bound to one shell session
// key (so repeated calls across a run share environment/cwd/aliases).
func NewRunCommandTool(sessions *shellsession.Manager, connStr, shell, workspace string) *RunCommandTool {
	if connStr == "" {
		connStr = "local"
	}
	return &RunCommandTool{sessions: sessions, connStr: connStr, shell: shell, workspace: workspace}
}

// WithRemoteAuth sets the credentials used when the tool's connection
// string routes to an SSH session. Ignored for local sessions.
func (t *RunCommandTool) WithRemoteAuth(auth shellsession.RemoteAuth) *RunCommandTool {
	t.auth = auth
	return t
}

func (t *RunCommandTool) Name() string { return "run_command" }

func (t *RunCommandTool) Description() string {
	return "Run a shell command in the persistent session for this run."
}

func (t *RunCommandTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command":  map[string]interface{}{"type": "string", "description": "Shell command to execute."},
			"work_dir": map[string]interface{}{"type": "string", "description": "Working directory for this command (relative to workspace)."},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *RunCommandTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Command string `json:"command"`
		WorkDir string `json:"work_dir"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(input.Command) == "" {
		return &agent.ToolResult{Content: "command is required", IsError: true}, nil
	}

	sess, err := t.sessions.Dial(t.connStr, t.shell, t.workspace, t.auth)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to start shell session: %v", err), IsError: true}, nil
	}

	command := input.Command
	if input.WorkDir != "" {
		command = fmt.Sprintf("cd %s && %s", shellQuote(input.WorkDir), command)
	}
	wrapped := fmt.Sprintf("%s; printf '\\n%s:%%d\\n' $?", command, exitCodeSentinel)

	progress := progressFromContext(ctx)
	chunks, done, err := sess.ExecuteStreaming(wrapped, shellsession.DefaultTimeout)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to execute command: %v", err), IsError: true}, nil
	}

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			sess.Cancel()
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	for chunk := range chunks {
		if progress != nil && chunk.Text != "" {
			progress(chunk.Text)
		}
	}

	result := <-done
	if result.Err != nil {
		if _, ok := result.Err.(*shellsession.TimeoutError); ok {
			return &agent.ToolResult{Content: fmt.Sprintf("Command timed out: %v", result.Err), IsError: true}, nil
		}
		return &agent.ToolResult{Content: fmt.Sprintf("command execution error: %v", result.Err), IsError: true}, nil
	}

	output, exitCode := extractExitCode(result.Output.Output)

	content := output
	if exitCode != 0 {
		content = fmt.Sprintf("%s\nCommand exited with code %d", strings.TrimRight(content, "\n"), exitCode)
	}
	return &agent.ToolResult{Content: truncateMiddle(content), IsError: exitCode != 0}, nil
}

// extractExitCode pulls the trailing exitCodeSentinel line out of raw
// output and returns the cleaned text plus the parsed exit code (0 if the
// sentinel line could not be found, matching best-effort semantics).
func extractExitCode(raw string) (string, int) {
	m := exitCodeLine.FindStringSubmatchIndex(raw)
	if m == nil {
		return raw, 0
	}
	code, err := strconv.Atoi(raw[m[2]:m[3]])
	if err != nil {
		code = 0
	}
	cleaned := raw[:m[0]] + raw[m[1]:]
	return strings.TrimRight(cleaned, "\n"), code
}

// shellQuote single-quotes a path for safe interpolation into a shell
// command line, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
