package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentrun/internal/agent/providers"
	"github.com/haasonsaas/agentrun/internal/agentloop"
	"github.com/haasonsaas/agentrun/internal/changeset"
	"github.com/haasonsaas/agentrun/internal/compaction"
	"github.com/haasonsaas/agentrun/internal/contextreduce"
	"github.com/haasonsaas/agentrun/internal/observability"
	"github.com/haasonsaas/agentrun/internal/redact"
	"github.com/haasonsaas/agentrun/internal/shellsession"
	"github.com/haasonsaas/agentrun/internal/tools"
	"github.com/haasonsaas/agentrun/internal/tools/builtin"
	"github.com/haasonsaas/agentrun/internal/tools/files"
	"github.com/haasonsaas/agentrun/internal/tools/policy"
	"github.com/haasonsaas/agentrun/internal/toolstream"
)

func buildChatCmd() *cobra.Command {
	var (
		providerName string
		model        string
		workspace    string
		profileName  string
		shellPath    string
		sessionConn  string
		systemPrompt string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive agent session in the current shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := resolveWorkspace(workspace)
			if err != nil {
				return err
			}
			provider, resolvedModel, err := buildProvider(providerName, model)
			if err != nil {
				return fmt.Errorf("build provider: %w", err)
			}

			session := newChatSession(provider, resolvedModel, ws, profileName, shellPath, sessionConn, systemPrompt)
			defer session.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return session.REPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", envOr("AGENTRUN_PROVIDER", "anthropic"), "chat provider: anthropic or openai")
	cmd.Flags().StringVar(&model, "model", os.Getenv("AGENTRUN_MODEL"), "model id (defaults to the provider's default)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace root the fs/run_command tools operate against (default: cwd)")
	cmd.Flags().StringVar(&profileName, "profile", "coding", "tool policy profile: coding, readonly, full, minimal")
	cmd.Flags().StringVar(&shellPath, "shell", envOr("SHELL", "/bin/bash"), "shell binary for run_command's persistent session")
	cmd.Flags().StringVar(&sessionConn, "session", envOr("AGENTRUN_SESSION", "local"), "run_command session: \"local\" or \"ssh://user@host[:port]\" (key from AGENTRUN_SSH_KEY or ~/.ssh, password from AGENTRUN_SSH_PASSWORD)")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "override the default system prompt")

	return cmd
}

// chatSession owns every collaborator one agentrun chat invocation wires
// together: the provider adapter, the persistent shell session manager,
// the fixed tool dispatcher, the approval predicate built from the tool
// policy, the context reducer and compaction engine, and the
// secret-redaction/changeset/streaming-output side channels that
// decorate the loop's hooks without altering the loop's own state
// machine.
type chatSession struct {
	loop      *agentloop.Loop
	sessions  *shellsession.Manager
	cancel    *agentloop.CancelToken
	redactor  *redact.Redactor
	changes   *changeset.Tracker
	assembler *toolstream.Assembler
	model     string

	cmdCh      chan agentloop.AgentCommand
	events     chan agentloop.AgentEvent
	progressCh chan toolstream.UIUpdate
}

const defaultSystemPrompt = `You are an interactive coding agent with access to a persistent shell
session and a small set of file tools. Work incrementally, explain
destructive actions before taking them, and prefer the narrowest tool
call that accomplishes the user's request.`

func newChatSession(provider providers.ChatProvider, model, workspace, profileName, shellPath, sessionConn, systemPrompt string) *chatSession {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	if sessionConn == "" {
		sessionConn = "local"
	}

	cancel := agentloop.NewCancelToken()
	sessions := shellsession.NewManager()
	changes := changeset.New()
	redactor := redact.New()
	progressCh := make(chan toolstream.UIUpdate, 64)
	assembler := toolstream.New(func(toolCallID, payload string) {
		progressCh <- toolstream.UIUpdate{ToolCallID: toolCallID, Text: "[interactive: " + payload + "]"}
	})

	codeService := newChatCodeService(provider, model)

	runTool := builtin.NewRunCommandTool(sessions, sessionConn, shellPath, workspace).
		WithRemoteAuth(shellsession.RemoteAuth{
			Password: os.Getenv("AGENTRUN_SSH_PASSWORD"),
			KeyPath:  os.Getenv("AGENTRUN_SSH_KEY"),
		})

	dispatcher := builtin.NewDispatcher(cancel,
		runTool,
		builtin.NewViewTool(workspace),
		builtin.NewStrReplaceTool(workspace),
		builtin.NewCreateTool(workspace),
		builtin.NewInsertTool(workspace),
		builtin.NewGenerateCodeTool(codeService),
		builtin.NewSmartSearchCodeTool(codeService),
	).WithProgress(func(toolCallID string) builtin.ProgressFunc {
		return func(chunk string) {
			if update, ok := assembler.Progress(toolCallID, chunk); ok {
				select {
				case progressCh <- update:
				default:
				}
			}
		}
	})

	resolver := policy.NewResolver()
	pol := policy.GetProfilePolicy(profileName)
	if pol == nil {
		pol = policy.NewPolicy(policy.ProfileCoding)
	}

	providerAdapter := agentloop.NewProviderAdapter(provider)
	summarizer := &compaction.InferenceSummarizer{Client: providerAdapter}
	compactionEngine := compaction.NewEngine(summarizer, nil)
	reducer := contextreduce.New(contextreduce.DefaultConfig())

	hooks := &agentloop.Hooks{
		AfterToolExecution: func(ctx context.Context, call agentloop.ProposedToolCall, result agentloop.ToolExecutionResult) {
			observeChangeset(changes, workspace, call, result)
		},
	}

	cmdCh := make(chan agentloop.AgentCommand, 16)
	events := make(chan agentloop.AgentEvent, 256)

	cfg := agentloop.Config{
		Model:           model,
		SystemPrompt:    systemPrompt,
		Tools:           dispatcher.Specs(),
		MaxTurns:        50,
		MaxOutputTokens: 4096,
		Retry:           agentloop.DefaultRetryConfig(),
		Compaction:      agentloop.CompactionConfig{Enabled: true},
		AutoApprove:     policy.AutoApprove(resolver, pol),
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  os.Getenv("AGENTRUN_LOG_LEVEL"),
		Format: "text",
	})

	loop := agentloop.New(
		providerAdapter,
		dispatcher,
		reducer,
		compactionEngine,
		hooks,
		cfg,
		agentloop.NewChannelCommandSource(cmdCh),
		agentloop.ChannelEventSink(events),
		cancel,
	).WithLogger(logger)

	return &chatSession{
		loop:       loop,
		sessions:   sessions,
		cancel:     cancel,
		redactor:   redactor,
		changes:    changes,
		assembler:  assembler,
		model:      model,
		cmdCh:      cmdCh,
		events:     events,
		progressCh: progressCh,
	}
}

func (s *chatSession) Close() {
	s.sessions.CloseAll()
}

// RunOnce drives a single run to completion with no interactive input,
// auto-accepting every tool call the policy leaves undecided. Used by the
// watch daemon to hand a check failure to the agent headlessly.
func (s *chatSession) RunOnce(ctx context.Context, message string) (string, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev := <-s.events:
				if ev.Kind == agentloop.EventWaitingForToolApproval {
					decisions := make(map[string]agentloop.ToolDecision, len(ev.ToolCallIDs))
					for _, id := range ev.ToolCallIDs {
						decisions[id] = agentloop.Accept()
					}
					s.cmdCh <- agentloop.AgentCommand{Kind: agentloop.CmdResolveTools, Decisions: decisions}
				}
			case <-runCtx.Done():
				return
			}
		}
	}()

	result := s.loop.Run(runCtx, nil, message)
	cancelRun()
	<-done

	if result.Err != nil {
		return "", result.Err
	}
	if len(result.FinalMessages) == 0 {
		return "", nil
	}
	return result.FinalMessages[len(result.FinalMessages)-1].PlainText(), nil
}

// observeChangeset feeds successful file-tool calls into the changeset
// tracker so a future run/UI surface can offer a revert affordance. Only
// the tools that mutate the workspace are relevant; run_command and the
// read-only/code-service tools are ignored. The edit tools return plain
// text with no diff block, so line stats come from the call's own
// argument snippets, with the file's current content read back for
// revert detection.
func observeChangeset(tracker *changeset.Tracker, workspace string, call agentloop.ProposedToolCall, result agentloop.ToolExecutionResult) {
	if result.IsError || tracker == nil {
		return
	}
	var args struct {
		Path     string `json:"path"`
		FileText string `json:"file_text"`
		OldStr   string `json:"old_str"`
		NewStr   string `json:"new_str"`
	}
	_ = json.Unmarshal(call.Args, &args)
	if args.Path == "" {
		return
	}
	switch call.Name {
	case "create":
		tracker.ObserveCreate(args.Path, args.FileText)
	case "str_replace":
		tracker.ObserveReplace(args.Path, args.OldStr, args.NewStr, readWorkspaceFile(workspace, args.Path))
	case "insert":
		tracker.ObserveReplace(args.Path, "", args.NewStr, readWorkspaceFile(workspace, args.Path))
	}
}

// readWorkspaceFile returns the current content of a workspace file, or
// "" when it cannot be resolved or read (which skips revert detection).
func readWorkspaceFile(workspace, path string) string {
	resolved, err := files.Resolver{Root: workspace}.Resolve(path)
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return ""
	}
	return string(data)
}

// REPL drives the terminal conversation: each line of user input starts
// one agentloop.Run to completion, printing events as they arrive. Tool
// calls the loop's auto-approve predicate left undecided are answered by
// promptApproval, which accepts them without reading stdin.
func (s *chatSession) REPL(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	var history []agentloop.Message

	fmt.Fprintf(out, "agentrun chat (%s) — type a message, or /exit to quit.\n", s.model)

	for {
		fmt.Fprint(out, "> ")
		line, err := readLine(reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}

		line = s.redactor.Redact(line)

		runCtx, cancelRun := context.WithCancel(ctx)
		done := make(chan struct{})
		go s.drainEvents(out, done)

		result := s.loop.Run(runCtx, history, line)
		close(done)
		cancelRun()

		if result.Err != nil {
			fmt.Fprintf(out, "\n[error] %v\n", result.Err)
		}
		history = result.FinalMessages

		for _, edit := range s.changes.Edits() {
			fmt.Fprintf(out, "[changed] %s (%s)\n", edit.Path, edit.Kind)
		}
	}
}

func (s *chatSession) drainEvents(out io.Writer, done <-chan struct{}) {
	for {
		select {
		case ev := <-s.events:
			s.renderEvent(out, ev)
		case update := <-s.progressCh:
			fmt.Fprintf(out, "\n[tool %s] %s\n", update.ToolCallID, update.Text)
		case <-done:
			// Drain whatever is already queued before returning.
			for {
				select {
				case ev := <-s.events:
					s.renderEvent(out, ev)
				case update := <-s.progressCh:
					fmt.Fprintf(out, "\n[tool %s] %s\n", update.ToolCallID, update.Text)
				default:
					return
				}
			}
		}
	}
}

func (s *chatSession) renderEvent(out io.Writer, ev agentloop.AgentEvent) {
	switch ev.Kind {
	case agentloop.EventTextDelta:
		fmt.Fprint(out, s.redactor.Unredact(ev.Text))
	case agentloop.EventToolCallsProposed:
		for _, call := range ev.ToolCalls {
			display := tools.ResolveToolDisplayJSON(call.Name, call.Args)
			fmt.Fprintf(out, "\n[%s] %s\n", call.ID, tools.FormatToolSummary(display))
		}
	case agentloop.EventToolExecutionStarted:
		fmt.Fprintf(out, "\n[tool %s running]\n", ev.ToolCallID)
	case agentloop.EventToolExecutionCompleted:
		status := "ok"
		if ev.ToolIsError {
			status = "error"
		}
		fmt.Fprintf(out, "[tool %s %s]\n", ev.ToolCallID, status)
	case agentloop.EventWaitingForToolApproval:
		s.promptApproval(out, ev.ToolCallIDs)
	case agentloop.EventCompactionCompleted:
		fmt.Fprintf(out, "\n[compacted context: %d -> %d tokens]\n", ev.CompactionTokensBefore, ev.CompactionTokensAfter)
	case agentloop.EventRunError:
		fmt.Fprintf(out, "\n[run error] %v\n", ev.Err)
	case agentloop.EventRunCompleted:
		fmt.Fprintln(out)
	}
}

// promptApproval is a minimal stand-in for a UI approval surface: every
// call left undecided by the policy's auto-approve predicate is accepted
// automatically with a notice, since stdin isn't safely shareable with
// the REPL's own input loop while a run is in flight. A richer terminal
// UI would pause input here and ask per call.
func (s *chatSession) promptApproval(out io.Writer, ids []string) {
	decisions := make(map[string]agentloop.ToolDecision, len(ids))
	for _, id := range ids {
		fmt.Fprintf(out, "[auto-accepting unapproved tool call %s]\n", id)
		decisions[id] = agentloop.Accept()
	}
	s.cmdCh <- agentloop.AgentCommand{Kind: agentloop.CmdResolveTools, Decisions: decisions}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}
