package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentrun/internal/agent/providers"
	"github.com/haasonsaas/agentrun/internal/backoff"
	"github.com/haasonsaas/agentrun/internal/observability"
)

// Loop is a turn-oriented state machine conducting the provider, tool
// executor, approval state machine, context
// reducer and compaction engine, driven by commands and reporting events.
type Loop struct {
	infer     InferenceClient
	executor  ToolExecutor
	reducer   ContextReducer
	compactor CompactionEngine
	hooks     *Hooks
	cfg       Config
	cmds      CommandSource
	events    EventSink
	cancel    *CancelToken
	logger    *observability.Logger

	model string

	steeringQueue []string
	followUpQueue []string
	pending       map[string]ToolDecision // stashed decisions for ids not yet proposed
}

// New builds a Loop from its collaborators and config. cfg.Model seeds the
// live model; SwitchModel commands update it in place.
func New(infer InferenceClient, executor ToolExecutor, reducer ContextReducer, compactor CompactionEngine, hooks *Hooks, cfg Config, cmds CommandSource, events EventSink, cancel *CancelToken) *Loop {
	if cancel == nil {
		cancel = NewCancelToken()
	}
	return &Loop{
		infer:     infer,
		executor:  executor,
		reducer:   reducer,
		compactor: compactor,
		hooks:     hooks,
		cfg:       cfg,
		cmds:      cmds,
		events:    events,
		cancel:    cancel,
		model:     cfg.Model,
		pending:   make(map[string]ToolDecision),
	}
}

// WithLogger attaches a structured logger; every run/turn/tool log line is
// correlated by run_id (and tool_call_id where applicable). Nil is safe and
// disables logging, which is also the zero-value behavior.
func (l *Loop) WithLogger(logger *observability.Logger) *Loop {
	l.logger = logger
	return l
}

func (l *Loop) log(ctx context.Context, msg string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Info(ctx, msg, args...)
}

// Run drives one run to completion: setup, then turns until the run stops.
func (l *Loop) Run(ctx context.Context, initial []Message, userMessage string) RunResult {
	runID := uuid.NewString()
	ctx = observability.AddRunID(ctx, runID)
	messages := append([]Message(nil), initial...)

	if l.cfg.SystemPrompt != "" && !hasLeadingSystem(messages) {
		messages = append([]Message{TextMessage(RoleSystem, l.cfg.SystemPrompt)}, messages...)
	}
	messages = append(messages, TextMessage(RoleUser, userMessage))

	l.emit(AgentEvent{Kind: EventRunStarted, RunID: runID})
	l.log(ctx, "run started", "model", l.model, "max_turns", l.cfg.MaxTurns)

	totalTurns := 0
	var totalUsage TokenUsage

	for {
		l.drainCommands()

		if l.cancel.IsSet() {
			l.emit(AgentEvent{Kind: EventRunCompleted, RunID: runID, StopReason: StopCancelled})
			return RunResult{RunID: runID, TotalTurns: totalTurns, TotalUsage: totalUsage, StopReason: StopCancelled, FinalMessages: messages}
		}

		messages = l.flushSteering(messages)

		if totalTurns == l.cfg.MaxTurns {
			l.emit(AgentEvent{Kind: EventRunCompleted, RunID: runID, StopReason: StopMaxTurns})
			return RunResult{RunID: runID, TotalTurns: totalTurns, TotalUsage: totalUsage, StopReason: StopMaxTurns, FinalMessages: messages}
		}

		totalTurns++
		l.emit(AgentEvent{Kind: EventTurnStarted, RunID: runID, TurnIndex: totalTurns})
		l.log(ctx, "turn started", "turn", totalTurns)

		infer, err := l.inferWithRetryAndCompaction(ctx, runID, &messages)
		if err != nil {
			if l.cancel.IsSet() {
				l.emit(AgentEvent{Kind: EventRunCompleted, RunID: runID, StopReason: StopCancelled})
				return RunResult{RunID: runID, TotalTurns: totalTurns, TotalUsage: totalUsage, StopReason: StopCancelled, FinalMessages: messages}
			}
			l.hooks.onError(ctx, err)
			l.emit(AgentEvent{Kind: EventRunError, RunID: runID, Err: err, Retryable: !providers.IsPermanent(err)})
			if l.logger != nil {
				l.logger.Error(ctx, "run failed", "turn", totalTurns, "error", err)
			}
			return RunResult{RunID: runID, TotalTurns: totalTurns, TotalUsage: totalUsage, StopReason: StopError, FinalMessages: messages, Err: err}
		}
		if infer.compactedRestart {
			// Turn was consumed by a compaction retry; don't count it.
			totalTurns--
			continue
		}

		assistantMsg, toolCalls := l.assembleResponse(runID, infer.result)
		messages = append(messages, assistantMsg)
		totalUsage.Add(infer.result.Usage)
		l.emit(AgentEvent{Kind: EventUsageReport, RunID: runID, Usage: &totalUsage})

		if len(toolCalls) == 0 {
			l.emit(AgentEvent{Kind: EventTurnCompleted, RunID: runID, TurnIndex: totalTurns, TurnFinishReason: infer.result.FinishReason})
			if len(l.followUpQueue) > 0 {
				next := l.followUpQueue[0]
				l.followUpQueue = l.followUpQueue[1:]
				messages = append(messages, TextMessage(RoleUser, next))
				continue
			}
			stop := mapStopReason(infer.result.FinishReason)
			l.emit(AgentEvent{Kind: EventRunCompleted, RunID: runID, StopReason: stop})
			return RunResult{RunID: runID, TotalTurns: totalTurns, TotalUsage: totalUsage, StopReason: stop, FinalMessages: messages}
		}

		cycleOutcome, updated := l.runToolCycle(ctx, runID, totalTurns, toolCalls, messages)
		messages = updated
		if cycleOutcome == cycleCancelled {
			l.emit(AgentEvent{Kind: EventRunCompleted, RunID: runID, StopReason: StopCancelled})
			return RunResult{RunID: runID, TotalTurns: totalTurns, TotalUsage: totalUsage, StopReason: StopCancelled, FinalMessages: messages}
		}
		// cycleCompleted: loop continues to the next turn.
	}
}

func hasLeadingSystem(messages []Message) bool {
	return len(messages) > 0 && messages[0].Role == RoleSystem
}

// drainCommands performs a non-blocking drain of pending commands.
func (l *Loop) drainCommands() {
	for {
		cmd, ok := l.cmds.TryNext()
		if !ok {
			return
		}
		l.applyOutOfCycleCommand(cmd)
	}
}

// applyOutOfCycleCommand routes a command received outside an active tool
// cycle. ResolveTool(s) for ids not yet proposed are stashed.
func (l *Loop) applyOutOfCycleCommand(cmd AgentCommand) {
	switch cmd.Kind {
	case CmdSteering:
		l.steeringQueue = append(l.steeringQueue, cmd.Text)
	case CmdFollowUp:
		l.followUpQueue = append(l.followUpQueue, cmd.Text)
	case CmdSwitchModel:
		l.model = cmd.Model
	case CmdResolveTool:
		l.pending[cmd.ToolCallID] = cmd.Decision
	case CmdResolveTools:
		for id, d := range cmd.Decisions {
			l.pending[id] = d
		}
	case CmdCancel:
		l.cancel.Trip()
	}
}

func (l *Loop) flushSteering(messages []Message) []Message {
	for _, text := range l.steeringQueue {
		messages = append(messages, TextMessage(RoleUser, text))
	}
	l.steeringQueue = nil
	return messages
}

func (l *Loop) emit(ev AgentEvent) {
	if l.events != nil {
		l.events(ev)
	}
}

type inferOutcome struct {
	result           InferResult
	compactedRestart bool
}

// inferWithRetryAndCompaction clones and reduces context, makes the
// inference call, and on error either runs a single compaction pass
// (overflow) or retries with exponential backoff, else surfaces the error.
func (l *Loop) inferWithRetryAndCompaction(ctx context.Context, runID string, messages *[]Message) (inferOutcome, error) {
	attempt := 1
	for {
		if l.cancel.IsSet() {
			return inferOutcome{}, ctx.Err()
		}

		reduced := *messages
		if l.reducer != nil {
			reduced = l.reducer.Reduce(append([]Message(nil), *messages...))
		}

		l.hooks.beforeInference(ctx, reduced)
		result, err := l.infer.Infer(ctx, l.model, reduced, InferOptions{
			SystemPrompt:    l.cfg.SystemPrompt,
			Tools:           l.cfg.Tools,
			MaxOutputTokens: l.cfg.MaxOutputTokens,
			ProviderOptions: l.cfg.ProviderOptions,
		}, func(d TextOrThinkingDelta) {
			if d.Thinking {
				l.emit(AgentEvent{Kind: EventThinkingDelta, RunID: runID, Text: d.Text})
			} else {
				l.emit(AgentEvent{Kind: EventTextDelta, RunID: runID, Text: d.Text})
			}
		})
		if err == nil {
			l.hooks.afterInference(ctx, result)
			return inferOutcome{result: result}, nil
		}

		if isOverflowSignature(err.Error()) && l.cfg.Compaction.Enabled && l.compactor != nil {
			l.emit(AgentEvent{Kind: EventCompactionStarted, RunID: runID})
			l.log(ctx, "compaction started", "reason", err.Error())
			compacted, cerr := l.compactor.Compact(ctx, *messages, l.model)
			if cerr != nil {
				return inferOutcome{}, cerr
			}
			*messages = compacted.Messages
			l.emit(AgentEvent{
				Kind:                   EventCompactionCompleted,
				RunID:                  runID,
				CompactionTokensBefore: compacted.TokensBefore,
				CompactionTokensAfter:  compacted.TokensAfter,
				CompactionTruncated:    compacted.Truncated,
			})
			l.log(ctx, "compaction completed", "tokens_before", compacted.TokensBefore, "tokens_after", compacted.TokensAfter, "truncated", compacted.Truncated)
			return inferOutcome{compactedRestart: true}, nil
		}

		if providers.IsPermanent(err) {
			return inferOutcome{}, err
		}

		if attempt < l.cfg.Retry.MaxAttempts {
			delay := l.cfg.Retry.BasePolicy.Delay(attempt)
			l.emit(AgentEvent{Kind: EventRetryAttempt, RunID: runID, RetryAttempt: attempt, RetryDelayMs: delay.Milliseconds(), RetryReason: err.Error()})
			l.log(ctx, "retrying inference", "attempt", attempt, "delay_ms", delay.Milliseconds(), "reason", err.Error())
			if serr := backoff.Sleep(ctx, delay); serr != nil {
				return inferOutcome{}, serr
			}
			attempt++
			continue
		}

		return inferOutcome{}, err
	}
}

// assembleResponse turns an InferResult's message into the conversation's
// new assistant message plus the turn's proposed tool calls. TextComplete
// is emitted here since the assembled message carries the full text
// (streaming increments were already emitted as deltas).
func (l *Loop) assembleResponse(runID string, result InferResult) (Message, []ProposedToolCall) {
	text := result.Message.PlainText()
	if text != "" {
		l.emit(AgentEvent{Kind: EventTextComplete, RunID: runID, Text: text})
	}

	var calls []ProposedToolCall
	for _, p := range result.Message.Parts {
		if p.Kind == PartToolCall {
			calls = append(calls, ProposedToolCall{ID: p.ToolCallID, Name: p.ToolCallName, Args: p.ToolCallArgs})
		}
	}
	return result.Message, calls
}

func mapStopReason(finish TurnFinishReason) RunStopReason {
	switch finish {
	case "error":
		return StopError
	default:
		return StopCompleted
	}
}

type cycleOutcome string

const (
	cycleCompleted cycleOutcome = "completed"
	cycleCancelled cycleOutcome = "cancelled"
)

// synthResult builds a Tool-role message carrying a JSON-encoded synthetic
// or real result for one call, appended to the conversation to keep every
// tool call paired with exactly one result.
func synthResult(callID string, payload any, isError bool) Message {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
		isError = true
	}
	return Message{Role: RoleTool, Parts: []ContentPart{ToolResult(callID, raw, isError)}}
}
