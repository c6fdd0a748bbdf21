package agentloop

import (
	"context"

	"github.com/haasonsaas/agentrun/internal/observability"
)

// runToolCycle drives one round of tool-call decisions to completion. The
// set of current tool-call ids is fixed at entry; decisions arriving for
// other ids are stashed via l.pending for a future cycle.
func (l *Loop) runToolCycle(ctx context.Context, runID string, turnIndex int, calls []ProposedToolCall, messages []Message) (cycleOutcome, []Message) {
	ids := make([]string, len(calls))
	for i, c := range calls {
		ids[i] = c.ID
	}
	l.emit(AgentEvent{Kind: EventToolCallsProposed, RunID: runID, ToolCallIDs: ids, ToolCalls: calls})
	l.emit(AgentEvent{Kind: EventWaitingForToolApproval, RunID: runID, ToolCallIDs: ids})

	stashed := make(map[string]ToolDecision)
	for _, id := range ids {
		if d, ok := l.pending[id]; ok {
			stashed[id] = d
			delete(l.pending, id)
		}
	}
	sm := NewApprovalStateMachine(calls, l.cfg.AutoApprove, stashed)

	for {
		l.drainIntoCycle(sm, ids)

		if l.cancel.IsSet() {
			messages = l.cancelRemaining(sm, messages)
			return cycleCancelled, messages
		}

		if len(l.steeringQueue) > 0 {
			messages = l.skipRemaining(sm, messages)
			return cycleCompleted, messages
		}

		call, decision, ready := sm.NextReady()
		if ready {
			messages = l.dispatchDecision(ctx, runID, sm, call, decision, messages)
			continue
		}

		if sm.IsComplete() {
			l.emit(AgentEvent{Kind: EventTurnCompleted, RunID: runID, TurnIndex: turnIndex, TurnFinishReason: "tool_calls"})
			return cycleCompleted, messages
		}

		// Block for the next command; no ready call and the cycle isn't
		// complete, so there is nothing else to do.
		cmd, err := l.cmds.Next()
		if err != nil {
			// Context cancelled while blocked: treat as cancellation.
			l.cancel.Trip()
			messages = l.cancelRemaining(sm, messages)
			return cycleCancelled, messages
		}
		l.routeCycleCommand(sm, ids, cmd)
	}
}

// drainIntoCycle non-blockingly drains pending commands, routing
// ResolveTool(s) for current ids into sm and everything else through the
// normal out-of-cycle handling.
func (l *Loop) drainIntoCycle(sm *ApprovalStateMachine, ids []string) {
	for {
		cmd, ok := l.cmds.TryNext()
		if !ok {
			return
		}
		l.routeCycleCommand(sm, ids, cmd)
	}
}

func (l *Loop) routeCycleCommand(sm *ApprovalStateMachine, ids []string, cmd AgentCommand) {
	inCycle := func(id string) bool {
		for _, i := range ids {
			if i == id {
				return true
			}
		}
		return false
	}
	switch cmd.Kind {
	case CmdResolveTool:
		if inCycle(cmd.ToolCallID) {
			_ = sm.ApplyCommand(cmd.ToolCallID, cmd.Decision)
		} else {
			l.pending[cmd.ToolCallID] = cmd.Decision
		}
	case CmdResolveTools:
		for id, d := range cmd.Decisions {
			if inCycle(id) {
				_ = sm.ApplyCommand(id, d)
			} else {
				l.pending[id] = d
			}
		}
	default:
		l.applyOutOfCycleCommand(cmd)
	}
}

// dispatchDecision runs one ready decision and appends its result message.
func (l *Loop) dispatchDecision(ctx context.Context, runID string, sm *ApprovalStateMachine, call ProposedToolCall, decision ToolDecision, messages []Message) []Message {
	toolCtx := observability.AddToolCallID(ctx, call.ID)
	switch decision.Kind {
	case DecisionAccept:
		l.emit(AgentEvent{Kind: EventToolExecutionStarted, RunID: runID, ToolCallID: call.ID})
		l.log(toolCtx, "tool execution started", "tool", call.Name)
		l.hooks.beforeToolExecution(ctx, call)
		result, err := l.executor.Execute(ctx, call)
		if err != nil {
			result = ToolExecutionResult{Status: ToolCompleted, Content: err.Error(), IsError: true}
		}
		l.hooks.afterToolExecution(ctx, call, result)

		switch result.Status {
		case ToolCancelled:
			messages = append(messages, synthResult(call.ID, map[string]string{"error": "TOOL_CALL_CANCELLED"}, true))
			l.emit(AgentEvent{Kind: EventToolExecutionCompleted, RunID: runID, ToolCallID: call.ID, ToolIsError: true})
			l.log(toolCtx, "tool execution cancelled", "tool", call.Name)
			l.cancel.Trip()
			return l.cancelRemaining(sm, messages)
		default:
			messages = append(messages, synthResult(call.ID, result.Content, result.IsError))
			l.emit(AgentEvent{Kind: EventToolExecutionCompleted, RunID: runID, ToolCallID: call.ID, ToolResultContent: result.Content, ToolIsError: result.IsError})
			l.log(toolCtx, "tool execution completed", "tool", call.Name, "is_error", result.IsError)
		}
	case DecisionReject:
		messages = append(messages, synthResult(call.ID, map[string]string{"rejected": decision.RejectReason}, false))
		l.emit(AgentEvent{Kind: EventToolRejected, RunID: runID, ToolCallID: call.ID, RejectReason: decision.RejectReason})
		l.log(toolCtx, "tool call rejected", "tool", call.Name, "reason", decision.RejectReason)
	case DecisionCustom:
		messages = append(messages, synthResult(call.ID, decision.CustomContent, false))
		l.emit(AgentEvent{Kind: EventToolExecutionCompleted, RunID: runID, ToolCallID: call.ID, ToolResultContent: decision.CustomContent, ToolIsError: false})
	}
	return messages
}

// cancelRemaining appends a TOOL_CALL_CANCELLED result for every
// not-yet-dispatched call and marks them dispatched.
func (l *Loop) cancelRemaining(sm *ApprovalStateMachine, messages []Message) []Message {
	for _, call := range sm.UndispatchedCalls() {
		messages = append(messages, synthResult(call.ID, map[string]string{"error": "TOOL_CALL_CANCELLED"}, true))
		sm.MarkDispatched(call.ID)
	}
	return messages
}

// skipRemaining appends a "skipped due to steering" result for every
// not-yet-dispatched (and not-yet-started) call.
func (l *Loop) skipRemaining(sm *ApprovalStateMachine, messages []Message) []Message {
	for _, call := range sm.UndispatchedCalls() {
		messages = append(messages, synthResult(call.ID, map[string]string{"error": "Skipped due to steering update"}, true))
		sm.MarkDispatched(call.ID)
	}
	return messages
}
