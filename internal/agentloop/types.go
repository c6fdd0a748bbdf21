// Package agentloop implements the turn-oriented agent run state machine:
// inference, tool approval, tool execution, context compaction, retries and
// cancellation, driven by a command channel and reporting through an event
// channel. It is the conductor over the provider, tool, approval, context
// and compaction packages.
package agentloop

import (
	"encoding/json"

	"github.com/haasonsaas/agentrun/internal/agent/providers"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind tags the variant carried by a ContentPart.
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
	PartImage      PartKind = "image"
)

// ContentPart is one ordered unit of a Message's content. Only the fields
// relevant to Kind are populated, following the same one-struct-tagged-by-
// kind convention the provider layer uses for GenerationDelta.
type ContentPart struct {
	Kind PartKind

	// Text applies to PartText.
	Text string

	// ToolCall* apply to PartToolCall.
	ToolCallID   string
	ToolCallName string
	ToolCallArgs json.RawMessage

	// ToolResult* apply to PartToolResult.
	ToolResultCallID   string
	ToolResultPayload  json.RawMessage
	ToolResultIsError  bool

	// ImageRef applies to PartImage.
	ImageRef string
}

func Text(s string) ContentPart { return ContentPart{Kind: PartText, Text: s} }

func ToolCall(id, name string, args json.RawMessage) ContentPart {
	return ContentPart{Kind: PartToolCall, ToolCallID: id, ToolCallName: name, ToolCallArgs: args}
}

func ToolResult(callID string, payload json.RawMessage, isError bool) ContentPart {
	return ContentPart{Kind: PartToolResult, ToolResultCallID: callID, ToolResultPayload: payload, ToolResultIsError: isError}
}

// Message is one conversation message: a role plus an ordered sequence of
// typed content parts. Ordering of parts, and of messages, is significant.
type Message struct {
	Role  Role
	Parts []ContentPart
}

// TextMessage builds a single-part text message, the common case for
// System/User messages.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []ContentPart{Text(text)}}
}

// PlainText concatenates every PartText in the message, in order. Used when
// rendering an assistant message's visible text (ignoring tool calls).
func (m Message) PlainText() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolCalls returns every PartToolCall in the message, in order.
func (m Message) ToolCalls() []ContentPart {
	var out []ContentPart
	for _, p := range m.Parts {
		if p.Kind == PartToolCall {
			out = append(out, p)
		}
	}
	return out
}

// ProposedToolCall is a tool call as proposed by the provider within a turn.
// ID is assigned by the provider and is the primary key across the
// conversation; duplicates within the same turn are forbidden.
type ProposedToolCall struct {
	ID       string
	Name     string
	Args     json.RawMessage
	Metadata json.RawMessage
}

// DecisionKind tags a ToolDecision.
type DecisionKind string

const (
	DecisionAccept DecisionKind = "accept"
	DecisionReject DecisionKind = "reject"
	DecisionCustom DecisionKind = "custom"
)

// ToolDecision is the user/policy verdict for one proposed tool call.
type ToolDecision struct {
	Kind          DecisionKind
	RejectReason  string // DecisionReject
	CustomContent string // DecisionCustom
}

func Accept() ToolDecision                  { return ToolDecision{Kind: DecisionAccept} }
func Reject(reason string) ToolDecision     { return ToolDecision{Kind: DecisionReject, RejectReason: reason} }
func Custom(content string) ToolDecision    { return ToolDecision{Kind: DecisionCustom, CustomContent: content} }

// TurnFinishReason mirrors providers.FinishReason for the turn-level event.
type TurnFinishReason = providers.FinishReason

// RunStopReason is the terminal disposition of a run.
type RunStopReason string

const (
	StopCompleted RunStopReason = "completed"
	StopCancelled RunStopReason = "cancelled"
	StopMaxTurns  RunStopReason = "max_turns"
	StopError     RunStopReason = "error"
)

// TokenUsage is re-exported from the provider layer; the loop accumulates
// turn usage into one of these per run.
type TokenUsage = providers.TokenUsage

// RunResult is the Agent Loop's output.
type RunResult struct {
	RunID        string
	TotalTurns   int
	TotalUsage   TokenUsage
	StopReason   RunStopReason
	FinalMessages []Message
	Err          error
}
