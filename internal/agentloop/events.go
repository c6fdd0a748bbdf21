package agentloop

// EventKind tags the variant carried by an AgentEvent.
type EventKind string

const (
	EventRunStarted             EventKind = "run_started"
	EventTurnStarted            EventKind = "turn_started"
	EventTextDelta              EventKind = "text_delta"
	EventThinkingDelta          EventKind = "thinking_delta"
	EventTextComplete           EventKind = "text_complete"
	EventUsageReport            EventKind = "usage_report"
	EventToolCallsProposed      EventKind = "tool_calls_proposed"
	EventWaitingForToolApproval EventKind = "waiting_for_tool_approval"
	EventToolExecutionStarted   EventKind = "tool_execution_started"
	EventToolExecutionCompleted EventKind = "tool_execution_completed"
	EventToolRejected           EventKind = "tool_rejected"
	EventCompactionStarted      EventKind = "compaction_started"
	EventCompactionCompleted    EventKind = "compaction_completed"
	EventRetryAttempt           EventKind = "retry_attempt"
	EventTurnCompleted          EventKind = "turn_completed"
	EventRunCompleted           EventKind = "run_completed"
	EventRunError               EventKind = "run_error"
)

// AgentEvent is one tagged notification emitted by the loop, in production
// order, on a single channel. Only the fields relevant to Kind are set.
type AgentEvent struct {
	Kind  EventKind
	RunID string

	TurnIndex int // TurnStarted, TurnCompleted

	Text string // TextDelta, ThinkingDelta, TextComplete

	Usage *TokenUsage // UsageReport

	ToolCallIDs []string           // ToolCallsProposed, WaitingForToolApproval
	ToolCalls   []ProposedToolCall // ToolCallsProposed
	ToolCallID  string             // ToolExecutionStarted/Completed, ToolRejected

	ToolResultContent string // ToolExecutionCompleted
	ToolIsError        bool  // ToolExecutionCompleted
	RejectReason       string // ToolRejected

	CompactionTokensBefore int  // CompactionCompleted
	CompactionTokensAfter  int  // CompactionCompleted
	CompactionTruncated    bool // CompactionCompleted

	RetryAttempt int    // RetryAttempt
	RetryDelayMs int64  // RetryAttempt
	RetryReason  string // RetryAttempt

	TurnFinishReason TurnFinishReason // TurnCompleted

	StopReason RunStopReason // RunCompleted
	Err        error         // RunError
	Retryable  bool          // RunError
}

// EventSink receives AgentEvent values as the run progresses. The loop's
// caller supplies one backed by a bounded channel; sends never reorder.
type EventSink func(AgentEvent)

// CommandKind tags the variant carried by an AgentCommand.
type CommandKind string

const (
	CmdResolveTool  CommandKind = "resolve_tool"
	CmdResolveTools CommandKind = "resolve_tools"
	CmdSteering     CommandKind = "steering"
	CmdFollowUp     CommandKind = "follow_up"
	CmdSwitchModel  CommandKind = "switch_model"
	CmdCancel       CommandKind = "cancel"
)

// AgentCommand is one tagged instruction consumed by the loop, possibly out
// of arrival order relative to other senders but FIFO per sender.
type AgentCommand struct {
	Kind CommandKind

	ToolCallID string       // ResolveTool
	Decision   ToolDecision // ResolveTool

	Decisions map[string]ToolDecision // ResolveTools

	Text string // Steering, FollowUp

	Model string // SwitchModel
}

// CommandSource yields the next pending command, or ok=false if none is
// currently queued. The loop's non-blocking drain calls this in a loop
// until it returns ok=false; Next is used when the tool cycle must
// suspend waiting for a decision.
type CommandSource interface {
	// TryNext returns the next command without blocking.
	TryNext() (AgentCommand, bool)
	// Next blocks until a command is available or ctx is done.
	Next() (AgentCommand, error)
}
