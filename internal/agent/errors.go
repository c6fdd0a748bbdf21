package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for tool execution.
var (
	// ErrToolNotFound indicates a requested tool doesn't exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolTimeout indicates a tool execution timed out.
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrToolCancelled indicates a tool execution was cancelled mid-flight.
	ErrToolCancelled = errors.New("tool execution cancelled")
)

// ToolErrorType categorizes tool execution failures. The category decides
// how the failure is rendered back to the model and whether the session
// that produced it is still usable.
type ToolErrorType string

const (
	// ToolErrorNotFound indicates the tool doesn't exist.
	ToolErrorNotFound ToolErrorType = "not_found"

	// ToolErrorInvalidInput indicates the call's arguments failed
	// validation.
	ToolErrorInvalidInput ToolErrorType = "invalid_input"

	// ToolErrorTimeout indicates the tool exceeded its per-call timeout.
	ToolErrorTimeout ToolErrorType = "timeout"

	// ToolErrorCancelled indicates the call was cancelled.
	ToolErrorCancelled ToolErrorType = "cancelled"

	// ToolErrorExecution indicates a runtime failure inside the handler.
	ToolErrorExecution ToolErrorType = "execution"
)

// ToolError is a structured tool execution failure carrying the tool name
// and call ID so the failure can be correlated with the conversation's
// tool-result message.
type ToolError struct {
	// Type categorizes the failure.
	Type ToolErrorType

	// ToolName is the name of the tool that failed.
	ToolName string

	// ToolCallID is the ID of the tool call that failed.
	ToolCallID string

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Type))
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError wraps cause, classifying it from sentinels and text.
func NewToolError(toolName string, cause error) *ToolError {
	err := &ToolError{
		ToolName: toolName,
		Cause:    cause,
		Type:     ToolErrorExecution,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Type = classifyToolError(cause)
	}
	return err
}

// WithType overrides the classified type.
func (e *ToolError) WithType(t ToolErrorType) *ToolError {
	e.Type = t
	return e
}

// WithToolCallID records the tool call ID the failure belongs to.
func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

func classifyToolError(err error) ToolErrorType {
	if err == nil {
		return ToolErrorExecution
	}

	switch {
	case errors.Is(err, ErrToolNotFound):
		return ToolErrorNotFound
	case errors.Is(err, ErrToolTimeout):
		return ToolErrorTimeout
	case errors.Is(err, ErrToolCancelled):
		return ToolErrorCancelled
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return ToolErrorTimeout
	}
	if strings.Contains(errStr, "context canceled") ||
		strings.Contains(errStr, "cancelled") {
		return ToolErrorCancelled
	}
	if strings.Contains(errStr, "invalid") ||
		strings.Contains(errStr, "validation") ||
		strings.Contains(errStr, "required") {
		return ToolErrorInvalidInput
	}

	return ToolErrorExecution
}

// GetToolError extracts a ToolError from an error chain.
func GetToolError(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}
