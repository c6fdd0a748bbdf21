// Package builtin implements the fixed tool set available to an agent —
// run_command, view, str_replace, create, insert, generate_code,
// smart_search_code — and the Dispatcher that satisfies
// agentloop.ToolExecutor by routing a ProposedToolCall to its handler by
// name. run_command dispatches through a persistent shellsession rather
// than one-shot process exec. Incoming arguments are validated against
// each tool's own JSON Schema before Execute runs, compiling each schema
// once at construction and validating every call against the compiled
// form (jsonschema/v5).
package builtin

import (
	"context"
	"fmt"

	"github.com/haasonsaas/agentrun/internal/agent"
	"github.com/haasonsaas/agentrun/internal/agentloop"
)

// Dispatcher routes proposed tool calls to registered agent.Tool handlers
// by name and adapts their result shape to agentloop.ToolExecutor.
type Dispatcher struct {
	tools     map[string]agent.Tool
	cancel    *agentloop.CancelToken
	progress  func(toolCallID string) ProgressFunc
	validator *schemaValidator
}

// NewDispatcher builds a Dispatcher over the given tools, keyed by their
// Name(). cancel is the same CancelToken the owning Loop was constructed
// with, so in-flight tool calls observe cancellation the same way every
// other suspension point in the loop does; it may be nil for callers
// that never cancel (e.g. most unit tests).
func NewDispatcher(cancel *agentloop.CancelToken, tools ...agent.Tool) *Dispatcher {
	d := &Dispatcher{tools: make(map[string]agent.Tool, len(tools)), cancel: cancel}
	for _, t := range tools {
		d.tools[t.Name()] = t
	}
	d.validator = newSchemaValidator(d.tools)
	return d
}

// WithProgress installs a factory that returns the progress sink for a
// given tool-call id; only run_command currently streams interim chunks.
func (d *Dispatcher) WithProgress(factory func(toolCallID string) ProgressFunc) *Dispatcher {
	d.progress = factory
	return d
}

// Specs returns a ToolSpec for every registered tool, for wiring into
// agentloop.Config.Tools.
func (d *Dispatcher) Specs() []agentloop.ToolSpec {
	specs := make([]agentloop.ToolSpec, 0, len(d.tools))
	for name, t := range d.tools {
		specs = append(specs, agentloop.ToolSpec{Name: name, Description: t.Description(), Schema: t.Schema()})
	}
	return specs
}

type toolOutcome struct {
	result *agent.ToolResult
	err    error
}

// Execute implements agentloop.ToolExecutor.
func (d *Dispatcher) Execute(ctx context.Context, call agentloop.ProposedToolCall) (agentloop.ToolExecutionResult, error) {
	tool, ok := d.tools[call.Name]
	if !ok {
		return agentloop.ToolExecutionResult{
			Status:  agentloop.ToolCompleted,
			Content: fmt.Sprintf("unknown tool %q", call.Name),
			IsError: true,
		}, nil
	}

	if err := d.validator.validate(call.Name, call.Args); err != nil {
		return agentloop.ToolExecutionResult{
			Status:  agentloop.ToolCompleted,
			Content: fmt.Sprintf("arguments for %q failed schema validation: %v", call.Name, err),
			IsError: true,
		}, nil
	}

	execCtx := ctx
	var cancelExec context.CancelFunc
	if d.cancel != nil {
		execCtx, cancelExec = context.WithCancel(ctx)
		defer cancelExec()
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-d.cancel.Done():
				cancelExec()
			case <-stop:
			}
		}()
	}

	if d.progress != nil {
		execCtx = WithProgress(execCtx, d.progress(call.ID))
	}

	outcomeCh := make(chan toolOutcome, 1)
	go func() {
		res, err := tool.Execute(execCtx, call.Args)
		outcomeCh <- toolOutcome{result: res, err: err}
	}()

	if d.cancel != nil {
		select {
		case <-d.cancel.Done():
			return agentloop.ToolExecutionResult{Status: agentloop.ToolCancelled}, nil
		case out := <-outcomeCh:
			return adaptOutcome(call, out)
		}
	}

	out := <-outcomeCh
	return adaptOutcome(call, out)
}

func adaptOutcome(call agentloop.ProposedToolCall, out toolOutcome) (agentloop.ToolExecutionResult, error) {
	if out.err != nil {
		toolErr := agent.NewToolError(call.Name, out.err).WithToolCallID(call.ID)
		return agentloop.ToolExecutionResult{Status: agentloop.ToolCompleted, Content: toolErr.Error(), IsError: true}, nil
	}
	content := ""
	isError := false
	if out.result != nil {
		content = truncateMiddle(out.result.Content)
		isError = out.result.IsError
	}
	return agentloop.ToolExecutionResult{Status: agentloop.ToolCompleted, Content: content, IsError: isError}, nil
}
