package builtin

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/agentrun/internal/agent"
	"github.com/haasonsaas/agentrun/internal/agentloop"
)

type stubTool struct {
	name   string
	result *agent.ToolResult
	err    error
	delay  time.Duration
	schema json.RawMessage
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub tool for tests" }
func (s *stubTool) Schema() json.RawMessage {
	if s.schema != nil {
		return s.schema
	}
	return json.RawMessage(`{"type":"object"}`)
}
func (s *stubTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d := NewDispatcher(nil)
	result, err := d.Execute(context.Background(), agentloop.ProposedToolCall{ID: "c1", Name: "nope"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || result.Status != agentloop.ToolCompleted {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDispatcher_RoutesToNamedTool(t *testing.T) {
	stub := &stubTool{name: "echo", result: &agent.ToolResult{Content: "hi"}}
	d := NewDispatcher(nil, stub)
	result, err := d.Execute(context.Background(), agentloop.ProposedToolCall{ID: "c1", Name: "echo"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError || result.Content != "hi" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDispatcher_ToolErrorSurfacesAsContent(t *testing.T) {
	stub := &stubTool{name: "echo", result: &agent.ToolResult{Content: "broken", IsError: true}}
	d := NewDispatcher(nil, stub)
	result, err := d.Execute(context.Background(), agentloop.ProposedToolCall{ID: "c1", Name: "echo"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || result.Content != "broken" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDispatcher_CancelTokenTripsInFlightCall(t *testing.T) {
	stub := &stubTool{name: "slow", result: &agent.ToolResult{Content: "done"}, delay: time.Second}
	cancel := agentloop.NewCancelToken()
	d := NewDispatcher(cancel, stub)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel.Trip()
	}()

	result, err := d.Execute(context.Background(), agentloop.ProposedToolCall{ID: "c1", Name: "slow"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != agentloop.ToolCancelled {
		t.Fatalf("expected ToolCancelled, got %+v", result)
	}
}

func TestDispatcher_RejectsArgsFailingSchema(t *testing.T) {
	stub := &stubTool{
		name:   "needs_path",
		result: &agent.ToolResult{Content: "hi"},
		schema: json.RawMessage(`{"type":"object","required":["path"],"properties":{"path":{"type":"string"}}}`),
	}
	d := NewDispatcher(nil, stub)

	params, _ := json.Marshal(map[string]any{"not_path": 1})
	result, err := d.Execute(context.Background(), agentloop.ProposedToolCall{ID: "c1", Name: "needs_path", Args: params})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected schema validation failure, got %+v", result)
	}
}

func TestDispatcher_Specs(t *testing.T) {
	stub := &stubTool{name: "echo", result: &agent.ToolResult{Content: "hi"}}
	d := NewDispatcher(nil, stub)
	specs := d.Specs()
	if len(specs) != 1 || specs[0].Name != "echo" {
		t.Fatalf("unexpected specs: %+v", specs)
	}
}
