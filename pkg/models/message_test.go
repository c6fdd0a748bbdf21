package models

import (
	"encoding/json"
	"testing"
)

func TestToolCallInputStaysRaw(t *testing.T) {
	raw := `{"id":"t1","name":"view","input":{"path":"/a","view_range":[1,-1]}}`

	var call ToolCall
	if err := json.Unmarshal([]byte(raw), &call); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if call.ID != "t1" || call.Name != "view" {
		t.Fatalf("call = %+v", call)
	}
	// Input passes through untouched so argument parsing stays with the
	// tool handler, not the transport.
	if string(call.Input) != `{"path":"/a","view_range":[1,-1]}` {
		t.Fatalf("input = %s", call.Input)
	}
}

func TestToolResultOmitsIsErrorWhenFalse(t *testing.T) {
	b, err := json.Marshal(ToolResult{ToolCallID: "t1", Content: "ok"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"tool_call_id":"t1","content":"ok"}` {
		t.Fatalf("marshalled = %s", b)
	}

	b, err = json.Marshal(ToolResult{ToolCallID: "t2", Content: "boom", IsError: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"tool_call_id":"t2","content":"boom","is_error":true}` {
		t.Fatalf("marshalled = %s", b)
	}
}

func TestAttachmentOptionalFields(t *testing.T) {
	b, err := json.Marshal(Attachment{Type: "image", URL: "https://example.com/cat.png"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"type":"image","url":"https://example.com/cat.png"}` {
		t.Fatalf("marshalled = %s", b)
	}
}
