package toolstream

import "testing"

func TestProgress_AppendsToBuffer(t *testing.T) {
	a := New(nil)
	u1, ok := a.Progress("tc1", "hello ")
	if !ok || u1.Text != "hello " {
		t.Fatalf("unexpected first update: %+v ok=%v", u1, ok)
	}
	u2, ok := a.Progress("tc1", "world")
	if !ok || u2.Text != "hello world" {
		t.Fatalf("unexpected second update: %+v ok=%v", u2, ok)
	}
}

func TestFinal_ClearsBufferAndMarksDone(t *testing.T) {
	a := New(nil)
	a.Progress("tc1", "interim")
	final := a.Final("tc1", "done")
	if !final.Final || final.Text != "done" {
		t.Fatalf("unexpected final update: %+v", final)
	}
	if _, ok := a.Buffered("tc1"); ok {
		t.Fatalf("expected buffer to be cleared after Final")
	}
}

func TestProgress_StallSentinelSwallowedAndRoutedToHandler(t *testing.T) {
	var gotID, gotPayload string
	a := New(func(toolCallID, payload string) {
		gotID = toolCallID
		gotPayload = payload
	})
	_, ok := a.Progress("tc1", "__INTERACTIVE_STALL__:sudo apt install foo")
	if ok {
		t.Fatalf("expected stall sentinel to be swallowed (ok=false)")
	}
	if gotID != "tc1" || gotPayload != "sudo apt install foo" {
		t.Fatalf("unexpected stall handler call: id=%q payload=%q", gotID, gotPayload)
	}
	if _, buffered := a.Buffered("tc1"); buffered {
		t.Fatalf("stall sentinel must not be buffered")
	}
}

func TestProgress_NilStallHandlerSwallowsSilently(t *testing.T) {
	a := New(nil)
	_, ok := a.Progress("tc1", "__INTERACTIVE_STALL__:ls")
	if ok {
		t.Fatalf("expected stall sentinel swallowed even with nil handler")
	}
}

func TestIndependentToolCallsHaveIndependentBuffers(t *testing.T) {
	a := New(nil)
	a.Progress("tc1", "one")
	a.Progress("tc2", "two")
	b1, _ := a.Buffered("tc1")
	b2, _ := a.Buffered("tc2")
	if b1 != "one" || b2 != "two" {
		t.Fatalf("buffers leaked across ids: tc1=%q tc2=%q", b1, b2)
	}
}
