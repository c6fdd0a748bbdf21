package builtin

import (
	"strings"
	"testing"
)

func TestTruncateMiddle_ShortStringUnchanged(t *testing.T) {
	s := "short content"
	if got := truncateMiddle(s); got != s {
		t.Fatalf("got %q, want unchanged %q", got, s)
	}
}

func TestTruncateMiddle_LongStringClipped(t *testing.T) {
	s := make([]byte, maxResultChars*2)
	for i := range s {
		s[i] = 'a' + byte(i%26)
	}
	for i := 0; i < 100; i++ {
		s[i] = 'H'
	}
	for i := len(s) - 100; i < len(s); i++ {
		s[i] = 'T'
	}

	got := truncateMiddle(string(s))
	if len(got) > maxResultChars {
		t.Fatalf("truncated length %d exceeds budget %d", len(got), maxResultChars)
	}
	if got[:100] != string(s[:100]) {
		t.Fatalf("head not preserved")
	}
	if got[len(got)-100:] != string(s[len(s)-100:]) {
		t.Fatalf("tail not preserved")
	}
	if !strings.Contains(got, truncationMarker) {
		t.Fatalf("expected truncation marker in output")
	}
}
