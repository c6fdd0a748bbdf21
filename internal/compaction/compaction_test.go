package compaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// mockSummarizer returns a canned summary, or an error, and records how
// many times it was called.
type mockSummarizer struct {
	summary string
	err     error
	calls   int
	seen    [][]*Message
}

func (m *mockSummarizer) GenerateSummary(ctx context.Context, messages []*Message, config *SummarizationConfig) (string, error) {
	m.calls++
	m.seen = append(m.seen, messages)
	if m.err != nil {
		return "", m.err
	}
	if m.summary != "" {
		return m.summary, nil
	}
	return fmt.Sprintf("summary of %d messages", len(messages)), nil
}

func msgOfTokens(role string, tokens int) *Message {
	return &Message{Role: role, Content: strings.Repeat("a", tokens*CharsPerToken)}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want int
	}{
		{"nil", nil, 0},
		{"empty", &Message{}, 0},
		{"exact multiple", &Message{Content: strings.Repeat("x", 8)}, 2},
		{"rounds up", &Message{Content: strings.Repeat("x", 9)}, 3},
		{"counts tool traffic", &Message{Content: "abcd", ToolCalls: "efgh", ToolResults: "ijkl"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.msg); got != tt.want {
				t.Errorf("EstimateTokens() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEstimateMessagesTokens(t *testing.T) {
	messages := []*Message{msgOfTokens("user", 10), msgOfTokens("assistant", 5), nil}
	if got := EstimateMessagesTokens(messages); got != 15 {
		t.Errorf("EstimateMessagesTokens() = %d, want 15", got)
	}
}

func TestChunkMessagesByMaxTokens(t *testing.T) {
	t.Run("empty returns nil", func(t *testing.T) {
		if got := ChunkMessagesByMaxTokens(nil, 100); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})

	t.Run("zero budget keeps one chunk", func(t *testing.T) {
		messages := []*Message{msgOfTokens("user", 10)}
		chunks := ChunkMessagesByMaxTokens(messages, 0)
		if len(chunks) != 1 || len(chunks[0]) != 1 {
			t.Errorf("chunks = %v", chunks)
		}
	})

	t.Run("splits at budget boundary", func(t *testing.T) {
		messages := []*Message{
			msgOfTokens("user", 60),
			msgOfTokens("assistant", 60),
			msgOfTokens("user", 60),
		}
		chunks := ChunkMessagesByMaxTokens(messages, 100)
		if len(chunks) != 3 {
			t.Fatalf("chunks = %d, want 3 (60+60 exceeds 100)", len(chunks))
		}
	})

	t.Run("oversized message gets own chunk", func(t *testing.T) {
		messages := []*Message{
			msgOfTokens("user", 10),
			msgOfTokens("assistant", 500),
			msgOfTokens("user", 10),
		}
		chunks := ChunkMessagesByMaxTokens(messages, 100)
		if len(chunks) != 3 {
			t.Fatalf("chunks = %d, want 3", len(chunks))
		}
		if len(chunks[1]) != 1 || EstimateTokens(chunks[1][0]) != 500 {
			t.Errorf("middle chunk should isolate the oversized message")
		}
	})
}

func TestIsOversizedForSummary(t *testing.T) {
	if IsOversizedForSummary(nil, 1000) {
		t.Error("nil message is never oversized")
	}
	if IsOversizedForSummary(msgOfTokens("user", 400), 1000) {
		t.Error("400 of 1000 tokens is under the 50% threshold")
	}
	if !IsOversizedForSummary(msgOfTokens("user", 600), 1000) {
		t.Error("600 of 1000 tokens is over the 50% threshold")
	}
	if IsOversizedForSummary(msgOfTokens("user", 600), 0) {
		t.Error("zero context window disables the check")
	}
}

func TestSummarizeChunks(t *testing.T) {
	t.Run("empty returns fallback", func(t *testing.T) {
		result, err := SummarizeChunks(context.Background(), nil, &mockSummarizer{}, nil)
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if result != SummaryFallback {
			t.Errorf("result = %q, want fallback", result)
		}
	})

	t.Run("nil summarizer errors", func(t *testing.T) {
		if _, err := SummarizeChunks(context.Background(), []*Message{{Content: "x"}}, nil, nil); err == nil {
			t.Error("expected error for nil summarizer")
		}
	})

	t.Run("single chunk summarized directly", func(t *testing.T) {
		summarizer := &mockSummarizer{summary: "done"}
		result, err := SummarizeChunks(context.Background(), []*Message{msgOfTokens("user", 10)}, summarizer, nil)
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if result != "done" || summarizer.calls != 1 {
			t.Errorf("result = %q, calls = %d", result, summarizer.calls)
		}
	})

	t.Run("multiple chunks then merge", func(t *testing.T) {
		summarizer := &mockSummarizer{summary: "s"}
		config := &SummarizationConfig{MaxChunkTokens: 50, ContextWindow: DefaultContextWindow}
		messages := []*Message{
			msgOfTokens("user", 40),
			msgOfTokens("assistant", 40),
			msgOfTokens("user", 40),
		}
		_, err := SummarizeChunks(context.Background(), messages, summarizer, config)
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		// One call per chunk plus one merge pass.
		if summarizer.calls < 3 {
			t.Errorf("calls = %d, want chunk calls plus a merge", summarizer.calls)
		}
	})

	t.Run("chunk error propagates", func(t *testing.T) {
		summarizer := &mockSummarizer{err: errors.New("api down")}
		if _, err := SummarizeChunks(context.Background(), []*Message{msgOfTokens("user", 10)}, summarizer, nil); err == nil {
			t.Error("expected error")
		}
	})
}

func TestSummarizeWithFallback(t *testing.T) {
	t.Run("oversized messages noted not summarized", func(t *testing.T) {
		summarizer := &mockSummarizer{summary: "normal summary"}
		config := &SummarizationConfig{MaxChunkTokens: 20000, ContextWindow: 1000}
		messages := []*Message{
			msgOfTokens("user", 10),
			msgOfTokens("assistant", 900), // over 50% of the window
		}
		result, err := SummarizeWithFallback(context.Background(), messages, summarizer, config)
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if !strings.Contains(result, "normal summary") {
			t.Errorf("result = %q, missing summary of normal messages", result)
		}
		if !strings.Contains(result, "Oversized assistant message") {
			t.Errorf("result = %q, missing oversized note", result)
		}
		for _, batch := range summarizer.seen {
			for _, m := range batch {
				if EstimateTokens(m) == 900 {
					t.Error("oversized message leaked into a summarization call")
				}
			}
		}
	})

	t.Run("all oversized yields fallback plus notes", func(t *testing.T) {
		config := &SummarizationConfig{ContextWindow: 100}
		result, err := SummarizeWithFallback(context.Background(), []*Message{msgOfTokens("user", 90)}, &mockSummarizer{}, config)
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if !strings.Contains(result, SummaryFallback) {
			t.Errorf("result = %q, missing fallback", result)
		}
	})
}

func TestFormatMessagesForSummary(t *testing.T) {
	messages := []*Message{
		{Role: "user", Content: "fix the bug"},
		{Role: "assistant", Content: "looking", ToolCalls: `[{"path":"main.go"}]`},
		nil,
		{Role: "tool", ToolResults: strings.Repeat("r", 300)},
	}
	out := FormatMessagesForSummary(messages)

	if !strings.Contains(out, "[user]: fix the bug") {
		t.Errorf("missing user line in %q", out)
	}
	if !strings.Contains(out, "[Tool calls:") {
		t.Errorf("missing tool-call line in %q", out)
	}
	// Long tool traffic is clipped to keep the summarization prompt lean.
	if !strings.Contains(out, "...") {
		t.Errorf("expected truncation marker in %q", out)
	}
}

func TestDefaultSummarizationConfig(t *testing.T) {
	config := DefaultSummarizationConfig()
	if config.MaxChunkTokens <= 0 {
		t.Error("MaxChunkTokens should be positive")
	}
	if config.ContextWindow != DefaultContextWindow {
		t.Errorf("ContextWindow = %d", config.ContextWindow)
	}
}
