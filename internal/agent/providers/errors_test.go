package providers

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{400, KindInvalidRequest},
		{401, KindAPI},
		{402, KindAPI},
		{403, KindAPI},
		{404, KindAPI},
		{408, KindNetwork},
		{429, KindAPI},
		{500, KindAPI},
		{503, KindAPI},
	}
	for _, tt := range tests {
		err := NewProviderError("anthropic", "m", errors.New("boom")).WithStatus(tt.status)
		if err.Kind != tt.want {
			t.Errorf("WithStatus(%d).Kind = %v, want %v", tt.status, err.Kind, tt.want)
		}
	}
}

func TestClassifyTextNetwork(t *testing.T) {
	for _, msg := range []string{
		"dial tcp: connection refused",
		"lookup api.example.com: no such host",
		"context deadline exceeded",
		"read: connection reset by peer",
	} {
		err := NewProviderError("openai", "m", errors.New(msg))
		if err.Kind != KindNetwork {
			t.Errorf("classify(%q) = %v, want network", msg, err.Kind)
		}
	}
}

func TestClassifyTextParse(t *testing.T) {
	for _, msg := range []string{
		"unexpected end of JSON input",
		"invalid character 'x' looking for beginning of value",
		"json: cannot unmarshal string into Go value",
	} {
		err := NewProviderError("anthropic", "m", errors.New(msg))
		if err.Kind != KindParse {
			t.Errorf("classify(%q) = %v, want parse", msg, err.Kind)
		}
	}
}

func TestWithCodeInvalidRequestWins(t *testing.T) {
	err := NewProviderError("anthropic", "m", errors.New("request failed")).
		WithStatus(500).
		WithCode("invalid_request_error")
	if err.Kind != KindInvalidRequest {
		t.Errorf("Kind = %v, want invalid_request", err.Kind)
	}
	if !IsPermanent(err) {
		t.Error("invalid_request should be permanent")
	}
}

func TestWithCodeUnknownKeepsKind(t *testing.T) {
	err := NewProviderError("openai", "m", errors.New("boom")).
		WithStatus(503).
		WithCode("something_novel")
	if err.Kind != KindAPI {
		t.Errorf("Kind = %v, want api", err.Kind)
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want bool
	}{
		{"rate limit", NewProviderError("a", "m", errors.New("x")).WithStatus(429), true},
		{"server error", NewProviderError("a", "m", errors.New("x")).WithStatus(503), true},
		{"auth", NewProviderError("a", "m", errors.New("x")).WithStatus(401), false},
		{"invalid request", NewProviderError("a", "m", errors.New("x")).WithStatus(400), false},
		{"network", NewProviderError("a", "m", errors.New("connection refused")), true},
		{"parse", ParseError("a", "m", errors.New("unexpected end of JSON input")), false},
	}
	for _, tt := range tests {
		if got := tt.err.Transient(); got != tt.want {
			t.Errorf("%s: Transient() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsRetryableUnwrapsChain(t *testing.T) {
	inner := NewProviderError("anthropic", "m", errors.New("x")).WithStatus(429)
	wrapped := fmt.Errorf("stream_chat: %w", inner)
	if !IsRetryable(wrapped) {
		t.Error("wrapped 429 should be retryable")
	}

	permanent := fmt.Errorf("stream_chat: %w", NewProviderError("anthropic", "m", errors.New("x")).WithStatus(400))
	if IsRetryable(permanent) {
		t.Error("wrapped 400 should not be retryable")
	}
	if !IsPermanent(permanent) {
		t.Error("wrapped 400 should be permanent")
	}
}

func TestIsRetryableRawNetworkError(t *testing.T) {
	if !IsRetryable(errors.New("dial tcp 1.2.3.4:443: connect: connection refused")) {
		t.Error("raw connection error should be retryable")
	}
	if IsRetryable(errors.New("some application failure")) {
		t.Error("unclassified raw error should not be retryable at the transport layer")
	}
}

func TestProviderErrorString(t *testing.T) {
	err := NewProviderError("anthropic", "claude-sonnet-4-20250514", errors.New("boom")).
		WithStatus(429).
		WithCode("rate_limit_error").
		WithMessage("Number of request tokens has exceeded your rate limit")

	s := err.Error()
	for _, want := range []string{"[api]", "anthropic", "model=claude-sonnet-4-20250514", "status=429", "code=rate_limit_error", "rate limit"} {
		if !strings.Contains(s, want) {
			t.Errorf("Error() = %q, missing %q", s, want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewProviderError("openai", "m", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestGetProviderErrorMiss(t *testing.T) {
	if _, ok := GetProviderError(errors.New("plain")); ok {
		t.Error("plain error should not extract as ProviderError")
	}
	if IsProviderError(nil) {
		t.Error("nil is not a ProviderError")
	}
}
