package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is the unified taxonomy for provider failures. Every error a
// client surfaces to the agent loop carries exactly one of these; only
// KindInvalidRequest is permanent — everything else may succeed on a
// later attempt.
type ErrorKind string

const (
	// KindInvalidRequest indicates the request itself was rejected
	// (HTTP 400, invalid_request_error). Retrying the identical request
	// cannot succeed.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindAPI indicates the provider accepted the request shape but
	// failed to serve it: rate limits, auth, quota, server errors.
	KindAPI ErrorKind = "api"

	// KindNetwork indicates the request never completed at the
	// transport level: DNS, connect, reset, timeout.
	KindNetwork ErrorKind = "network"

	// KindParse indicates the stream arrived but its payload could not
	// be assembled into a response.
	KindParse ErrorKind = "parse"
)

// Permanent reports whether retrying an identical request is pointless.
func (k ErrorKind) Permanent() bool {
	return k == KindInvalidRequest
}

// ProviderError is a structured provider failure carrying the context the
// transport retry loop and the agent loop need: kind, provider, model,
// HTTP status, provider error code, and request ID.
type ProviderError struct {
	// Kind places the error in the unified taxonomy.
	Kind ErrorKind

	// Provider is the client that produced the error ("anthropic",
	// "openai").
	Provider string

	// Model is the model that was requested.
	Model string

	// Status is the HTTP status code, if one was received.
	Status int

	// Code is the provider-specific error code (e.g.
	// "invalid_request_error").
	Code string

	// Message is the human-readable error message.
	Message string

	// RequestID is the provider's request ID for support/debugging.
	RequestID string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))

	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Transient reports whether the transport retry loop should try again:
// rate limits, server errors, timeouts and connection failures are
// transient; invalid requests, auth/billing rejections and parse failures
// are not.
func (e *ProviderError) Transient() bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindInvalidRequest, KindParse:
		return false
	}
	switch {
	case e.Status == http.StatusTooManyRequests:
		return true
	case e.Status == http.StatusRequestTimeout:
		return true
	case e.Status >= 500:
		return true
	case e.Status != 0:
		return false
	}
	return classifyText(errText(e)) == KindNetwork
}

// NewProviderError wraps cause, classifying it from its text.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Kind:     KindAPI,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Kind = classifyText(cause.Error())
	}
	return err
}

// WithStatus records the HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Kind = classifyStatus(status)
	return e
}

// WithCode records the provider-specific error code and reclassifies when
// the code is decisive.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if kind, ok := classifyCode(code); ok {
		e.Kind = kind
	}
	return e
}

// WithRequestID records the provider's request ID.
func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

// WithMessage sets the error message.
func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

// ParseError builds a KindParse ProviderError for a stream whose payload
// could not be assembled.
func ParseError(provider, model string, cause error) *ProviderError {
	err := NewProviderError(provider, model, cause)
	err.Kind = KindParse
	return err
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest:
		return KindInvalidRequest
	case status == http.StatusRequestTimeout:
		return KindNetwork
	default:
		return KindAPI
	}
}

func classifyCode(code string) (ErrorKind, bool) {
	switch strings.ToLower(code) {
	case "invalid_request_error", "invalid_request":
		return KindInvalidRequest, true
	case "rate_limit_error", "rate_limit_exceeded",
		"authentication_error", "invalid_api_key",
		"billing_error", "insufficient_quota",
		"overloaded_error", "server_error", "internal_error":
		return KindAPI, true
	default:
		return "", false
	}
}

func classifyText(text string) ErrorKind {
	lower := strings.ToLower(text)

	for _, marker := range []string{
		"connection", "network", "dns", "refused", "unreachable",
		"reset by peer", "broken pipe", "no such host",
		"timeout", "deadline exceeded", "etimedout",
	} {
		if strings.Contains(lower, marker) {
			return KindNetwork
		}
	}
	for _, marker := range []string{"invalid_request_error", "invalid request"} {
		if strings.Contains(lower, marker) {
			return KindInvalidRequest
		}
	}
	for _, marker := range []string{
		"unexpected end of json", "invalid character", "cannot unmarshal",
		"malformed event", "parse",
	} {
		if strings.Contains(lower, marker) {
			return KindParse
		}
	}
	return KindAPI
}

func errText(e *ProviderError) string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return ""
}

// IsProviderError checks whether err is or wraps a ProviderError.
func IsProviderError(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr)
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}

// IsRetryable reports whether the transport layer should retry err.
func IsRetryable(err error) bool {
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Transient()
	}
	return classifyText(errorString(err)) == KindNetwork
}

// IsPermanent reports whether err can never succeed on retry; the agent
// loop stops retrying and surfaces these immediately.
func IsPermanent(err error) bool {
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Kind.Permanent()
	}
	return false
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
