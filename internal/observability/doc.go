// Package observability provides structured logging for the agent runtime,
// with automatic correlation-ID propagation and sensitive data redaction.
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic correlation ID propagation from context (run, session, tool
//     call, agent, message)
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	// Add correlation IDs for the duration of a run
//	ctx := observability.AddRunID(ctx, runID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//
//	logger.Info(ctx, "turn started",
//	    "turn", turnIndex,
//	    "tool_calls", len(proposed),
//	)
//
//	// Error logging with automatic redaction
//	logger.Error(ctx, "provider request failed",
//	    "error", err,
//	    "provider", "anthropic",
//	    "api_key", apiKey, // automatically redacted
//	)
//
// # Context Propagation
//
// Correlation IDs attach to a context.Context and are picked up
// automatically by Logger so callers don't need to repeat them on every
// call site:
//
//	ctx = observability.AddRunID(ctx, "run-123")
//	ctx = observability.AddToolCallID(ctx, "call-456")
//	ctx = observability.AddAgentID(ctx, "agent-789")
//
//	logger.Info(ctx, "executing tool") // includes run_id, tool_call_id, agent_id
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration (RedactPatterns)
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Testing
//
// Logger can write to a bytes.Buffer for assertions in tests, and redaction
// patterns can be exercised directly without a live log sink.
package observability
