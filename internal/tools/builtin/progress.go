package builtin

import "context"

// ProgressFunc receives one streaming output chunk for the tool call in
// flight. Tools that stream (currently only run_command) look this up via
// progressFromContext; a nil result means no one is listening and the
// chunk is simply dropped.
type ProgressFunc func(chunk string)

type progressKey struct{}

// WithProgress returns a context carrying fn as the active progress sink.
// The Dispatcher installs one per call so interim run_command output can
// reach a streaming-tool-output assembler (internal/toolstream) without
// widening the agentloop.ToolExecutor interface itself.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func progressFromContext(ctx context.Context) ProgressFunc {
	fn, _ := ctx.Value(progressKey{}).(ProgressFunc)
	return fn
}
