package agentloop

import "context"

// ChannelCommandSource adapts a Go channel to the CommandSource contract
// used by the loop. It is the production implementation; tests may supply
// their own CommandSource for deterministic scripted command sequences.
type ChannelCommandSource struct {
	ch <-chan AgentCommand
}

// NewChannelCommandSource wraps ch. The channel should be closed by the
// producer once no further commands will ever be sent (e.g. the UI
// disconnected); Next then returns context.Canceled-shaped behavior via the
// loop treating a closed/empty channel as "no more commands, keep running
// with what's already queued."
func NewChannelCommandSource(ch <-chan AgentCommand) *ChannelCommandSource {
	return &ChannelCommandSource{ch: ch}
}

func (c *ChannelCommandSource) TryNext() (AgentCommand, bool) {
	select {
	case cmd, ok := <-c.ch:
		if !ok {
			return AgentCommand{}, false
		}
		return cmd, true
	default:
		return AgentCommand{}, false
	}
}

func (c *ChannelCommandSource) Next() (AgentCommand, error) {
	return c.NextCtx(context.Background())
}

// NextCtx blocks until a command arrives or ctx is cancelled.
func (c *ChannelCommandSource) NextCtx(ctx context.Context) (AgentCommand, error) {
	select {
	case cmd, ok := <-c.ch:
		if !ok {
			<-ctx.Done()
			return AgentCommand{}, ctx.Err()
		}
		return cmd, nil
	case <-ctx.Done():
		return AgentCommand{}, ctx.Err()
	}
}

// ChannelEventSink adapts a bounded Go channel to EventSink. Sends drop
// silently only when the channel is closed/unreachable, since a dropped
// consumer must never panic or block the loop forever; an open
// but full channel still blocks the producer, since only UI-advisory
// deltas (text/thinking) may be lost, and only when the UI is gone.
func ChannelEventSink(ch chan<- AgentEvent) EventSink {
	return func(ev AgentEvent) {
		defer func() { recover() }() // send on closed channel
		ch <- ev
	}
}
