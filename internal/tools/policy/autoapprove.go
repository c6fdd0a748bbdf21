package policy

import (
	"encoding/json"

	"github.com/haasonsaas/agentrun/internal/agentloop"
	"github.com/haasonsaas/agentrun/internal/tools/security"
)

// AutoApprove builds an agentloop.AutoApprovePredicate from a resolver and
// policy: the approval state machine consults this at construction
// time to pre-populate decisions for tool names/classes the caller has
// blanket-approved, before ever prompting a human. Calls the resolver
// denies are left for the human/UI path — the predicate only returns a
// decision (true) when the tool is explicitly allowed.
//
// run_command gets one extra gate: even under a policy that allows it, a
// command that chains, pipes, redirects, or spawns subshells is left for
// a human decision.
func AutoApprove(resolver *Resolver, pol *Policy) agentloop.AutoApprovePredicate {
	return func(call agentloop.ProposedToolCall) (agentloop.ToolDecision, bool) {
		if resolver == nil || pol == nil {
			return agentloop.ToolDecision{}, false
		}
		if !resolver.IsAllowed(pol, call.Name) {
			return agentloop.ToolDecision{}, false
		}
		if resolver.CanonicalName(call.Name) == "run_command" && !commandIsSafe(call.Args) {
			return agentloop.ToolDecision{}, false
		}
		return agentloop.Accept(), true
	}
}

// commandIsSafe decodes the call's command argument and runs the shell
// analysis on it. Undecodable or missing arguments are not safe.
func commandIsSafe(raw json.RawMessage) bool {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || args.Command == "" {
		return false
	}
	return security.IsSafeCommand(args.Command)
}
