// Package policy provides tool authorization and access control for the
// agent loop's approval state machine: profiles, groups, and allow/deny
// lists that decide which proposed tool calls can be auto-approved.
package policy

import (
	"strings"
)

// Profile defines a pre-configured tool access profile that provides
// sensible defaults for common use cases like coding or read-only review.
type Profile string

const (
	// ProfileMinimal allows no tools; every call requires a manual decision.
	ProfileMinimal Profile = "minimal"

	// ProfileReadonly allows only tools that cannot modify state (view,
	// smart_search_code).
	ProfileReadonly Profile = "readonly"

	// ProfileCoding allows the full filesystem/runtime/search tool set.
	ProfileCoding Profile = "coding"

	// ProfileFull allows all tools (except explicitly denied).
	ProfileFull Profile = "full"
)

// Policy defines tool access rules for an agent combining a profile with
// explicit allow and deny lists. Deny rules always take precedence over
// allow rules.
type Policy struct {
	// Profile is a pre-configured access level.
	Profile Profile `json:"profile,omitempty" yaml:"profile"`

	// Allow explicitly allows these tools (in addition to profile).
	Allow []string `json:"allow,omitempty" yaml:"allow"`

	// Deny explicitly denies these tools (overrides allow).
	Deny []string `json:"deny,omitempty" yaml:"deny"`
}

// DefaultGroups are the built-in tool groups, keyed by the group name
// referenced from a Policy's Allow/Deny lists (e.g. "group:fs").
var DefaultGroups = map[string][]string{
	// Filesystem tools - view/edit/create files.
	"group:fs": {"view", "str_replace", "create", "insert"},

	// Shell execution.
	"group:runtime": {"run_command"},

	// Code search/generation forwarded to an upstream service.
	"group:search": {"generate_code", "smart_search_code"},

	// Tools that never modify state.
	"group:readonly": {"view", "smart_search_code"},

	// Every built-in tool the Tool Executor knows how to dispatch.
	"group:builtin": {
		"run_command", "view", "str_replace", "create", "insert",
		"generate_code", "smart_search_code",
	},
}

// ProfileDefaults defines the default allow lists for each profile.
var ProfileDefaults = map[Profile]*Policy{
	ProfileMinimal: {},
	ProfileReadonly: {
		Allow: []string{"group:readonly"},
	},
	ProfileCoding: {
		Allow: []string{"group:fs", "group:runtime", "group:search"},
	},
	ProfileFull: {
		// Full profile allows everything not explicitly denied.
	},
}

// ToolAliases maps alternative names to canonical tool names.
var ToolAliases = map[string]string{
	"shell": "run_command",
	"bash":  "run_command",
	"exec":  "run_command",
	"read":  "view",
	"ls":    "view",
	"edit":  "str_replace",
	"write": "create",
}

// NormalizeTool normalizes a tool name to its canonical form by converting
// to lowercase and resolving known aliases.
func NormalizeTool(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := ToolAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// NormalizeTools normalizes a list of tool names to their canonical forms.
func NormalizeTools(names []string) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		normalized := NormalizeTool(name)
		if normalized != "" {
			result = append(result, normalized)
		}
	}
	return result
}

// PolicyBuilder provides a fluent interface for building policies.
type PolicyBuilder struct {
	policy *Policy
}

// NewPolicyBuilder creates a new policy builder.
func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{policy: &Policy{}}
}

// WithProfile sets the base profile.
func (b *PolicyBuilder) WithProfile(profile Profile) *PolicyBuilder {
	b.policy.Profile = profile
	return b
}

// Allow allows the given tools or groups (e.g. "group:fs", "view").
func (b *PolicyBuilder) Allow(tools ...string) *PolicyBuilder {
	for _, t := range tools {
		b.policy.Allow = append(b.policy.Allow, NormalizeTool(t))
	}
	return b
}

// Deny denies the given tools or groups.
func (b *PolicyBuilder) Deny(tools ...string) *PolicyBuilder {
	for _, t := range tools {
		b.policy.Deny = append(b.policy.Deny, NormalizeTool(t))
	}
	return b
}

// Build returns the constructed policy.
func (b *PolicyBuilder) Build() *Policy {
	return b.policy
}
