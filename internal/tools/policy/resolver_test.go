package policy

import "testing"

func TestResolverAllowsAlias(t *testing.T) {
	resolver := NewResolver()
	resolver.RegisterAlias("bash", "run_command")

	policy := &Policy{Allow: []string{"run_command"}}
	if !resolver.IsAllowed(policy, "bash") {
		t.Fatal("expected alias tool to be allowed")
	}
}

func TestResolverAllowsAliasViaGroup(t *testing.T) {
	resolver := NewResolver()
	resolver.RegisterAlias("bash", "run_command")

	policy := &Policy{Allow: []string{"group:runtime"}}
	if !resolver.IsAllowed(policy, "bash") {
		t.Fatal("expected alias tool to be allowed via group expansion")
	}
}

func TestResolverCustomGroup(t *testing.T) {
	resolver := NewResolver()
	resolver.AddGroup("group:custom", []string{"generate_code"})

	policy := &Policy{Allow: []string{"group:custom"}}
	if !resolver.IsAllowed(policy, "generate_code") {
		t.Fatal("expected custom group tool to be allowed")
	}
	if resolver.IsAllowed(policy, "run_command") {
		t.Fatal("expected run_command to remain denied")
	}
}
