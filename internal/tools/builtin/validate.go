package builtin

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/agentrun/internal/agent"
)

// schemaValidator compiles every registered tool's Schema() once at
// construction and validates each call's arguments against the compiled
// form before Execute runs.
type schemaValidator struct {
	compiled map[string]*jsonschema.Schema
}

func newSchemaValidator(tools map[string]agent.Tool) *schemaValidator {
	v := &schemaValidator{compiled: make(map[string]*jsonschema.Schema, len(tools))}
	for name, t := range tools {
		compiled, err := jsonschema.CompileString(name, string(t.Schema()))
		if err != nil {
			// A tool shipping a malformed schema shouldn't block the
			// whole dispatcher; it just runs unvalidated.
			continue
		}
		v.compiled[name] = compiled
	}
	return v
}

// validate reports whether args satisfies the named tool's schema. Tools
// with no compiled schema (missing or malformed) are not validated.
func (v *schemaValidator) validate(name string, args json.RawMessage) error {
	schema, ok := v.compiled[name]
	if !ok {
		return nil
	}
	var payload any
	if len(args) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(args, &payload); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return schema.Validate(payload)
}
