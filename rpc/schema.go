package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compiledSchema validates tool params against the JSON-Schema subset
// described in spec.md §4.2/§9 (type, enum, min/max, required, default).
// An empty/nil schema accepts anything, matching a tool that declares no
// input constraints.
type compiledSchema struct {
	schema *jsonschema.Schema
}

// compileSchema compiles the raw JSON-Schema document for a tool. The
// resource name only needs to be unique within the compiler instance used.
func compileSchema(name string, raw json.RawMessage) (*compiledSchema, error) {
	if len(raw) == 0 {
		return &compiledSchema{}, nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("rpc: decode schema for %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	resourceURL := "mem://tool/" + name + ".json"
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("rpc: add schema resource for %s: %w", name, err)
	}
	sch, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("rpc: compile schema for %s: %w", name, err)
	}
	return &compiledSchema{schema: sch}, nil
}

// Validate checks raw params against the compiled schema. A nil schema
// (no input_schema was supplied at registration) always succeeds.
func (c *compiledSchema) Validate(raw json.RawMessage) error {
	if c == nil || c.schema == nil {
		return nil
	}
	var instance any
	if len(raw) == 0 {
		instance = map[string]any{}
	} else if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("rpc: params not valid JSON: %w", err)
	}
	if err := c.schema.Validate(instance); err != nil {
		return fmt.Errorf("rpc: %w", err)
	}
	return nil
}
