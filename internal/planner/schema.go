package planner

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed plan.schema.json
var planSchemaJSON []byte

const planSchemaURL = "plan.schema.json"

var planSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(planSchemaURL, bytes.NewReader(planSchemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(planSchemaURL)
})

// validateSchema checks p against the embedded plan schema.
func validateSchema(p Plan) error {
	schema, err := planSchema()
	if err != nil {
		return fmt.Errorf("failed to compile plan schema: %w", err)
	}

	var v any
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal plan for schema validation: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to normalize plan for schema validation: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("plan schema validation failed: %w", err)
	}
	return nil
}
