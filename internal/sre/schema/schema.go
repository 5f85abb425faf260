// Package schema validates Plan and DiagnosisReport payloads against their
// embedded JSON Schema documents.
package schema

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	jsonschema "github.com/google/jsonschema-go/jsonschema"
)

//go:embed schemas
var schemaFS embed.FS

// ValidationError reports a schema violation as a path plus a message.
// Validate always sets Path to "$" (the document root) and puts the
// validator's own error text in Message; no dotted path to the failing
// field is computed.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates payloads against one compiled JSON Schema.
type Validator struct {
	resolved *jsonschema.Resolved
}

// Load compiles the embedded schema file name (e.g. "plan.schema.json").
func Load(name string) (*Validator, error) {
	data, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", name, err)
	}
	var raw jsonschema.Schema
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: parse %s: %w", name, err)
	}
	resolved, err := raw.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("schema: resolve %s: %w", name, err)
	}
	return &Validator{resolved: resolved}, nil
}

// Validate checks payload against the compiled schema, returning the first
// violation as a *ValidationError.
func (v *Validator) Validate(ctx context.Context, payload map[string]any) error {
	if err := v.resolved.Validate(payload); err != nil {
		return &ValidationError{Path: "$", Message: err.Error()}
	}
	return nil
}
