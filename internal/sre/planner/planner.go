// Package planner defines the thin interface the multi-round diagnose loop
// and the report builder use to obtain a schema-constrained JSON object
// from an LLM, plus a concrete client for Anthropic's API. This is
// deliberately not a tool-calling framework: the planner never sees tool
// definitions, function-call protocols, or multi-turn agent state — each
// call is one prompt in, one validated JSON object out.
package planner

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

// Planner produces a JSON object from a prompt, retrying internally (if at
// all) until it either returns valid JSON or a wrapped error. Callers are
// still responsible for validating the result against a schema.
type Planner interface {
	GenerateJSON(ctx context.Context, prompt string, temperature float64) (map[string]any, error)
}

// ExtractJSONObject finds the outermost `{...}` span in text and parses it,
// tolerating leading/trailing prose an LLM may have wrapped its JSON
// reply in. It returns an error if no valid JSON object is found.
func ExtractJSONObject(text string) (map[string]any, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidate := text[start : i+1]
					if gjson.Valid(candidate) {
						result := gjson.Parse(candidate)
						if result.IsObject() {
							return result.Value().(map[string]any), nil
						}
					}
					start = -1
				}
			}
		}
	}
	return nil, fmt.Errorf("planner: no valid JSON object found in response")
}
