package diagnostics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// bundleSchemaJSON describes the diagnostic bundle's required top-level
// shape. It deliberately only constrains presence and type of the keys the
// spec names, not the full recursive structure of stages/errors, so the
// schema stays a validity gate rather than a second copy of the Go types.
const bundleSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["workflow_id", "user_prompt", "system_info", "tool_versions", "stages", "errors", "retry_attempts", "final_status", "generated_at"],
  "properties": {
    "workflow_id": {"type": "string", "minLength": 1},
    "user_prompt": {"type": "string"},
    "system_info": {
      "type": "object",
      "required": ["os", "arch"],
      "properties": {"os": {"type": "string"}, "arch": {"type": "string"}}
    },
    "tool_versions": {"type": "object"},
    "stages": {"type": "array"},
    "errors": {"type": "array"},
    "retry_attempts": {"type": "object"},
    "final_status": {"type": "string", "enum": ["running", "success", "completed_with_errors", "error"]},
    "contract_info": {"type": ["object", "null"]},
    "rag_status": {"type": ["object", "null"]},
    "generated_source": {"type": "string"},
    "generated_at": {"type": "string"}
  }
}`

var (
	compileOnce   sync.Once
	compiledError error
	compiled      *jsonschema.Schema
)

func bundleSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("diagnostic_bundle.json", strings.NewReader(bundleSchemaJSON)); err != nil {
			compiledError = fmt.Errorf("diagnostics: add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("diagnostic_bundle.json")
		if err != nil {
			compiledError = fmt.Errorf("diagnostics: compile schema: %w", err)
			return
		}
		compiled = schema
	})
	return compiled, compiledError
}

// Validate checks data (the bundle's encoded JSON) against the diagnostic
// bundle schema and returns every violation found, rather than stopping at
// the first.
func Validate(data []byte) []error {
	schema, err := bundleSchema()
	if err != nil {
		return []error{err}
	}

	var decoded interface{}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&decoded); err != nil {
		return []error{fmt.Errorf("diagnostics: decode bundle: %w", err)}
	}

	if err := schema.Validate(decoded); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return flattenValidationErrors(verr)
		}
		return []error{err}
	}
	return nil
}

func flattenValidationErrors(verr *jsonschema.ValidationError) []error {
	var errs []error
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			errs = append(errs, fmt.Errorf("%s: %s", e.InstanceLocation, e.Message))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	return errs
}
