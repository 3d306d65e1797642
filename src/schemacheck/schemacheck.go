// Package schemacheck validates TOML configuration files against a JSON
// Schema. It is used in CI to make sure the published config schema keeps
// accepting the sample configs and rejecting the known-bad ones.
package schemacheck

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Result is the verdict for one document. Detail carries the validation
// error when the document is invalid.
type Result struct {
	Valid  bool
	Detail error
}

// ValidateTOML checks the TOML document at docPath against the JSON Schema
// at schemaPath. An error return means the check itself could not run
// (unreadable files, malformed TOML, schema that does not compile); a
// Result with Valid=false means the document does not conform.
func ValidateTOML(schemaPath, docPath string) (*Result, error) {
	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if _, err := toml.DecodeFile(docPath, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", docPath, err)
	}

	if err := schema.Validate(toPlain(doc)); err != nil {
		return &Result{Valid: false, Detail: err}, nil
	}

	return &Result{Valid: true}, nil
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	raw, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaPath, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return schema, nil
}

// toPlain rewrites the TOML decoder's output into the shapes the schema
// validator expects: map[string]interface{} maps and []interface{} arrays all
// the way down. The TOML decoder produces typed slices like []map[string]
// interface{} for arrays of tables, which the validator does not walk.
func toPlain(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = toPlain(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = toPlain(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = toPlain(item)
		}
		return out
	default:
		return val
	}
}
