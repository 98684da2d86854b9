package mcp

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// schemaCache memoizes compiled gojsonschema.Schema per Go type, since
// reflection-based schema generation is pure but not free.
var (
	schemaCacheMu sync.Mutex
	schemaCache   = map[string]*gojsonschema.Schema{}
)

// compiledSchemaFor returns the compiled JSON schema for a zero value of
// the given args type, generating it via invopop/jsonschema on first use.
func compiledSchemaFor(name string, zero any) (*gojsonschema.Schema, error) {
	schemaCacheMu.Lock()
	defer schemaCacheMu.Unlock()

	if s, ok := schemaCache[name]; ok {
		return s, nil
	}

	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	raw := reflector.Reflect(zero)
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling generated schema for %s: %w", name, err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("mcp: compiling schema for %s: %w", name, err)
	}
	schemaCache[name] = schema
	return schema, nil
}

// SchemaError wraps schema-conformance failures (phase 1) — field
// presence, types, patterns, ranges — distinct from SemanticError
// (phase 2), per the two-phase validator REDESIGN FLAG.
type SchemaError struct {
	Tool   string
	Issues []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("mcp: %s: schema validation failed: %v", e.Tool, e.Issues)
}

// ValidateSchema checks raw against the JSON schema generated for zero's
// type, returning a *SchemaError listing every violation if raw doesn't
// conform. It never inspects raw's semantic content (dependency
// resolution, id uniqueness, branch existence) — that's phase 2.
func ValidateSchema(tool string, zero any, raw json.RawMessage) error {
	schema, err := compiledSchemaFor(tool, zero)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("mcp: %s: %w", tool, err)
	}
	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		issues = append(issues, e.String())
	}
	return &SchemaError{Tool: tool, Issues: issues}
}

// DecodeArgs schema-validates raw against dst's type, then unmarshals
// into dst. Callers run semantic validation (phase 2) against dst after
// this succeeds.
func DecodeArgs(tool string, raw json.RawMessage, dst any) error {
	if err := ValidateSchema(tool, dst, raw); err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
