package validator

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/basket/go-claw/internal/skillerrors"
)

// InputSchemaFileName is the conventional location of a skill's optional
// input schema, checked alongside SKILL.md.
const InputSchemaFileName = "input.schema.json"

// InputSchema wraps a compiled JSON Schema used to validate execution input
// before dispatch.
type InputSchema struct {
	schema *jsonschema.Schema
}

// LoadInputSchema compiles root/input.schema.json if present. A missing
// file is not an error: it returns (nil, nil), meaning "no schema declared".
func LoadInputSchema(root string) (*InputSchema, error) {
	path := filepath.Join(root, InputSchemaFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, skillerrors.Wrap(skillerrors.Io, err)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return nil, skillerrors.Wrap(skillerrors.Json, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(path, doc); err != nil {
		return nil, skillerrors.Wrap(skillerrors.Json, err)
	}
	compiled, err := c.Compile(path)
	if err != nil {
		return nil, skillerrors.Wrap(skillerrors.Json, err)
	}
	return &InputSchema{schema: compiled}, nil
}

// Validate checks a decoded input value (as produced by jsonschema.UnmarshalJSON
// or any json.Unmarshal into map[string]any/[]any/scalars) against the schema.
func (s *InputSchema) Validate(input any) error {
	if s == nil || s.schema == nil {
		return nil
	}
	if err := s.schema.Validate(input); err != nil {
		return skillerrors.New(skillerrors.InvalidManifest, "input failed schema validation: %s", err.Error())
	}
	return nil
}
