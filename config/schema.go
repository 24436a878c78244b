package config

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/vitalstream/errors"
)

//go:embed schema.json
var schemaJSON []byte

var layerSchema = mustLoadSchema()

func mustLoadSchema() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return schema
}

// Schema returns the JSON schema every configuration layer must satisfy
func Schema() []byte {
	out := make([]byte, len(schemaJSON))
	copy(out, schemaJSON)
	return out
}

// validateLayer checks one raw layer against the schema. Layers are partial,
// so the schema only constrains keys that are present.
func validateLayer(raw map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	result, err := layerSchema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var msg strings.Builder
	msg.WriteString("schema validation failed:")
	for _, desc := range result.Errors() {
		fmt.Fprintf(&msg, "\n  - %s: %s", desc.Field(), desc.Description())
	}
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg.String())
}
