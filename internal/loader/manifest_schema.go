package loader

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// manifestSchemaJSON is the JSON Schema a discovered Manifest's fields must
// satisfy (SPEC_FULL.md §7: "configuration errors detected by the
// jsonschema manifest validator are rendered with the schema validator's
// own error path... appended to PluginInfo.ImportErrors"). Name/Package/
// Short are the only fields a plugin cannot omit — the rest mirror the
// original's optional PLUGIN_* constants.
const manifestSchemaJSON = `{
	"type": "object",
	"required": ["Name", "Package", "Short"],
	"properties": {
		"Name":    {"type": "string", "minLength": 1},
		"Package": {"type": "string", "minLength": 1},
		"Short":   {"type": "string", "minLength": 1},
		"Author":  {"type": "string"},
		"Purpose": {"type": "string"},
		"Version": {"type": "string"}
	}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledManifestSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("manifest.json", strings.NewReader(manifestSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("loader: add manifest schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("manifest.json")
	})
	return schema, schemaErr
}

// validateManifestFields checks a discovered Manifest's raw string fields
// against manifestSchemaJSON, returning the schema validator's own error
// text (e.g. "(root): Short is required") when invalid.
func validateManifestFields(fields map[string]string) error {
	s, err := compiledManifestSchema()
	if err != nil {
		return err
	}

	doc := make(map[string]any, len(fields))
	for k, v := range fields {
		doc[k] = v
	}

	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("manifest validation: %w", err)
	}
	return nil
}
