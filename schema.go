package interop

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Library identification reported in the configuration schema.
const (
	SchemaID = "https://github.com/vss-interop/vss-go-interop/config.schema.json"
	Version  = "0.3.0"
)

// ConfigSchema returns the JSON Schema of Config.
func ConfigSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "vss-go-interop configuration"
	schema.Description = "Settings accepted by vss_go_configure (library " + Version + ")."

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
