package config

import (
	"github.com/invopop/jsonschema"
)

// Schema describes the calibration file format as a JSON schema.
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}
