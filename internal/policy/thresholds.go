package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"redact/internal/phitype"
)

// thresholdsSchema validates a thresholds file's shape before it is trusted
// as a threshold base vector: every value must be a probability-like number
// in (0, 1], keyed by an arbitrary PHI type name (spec.md §3 allows policy
// to extend the type enumeration, so the schema does not close the key set).
const thresholdsSchema = `{
  "type": "object",
  "required": ["base"],
  "properties": {
    "base": {
      "type": "object",
      "additionalProperties": {
        "type": "number",
        "exclusiveMinimum": 0,
        "maximum": 1
      }
    }
  }
}`

// ThresholdsFile is the parsed shape of a JSON thresholds file: a flat
// per-type base threshold vector feeding internal/threshold.Engine.Base.
type ThresholdsFile struct {
	Base map[string]float64 `json:"base"`
}

// LoadThresholds reads and schema-validates a thresholds JSON file, then
// converts it into the map internal/threshold.NewEngine expects. Unknown
// type names are kept verbatim; internal/threshold falls back to the 0.7
// default for any type the base vector omits.
func LoadThresholds(path string) (map[phitype.Type]float64, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: controlled config path
	if err != nil {
		return nil, fmt.Errorf("read thresholds file %q: %w", path, err)
	}
	if err := validateJSONSchema(thresholdsSchema, data); err != nil {
		return nil, fmt.Errorf("thresholds file %q: %w", path, err)
	}

	var file ThresholdsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse thresholds file %q: %w", path, err)
	}

	out := make(map[phitype.Type]float64, len(file.Base))
	for k, v := range file.Base {
		out[phitype.Type(k)] = v
	}
	return out, nil
}

func validateJSONSchema(schema string, document []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if !result.Valid() {
		msg := "schema validation failed:"
		for _, e := range result.Errors() {
			msg += " " + e.String() + ";"
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}
