package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"redact/internal/phitype"
	"redact/internal/threshold"
)

// calibrationSchema validates a calibration file: four optional maps of
// multiplicative modifiers, one per axis of internal/threshold.Engine's
// composition chain (spec.md §4.4). Calibration is a static, operator-tuned
// overlay distinct from the runtime FeedbackStore learned corrections.
const calibrationSchema = `{
  "type": "object",
  "properties": {
    "documentType":    {"type": "object", "additionalProperties": {"type": "number"}},
    "contextStrength":  {"type": "object", "additionalProperties": {"type": "number"}},
    "specialty":        {"type": "object", "additionalProperties": {"type": "number"}},
    "purposeOfUse":      {"type": "object", "additionalProperties": {"type": "number"}}
  }
}`

// CalibrationFile is the parsed shape of a JSON calibration file: an
// operator-supplied overlay onto internal/threshold.Engine's built-in
// modifier tables.
type CalibrationFile struct {
	DocumentType    map[string]float64 `json:"documentType"`
	ContextStrength map[string]float64 `json:"contextStrength"`
	Specialty       map[string]float64 `json:"specialty"`
	PurposeOfUse    map[string]float64 `json:"purposeOfUse"`
}

// LoadCalibration reads and schema-validates a calibration JSON file.
func LoadCalibration(path string) (CalibrationFile, error) {
	var file CalibrationFile
	data, err := os.ReadFile(path) //nolint:gosec // G304: controlled config path
	if err != nil {
		return file, fmt.Errorf("read calibration file %q: %w", path, err)
	}
	if err := validateJSONSchema(calibrationSchema, data); err != nil {
		return file, fmt.Errorf("calibration file %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse calibration file %q: %w", path, err)
	}
	return file, nil
}

// Apply overlays the calibration file's modifiers onto an engine's built-in
// tables, overwriting any key the file names and leaving the rest of the
// engine's defaults untouched.
func (c CalibrationFile) Apply(e *threshold.Engine) {
	for k, v := range c.DocumentType {
		e.DocumentMods[phitype.DocumentType(k)] = v
	}
	for k, v := range c.ContextStrength {
		e.StrengthMods[phitype.ContextStrength(k)] = v
	}
	for k, v := range c.Specialty {
		e.SpecialtyMods[phitype.Specialty(k)] = v
	}
	for k, v := range c.PurposeOfUse {
		e.PurposeMods[k] = v
	}
}
