package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"redact/internal/detect"
	"redact/internal/whitelist"
)

// LoadWhitelistData reads the categorized clinical-vocabulary term bank YAML
// into internal/whitelist.Data. A missing file yields a zero-value Data,
// matching Bank's own "absent means permissive" posture.
func LoadWhitelistData(path string) (whitelist.Data, error) {
	var data whitelist.Data
	raw, err := os.ReadFile(path) //nolint:gosec // G304: controlled config path
	if os.IsNotExist(err) {
		return data, nil
	}
	if err != nil {
		return data, fmt.Errorf("read whitelist file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("parse whitelist file %q: %w", path, err)
	}
	return data, nil
}

// LoadDictionaryData reads the closed-term-list dictionary YAML into
// internal/detect.DictionaryData. A missing file yields a zero-value
// DictionaryData, matching NewDictionaryDetector's "empty if not loaded"
// contract.
func LoadDictionaryData(path string) (detect.DictionaryData, error) {
	var data detect.DictionaryData
	raw, err := os.ReadFile(path) //nolint:gosec // G304: controlled config path
	if os.IsNotExist(err) {
		return data, nil
	}
	if err != nil {
		return data, fmt.Errorf("read dictionary file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("parse dictionary file %q: %w", path, err)
	}
	return data, nil
}
