package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"redact/internal/phitype"
)

// FeaturesFile toggles whole detector families, and individual PHI types
// within them, off without editing code (spec.md §4.2's family registry,
// §4.6's ReasonDisabledType drop path).
type FeaturesFile struct {
	Families map[string]bool `yaml:"families"`
	Types    map[string]bool `yaml:"types"`
}

// LoadFeatures reads a features YAML file. A missing file is not an error —
// it yields a FeaturesFile with both maps nil, and FamilyEnabled/TypeEnabled
// treat "absent" as "enabled" so the feature set is opt-out, not opt-in.
func LoadFeatures(path string) (FeaturesFile, error) {
	var file FeaturesFile
	data, err := os.ReadFile(path) //nolint:gosec // G304: controlled config path
	if os.IsNotExist(err) {
		return file, nil
	}
	if err != nil {
		return file, fmt.Errorf("read features file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse features file %q: %w", path, err)
	}
	return file, nil
}

// FamilyEnabled reports whether detector family f is enabled. Absence from
// the map means enabled.
func (f FeaturesFile) FamilyEnabled(family phitype.Family) bool {
	if f.Families == nil {
		return true
	}
	enabled, ok := f.Families[string(family)]
	return !ok || enabled
}

// TypeEnabled reports whether PHI type t is enabled. Absence from the map
// means enabled.
func (f FeaturesFile) TypeEnabled(t phitype.Type) bool {
	if f.Types == nil {
		return true
	}
	enabled, ok := f.Types[string(t)]
	return !ok || enabled
}
