package policy

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"redact/internal/apply"
	"redact/internal/phitype"
)

// PolicyBundle is a named, operator-authored preset bundling a replacement
// policy with the PHI types it disables outright, stored as TOML so presets
// read comfortably as hand-edited config rather than generated data.
type PolicyBundle struct {
	Name               string             `toml:"name"`
	Style              string             `toml:"style"` // brackets | asterisks | empty | token
	Types              map[string]string  `toml:"types"`
	CustomReplacements map[string]string  `toml:"custom_replacements"`
	ThresholdOverrides map[string]float64 `toml:"threshold_overrides"`
	DisabledTypes      []string           `toml:"disabled_types"`
	DateShiftDays      int                `toml:"date_shift_days"` // 0 = no date shifting
	AgeThreshold       int                `toml:"age_threshold"`   // 0 = HIPAA default of 89
}

// LoadPolicyBundle decodes one TOML policy bundle file.
func LoadPolicyBundle(path string) (PolicyBundle, error) {
	var b PolicyBundle
	if _, err := toml.DecodeFile(path, &b); err != nil {
		return b, fmt.Errorf("decode policy bundle %q: %w", path, err)
	}
	if b.Name == "" {
		b.Name = strippedBase(path)
	}
	return b, nil
}

// LoadPolicyBundles decodes every *.toml file in dir into a map keyed by
// bundle name. A missing or empty directory yields an empty map, not an
// error — presets are optional; callers fall back to a built-in default
// policy.
func LoadPolicyBundles(dir string) (map[string]PolicyBundle, error) {
	bundles := make(map[string]PolicyBundle)
	matches, err := filepath.Glob(filepath.Join(dir, "*.toml"))
	if err != nil {
		return nil, fmt.Errorf("glob policy bundle dir %q: %w", dir, err)
	}
	for _, path := range matches {
		b, err := LoadPolicyBundle(path)
		if err != nil {
			return nil, err
		}
		bundles[b.Name] = b
	}
	return bundles, nil
}

// ToApplyPolicy converts the bundle's replacement configuration into the
// shape internal/apply.Apply consumes.
func (b PolicyBundle) ToApplyPolicy() (apply.Policy, error) {
	style := apply.ReplacementStyle(b.Style)
	switch style {
	case apply.StyleBrackets, apply.StyleAsterisks, apply.StyleEmpty, apply.StyleToken:
	case "":
		style = apply.StyleBrackets
	default:
		return apply.Policy{}, fmt.Errorf("policy bundle %q: unknown style %q", b.Name, b.Style)
	}

	types := make(map[phitype.Type]apply.TypeConfig, len(b.Types))
	for k, v := range b.Types {
		types[phitype.Type(k)] = apply.TypeConfig{Template: v, Configured: true}
	}
	custom := make(map[phitype.Type]string, len(b.CustomReplacements))
	for k, v := range b.CustomReplacements {
		custom[phitype.Type(k)] = v
	}

	return apply.Policy{
		Style:              style,
		Types:              types,
		CustomReplacements: custom,
		DateShiftDays:      b.DateShiftDays,
		AgeThreshold:       b.AgeThreshold,
	}, nil
}

// ThresholdOverride returns the bundle's override for t, if any.
func (b PolicyBundle) ThresholdOverride(t phitype.Type) (float64, bool) {
	v, ok := b.ThresholdOverrides[string(t)]
	return v, ok
}

// TypeDisabled reports whether the bundle disables PHI type t entirely.
func (b PolicyBundle) TypeDisabled(t phitype.Type) bool {
	for _, name := range b.DisabledTypes {
		if name == string(t) {
			return true
		}
	}
	return false
}

func strippedBase(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
