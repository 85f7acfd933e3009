package policy

import (
	"testing"

	"redact/internal/phitype"
	"redact/internal/threshold"
)

func TestLoadCalibrationOverlaysEngineModifiers(t *testing.T) {
	path := writeTempFile(t, "calibration.json", `{
		"documentType": {"registration": 0.5},
		"purposeOfUse": {"audit": 1.2}
	}`)

	cal, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eng := threshold.NewEngine(nil, nil, 0)
	cal.Apply(eng)

	if eng.DocumentMods[phitype.DocRegistration] != 0.5 {
		t.Errorf("expected registration modifier overridden to 0.5, got %v", eng.DocumentMods[phitype.DocRegistration])
	}
	if eng.DocumentMods[phitype.DocLabReport] != 1.05 {
		t.Errorf("expected untouched lab_report modifier to survive the overlay, got %v", eng.DocumentMods[phitype.DocLabReport])
	}
	if eng.PurposeMods["audit"] != 1.2 {
		t.Errorf("expected a brand new purposeOfUse key to be added, got %v", eng.PurposeMods["audit"])
	}
}

func TestLoadCalibrationRejectsNonNumericValue(t *testing.T) {
	path := writeTempFile(t, "calibration.json", `{"documentType": {"registration": "low"}}`)

	if _, err := LoadCalibration(path); err == nil {
		t.Error("expected schema validation to reject a non-numeric modifier")
	}
}
