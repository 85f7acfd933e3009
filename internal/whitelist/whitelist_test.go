package whitelist

import (
	"testing"

	"redact/internal/phitype"
)

func testBank() *Bank {
	return NewBank(Data{
		Eponyms:      []string{"Wilson", "Parkinson"},
		DiseaseWords: []string{"disease", "syndrome"},
		Titles:       []string{"Dr.", "Mr.", "Mrs.", "Ms."},
		Suffixes:     []string{"Jr.", "Sr.", "III"},
		Geographic:   []string{"Springfield"},
		Conditions:   []string{"hypertension"},
	})
}

func TestWilsonDiseaseIsWhitelisted(t *testing.T) {
	b := testBank()
	v := b.Check("Wilson's", phitype.Name, []string{"diagnosed", "with", "Wilson's", "disease"})
	if !v.Whitelisted {
		t.Error("expected Wilson's disease to be whitelisted")
	}
}

func TestDrWilsonIsKeptAsPHI(t *testing.T) {
	b := testBank()
	v := b.Check("Wilson", phitype.Name, []string{"Dr.", "Wilson", "examined"})
	if v.Whitelisted {
		t.Error("expected Dr. Wilson to override the eponym whitelist")
	}
}

func TestBareWilsonIsAmbiguousNotWhitelisted(t *testing.T) {
	b := testBank()
	v := b.Check("Wilson", phitype.Name, []string{"mentioned", "Wilson", "briefly"})
	if v.Whitelisted {
		t.Error("a bare eponym with no disease word and no person indicator should stay ambiguous, not whitelisted")
	}
}

func TestEmailBypassesWhitelist(t *testing.T) {
	b := testBank()
	v := b.Check("hypertension@example.com", phitype.Email, []string{"hypertension@example.com"})
	if v.Whitelisted {
		t.Error("pattern-matched types must bypass structural whitelist rejection")
	}
}

func TestStreetAddressVetoesWhitelist(t *testing.T) {
	b := testBank()
	v := b.Check("123 Main Street", phitype.Address, []string{"lives", "at", "123", "Main", "Street"})
	if v.Whitelisted {
		t.Error("street-address heuristic should veto whitelist rejection")
	}
}

func TestGeographicTermAppliesPenaltyNotVeto(t *testing.T) {
	b := testBank()
	v := b.Check("Springfield", phitype.Name, nil)
	if v.Whitelisted {
		t.Error("geographic terms should downweight, not outright whitelist")
	}
	if v.Penalty <= 0 {
		t.Error("expected a nonzero confidence penalty for a geographic term")
	}
}

func TestConditionIsWhitelisted(t *testing.T) {
	b := testBank()
	v := b.Check("hypertension", phitype.Name, nil)
	if !v.Whitelisted {
		t.Error("expected a known condition term to be whitelisted")
	}
	if v.Reason != phitype.ReasonWhitelisted {
		t.Errorf("expected ReasonWhitelisted, got %s", v.Reason)
	}
}

func TestNilBankPermitsEverything(t *testing.T) {
	var b *Bank
	v := b.Check("anything", phitype.Name, nil)
	if v.Whitelisted || v.Penalty != 0 {
		t.Error("a nil bank must be fully permissive")
	}
}
