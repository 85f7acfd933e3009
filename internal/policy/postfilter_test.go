package policy

import (
	"path/filepath"
	"testing"
)

func TestLoadPostFilterRulesAndEvaluateFirstMatchWins(t *testing.T) {
	path := writeTempFile(t, "postfilter.yaml", `
rules:
  - pattern: "^555-"
    action: suppress
  - pattern: "^\\d{3}-\\d{4}$"
    action: downrank
`)

	rules, err := LoadPostFilterRules(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}

	action, matched := Evaluate(rules, "555-0100")
	if !matched || action != ActionSuppress {
		t.Errorf("expected the 555- rule to suppress first, got %v (matched=%v)", action, matched)
	}

	action, matched = Evaluate(rules, "123-4567")
	if !matched || action != ActionDownrank {
		t.Errorf("expected the fallback digit rule to downrank, got %v (matched=%v)", action, matched)
	}

	if _, matched := Evaluate(rules, "not a phone number"); matched {
		t.Error("expected no rule to match unrelated text")
	}
}

func TestLoadPostFilterRulesRejectsUnknownAction(t *testing.T) {
	path := writeTempFile(t, "postfilter.yaml", `
rules:
  - pattern: ".*"
    action: quarantine
`)

	if _, err := LoadPostFilterRules(path); err == nil {
		t.Error("expected an error for an action outside the closed enumeration")
	}
}

func TestLoadPostFilterRulesMissingFileIsHarmless(t *testing.T) {
	rules, err := LoadPostFilterRules(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("expected an empty rule set, got %d rules", len(rules))
	}
}
