package phitype

import (
	"errors"
	"testing"
)

func TestValidClosedEnumeration(t *testing.T) {
	if !Valid(SSN) {
		t.Error("SSN should be a valid built-in type")
	}
	if Valid(Type("not_a_real_type")) {
		t.Error("arbitrary string should not be valid")
	}
}

func TestBasePriorityOrdering(t *testing.T) {
	if BasePriority(FamilyPattern) <= BasePriority(FamilyDictionary) {
		t.Error("pattern precedence must exceed dictionary precedence")
	}
	if BasePriority(FamilyDictionary) <= BasePriority(FamilyPhonetic) {
		t.Error("dictionary precedence must exceed phonetic precedence")
	}
	if BasePriority(FamilyPhonetic) <= BasePriority(FamilyLearned) {
		t.Error("phonetic precedence must exceed learned precedence")
	}
}

func TestPatternBypassMembership(t *testing.T) {
	if !PatternBypass[Email] {
		t.Error("email must be in the pattern-matched bypass set")
	}
	if PatternBypass[Name] {
		t.Error("name must not bypass whitelist structural rejection")
	}
}

func TestErrorWrappingAndKind(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(KindConfigError, "policy.Load", "invalid threshold", cause)

	if !IsKind(err, KindConfigError) {
		t.Error("expected IsKind to match KindConfigError")
	}
	if IsKind(err, KindInputTooLarge) {
		t.Error("expected IsKind not to match unrelated kind")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}
