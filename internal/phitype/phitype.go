// Package phitype holds the shared data model for the redaction engine:
// the closed PHI type enumeration, candidate/final span records, and the
// document-wide enums (document type, specialty, context strength) that
// downstream packages read and write without importing each other.
//
// Keeping these types in one leaf package avoids import cycles between
// internal/detect, internal/context, internal/threshold, internal/whitelist
// and internal/reconcile, all of which need to talk about the same span and
// enum shapes.
package phitype

import "fmt"

// Type classifies the kind of PHI a span represents.
type Type string

// Closed enumeration of supported PHI types (spec.md §3).
const (
	Name        Type = "name"
	SSN         Type = "ssn"
	Phone       Type = "phone"
	Email       Type = "email"
	Address     Type = "address"
	Date        Type = "date"
	MRN         Type = "mrn"
	NPI         Type = "npi"
	IP          Type = "ip"
	URL         Type = "url"
	CreditCard  Type = "credit_card"
	Account     Type = "account"
	HealthPlan  Type = "health_plan"
	License     Type = "license"
	Passport    Type = "passport"
	Vehicle     Type = "vehicle"
	Device      Type = "device"
	Biometric   Type = "biometric"
	UniqueID    Type = "unique_id"
	ZIP         Type = "zip"
	Fax         Type = "fax"
	Age         Type = "age"
)

// All lists every closed-enumeration PHI type, in a stable order used for
// deterministic iteration (threshold vector construction, report breakdowns).
var All = []Type{
	Name, SSN, Phone, Email, Address, Date, MRN, NPI, IP, URL, CreditCard,
	Account, HealthPlan, License, Passport, Vehicle, Device, Biometric,
	UniqueID, ZIP, Fax, Age,
}

// Valid reports whether t is one of the closed-enumeration types. Policy
// files may still introduce additional types at runtime (the enumeration is
// "extensible by policy" per spec.md §3); Valid only checks the built-in set.
func Valid(t Type) bool {
	for _, v := range All {
		if v == t {
			return true
		}
	}
	return false
}

// Family identifies the detector family that produced a candidate, used by
// the reconciler's precedence base and by the whitelist's pattern-bypass
// rule (spec.md §4.2, §4.5).
type Family string

// Detector families, in teacher-style declared precedence order.
const (
	FamilyPattern    Family = "pattern"
	FamilyDictionary Family = "dictionary"
	FamilyPhonetic   Family = "phonetic"
	FamilyLearned    Family = "learned"
	FamilyStreaming  Family = "streaming"
)

// BasePriority returns the family's declared precedence base (spec.md §4.2
// table). Streaming detectors inherit the base of the family they wrap, so
// BasePriority does not cover FamilyStreaming on its own.
func BasePriority(f Family) int {
	switch f {
	case FamilyPattern:
		return 80
	case FamilyDictionary:
		return 70
	case FamilyPhonetic:
		return 65
	case FamilyLearned:
		return 60
	default:
		return 0
	}
}

// PatternBypass is the set of PHI types spec.md §4.5 calls out as bypassing
// structural-word whitelist rejection: a pattern-matched value of one of
// these types is PHI regardless of surrounding vocabulary.
var PatternBypass = map[Type]bool{
	Email:      true,
	URL:        true,
	Phone:      true,
	SSN:        true,
	MRN:        true,
	NPI:        true,
	IP:         true,
	CreditCard: true,
	Fax:        true,
}

// DropReason is a closed enumeration of reasons a candidate span did not
// survive reconciliation (spec.md §4.6 invariant: every dropped candidate
// carries a nonempty reason tag from a closed enumeration).
type DropReason string

const (
	ReasonDisabledType      DropReason = "disabled_type"
	ReasonBelowThreshold    DropReason = "below_threshold"
	ReasonWhitelisted       DropReason = "whitelisted"
	ReasonSubsumed          DropReason = "subsumed"
	ReasonLostOverlap       DropReason = "lost_overlap"
	ReasonMergedIntoSibling DropReason = "merged_into_sibling"
	ReasonCandidateCeiling  DropReason = "candidate_ceiling_exceeded"
)

// DocumentType is a closed enumeration of document kinds the ContextAnalyzer
// recognizes (spec.md §4.3).
type DocumentType string

const (
	DocAdmissionNote     DocumentType = "admission_note"
	DocDischargeSummary  DocumentType = "discharge_summary"
	DocLabReport         DocumentType = "lab_report"
	DocRadiologyReport   DocumentType = "radiology_report"
	DocProgressNote      DocumentType = "progress_note"
	DocPrescription      DocumentType = "prescription"
	DocOperativeReport   DocumentType = "operative_report"
	DocConsultationNote  DocumentType = "consultation_note"
	DocEmergencyNote     DocumentType = "emergency_note"
	DocNursingAssessment DocumentType = "nursing_assessment"
	DocRegistration      DocumentType = "registration"
	DocUnknown           DocumentType = "unknown"
)

// Specialty is a closed enumeration of medical specialties the
// ContextAnalyzer can infer (spec.md §4.3).
type Specialty string

const (
	SpecCardiology  Specialty = "cardiology"
	SpecOncology    Specialty = "oncology"
	SpecRadiology   Specialty = "radiology"
	SpecPsychiatry  Specialty = "psychiatry"
	SpecEmergency   Specialty = "emergency"
	SpecPediatrics  Specialty = "pediatrics"
	SpecObstetrics  Specialty = "obstetrics"
	SpecUnknown     Specialty = "unknown"
)

// ContextStrength grades how clearly a region is labeled as a specific PHI
// field (spec.md §4.3, §4.4).
type ContextStrength string

const (
	StrengthStrong   ContextStrength = "strong"
	StrengthModerate ContextStrength = "moderate"
	StrengthWeak     ContextStrength = "weak"
	StrengthNone     ContextStrength = "none"
)

// CandidateSpan is produced by a detector (spec.md §3).
type CandidateSpan struct {
	Text          string
	Start, End    int
	PHIType       Type
	Confidence    float64
	Priority      int
	Pattern       string
	Window        []string
	AmbiguousWith map[Type]bool
	DetectorName  string
}

// String renders a CandidateSpan for debug logs and audit provenance.
func (c CandidateSpan) String() string {
	return fmt.Sprintf("%s[%d:%d]=%q(conf=%.2f,prio=%d,det=%s)",
		c.PHIType, c.Start, c.End, c.Text, c.Confidence, c.Priority, c.DetectorName)
}

// Span is a CandidateSpan extended with the reconciler's final decision
// (spec.md §3).
type Span struct {
	CandidateSpan
	Applied             bool
	Ignored             bool
	IgnoreReason        DropReason
	Replacement         string
	DisambiguationScore float64
	TokenID             string // populated only for replacementStyle=token
}
