package engine

import (
	"redact/internal/apply"
	"redact/internal/detect"
	"redact/internal/phitype"
	"redact/internal/reconcile"
	"redact/internal/threshold"
	"redact/internal/whitelist"
)

// NewRuntime assembles a Runtime from its already-built components.
// Callers (typically cmd/redact, via internal/policy's loaders) are
// responsible for constructing the registry, whitelist bank, threshold
// engine and replacement policy from config; NewRuntime only wires them
// together.
func NewRuntime(
	registry *detect.Registry,
	bank *whitelist.Bank,
	th *threshold.Engine,
	policy map[phitype.Type]reconcile.TypePolicy,
	merge reconcile.SoftMergeRule,
	applyPolicy apply.Policy,
	debug bool,
	logger Logger,
) *Runtime {
	return &Runtime{
		Registry:        registry,
		Whitelist:       bank,
		Threshold:       th,
		ReconcilePolicy: policy,
		Merge:           merge,
		ApplyPolicy:     applyPolicy,
		Debug:           debug,
		Logger:          logger,
	}
}

// DefaultReconcilePolicy enables every closed-enumeration PHI type with no
// policy-level confidence floor beyond whatever internal/threshold.Engine
// computes. The reconciler's TypePolicy carries no replacement text;
// internal/apply resolves it.
func DefaultReconcilePolicy() map[phitype.Type]reconcile.TypePolicy {
	p := make(map[phitype.Type]reconcile.TypePolicy, len(phitype.All))
	for _, t := range phitype.All {
		p[t] = reconcile.TypePolicy{Enabled: true}
	}
	return p
}

// DefaultMergeRule allows the pattern and dictionary families to soft-merge
// adjacent same-type spans separated by at most one unit (e.g. "John" and
// "Smith" either side of a single space), per spec.md §4.6 step 4.
func DefaultMergeRule() reconcile.SoftMergeRule {
	return reconcile.SoftMergeRule{
		AllowedFamilies: map[string]bool{"dictionary": true, "pattern": true},
		MaxGap:          1,
		Epsilon:         0.05,
	}
}
