package policy

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// PostFilterAction is the closed set of outcomes a post-filter rule can
// force onto a matching span, layered on top of (and consulted ahead of) the
// whitelist bank (spec.md §4.5).
type PostFilterAction string

const (
	// ActionSuppress drops the span the way a whitelist hit does; like a
	// whitelist hit, it does not drop a span of a pattern-bypass type
	// (phitype.PatternBypass). Used for known-safe boilerplate a site
	// keeps tripping a detector on.
	ActionSuppress PostFilterAction = "suppress"
	// ActionForce keeps the span even if the whitelist bank would veto it.
	ActionForce PostFilterAction = "force"
	// ActionDownrank subtracts a flat penalty from the candidate's
	// calibrated score, which counts in overlap resolution; the threshold
	// check uses the unpenalized confidence.
	ActionDownrank PostFilterAction = "downrank"
)

func (a PostFilterAction) valid() bool {
	switch a {
	case ActionSuppress, ActionForce, ActionDownrank:
		return true
	default:
		return false
	}
}

// PostFilterRule pairs a regular expression with the action to take on any
// span text it matches. Rules are evaluated in file order; the first match
// wins.
type PostFilterRule struct {
	Pattern string           `yaml:"pattern"`
	Action  PostFilterAction `yaml:"action"`

	compiled *regexp.Regexp
}

type postFilterFile struct {
	Rules []PostFilterRule `yaml:"rules"`
}

// LoadPostFilterRules reads an ordered post-filter rule list from YAML,
// compiling each pattern and rejecting any rule whose action is outside the
// closed enumeration. A missing file yields an empty, harmless rule set.
func LoadPostFilterRules(path string) ([]*PostFilterRule, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: controlled config path
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read post-filter file %q: %w", path, err)
	}

	var file postFilterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse post-filter file %q: %w", path, err)
	}

	rules := make([]*PostFilterRule, 0, len(file.Rules))
	for i := range file.Rules {
		r := file.Rules[i]
		if !r.Action.valid() {
			return nil, fmt.Errorf("post-filter rule %d: unknown action %q", i, r.Action)
		}
		compiled, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("post-filter rule %d: bad pattern %q: %w", i, r.Pattern, err)
		}
		r.compiled = compiled
		rules = append(rules, &r)
	}
	return rules, nil
}

// Evaluate returns the action of the first rule whose pattern matches text,
// in file order, and false if no rule matches.
func Evaluate(rules []*PostFilterRule, text string) (PostFilterAction, bool) {
	for _, r := range rules {
		if r.compiled.MatchString(text) {
			return r.Action, true
		}
	}
	return "", false
}
