package policy

import "time"

// Severity classifies how serious a rule violation is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight returns the violation weight used in compliance scoring.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.75
	case SeverityMedium:
		return 0.5
	case SeverityLow:
		return 0.25
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Category groups rules by governance concern.
type Category string

const (
	CategoryTradingSafety Category = "trading_safety"
	CategoryRisk          Category = "risk"
	CategoryGovernance    Category = "governance"
	CategoryPrivacy       Category = "privacy"
	CategoryIntegrity     Category = "integrity"
	CategoryAutonomy      Category = "autonomy"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryTradingSafety, CategoryRisk, CategoryGovernance,
		CategoryPrivacy, CategoryIntegrity, CategoryAutonomy:
		return true
	}
	return false
}

// Kind identifies how a rule's predicate is evaluated.
type Kind string

const (
	// KindBooleanFlag requires a parameter to equal an expected boolean.
	KindBooleanFlag Kind = "boolean_flag"

	// KindNumericThreshold compares a numeric parameter against a threshold.
	KindNumericThreshold Kind = "numeric_threshold"

	// KindRequiredField requires a parameter to be present and non-null.
	KindRequiredField Kind = "required_field"
)

// Valid reports whether k is a known rule kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBooleanFlag, KindNumericThreshold, KindRequiredField:
		return true
	}
	return false
}

// Comparison selects the operator for numeric threshold rules.
type Comparison string

const (
	CompareLTE Comparison = "lte"
	CompareGTE Comparison = "gte"
	CompareLT  Comparison = "lt"
	CompareGT  Comparison = "gt"
	CompareEQ  Comparison = "eq"
)

// Rule is an immutable named constraint evaluated against proposed actions.
// Rules are loaded once at process start and never mutated.
type Rule struct {
	// Name uniquely identifies the rule within the rule set.
	Name string `yaml:"name" json:"name"`

	// Category groups the rule by governance concern.
	Category Category `yaml:"category" json:"category"`

	// Kind identifies how the rule's predicate is evaluated.
	Kind Kind `yaml:"kind" json:"kind"`

	// Severity classifies violations of this rule.
	Severity Severity `yaml:"severity" json:"severity"`

	// Parameter is the action parameter the rule inspects.
	Parameter string `yaml:"parameter" json:"parameter"`

	// Threshold is the comparison value for numeric_threshold rules.
	Threshold float64 `yaml:"threshold" json:"threshold,omitempty"`

	// Comparison is the operator for numeric_threshold rules.
	// Defaults to "lte" (parameter must be <= threshold).
	Comparison Comparison `yaml:"comparison" json:"comparison,omitempty"`

	// Expected is the required value for boolean_flag rules.
	Expected bool `yaml:"expected" json:"expected,omitempty"`

	// AppliesTo lists the action types the rule applies to. An empty
	// list means the rule applies to every action type.
	AppliesTo []string `yaml:"applies_to" json:"applies_to,omitempty"`

	// Message is the human-readable explanation attached to violations.
	Message string `yaml:"message" json:"message"`
}

// AppliesToType reports whether the rule applies to the given action type.
func (r *Rule) AppliesToType(actionType string) bool {
	if len(r.AppliesTo) == 0 {
		return true
	}
	for _, t := range r.AppliesTo {
		if t == actionType {
			return true
		}
	}
	return false
}

// Action is a proposed operation submitted for validation. Actions are
// immutable value objects; they are judged, never mutated.
type Action struct {
	// Type identifies the kind of operation ("trade", "config_change", ...).
	Type string `json:"action_type"`

	// Agent is the opaque identifier of the proposing agent.
	Agent string `json:"agent"`

	// Parameters are the operation arguments.
	Parameters map[string]interface{} `json:"parameters"`

	// Timestamp is when the action was submitted.
	Timestamp time.Time `json:"timestamp"`
}

// Violation describes a single rule breach found during evaluation.
type Violation struct {
	// RuleName is the name of the violated rule.
	RuleName string `json:"rule_name"`

	// Severity is the violation severity.
	Severity Severity `json:"severity"`

	// Message is the human-readable explanation.
	Message string `json:"message"`
}

// Decision is the outcome of validating an action. Decisions are
// append-only facts stored alongside the action that produced them.
type Decision struct {
	// Approved is true when no violation of severity high or above exists.
	Approved bool `json:"approved"`

	// Violations lists every rule breach found.
	Violations []Violation `json:"violations"`

	// ComplianceScore is the normalized [0,1] measure of rule compliance.
	ComplianceScore float64 `json:"compliance_score"`

	// RulesChecked lists the names of the rules that applied to the action.
	RulesChecked []string `json:"rules_checked"`

	// Agent is the proposing agent.
	Agent string `json:"agent"`

	// Timestamp is when the decision was produced.
	Timestamp time.Time `json:"timestamp"`
}

// HasViolationAtLeast reports whether any violation is at least the given
// severity.
func (d *Decision) HasViolationAtLeast(sev Severity) bool {
	for _, v := range d.Violations {
		if v.Severity.AtLeast(sev) {
			return true
		}
	}
	return false
}

// CriticalViolations returns the number of critical violations.
func (d *Decision) CriticalViolations() int {
	n := 0
	for _, v := range d.Violations {
		if v.Severity == SeverityCritical {
			n++
		}
	}
	return n
}
