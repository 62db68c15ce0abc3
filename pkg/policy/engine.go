package policy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Engine evaluates actions against an immutable rule set. Evaluation is a
// pure function of the action and the rules: no I/O, no stored state, and
// identical inputs always produce identical decisions.
type Engine struct {
	rules  *RuleSet
	logger *slog.Logger
}

// NewEngine creates an engine bound to the given rule set.
func NewEngine(rules *RuleSet, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rules:  rules,
		logger: logger.With("component", "policy"),
	}
}

// RuleSet returns the engine's rule set.
func (e *Engine) RuleSet() *RuleSet {
	return e.rules
}

// Evaluate checks an action against every applicable rule and returns the
// decision. Rules are evaluated in artifact order; every applicable rule is
// checked even after a violation is found.
func (e *Engine) Evaluate(action Action) Decision {
	if action.Type == "" {
		return MalformedDecision(action.Agent, "action type is empty")
	}

	var (
		checked    []string
		violations []Violation
		weighted   float64
	)

	for i := range e.rules.rules {
		rule := &e.rules.rules[i]
		if !rule.AppliesToType(action.Type) {
			continue
		}
		checked = append(checked, rule.Name)

		if v := evaluateRule(rule, action.Parameters); v != nil {
			violations = append(violations, *v)
			weighted += v.Severity.Weight()
		}
	}

	if len(checked) == 0 {
		// Nothing constrains this action type. Approval here is vacuous
		// and worth surfacing.
		e.logger.Warn("no rules applicable to action",
			"agent", action.Agent,
			"action_type", action.Type,
			"vacuous", true,
		)
		return Decision{
			Approved:        true,
			Violations:      []Violation{},
			ComplianceScore: 1.0,
			RulesChecked:    []string{},
			Agent:           action.Agent,
			Timestamp:       time.Now().UTC(),
		}
	}

	score := clamp01(1.0 - weighted/float64(len(checked)))
	d := Decision{
		Approved:        true,
		Violations:      violations,
		ComplianceScore: score,
		RulesChecked:    checked,
		Agent:           action.Agent,
		Timestamp:       time.Now().UTC(),
	}
	if d.Violations == nil {
		d.Violations = []Violation{}
	}
	if d.HasViolationAtLeast(SeverityHigh) {
		d.Approved = false
	}
	return d
}

// MalformedDecision builds the rejection returned for actions that cannot be
// evaluated at all (unparseable body, missing action type). The synthetic
// critical violation makes the rejection count toward containment windows.
func MalformedDecision(agent, reason string) Decision {
	return Decision{
		Approved: false,
		Violations: []Violation{{
			RuleName: "malformed_input",
			Severity: SeverityCritical,
			Message:  reason,
		}},
		ComplianceScore: 0,
		RulesChecked:    []string{},
		Agent:           agent,
		Timestamp:       time.Now().UTC(),
	}
}

// evaluateRule returns a violation if the rule's predicate fails, nil
// otherwise. A parameter that is missing, null, or of the wrong type
// violates the rule at the rule's own severity.
func evaluateRule(rule *Rule, params map[string]interface{}) *Violation {
	value, present := params[rule.Parameter]
	if !present || value == nil {
		if rule.Kind == KindRequiredField {
			return violation(rule, rule.Message)
		}
		return violation(rule, fmt.Sprintf("required parameter %q is missing", rule.Parameter))
	}

	switch rule.Kind {
	case KindRequiredField:
		return nil

	case KindBooleanFlag:
		b, ok := value.(bool)
		if !ok {
			return violation(rule, fmt.Sprintf("parameter %q must be a boolean", rule.Parameter))
		}
		if b != rule.Expected {
			return violation(rule, rule.Message)
		}
		return nil

	case KindNumericThreshold:
		n, ok := toFloat(value)
		if !ok {
			return violation(rule, fmt.Sprintf("parameter %q must be numeric", rule.Parameter))
		}
		if !compare(n, rule.Comparison, rule.Threshold) {
			return violation(rule, rule.Message)
		}
		return nil
	}

	return violation(rule, fmt.Sprintf("unknown rule kind %q", rule.Kind))
}

func violation(rule *Rule, message string) *Violation {
	if message == "" {
		message = fmt.Sprintf("rule %s violated", rule.Name)
	}
	return &Violation{
		RuleName: rule.Name,
		Severity: rule.Severity,
		Message:  message,
	}
}

func compare(value float64, op Comparison, threshold float64) bool {
	switch op {
	case CompareLTE, "":
		return value <= threshold
	case CompareGTE:
		return value >= threshold
	case CompareLT:
		return value < threshold
	case CompareGT:
		return value > threshold
	case CompareEQ:
		return value == threshold
	}
	return false
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
