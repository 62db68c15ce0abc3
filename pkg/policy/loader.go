package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleArtifact is the on-disk shape of a rule set.
type ruleArtifact struct {
	Version int    `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// RuleSet is an immutable collection of rules loaded from a YAML artifact.
// The content hash computed at load time pins the rule set for the lifetime
// of the process; any later change to the artifact is tampering, not an
// update.
type RuleSet struct {
	path     string
	checksum string
	rules    []Rule
}

// LoadRuleSet reads and validates a rule artifact and computes its SHA-256
// content hash.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	var artifact ruleArtifact
	if err := yaml.Unmarshal(data, &artifact); err != nil {
		return nil, NewLoadError(path, err)
	}

	if err := validateRules(artifact.Rules); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	return &RuleSet{
		path:     path,
		checksum: hex.EncodeToString(sum[:]),
		rules:    artifact.Rules,
	}, nil
}

func validateRules(rules []Rule) error {
	if len(rules) == 0 {
		return NewRuleError("", "", "rule set contains no rules")
	}

	seen := make(map[string]bool, len(rules))
	for i := range rules {
		r := &rules[i]
		if r.Name == "" {
			return NewRuleError("", "name", fmt.Sprintf("rule %d has no name", i))
		}
		if seen[r.Name] {
			return NewRuleError(r.Name, "name", "duplicate rule name")
		}
		seen[r.Name] = true

		if !r.Category.Valid() {
			return NewRuleError(r.Name, "category", fmt.Sprintf("unknown category %q", r.Category))
		}
		if !r.Kind.Valid() {
			return NewRuleError(r.Name, "kind", fmt.Sprintf("unknown kind %q", r.Kind))
		}
		if !r.Severity.Valid() {
			return NewRuleError(r.Name, "severity", fmt.Sprintf("unknown severity %q", r.Severity))
		}
		if r.Parameter == "" {
			return NewRuleError(r.Name, "parameter", "parameter is required")
		}

		if r.Kind == KindNumericThreshold {
			if r.Comparison == "" {
				r.Comparison = CompareLTE
			}
			switch r.Comparison {
			case CompareLTE, CompareGTE, CompareLT, CompareGT, CompareEQ:
			default:
				return NewRuleError(r.Name, "comparison", fmt.Sprintf("unknown comparison %q", r.Comparison))
			}
		}
	}

	return nil
}

// Rules returns a copy of the rules in artifact order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Path returns the artifact path the rule set was loaded from.
func (rs *RuleSet) Path() string {
	return rs.path
}

// Checksum returns the SHA-256 hex digest of the artifact computed at load
// time.
func (rs *RuleSet) Checksum() string {
	return rs.checksum
}

// Verify re-reads the artifact and compares its content hash against the
// hash computed at load time. A mismatch (or an unreadable artifact) is an
// IntegrityError.
func (rs *RuleSet) Verify() error {
	data, err := os.ReadFile(rs.path)
	if err != nil {
		return NewIntegrityError(rs.path, rs.checksum, fmt.Sprintf("unreadable (%v)", err))
	}
	sum := sha256.Sum256(data)
	actual := hex.EncodeToString(sum[:])
	if actual != rs.checksum {
		return NewIntegrityError(rs.path, rs.checksum, actual)
	}
	return nil
}
