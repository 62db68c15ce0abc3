package policy

import "fmt"

// LoadError indicates the rule artifact could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading rule set from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError creates a new LoadError.
func NewLoadError(path string, err error) *LoadError {
	return &LoadError{Path: path, Err: err}
}

// RuleError indicates a rule in the artifact failed structural validation.
type RuleError struct {
	Rule    string
	Field   string
	Message string
}

func (e *RuleError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("invalid rule set: %s", e.Message)
	}
	return fmt.Sprintf("invalid rule %q: field %s: %s", e.Rule, e.Field, e.Message)
}

// NewRuleError creates a new RuleError.
func NewRuleError(rule, field, message string) *RuleError {
	return &RuleError{Rule: rule, Field: field, Message: message}
}

// IntegrityError indicates the rule artifact on disk no longer matches the
// checksum computed when the rule set was loaded.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("rule set integrity failure for %s: expected checksum %s, got %s",
		e.Path, e.Expected, e.Actual)
}

// NewIntegrityError creates a new IntegrityError.
func NewIntegrityError(path, expected, actual string) *IntegrityError {
	return &IntegrityError{Path: path, Expected: expected, Actual: actual}
}
