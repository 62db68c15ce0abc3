// Package policy implements rule-set loading and action evaluation.
//
// A rule set is loaded once from a YAML artifact at process start, content
// hashed with SHA-256, and never mutated afterward. Changing the rules means
// shipping a new artifact and restarting; a changed artifact under a running
// process is treated as tampering, detected by Verify.
//
// Evaluation is pure: a decision depends only on the submitted action and
// the loaded rules. All applicable rules are checked, violations are
// collected rather than short-circuited, and the compliance score weights
// violations by severity.
package policy
