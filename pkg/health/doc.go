// Package health monitors agents, external dependencies, policy drift, and
// process resources.
//
// Four loops tick independently so a stall in one never blinds the others.
// Every probe runs under a hard timeout and a timed-out probe counts as
// failed. Findings are published as an immutable snapshot swapped in
// atomically, so readers always see a consistent view without taking locks.
package health
