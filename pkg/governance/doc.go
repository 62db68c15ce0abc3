// Package governance coordinates policy evaluation, state persistence,
// health tracking, and containment.
//
// The coordinator is the single enforcement point: every proposed action
// goes through Validate, which checks the halt flag first, then the acting
// agent's isolation, then the policy engine. Containment state survives
// restarts through the state store, and an emergency halt can only be
// lifted by a different author than the one who raised it.
package governance
