// Ganymede is the Mercator agent governance core.
//
// It validates autonomous agent actions against a read-only policy rule
// set, keeps an append-only revisioned state store with a full audit
// trail, watches agent and dependency health, and owns containment:
// agent isolation and the system-wide emergency halt.
//
// Usage:
//
//	# Start the governance core with default configuration
//	ganymede run
//
//	# Start with a custom configuration file
//	ganymede run --config /etc/ganymede/config.yaml
//
//	# Validate an action against the local rule artifact
//	ganymede validate --file action.json
//
//	# Inspect the loaded rule set
//	ganymede rules list
//
//	# Halt and resume a running core
//	ganymede control halt --author alice --reason "incident 4711"
//	ganymede control resume --author bob
//
// For complete documentation, see: https://github.com/mercator-hq/ganymede
package main

func main() {
	Execute()
}
