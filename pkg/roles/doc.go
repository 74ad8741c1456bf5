// Package roles defines the built-in provisioning roles. A role builder
// turns a caller's variable map into an ordered task list plus handlers
// for the engine to run.
//
// Variables are validated before any task executes: a missing required
// variable or an out-of-range value fails the build, so a role never
// starts against a host it cannot finish describing.
package roles
