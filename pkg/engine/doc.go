// Package engine drives role application against hosts.
//
// A Role is an ordered list of idempotent tasks plus a set of named
// handlers. The Runner executes tasks in declaration order, skipping tasks
// whose condition evaluates false against the host's facts. A task that
// changes host state notifies handlers; after the task list completes,
// notified handlers fire exactly once each, in the order they were first
// notified. The first task or handler failure aborts the run, including any
// handlers still pending.
//
// The package also provides the host inventory (HostRegistry) and fact
// discovery (FactsCollector), both backed by the stores package, and the
// EngineError classification used across the codebase:
//
//   - Validation: bad input, reported before touching a host
//   - Transient: connectivity or timeout failures
//   - Permanent: task failures; role runs are never retried
package engine
