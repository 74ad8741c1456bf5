// Package config loads playbooks and inventories and evaluates task
// conditions.
//
// Playbooks and inventories are written in YAML or CUE. CUE sources are
// validated by unification with the built-in schemas; both formats then go
// through struct-tag validation, so a bad file fails before any host is
// touched.
//
// Task conditions are Starlark expressions evaluated against host facts:
//
//	os_family == "redhat" and os_major <= 6
//
// Evaluation is sandboxed: no filesystem or network access, a short
// timeout, and a required boolean result.
package config
