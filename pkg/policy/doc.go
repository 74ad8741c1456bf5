// Package policy evaluates Rego policies against role plans and release
// archive requests before anything touches a host.
//
// Built-in policies encode the operational rules: world-writable
// directories carry the sticky bit, a role that stops a service must
// start or restart it again, archive destinations are gzipped tarballs
// with a path prefix. Additional policies load from .rego or .json files
// and hot-reload when the files change.
//
// A policy contributes violations through a deny set; error-severity
// violations block the operation, warnings do not.
package policy
