// Package tasks provides the idempotent actions roles are built from. Every
// action follows the same shape: check the current state of the host through
// the connection, mutate only when the host differs from the desired state,
// and report whether anything changed.
package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/devforge/devforge/pkg/transports"
)

// Result represents the outcome of applying an action.
type Result struct {
	// Changed is true if the action mutated the host.
	Changed bool

	// Action names what happened, e.g. "installed" or "already_present".
	Action string

	// Output carries command output worth surfacing to the operator.
	Output string
}

// Action is one idempotent step executed over a connection.
type Action interface {
	// Name returns the action type, e.g. "package" or "service".
	Name() string

	// Apply brings the host to the desired state and reports what changed.
	Apply(ctx context.Context, conn transports.Conn) (*Result, error)
}

// shellQuote wraps s in single quotes for safe interpolation into sh -c
// command lines.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// detectPackageManager probes the host for a supported package manager.
func detectPackageManager(ctx context.Context, conn transports.Conn) (string, error) {
	for _, mgr := range []string{"apt-get", "dnf", "yum", "zypper"} {
		res, err := conn.Execute(ctx, "command -v "+mgr)
		if err != nil {
			return "", err
		}
		if res.Success() {
			return mgr, nil
		}
	}
	return "", fmt.Errorf("no supported package manager found")
}
