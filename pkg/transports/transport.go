// Package transports defines the connection abstraction used to run commands
// and place files on target hosts. Implementations live in the ssh and local
// subpackages.
package transports

import (
	"context"
	"strings"
	"time"
)

// Conn is a command and file channel to one target host. Implementations must
// be safe for sequential use by a single runner; they are not required to be
// safe for concurrent use.
type Conn interface {
	// Execute runs a command on the target. A non-zero exit code is reported
	// in the Result, not as an error; the error return is reserved for
	// transport-level failures (lost connection, timeout, cancelled context).
	Execute(ctx context.Context, cmd string) (*Result, error)

	// ExecuteSudo runs a command on the target with elevated privileges.
	ExecuteSudo(ctx context.Context, cmd string) (*Result, error)

	// Upload places a local file at remotePath with the given mode.
	Upload(ctx context.Context, localPath, remotePath string, mode uint32) error

	// Target returns the host this connection is bound to, for logging.
	Target() string

	// Close releases the connection.
	Close() error
}

// Result represents the outcome of a command execution.
type Result struct {
	// Stdout is the standard output from the command, trimmed of
	// surrounding whitespace.
	Stdout string

	// Stderr is the standard error output from the command, trimmed of
	// surrounding whitespace.
	Stderr string

	// ExitCode is the command's exit code.
	ExitCode int

	// Duration is the total execution time.
	Duration time.Duration
}

// Success returns true if the command exited with code zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Lines returns stdout split into non-empty lines.
func (r *Result) Lines() []string {
	var lines []string
	for _, l := range strings.Split(r.Stdout, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "execute", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
