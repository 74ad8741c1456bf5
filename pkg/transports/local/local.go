// Package local provides a transports.Conn that runs commands on the machine
// devforge itself is running on, for same-host provisioning.
package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devforge/devforge/pkg/transports"
)

// Conn executes commands on the local host through /bin/sh.
type Conn struct {
	// Sudo prefixes privileged commands with sudo when true. When false,
	// ExecuteSudo runs the command directly (useful when already root).
	Sudo bool
}

// New creates a local connection. Privileged commands use sudo unless the
// current user is root.
func New() *Conn {
	return &Conn{Sudo: os.Geteuid() != 0}
}

// Target returns the local hostname.
func (c *Conn) Target() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return hostname
}

// Execute runs a command through the shell.
func (c *Conn) Execute(ctx context.Context, cmd string) (*transports.Result, error) {
	return c.run(ctx, cmd)
}

// ExecuteSudo runs a command with elevated privileges.
func (c *Conn) ExecuteSudo(ctx context.Context, cmd string) (*transports.Result, error) {
	if c.Sudo {
		cmd = "sudo " + cmd
	}
	return c.run(ctx, cmd)
}

func (c *Conn) run(ctx context.Context, cmd string) (*transports.Result, error) {
	startTime := time.Now()

	execCmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	execCmd.Stdout = &stdoutBuf
	execCmd.Stderr = &stderrBuf

	err := execCmd.Run()

	result := &transports.Result{
		Stdout:   strings.TrimSpace(stdoutBuf.String()),
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		Duration: time.Since(startTime),
	}

	log.Debug().
		Str("command", cmd).
		Dur("duration", result.Duration).
		Msg("local command completed")

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctx.Err() != nil {
			return result, &transports.TransportError{
				Op:          "execute",
				Err:         ctx.Err(),
				IsTemporary: true,
			}
		}
		return result, &transports.TransportError{Op: "execute", Err: err}
	}

	return result, nil
}

// Upload copies a local file to another local path with the given mode.
func (c *Conn) Upload(ctx context.Context, localPath, remotePath string, mode uint32) error {
	src, err := os.Open(localPath)
	if err != nil {
		return &transports.TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to open source file: %w", err),
		}
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(remotePath), 0755); err != nil {
		return &transports.TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to create directory: %w", err),
		}
	}

	perm := os.FileMode(0644)
	if mode > 0 {
		perm = os.FileMode(mode)
	}

	dst, err := os.OpenFile(remotePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return &transports.TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to create destination file: %w", err),
		}
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return &transports.TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to copy file: %w", err),
		}
	}

	return nil
}

// Close is a no-op for local connections.
func (c *Conn) Close() error {
	return nil
}
