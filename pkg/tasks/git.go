package tasks

import (
	"context"
	"fmt"

	"github.com/devforge/devforge/pkg/transports"
)

// GitClone ensures a repository checkout exists at a path.
type GitClone struct {
	// Repo is the clone URL.
	Repo string

	// Dest is the checkout path on the host.
	Dest string

	// Version is the branch or tag to check out. Empty uses the default
	// branch.
	Version string

	// Depth limits history; 1 gives the shallow clone used for
	// instrumentation checkouts. 0 clones full history.
	Depth int

	// Owner, when set, owns the checkout after cloning.
	Owner string
}

// Name returns the action type.
func (g *GitClone) Name() string { return "git" }

// Apply clones the repository if the destination is not already a checkout.
// An existing checkout is left as-is; it is not fast-forwarded.
func (g *GitClone) Apply(ctx context.Context, conn transports.Conn) (*Result, error) {
	if g.Repo == "" || g.Dest == "" {
		return nil, fmt.Errorf("git clone requires repo and dest")
	}

	res, err := conn.Execute(ctx, fmt.Sprintf("git -C %s rev-parse --is-inside-work-tree", shellQuote(g.Dest)))
	if err != nil {
		return nil, err
	}
	if res.Success() {
		return &Result{Action: "already_present"}, nil
	}

	cmd := "git clone"
	if g.Depth > 0 {
		cmd += fmt.Sprintf(" --depth %d", g.Depth)
	}
	if g.Version != "" {
		cmd += fmt.Sprintf(" --branch %s", shellQuote(g.Version))
	}
	cmd += fmt.Sprintf(" %s %s", shellQuote(g.Repo), shellQuote(g.Dest))

	res, err = conn.ExecuteSudo(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("git clone of %s failed: %s", g.Repo, res.Stderr)
	}

	if g.Owner != "" {
		res, err = conn.ExecuteSudo(ctx, fmt.Sprintf("chown -R %s %s", shellQuote(g.Owner), shellQuote(g.Dest)))
		if err != nil {
			return nil, err
		}
		if !res.Success() {
			return nil, fmt.Errorf("chown of %s failed: %s", g.Dest, res.Stderr)
		}
	}

	return &Result{Changed: true, Action: "cloned"}, nil
}

// PipInstall ensures a Python package is installed, optionally from a local
// source tree.
type PipInstall struct {
	// Pkg is the distribution name used for the installed check.
	Pkg string

	// Source, when set, is a local path installed instead of the index
	// package (pip install <source>).
	Source string

	// Executable is the pip to use. Defaults to "pip".
	Executable string
}

// Name returns the action type.
func (p *PipInstall) Name() string { return "pip" }

// Apply installs the package when pip does not already know it.
func (p *PipInstall) Apply(ctx context.Context, conn transports.Conn) (*Result, error) {
	if p.Pkg == "" {
		return nil, fmt.Errorf("pip package name is required")
	}

	pip := p.Executable
	if pip == "" {
		pip = "pip"
	}

	res, err := conn.Execute(ctx, fmt.Sprintf("%s show %s", pip, shellQuote(p.Pkg)))
	if err != nil {
		return nil, err
	}
	if res.Success() {
		return &Result{Action: "already_present"}, nil
	}

	spec := p.Pkg
	if p.Source != "" {
		spec = p.Source
	}

	res, err = conn.ExecuteSudo(ctx, fmt.Sprintf("%s install %s", pip, shellQuote(spec)))
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("pip install of %s failed: %s", spec, res.Stderr)
	}

	return &Result{Changed: true, Action: "installed"}, nil
}

// Command runs a raw command. It reports a change on every run unless
// Creates names a path whose existence short-circuits it.
type Command struct {
	// Cmd is the command line to run.
	Cmd string

	// Creates skips the command when this path already exists.
	Creates string

	// Sudo elevates the command.
	Sudo bool
}

// Name returns the action type.
func (c *Command) Name() string { return "command" }

// Apply runs the command.
func (c *Command) Apply(ctx context.Context, conn transports.Conn) (*Result, error) {
	if c.Cmd == "" {
		return nil, fmt.Errorf("command is required")
	}

	if c.Creates != "" {
		res, err := conn.Execute(ctx, fmt.Sprintf("test -e %s", shellQuote(c.Creates)))
		if err != nil {
			return nil, err
		}
		if res.Success() {
			return &Result{Action: "skipped_creates"}, nil
		}
	}

	exec := conn.Execute
	if c.Sudo {
		exec = conn.ExecuteSudo
	}

	res, err := exec(ctx, c.Cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("command failed (exit %d): %s", res.ExitCode, res.Stderr)
	}

	return &Result{Changed: true, Action: "executed", Output: res.Stdout}, nil
}
