package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/devforge/devforge/pkg/transports"
)

// Directory ensures a directory exists with the given ownership and mode.
// Modes are octal strings so special bits read naturally, e.g. "1777" for a
// world-writable scratch directory with the sticky bit.
type Directory struct {
	// Path is the directory path on the host.
	Path string

	// Owner is the owning user. Empty leaves ownership as created.
	Owner string

	// Group is the owning group. Empty defaults to the owner's group.
	Group string

	// Mode is the octal mode, e.g. "0755" or "1777". Defaults to "0755".
	Mode string

	// Recreate removes the directory first, guaranteeing empty contents.
	Recreate bool
}

// Name returns the action type.
func (d *Directory) Name() string { return "directory" }

// Apply ensures the directory state.
func (d *Directory) Apply(ctx context.Context, conn transports.Conn) (*Result, error) {
	if d.Path == "" {
		return nil, fmt.Errorf("directory path is required")
	}

	mode := d.Mode
	if mode == "" {
		mode = "0755"
	}

	if d.Recreate {
		res, err := conn.ExecuteSudo(ctx, fmt.Sprintf("rm -rf %s", shellQuote(d.Path)))
		if err != nil {
			return nil, err
		}
		if !res.Success() {
			return nil, fmt.Errorf("failed to remove %s: %s", d.Path, res.Stderr)
		}
		if err := d.create(ctx, conn, mode); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Action: "recreated"}, nil
	}

	current, exists, err := d.stat(ctx, conn)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := d.create(ctx, conn, mode); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Action: "created"}, nil
	}

	changed := false

	if !modeEqual(current.mode, mode) {
		res, err := conn.ExecuteSudo(ctx, fmt.Sprintf("chmod %s %s", mode, shellQuote(d.Path)))
		if err != nil {
			return nil, err
		}
		if !res.Success() {
			return nil, fmt.Errorf("chmod failed for %s: %s", d.Path, res.Stderr)
		}
		changed = true
	}

	if d.Owner != "" && (current.owner != d.Owner || (d.Group != "" && current.group != d.Group)) {
		if err := d.chown(ctx, conn); err != nil {
			return nil, err
		}
		changed = true
	}

	if changed {
		return &Result{Changed: true, Action: "updated"}, nil
	}
	return &Result{Action: "already_present"}, nil
}

type dirState struct {
	mode  string
	owner string
	group string
}

func (d *Directory) stat(ctx context.Context, conn transports.Conn) (dirState, bool, error) {
	res, err := conn.Execute(ctx, fmt.Sprintf("stat -c '%%a %%U %%G' %s", shellQuote(d.Path)))
	if err != nil {
		return dirState{}, false, err
	}
	if !res.Success() {
		return dirState{}, false, nil
	}

	fields := strings.Fields(res.Stdout)
	if len(fields) != 3 {
		return dirState{}, false, fmt.Errorf("unexpected stat output: %s", res.Stdout)
	}
	return dirState{mode: fields[0], owner: fields[1], group: fields[2]}, true, nil
}

func (d *Directory) create(ctx context.Context, conn transports.Conn, mode string) error {
	res, err := conn.ExecuteSudo(ctx, fmt.Sprintf("mkdir -p %s", shellQuote(d.Path)))
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("mkdir failed for %s: %s", d.Path, res.Stderr)
	}

	res, err = conn.ExecuteSudo(ctx, fmt.Sprintf("chmod %s %s", mode, shellQuote(d.Path)))
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("chmod failed for %s: %s", d.Path, res.Stderr)
	}

	if d.Owner != "" {
		return d.chown(ctx, conn)
	}
	return nil
}

func (d *Directory) chown(ctx context.Context, conn transports.Conn) error {
	ownerSpec := d.Owner
	if d.Group != "" {
		ownerSpec += ":" + d.Group
	}
	res, err := conn.ExecuteSudo(ctx, fmt.Sprintf("chown %s %s", shellQuote(ownerSpec), shellQuote(d.Path)))
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("chown failed for %s: %s", d.Path, res.Stderr)
	}
	return nil
}

// modeEqual compares octal mode strings ignoring leading zeros, so stat's
// "755" matches a desired "0755".
func modeEqual(a, b string) bool {
	return strings.TrimLeft(a, "0") == strings.TrimLeft(b, "0")
}

// Symlink ensures a symbolic link points at the given target.
type Symlink struct {
	// Target is what the link points to.
	Target string

	// Path is the link location.
	Path string
}

// Name returns the action type.
func (s *Symlink) Name() string { return "symlink" }

// Apply creates or repoints the link.
func (s *Symlink) Apply(ctx context.Context, conn transports.Conn) (*Result, error) {
	if s.Target == "" || s.Path == "" {
		return nil, fmt.Errorf("symlink requires target and path")
	}

	res, err := conn.Execute(ctx, fmt.Sprintf("readlink %s", shellQuote(s.Path)))
	if err != nil {
		return nil, err
	}
	if res.Success() && strings.TrimSpace(res.Stdout) == s.Target {
		return &Result{Action: "already_present"}, nil
	}

	res, err = conn.ExecuteSudo(ctx, fmt.Sprintf("ln -sfn %s %s", shellQuote(s.Target), shellQuote(s.Path)))
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("failed to create symlink %s: %s", s.Path, res.Stderr)
	}

	return &Result{Changed: true, Action: "linked"}, nil
}
