package tasks

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/devforge/devforge/pkg/transports"
)

// FileWrite ensures a file exists with the given content, mode, and
// ownership. When Validate is set, the candidate content is checked by the
// validation command against a temporary path before it replaces the target;
// a failing validation leaves the target untouched.
type FileWrite struct {
	// Path is the destination path on the host.
	Path string

	// Content is the desired file content.
	Content string

	// Mode is the octal file mode, e.g. "0440". Defaults to "0644".
	Mode string

	// Owner is the owning user. Empty leaves ownership to root.
	Owner string

	// Group is the owning group. Empty defaults to the owner's group.
	Group string

	// Validate is a command template run against the candidate file before
	// committing, with %s replaced by the temporary path. Example:
	// "visudo -cf %s".
	Validate string
}

// Name returns the action type.
func (f *FileWrite) Name() string { return "file" }

// Apply writes the file if its content differs from the desired content.
func (f *FileWrite) Apply(ctx context.Context, conn transports.Conn) (*Result, error) {
	if f.Path == "" {
		return nil, fmt.Errorf("file path is required")
	}

	desiredSum := fmt.Sprintf("%x", sha256.Sum256([]byte(f.Content)))

	res, err := conn.Execute(ctx, fmt.Sprintf("sha256sum %s", shellQuote(f.Path)))
	if err != nil {
		return nil, err
	}
	if res.Success() {
		fields := strings.Fields(res.Stdout)
		if len(fields) > 0 && fields[0] == desiredSum {
			return &Result{Action: "already_present"}, nil
		}
	}

	tmpPath := fmt.Sprintf("/tmp/devforge-file-%s", desiredSum[:12])

	// printf %s stages the content byte-exact, so the installed file hashes
	// to desiredSum and the next run short-circuits above.
	writeCmd := fmt.Sprintf("printf '%%s' %s > %s", shellQuote(f.Content), tmpPath)
	res, err = conn.Execute(ctx, writeCmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("failed to stage file content: %s", res.Stderr)
	}

	if f.Validate != "" {
		validateCmd := strings.ReplaceAll(f.Validate, "%s", tmpPath)
		res, err = conn.ExecuteSudo(ctx, validateCmd)
		if err != nil {
			return nil, err
		}
		if !res.Success() {
			_, _ = conn.Execute(ctx, fmt.Sprintf("rm -f %s", tmpPath))
			return nil, fmt.Errorf("validation failed for %s: %s", f.Path, res.Stderr)
		}
	}

	mode := f.Mode
	if mode == "" {
		mode = "0644"
	}

	installCmd := fmt.Sprintf("install -m %s", mode)
	if f.Owner != "" {
		installCmd += fmt.Sprintf(" -o %s", shellQuote(f.Owner))
		group := f.Group
		if group == "" {
			group = f.Owner
		}
		installCmd += fmt.Sprintf(" -g %s", shellQuote(group))
	}
	installCmd += fmt.Sprintf(" %s %s", tmpPath, shellQuote(f.Path))

	res, err = conn.ExecuteSudo(ctx, installCmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("failed to install %s: %s", f.Path, res.Stderr)
	}

	_, _ = conn.Execute(ctx, fmt.Sprintf("rm -f %s", tmpPath))

	return &Result{Changed: true, Action: "written"}, nil
}

// LineInFile asserts that a file contains an exact line, appending it when
// missing. Existing lines are never modified or removed.
type LineInFile struct {
	// Path is the file to check.
	Path string

	// Line is the exact line that must be present.
	Line string

	// Validate is a command template run against a candidate copy before
	// committing, with %s replaced by the candidate path.
	Validate string
}

// Name returns the action type.
func (l *LineInFile) Name() string { return "lineinfile" }

// Apply appends the line if it is not already present.
func (l *LineInFile) Apply(ctx context.Context, conn transports.Conn) (*Result, error) {
	if l.Path == "" || l.Line == "" {
		return nil, fmt.Errorf("lineinfile requires path and line")
	}

	res, err := conn.ExecuteSudo(ctx, fmt.Sprintf("grep -qxF %s %s", shellQuote(l.Line), shellQuote(l.Path)))
	if err != nil {
		return nil, err
	}
	if res.Success() {
		return &Result{Action: "already_present"}, nil
	}

	if l.Validate != "" {
		// Build the candidate file and validate it before touching the target.
		sum := sha256.Sum256([]byte(l.Path + l.Line))
		tmpPath := fmt.Sprintf("/tmp/devforge-line-%x", sum[:6])
		stage := fmt.Sprintf("sh -c %s", shellQuote(fmt.Sprintf("cp %s %s && echo %s >> %s",
			shellQuote(l.Path), tmpPath, shellQuote(l.Line), tmpPath)))
		res, err = conn.ExecuteSudo(ctx, stage)
		if err != nil {
			return nil, err
		}
		if !res.Success() {
			return nil, fmt.Errorf("failed to stage candidate for %s: %s", l.Path, res.Stderr)
		}

		validateCmd := strings.ReplaceAll(l.Validate, "%s", tmpPath)
		res, err = conn.ExecuteSudo(ctx, validateCmd)
		cleanupErr := func() {
			_, _ = conn.ExecuteSudo(ctx, fmt.Sprintf("rm -f %s", tmpPath))
		}
		if err != nil {
			cleanupErr()
			return nil, err
		}
		if !res.Success() {
			cleanupErr()
			return nil, fmt.Errorf("validation failed for %s: %s", l.Path, res.Stderr)
		}
		cleanupErr()
	}

	appendCmd := fmt.Sprintf("sh -c %s", shellQuote(fmt.Sprintf("echo %s >> %s", shellQuote(l.Line), shellQuote(l.Path))))
	res, err = conn.ExecuteSudo(ctx, appendCmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("failed to append to %s: %s", l.Path, res.Stderr)
	}

	return &Result{Changed: true, Action: "line_added"}, nil
}
