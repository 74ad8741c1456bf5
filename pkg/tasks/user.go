package tasks

import (
	"context"
	"fmt"

	"github.com/devforge/devforge/pkg/transports"
)

// User ensures a local account exists with a home directory.
type User struct {
	// User is the account name.
	User string

	// Home is the home directory path. Empty uses the system default.
	Home string

	// HomeMode is the octal mode applied to the home directory, e.g.
	// "0755" so services can traverse into checkouts under it.
	HomeMode string

	// Shell is the login shell. Empty uses the system default.
	Shell string
}

// Name returns the action type.
func (u *User) Name() string { return "user" }

// Apply creates the account if it does not exist and enforces the home mode.
func (u *User) Apply(ctx context.Context, conn transports.Conn) (*Result, error) {
	if u.User == "" {
		return nil, fmt.Errorf("user name is required")
	}

	res, err := conn.Execute(ctx, fmt.Sprintf("id -u %s", shellQuote(u.User)))
	if err != nil {
		return nil, err
	}

	created := false
	if !res.Success() {
		cmd := "useradd -m"
		if u.Home != "" {
			cmd += fmt.Sprintf(" -d %s", shellQuote(u.Home))
		}
		if u.Shell != "" {
			cmd += fmt.Sprintf(" -s %s", shellQuote(u.Shell))
		}
		cmd += " " + shellQuote(u.User)

		res, err = conn.ExecuteSudo(ctx, cmd)
		if err != nil {
			return nil, err
		}
		if !res.Success() {
			return nil, fmt.Errorf("useradd failed for %s: %s", u.User, res.Stderr)
		}
		created = true
	}

	modeChanged := false
	if u.HomeMode != "" {
		home := u.Home
		if home == "" {
			res, err = conn.Execute(ctx, fmt.Sprintf("getent passwd %s | cut -d: -f6", shellQuote(u.User)))
			if err != nil {
				return nil, err
			}
			if !res.Success() || res.Stdout == "" {
				return nil, fmt.Errorf("failed to resolve home directory for %s", u.User)
			}
			home = res.Stdout
		}

		res, err = conn.Execute(ctx, fmt.Sprintf("stat -c '%%a' %s", shellQuote(home)))
		if err != nil {
			return nil, err
		}
		if !res.Success() || !modeEqual(res.Stdout, u.HomeMode) {
			res, err = conn.ExecuteSudo(ctx, fmt.Sprintf("chmod %s %s", u.HomeMode, shellQuote(home)))
			if err != nil {
				return nil, err
			}
			if !res.Success() {
				return nil, fmt.Errorf("chmod failed for %s: %s", home, res.Stderr)
			}
			modeChanged = true
		}
	}

	switch {
	case created:
		return &Result{Changed: true, Action: "created"}, nil
	case modeChanged:
		return &Result{Changed: true, Action: "home_mode_set"}, nil
	default:
		return &Result{Action: "already_present"}, nil
	}
}
