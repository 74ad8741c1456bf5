package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/devforge/devforge/pkg/transports"
)

// Package ensures a package is present, absent, or at the latest version.
type Package struct {
	// Pkg is the package name.
	Pkg string

	// State is one of "present", "absent", "latest". Defaults to "present".
	State string

	// Manager overrides package manager detection (apt-get, dnf, yum, zypper).
	Manager string
}

// Name returns the action type.
func (p *Package) Name() string { return "package" }

// Apply brings the package to the desired state.
func (p *Package) Apply(ctx context.Context, conn transports.Conn) (*Result, error) {
	if p.Pkg == "" {
		return nil, fmt.Errorf("package name is required")
	}

	state := p.State
	if state == "" {
		state = "present"
	}

	manager := p.Manager
	if manager == "" {
		var err error
		manager, err = detectPackageManager(ctx, conn)
		if err != nil {
			return nil, fmt.Errorf("failed to detect package manager: %w", err)
		}
	}

	installed, version, err := p.isInstalled(ctx, conn, manager)
	if err != nil {
		return nil, fmt.Errorf("failed to check package status: %w", err)
	}

	switch state {
	case "present":
		if installed {
			return &Result{Action: "already_present", Output: version}, nil
		}
		if err := p.install(ctx, conn, manager); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Action: "installed"}, nil

	case "absent":
		if !installed {
			return &Result{Action: "already_absent"}, nil
		}
		if err := p.remove(ctx, conn, manager); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Action: "removed"}, nil

	case "latest":
		if !installed {
			if err := p.install(ctx, conn, manager); err != nil {
				return nil, err
			}
			return &Result{Changed: true, Action: "installed"}, nil
		}
		if err := p.upgrade(ctx, conn, manager); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Action: "upgraded"}, nil

	default:
		return nil, fmt.Errorf("invalid package state: %s", state)
	}
}

func (p *Package) isInstalled(ctx context.Context, conn transports.Conn, manager string) (bool, string, error) {
	var cmd string
	switch manager {
	case "apt-get":
		cmd = fmt.Sprintf("dpkg-query -W -f='${Version}' %s", shellQuote(p.Pkg))
	case "dnf", "yum", "zypper":
		cmd = fmt.Sprintf("rpm -q --queryformat '%%{VERSION}-%%{RELEASE}' %s", shellQuote(p.Pkg))
	default:
		return false, "", fmt.Errorf("unsupported package manager: %s", manager)
	}

	res, err := conn.Execute(ctx, cmd)
	if err != nil {
		return false, "", err
	}
	if !res.Success() {
		return false, "", nil
	}
	return true, strings.TrimSpace(res.Stdout), nil
}

func (p *Package) install(ctx context.Context, conn transports.Conn, manager string) error {
	return p.managerAction(ctx, conn, manager, "install")
}

func (p *Package) remove(ctx context.Context, conn transports.Conn, manager string) error {
	return p.managerAction(ctx, conn, manager, "remove")
}

func (p *Package) upgrade(ctx context.Context, conn transports.Conn, manager string) error {
	action := "upgrade"
	if manager == "zypper" {
		action = "update"
	}
	return p.managerAction(ctx, conn, manager, action)
}

func (p *Package) managerAction(ctx context.Context, conn transports.Conn, manager, action string) error {
	cmd := fmt.Sprintf("%s %s -y %s", manager, action, shellQuote(p.Pkg))
	res, err := conn.ExecuteSudo(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("%s %s failed for %s: %s", manager, action, p.Pkg, res.Stderr)
	}
	return nil
}
