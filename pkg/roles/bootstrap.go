package roles

import (
	"fmt"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/tasks"
)

// BootstrapVars configures the bootstrap role.
type BootstrapVars struct {
	// Packages is the prerequisite set a fresh host needs before any
	// other role can run against it.
	Packages []string `yaml:"packages" validate:"required,min=1"`

	// CertURL, when set, is a fixed URL to a certificate package
	// installed straight from the package manager.
	CertURL string `yaml:"cert_url" validate:"omitempty,url"`

	// CertCreates is a path whose existence marks the certificate
	// package as already installed.
	CertCreates string `yaml:"cert_creates"`
}

func defaultBootstrapVars() *BootstrapVars {
	return &BootstrapVars{
		Packages: []string{"python", "python-devel", "libselinux-python"},
	}
}

// BuildBootstrap produces the bootstrap role: the minimum package set a
// bare host needs, plus an optional vendor certificate package from a
// fixed URL. Safe to re-run from scratch at any point.
func BuildBootstrap(vars map[string]any) (*engine.Role, error) {
	v := defaultBootstrapVars()
	if err := decodeVars("bootstrap", vars, v); err != nil {
		return nil, err
	}

	role := &engine.Role{Name: "bootstrap"}

	for _, pkg := range v.Packages {
		role.Tasks = append(role.Tasks, engine.Task{
			Name:   fmt.Sprintf("install %s", pkg),
			Action: &tasks.Package{Pkg: pkg, State: "present"},
		})
	}

	if v.CertURL != "" {
		role.Tasks = append(role.Tasks, engine.Task{
			Name: "install certificate package",
			Action: &tasks.Command{
				Cmd:     fmt.Sprintf("yum install -y %s", v.CertURL),
				Creates: v.CertCreates,
				Sudo:    true,
			},
		})
	}

	return role, nil
}
