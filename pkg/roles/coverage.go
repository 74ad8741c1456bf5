package roles

import (
	"fmt"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/tasks"
)

// CoverageVars configures the coverage collector role.
type CoverageVars struct {
	// Services are the platform services stopped while instrumentation
	// is swapped in underneath them, then restarted.
	Services []string `yaml:"services" validate:"required,min=1"`

	// ScratchDir is the shared directory coverage data lands in. Every
	// service account writes here, hence world-writable with the sticky
	// bit.
	ScratchDir string `yaml:"scratch_dir" validate:"required"`

	// Repo is the instrumentation repository clone URL.
	Repo string `yaml:"repo" validate:"required,url"`

	// RepoVersion is the branch or tag to check out.
	RepoVersion string `yaml:"repo_version"`

	// CheckoutDir is where the instrumentation repository lands.
	CheckoutDir string `yaml:"checkout_dir" validate:"required"`

	// HookPath is where the measurement hook is installed so the
	// interpreter picks it up on service start.
	HookPath string `yaml:"hook_path" validate:"required"`
}

func defaultCoverageVars() *CoverageVars {
	return &CoverageVars{
		ScratchDir:  "/tmp/coverage",
		CheckoutDir: "/opt/devforge/coverage",
		HookPath:    "/usr/lib/python2.7/site-packages/sitecustomize.py",
	}
}

// BuildCoverage produces the coverage collector role: stop the listed
// services, recreate the scratch directory empty, shallow-clone the
// instrumentation repository, install the measurement tool, drop the
// interpreter hook, and restart the same services. A successful run
// always ends with the services running; a failure partway leaves them
// stopped and is surfaced to the operator, there is no rollback.
func BuildCoverage(vars map[string]any) (*engine.Role, error) {
	v := defaultCoverageVars()
	if err := decodeVars("coverage", vars, v); err != nil {
		return nil, err
	}

	role := &engine.Role{Name: "coverage"}

	for _, svc := range v.Services {
		role.Tasks = append(role.Tasks, engine.Task{
			Name:   fmt.Sprintf("stop %s", svc),
			Action: &tasks.Service{Service: svc, Action: "stop"},
		})
	}

	role.Tasks = append(role.Tasks,
		engine.Task{
			Name: "recreate scratch directory",
			Action: &tasks.Directory{
				Path:     v.ScratchDir,
				Mode:     "1777",
				Recreate: true,
			},
		},
		engine.Task{
			Name: "clone instrumentation repository",
			Action: &tasks.GitClone{
				Repo:    v.Repo,
				Dest:    v.CheckoutDir,
				Version: v.RepoVersion,
				Depth:   1,
			},
		},
		engine.Task{
			Name:   "install coverage tool",
			Action: &tasks.PipInstall{Pkg: "coverage"},
		},
		engine.Task{
			Name: "install measurement hook",
			Action: &tasks.FileWrite{
				Path:    v.HookPath,
				Content: coverageHook(v.ScratchDir),
				Mode:    "0644",
			},
		},
	)

	for _, svc := range v.Services {
		role.Tasks = append(role.Tasks, engine.Task{
			Name:   fmt.Sprintf("restart %s", svc),
			Action: &tasks.Service{Service: svc, Action: "restart"},
		})
	}

	return role, nil
}

// coverageHook starts measurement in every interpreter process and
// points the data files at the shared scratch directory.
func coverageHook(scratchDir string) string {
	return fmt.Sprintf(`import os

import coverage

os.environ.setdefault('COVERAGE_FILE', '%s/.coverage')
coverage.process_startup()
`, scratchDir)
}
