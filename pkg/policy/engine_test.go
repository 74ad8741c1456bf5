package policy

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/tasks"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestBuiltinPoliciesCompile(t *testing.T) {
	e := newTestEngine(t)

	policies := e.ListPolicies()
	if len(policies) != 4 {
		t.Errorf("ListPolicies() = %d policies, want 4", len(policies))
	}

	for _, name := range []string{
		"world-writable-sticky",
		"service-restart-pairing",
		"archive-dest",
		"service-enable-running",
	} {
		if _, err := e.GetPolicy(name); err != nil {
			t.Errorf("GetPolicy(%s) error = %v", name, err)
		}
	}
}

func TestEvaluateRoleStickyBit(t *testing.T) {
	e := newTestEngine(t)

	role := &engine.Role{
		Name: "coverage",
		Tasks: []engine.Task{
			{Name: "scratch dir", Action: &tasks.Directory{Path: "/tmp/instrumented", Mode: "0777"}},
		},
	}

	result, err := e.EvaluateRole(t.Context(), role, "build01")
	if err != nil {
		t.Fatalf("EvaluateRole() error = %v", err)
	}
	if result.Allowed {
		t.Error("world-writable directory without sticky bit should be blocked")
	}
	if len(result.Violations) != 1 || result.Violations[0].Policy != "world-writable-sticky" {
		t.Errorf("unexpected violations: %+v", result.Violations)
	}
	if result.Violations[0].Subject != "/tmp/instrumented" {
		t.Errorf("Subject = %s, want /tmp/instrumented", result.Violations[0].Subject)
	}

	role.Tasks[0].Action = &tasks.Directory{Path: "/tmp/instrumented", Mode: "1777"}
	result, err = e.EvaluateRole(t.Context(), role, "build01")
	if err != nil {
		t.Fatalf("EvaluateRole() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("sticky-bit directory should pass, got violations: %+v", result.Violations)
	}
}

func TestEvaluateRoleRestartPairing(t *testing.T) {
	e := newTestEngine(t)

	role := &engine.Role{
		Name: "coverage",
		Tasks: []engine.Task{
			{Name: "stop web", Action: &tasks.Service{Service: "httpd", Action: "stop"}},
			{Name: "stop broker", Action: &tasks.Service{Service: "qpidd", Action: "stop"}},
		},
		Handlers: []engine.Handler{
			{Name: "restart web", Action: &tasks.Service{Service: "httpd", Action: "restart"}},
		},
	}

	result, err := e.EvaluateRole(t.Context(), role, "build01")
	if err != nil {
		t.Fatalf("EvaluateRole() error = %v", err)
	}
	if result.Allowed {
		t.Error("stopped service without restart should be blocked")
	}
	if len(result.Violations) != 1 || result.Violations[0].Subject != "qpidd" {
		t.Errorf("unexpected violations: %+v", result.Violations)
	}

	role.Handlers = append(role.Handlers, engine.Handler{
		Name:   "restart broker",
		Action: &tasks.Service{Service: "qpidd", Action: "start"},
	})
	result, err = e.EvaluateRole(t.Context(), role, "build01")
	if err != nil {
		t.Fatalf("EvaluateRole() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("paired stop/restart should pass, got violations: %+v", result.Violations)
	}
}

func TestEvaluateRoleEnableWithoutStartWarns(t *testing.T) {
	e := newTestEngine(t)

	role := &engine.Role{
		Name: "cacheproxy",
		Tasks: []engine.Task{
			{Name: "enable squid", Action: &tasks.Service{Service: "squid", Action: "enable"}},
		},
	}

	result, err := e.EvaluateRole(t.Context(), role, "cache01")
	if err != nil {
		t.Fatalf("EvaluateRole() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("warning must not block, got violations: %+v", result.Violations)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Policy != "service-enable-running" {
		t.Errorf("unexpected warnings: %+v", result.Warnings)
	}
}

func TestEvaluateArchive(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name    string
		archive ArchiveInput
		allowed bool
	}{
		{
			name: "tarball with prefix",
			archive: ArchiveInput{
				DestPath: "/srv/releases/pulp-2.4.0.tar.gz",
				Prefix:   "pulp-2.4.0",
			},
			allowed: true,
		},
		{
			name: "zip destination",
			archive: ArchiveInput{
				DestPath: "/srv/releases/pulp-2.4.0.zip",
				Prefix:   "pulp-2.4.0",
			},
			allowed: false,
		},
		{
			name: "empty prefix",
			archive: ArchiveInput{
				DestPath: "/srv/releases/pulp-2.4.0.tar.gz",
			},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.EvaluateArchive(t.Context(), &tt.archive)
			if err != nil {
				t.Fatalf("EvaluateArchive() error = %v", err)
			}
			if result.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v (violations: %+v)", result.Allowed, tt.allowed, result.Violations)
			}
		})
	}
}

func TestSetEnabled(t *testing.T) {
	e := newTestEngine(t)

	if err := e.SetEnabled("world-writable-sticky", false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}

	role := &engine.Role{
		Name: "coverage",
		Tasks: []engine.Task{
			{Name: "scratch dir", Action: &tasks.Directory{Path: "/tmp/instrumented", Mode: "0777"}},
		},
	}

	result, err := e.EvaluateRole(t.Context(), role, "build01")
	if err != nil {
		t.Fatalf("EvaluateRole() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("disabled policy should not fire, got violations: %+v", result.Violations)
	}

	if err := e.SetEnabled("no-such-policy", true); err == nil {
		t.Error("expected error toggling unknown policy")
	}
}

func TestReplacePoliciesKeepsBuiltins(t *testing.T) {
	e := newTestEngine(t)

	custom := Policy{
		Name:     "deny-everything",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package devforge.policies.custom

import rego.v1

deny contains violation if {
	input.role
	violation := {"message": "no roles today", "severity": "error"}
}
`,
	}

	if err := e.ReplacePolicies([]Policy{custom}); err != nil {
		t.Fatalf("ReplacePolicies() error = %v", err)
	}

	if len(e.ListPolicies()) != 5 {
		t.Errorf("ListPolicies() = %d, want 4 builtins + 1 custom", len(e.ListPolicies()))
	}

	role := &engine.Role{Name: "base"}
	result, err := e.EvaluateRole(t.Context(), role, "host01")
	if err != nil {
		t.Fatalf("EvaluateRole() error = %v", err)
	}
	if result.Allowed {
		t.Error("custom deny-everything policy should block")
	}
}

func TestNewRoleInputParams(t *testing.T) {
	role := &engine.Role{
		Name: "coverage",
		Tasks: []engine.Task{
			{
				Name:   "stop web",
				When:   `os_family == "redhat"`,
				Action: &tasks.Service{Service: "httpd", Action: "stop"},
				Notify: []string{"restart web"},
			},
			{Name: "checkout", Action: &tasks.GitClone{Repo: "https://example.com/x.git", Dest: "/opt/x", Depth: 1}},
		},
		Handlers: []engine.Handler{
			{Name: "restart web", Action: &tasks.Service{Service: "httpd", Action: "restart"}},
		},
	}

	input := NewRoleInput(role)

	if len(input.Tasks) != 2 || len(input.Handlers) != 1 {
		t.Fatalf("unexpected shape: %d tasks, %d handlers", len(input.Tasks), len(input.Handlers))
	}
	if input.Tasks[0].Action != "service" || input.Tasks[0].Params["state"] != "stop" {
		t.Errorf("unexpected task params: %+v", input.Tasks[0])
	}
	if input.Tasks[0].When == "" || len(input.Tasks[0].Notify) != 1 {
		t.Errorf("condition and notify must carry through: %+v", input.Tasks[0])
	}
	if input.Tasks[1].Params["depth"] != 1 {
		t.Errorf("unexpected git params: %+v", input.Tasks[1].Params)
	}
	if input.Handlers[0].Params["service"] != "httpd" {
		t.Errorf("unexpected handler params: %+v", input.Handlers[0])
	}
}
