package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/devforge/devforge/pkg/tasks"
	"github.com/devforge/devforge/pkg/transports"
)

// fakeAction records its execution order and returns a scripted result.
type fakeAction struct {
	id      string
	changed bool
	err     error
	log     *[]string
}

func (f *fakeAction) Name() string { return "fake" }

func (f *fakeAction) Apply(ctx context.Context, conn transports.Conn) (*tasks.Result, error) {
	*f.log = append(*f.log, f.id)
	if f.err != nil {
		return nil, f.err
	}
	return &tasks.Result{Changed: f.changed, Action: "done"}, nil
}

// mapEvaluator resolves conditions from a fixed table.
type mapEvaluator struct {
	results map[string]bool
}

func (m *mapEvaluator) Evaluate(expr string, facts map[string]any) (bool, error) {
	result, ok := m.results[expr]
	if !ok {
		return false, fmt.Errorf("unknown expression: %s", expr)
	}
	return result, nil
}

func TestRunRoleExecutesInOrder(t *testing.T) {
	var log []string
	role := &Role{
		Name: "base",
		Tasks: []Task{
			{Name: "first", Action: &fakeAction{id: "first", log: &log}},
			{Name: "second", Action: &fakeAction{id: "second", log: &log}},
			{Name: "third", Action: &fakeAction{id: "third", changed: true, log: &log}},
		},
	}

	runner := NewRunner()
	report, err := runner.RunRole(t.Context(), nil, "host1", role, nil)
	if err != nil {
		t.Fatalf("RunRole() error = %v", err)
	}

	if report.Status != RunStatusSucceeded {
		t.Errorf("status = %s, want succeeded", report.Status)
	}
	want := []string{"first", "second", "third"}
	if len(log) != len(want) {
		t.Fatalf("executed %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("execution order %v, want %v", log, want)
			break
		}
	}
	if !report.Changed() {
		t.Error("expected report to record a change")
	}
}

func TestRunRoleSkipsOnFalseCondition(t *testing.T) {
	var log []string
	role := &Role{
		Name: "base",
		Tasks: []Task{
			{Name: "legacy", When: "os_major <= 6", Action: &fakeAction{id: "legacy", log: &log}},
			{Name: "current", When: "os_major > 6", Action: &fakeAction{id: "current", log: &log}},
		},
	}

	eval := &mapEvaluator{results: map[string]bool{
		"os_major <= 6": false,
		"os_major > 6":  true,
	}}

	runner := NewRunner(WithEvaluator(eval))
	report, err := runner.RunRole(t.Context(), nil, "host1", role, nil)
	if err != nil {
		t.Fatalf("RunRole() error = %v", err)
	}

	if len(log) != 1 || log[0] != "current" {
		t.Errorf("executed %v, want only the current task", log)
	}
	if report.Outcomes[0].Status != TaskStatusSkipped {
		t.Errorf("first outcome status = %s, want skipped", report.Outcomes[0].Status)
	}
	if report.Outcomes[1].Status != TaskStatusChanged && report.Outcomes[1].Status != TaskStatusOK {
		t.Errorf("second outcome status = %s, want a terminal success", report.Outcomes[1].Status)
	}
}

func TestRunRoleConditionWithoutEvaluator(t *testing.T) {
	var log []string
	role := &Role{
		Name: "base",
		Tasks: []Task{
			{Name: "gated", When: "os_family == 'redhat'", Action: &fakeAction{id: "gated", log: &log}},
		},
	}

	runner := NewRunner()
	_, err := runner.RunRole(t.Context(), nil, "host1", role, nil)
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(log) != 0 {
		t.Error("task must not run when its condition cannot be evaluated")
	}
}

func TestRunRoleHandlersFireOnceInNotificationOrder(t *testing.T) {
	var log []string
	role := &Role{
		Name: "cacheproxy",
		Tasks: []Task{
			{Name: "config", Action: &fakeAction{id: "config", changed: true, log: &log}, Notify: []string{"restart squid"}},
			{Name: "acl", Action: &fakeAction{id: "acl", changed: true, log: &log}, Notify: []string{"reload firewall", "restart squid"}},
			{Name: "noop", Action: &fakeAction{id: "noop", log: &log}, Notify: []string{"never fired"}},
		},
		Handlers: []Handler{
			// Declaration order differs from notification order on purpose.
			{Name: "never fired", Action: &fakeAction{id: "never", log: &log}},
			{Name: "reload firewall", Action: &fakeAction{id: "firewall", log: &log}},
			{Name: "restart squid", Action: &fakeAction{id: "squid", log: &log}},
		},
	}

	runner := NewRunner()
	report, err := runner.RunRole(t.Context(), nil, "host1", role, nil)
	if err != nil {
		t.Fatalf("RunRole() error = %v", err)
	}

	want := []string{"config", "acl", "noop", "squid", "firewall"}
	if len(log) != len(want) {
		t.Fatalf("executed %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("execution order %v, want %v", log, want)
		}
	}
	if len(report.Handlers) != 2 {
		t.Errorf("handler outcomes = %d, want 2", len(report.Handlers))
	}
}

func TestRunRoleFailFastAbortsTasksAndHandlers(t *testing.T) {
	var log []string
	role := &Role{
		Name: "database",
		Tasks: []Task{
			{Name: "config", Action: &fakeAction{id: "config", changed: true, log: &log}, Notify: []string{"restart mongod"}},
			{Name: "broken", Action: &fakeAction{id: "broken", err: errors.New("boom"), log: &log}},
			{Name: "after", Action: &fakeAction{id: "after", log: &log}},
		},
		Handlers: []Handler{
			{Name: "restart mongod", Action: &fakeAction{id: "restart", log: &log}},
		},
	}

	runner := NewRunner()
	report, err := runner.RunRole(t.Context(), nil, "host1", role, nil)
	if err == nil {
		t.Fatal("expected error from failing task")
	}
	if !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != ErrCodeTaskFailed {
		t.Errorf("error code = %v, want %s", err, ErrCodeTaskFailed)
	}

	if report.Status != RunStatusFailed {
		t.Errorf("status = %s, want failed", report.Status)
	}
	for _, id := range log {
		if id == "after" {
			t.Error("tasks after a failure must not run")
		}
		if id == "restart" {
			t.Error("pending handlers must not fire after a failure")
		}
	}
}

func TestRunRoleUnknownHandler(t *testing.T) {
	var log []string
	role := &Role{
		Name: "base",
		Tasks: []Task{
			{Name: "config", Action: &fakeAction{id: "config", changed: true, log: &log}, Notify: []string{"missing"}},
		},
	}

	runner := NewRunner()
	_, err := runner.RunRole(t.Context(), nil, "host1", role, nil)
	if !IsValidation(err) {
		t.Fatalf("expected validation error for unknown handler, got %v", err)
	}
}

func TestRunRoleHandlerFailure(t *testing.T) {
	var log []string
	role := &Role{
		Name: "cacheproxy",
		Tasks: []Task{
			{Name: "config", Action: &fakeAction{id: "config", changed: true, log: &log}, Notify: []string{"restart squid", "reload firewall"}},
		},
		Handlers: []Handler{
			{Name: "restart squid", Action: &fakeAction{id: "squid", err: errors.New("unit not found"), log: &log}},
			{Name: "reload firewall", Action: &fakeAction{id: "firewall", log: &log}},
		},
	}

	runner := NewRunner()
	report, err := runner.RunRole(t.Context(), nil, "host1", role, nil)
	if err == nil {
		t.Fatal("expected error from failing handler")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != ErrCodeHandlerFailed {
		t.Errorf("expected handler failure code, got %v", err)
	}
	if report.Status != RunStatusFailed {
		t.Errorf("status = %s, want failed", report.Status)
	}
	for _, id := range log {
		if id == "firewall" {
			t.Error("handlers after a handler failure must not fire")
		}
	}
}

func TestOSFamily(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"rhel", "redhat"},
		{"centos", "redhat"},
		{"fedora", "redhat"},
		{"ubuntu", "debian"},
		{"debian", "debian"},
		{"sles", "suse"},
		{"rhel fedora", "redhat"},
		{"arch", "unknown"},
	}

	for _, tt := range tests {
		if got := osFamily(tt.id); got != tt.want {
			t.Errorf("osFamily(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestFlattenFacts(t *testing.T) {
	flat := flattenFacts(
		&OSFacts{Family: "redhat", Version: "6.5", Major: 6, Arch: "x86_64"},
		&SELinuxFacts{Enabled: true, Mode: "enforcing"},
		&RepoFacts{NightlyEnabled: true},
	)

	if flat["os_family"] != "redhat" {
		t.Errorf("os_family = %v, want redhat", flat["os_family"])
	}
	if flat["os_major"] != 6 {
		t.Errorf("os_major = %v, want 6", flat["os_major"])
	}
	if flat["selinux_mode"] != "enforcing" {
		t.Errorf("selinux_mode = %v, want enforcing", flat["selinux_mode"])
	}
	if flat["nightly_enabled"] != true {
		t.Errorf("nightly_enabled = %v, want true", flat["nightly_enabled"])
	}
}

func TestParseSelector(t *testing.T) {
	labels := parseSelector("env=ci, role=cache")
	if len(labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(labels))
	}
	if labels["env"] != "ci" || labels["role"] != "cache" {
		t.Errorf("unexpected labels: %v", labels)
	}
}

func TestMatchesLabels(t *testing.T) {
	hostLabels := map[string]string{"env": "ci", "role": "cache"}

	tests := []struct {
		name     string
		selector map[string]string
		want     bool
	}{
		{"empty selector matches", map[string]string{}, true},
		{"subset matches", map[string]string{"env": "ci"}, true},
		{"full match", map[string]string{"env": "ci", "role": "cache"}, true},
		{"value mismatch", map[string]string{"env": "prod"}, false},
		{"missing key", map[string]string{"tier": "web"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesLabels(hostLabels, tt.selector); got != tt.want {
				t.Errorf("matchesLabels() = %v, want %v", got, tt.want)
			}
		})
	}
}
