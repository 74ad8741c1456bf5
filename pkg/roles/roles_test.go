package roles

import (
	"strings"
	"testing"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/tasks"
)

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()

	want := []string{"base", "bootstrap", "cacheproxy", "coverage", "database", "publish"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRegistryUnknownRole(t *testing.T) {
	r := NewRegistry()

	_, err := r.Build("mystery", nil)
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
	if !engine.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestBuildBootstrapDefaults(t *testing.T) {
	role, err := BuildBootstrap(nil)
	if err != nil {
		t.Fatalf("BuildBootstrap() error = %v", err)
	}

	if len(role.Tasks) != 3 {
		t.Fatalf("got %d tasks, want 3 default packages", len(role.Tasks))
	}
	for _, task := range role.Tasks {
		if task.Action.Name() != "package" {
			t.Errorf("task %s action = %s, want package", task.Name, task.Action.Name())
		}
	}
}

func TestBuildBootstrapCertPackage(t *testing.T) {
	role, err := BuildBootstrap(map[string]any{
		"packages":     []string{"python"},
		"cert_url":     "https://cdn.example.com/certs/client-cert-1.0.rpm",
		"cert_creates": "/etc/pki/consumer/ca.pem",
	})
	if err != nil {
		t.Fatalf("BuildBootstrap() error = %v", err)
	}

	last := role.Tasks[len(role.Tasks)-1]
	cmd, ok := last.Action.(*tasks.Command)
	if !ok {
		t.Fatalf("last task action = %T, want *tasks.Command", last.Action)
	}
	if !strings.Contains(cmd.Cmd, "client-cert-1.0.rpm") || cmd.Creates == "" {
		t.Errorf("unexpected cert command: %+v", cmd)
	}
}

func TestBuildBaseInvalidInstallStrategy(t *testing.T) {
	// Anything outside the two documented values must fail fast, never
	// fall back to a default.
	for _, strategy := range []string{"", "rpm", "Packages", "both"} {
		_, err := BuildBase(map[string]any{
			"dev_user":         "dev",
			"install_strategy": strategy,
		})
		if err == nil {
			t.Errorf("install_strategy %q should be rejected", strategy)
			continue
		}
		if !engine.IsValidation(err) {
			t.Errorf("install_strategy %q: expected validation error, got %v", strategy, err)
		}
	}
}

func TestBuildBaseRequiresDevUser(t *testing.T) {
	_, err := BuildBase(map[string]any{"install_strategy": "packages"})
	if err == nil {
		t.Fatal("missing dev_user should be rejected")
	}
	if !engine.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestBuildBase(t *testing.T) {
	role, err := BuildBase(map[string]any{
		"dev_user":         "dev",
		"install_strategy": "source",
		"subscription_org": "devforge",
		"activation_key":   "dev-env",
		"repositories":     []string{"server-extras"},
		"motd":             "development host\n",
	})
	if err != nil {
		t.Fatalf("BuildBase() error = %v", err)
	}

	byName := make(map[string]engine.Task)
	for _, task := range role.Tasks {
		byName[task.Name] = task
	}

	reg, ok := byName["register subscription"]
	if !ok {
		t.Fatal("registration task missing")
	}
	if !strings.Contains(reg.When, "redhat") {
		t.Errorf("registration must be gated on os family, got %q", reg.When)
	}

	user, ok := byName["create account dev"]
	if !ok {
		t.Fatal("account task missing")
	}
	if u := user.Action.(*tasks.User); u.HomeMode != "0755" {
		t.Errorf("home mode = %s, want 0755", u.HomeMode)
	}

	sudo, ok := byName["grant passwordless sudo"]
	if !ok {
		t.Fatal("sudoers task missing")
	}
	if l := sudo.Action.(*tasks.LineInFile); l.Validate != "visudo -cf %s" {
		t.Errorf("sudoers edit must be validated with visudo, got %q", l.Validate)
	}

	if _, ok := byName["set message of the day"]; !ok {
		t.Error("motd task missing")
	}
}

func TestRenderAliasesStable(t *testing.T) {
	aliases := map[string]string{"b": "beta", "a": "alpha", "c": "charlie"}

	first := renderAliases(aliases)
	for i := 0; i < 10; i++ {
		if renderAliases(aliases) != first {
			t.Fatal("alias rendering must be deterministic")
		}
	}
	if !strings.HasPrefix(first, "alias a=") {
		t.Errorf("aliases should be sorted, got %q", first)
	}
}

func TestBuildCacheProxyConfigVariants(t *testing.T) {
	role, err := BuildCacheProxy(nil)
	if err != nil {
		t.Fatalf("BuildCacheProxy() error = %v", err)
	}

	var legacy, current *engine.Task
	for i := range role.Tasks {
		switch role.Tasks[i].Name {
		case "write squid config (legacy)":
			legacy = &role.Tasks[i]
		case "write squid config":
			current = &role.Tasks[i]
		}
	}
	if legacy == nil || current == nil {
		t.Fatal("both config variants must be present")
	}

	if legacy.When != "os_major <= 6" || current.When != "os_major > 6" {
		t.Errorf("variant conditions must be mutually exclusive, got %q / %q", legacy.When, current.When)
	}
	if legacy.Action.(*tasks.FileWrite).Path != current.Action.(*tasks.FileWrite).Path {
		t.Error("both variants must target the same config path")
	}

	for _, task := range []*engine.Task{legacy, current} {
		if len(task.Notify) != 1 || role.Handler(task.Notify[0]) == nil {
			t.Errorf("config task %s must notify an existing handler", task.Name)
		}
	}
}

func TestBuildCacheProxyServiceState(t *testing.T) {
	role, err := BuildCacheProxy(map[string]any{"max_object_size_mb": 512})
	if err != nil {
		t.Fatalf("BuildCacheProxy() error = %v", err)
	}

	var enabled, started bool
	for _, task := range role.Tasks {
		if svc, ok := task.Action.(*tasks.Service); ok && svc.Service == "squid" {
			switch svc.Action {
			case "enable":
				enabled = true
			case "start":
				started = true
			}
		}
	}
	if !enabled || !started {
		t.Error("squid must be both enabled and started")
	}
}

func TestBuildDatabase(t *testing.T) {
	role, err := BuildDatabase(map[string]any{"data_dir": "/srv/mongo"})
	if err != nil {
		t.Fatalf("BuildDatabase() error = %v", err)
	}

	var dataDir *tasks.Directory
	for _, task := range role.Tasks {
		if d, ok := task.Action.(*tasks.Directory); ok {
			dataDir = d
		}
	}
	if dataDir == nil || dataDir.Path != "/srv/mongo" || dataDir.Owner != "mongodb" {
		t.Errorf("unexpected data directory task: %+v", dataDir)
	}

	if role.Handler("restart mongod") == nil {
		t.Error("restart handler missing")
	}
}

func TestBuildCoverageRequiresServices(t *testing.T) {
	_, err := BuildCoverage(map[string]any{
		"repo": "https://example.com/instr.git",
	})
	if err == nil {
		t.Fatal("missing services should be rejected")
	}
	if !engine.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestBuildCoverageStopRestartShape(t *testing.T) {
	role, err := BuildCoverage(map[string]any{
		"services": []string{"httpd", "qpidd"},
		"repo":     "https://example.com/instr.git",
	})
	if err != nil {
		t.Fatalf("BuildCoverage() error = %v", err)
	}

	// Stops come first, restarts of the same units come last, the
	// instrumentation swap happens in between.
	stops := map[string]bool{}
	restarts := map[string]bool{}
	var lastStop, firstRestart int
	for i, task := range role.Tasks {
		svc, ok := task.Action.(*tasks.Service)
		if !ok {
			continue
		}
		switch svc.Action {
		case "stop":
			stops[svc.Service] = true
			lastStop = i
		case "restart":
			if len(restarts) == 0 {
				firstRestart = i
			}
			restarts[svc.Service] = true
		}
	}

	for _, unit := range []string{"httpd", "qpidd"} {
		if !stops[unit] || !restarts[unit] {
			t.Errorf("service %s must be stopped and restarted", unit)
		}
	}
	if firstRestart <= lastStop {
		t.Error("restarts must follow all stops")
	}

	var scratch *tasks.Directory
	var clone *tasks.GitClone
	for _, task := range role.Tasks {
		switch a := task.Action.(type) {
		case *tasks.Directory:
			scratch = a
		case *tasks.GitClone:
			clone = a
		}
	}
	if scratch == nil || scratch.Mode != "1777" || !scratch.Recreate {
		t.Errorf("scratch dir must be recreated with sticky world-writable mode: %+v", scratch)
	}
	if clone == nil || clone.Depth != 1 {
		t.Errorf("instrumentation clone must be shallow: %+v", clone)
	}
}

func TestBuildPublish(t *testing.T) {
	role, err := BuildPublish(nil)
	if err != nil {
		t.Fatalf("BuildPublish() error = %v", err)
	}

	last := role.Tasks[len(role.Tasks)-1]
	link, ok := last.Action.(*tasks.Symlink)
	if !ok {
		t.Fatalf("last task = %T, want symlink", last.Action)
	}
	if link.Target != "/var/lib/devforge/published" || link.Path != "/var/www/pub" {
		t.Errorf("unexpected link: %+v", link)
	}

	for _, task := range role.Tasks[:len(role.Tasks)-1] {
		dir := task.Action.(*tasks.Directory)
		if dir.Owner != "apache" {
			t.Errorf("directory %s owner = %s, want apache", dir.Path, dir.Owner)
		}
	}
}
