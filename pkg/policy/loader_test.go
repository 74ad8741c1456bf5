package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const sampleRego = `# Scratch directories must live under /tmp.
# Anything else survives reboots and fills disks.
package devforge.policies.scratch

import rego.v1

deny contains violation if {
	some task in input.role.tasks
	task.action == "directory"
	not startswith(task.params.path, "/tmp/")
	violation := {"message": "scratch directory outside /tmp", "severity": "warning"}
}
`

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadFromPathsRego(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "scratch-location.rego", sampleRego)

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(t.Context(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}

	if len(policies) != 1 {
		t.Fatalf("loaded %d policies, want 1", len(policies))
	}

	p := policies[0]
	if p.Name != "scratch-location" {
		t.Errorf("Name = %s, want scratch-location", p.Name)
	}
	if p.Severity != SeverityWarning {
		t.Errorf("Severity = %s, want warning default", p.Severity)
	}
	if !p.Enabled {
		t.Error("loaded policy should be enabled")
	}
	if p.Description == "" {
		t.Error("description should come from the leading comment")
	}
}

func TestLoadFromPathsJSON(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "custom.json", `{
		"name": "custom",
		"severity": "error",
		"enabled": true,
		"rego": "package devforge.policies.custom\n\nimport rego.v1\n"
	}`)

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(t.Context(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}

	if len(policies) != 1 || policies[0].Severity != SeverityError {
		t.Errorf("unexpected policies: %+v", policies)
	}
}

func TestLoadDirectorySkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "good.rego", sampleRego)
	writePolicy(t, dir, "broken.json", `{not json`)
	writePolicy(t, dir, "readme.txt", "not a policy")

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(t.Context(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}

	if len(policies) != 1 || policies[0].Name != "good" {
		t.Errorf("unexpected policies: %+v", policies)
	}
}

func TestLoadFromPathsMissing(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadFromPaths(t.Context(), []string{"/no/such/path"}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestLoaderCache(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "cached.rego", sampleRego)

	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadFromPaths(t.Context(), []string{path}); err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}

	writePolicy(t, dir, "cached.rego", "# rewritten\npackage devforge.policies.cached\n")

	policies, err := loader.LoadFromPaths(t.Context(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if policies[0].Rego != sampleRego {
		t.Error("second load should come from the cache")
	}

	loader.ClearCache()
	policies, err = loader.LoadFromPaths(t.Context(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if policies[0].Rego == sampleRego {
		t.Error("load after ClearCache should see the new content")
	}
}

func TestLeadingComment(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"single line", "# one rule\npackage p\n", "one rule"},
		{"multi line", "# first\n# second\npackage p\n", "first second"},
		{"no comment", "package p\n", ""},
		{"comment after code ignored", "package p\n# trailing\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := leadingComment(tt.content); got != tt.want {
				t.Errorf("leadingComment() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "watched.rego", sampleRego)

	loader := NewLoader(zerolog.Nop())
	defer loader.StopWatching()

	reloaded := make(chan []Policy, 1)
	err := loader.Watch(t.Context(), []string{dir}, func(policies []Policy) error {
		select {
		case reloaded <- policies:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Give the watcher a moment to register before touching the file.
	time.Sleep(100 * time.Millisecond)
	writePolicy(t, dir, "watched.rego", "# changed\npackage devforge.policies.watched\n")

	select {
	case policies := <-reloaded:
		if len(policies) != 1 {
			t.Errorf("reload saw %d policies, want 1", len(policies))
		}
		if policies[0].Rego == sampleRego {
			t.Error("reload should see the new content")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
