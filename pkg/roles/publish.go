package roles

import (
	"fmt"
	"path"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/tasks"
)

// PublishVars configures the static publishing role.
type PublishVars struct {
	// PublishDir is the directory tree the platform publishes metadata
	// into.
	PublishDir string `yaml:"publish_dir" validate:"required"`

	// WebRoot is the web server document root the published tree is
	// linked under.
	WebRoot string `yaml:"web_root" validate:"required"`

	// Owner owns the published tree, normally the web server account.
	Owner string `yaml:"owner" validate:"required"`

	// Subdirs are the content subdirectories to create.
	Subdirs []string `yaml:"subdirs"`
}

func defaultPublishVars() *PublishVars {
	return &PublishVars{
		PublishDir: "/var/lib/devforge/published",
		WebRoot:    "/var/www/pub",
		Owner:      "apache",
		Subdirs:    []string{"http", "https"},
	}
}

// BuildPublish produces the publishing helper role: the published
// metadata directory tree with web server ownership and a static
// symlink from the document root into it.
func BuildPublish(vars map[string]any) (*engine.Role, error) {
	v := defaultPublishVars()
	if err := decodeVars("publish", vars, v); err != nil {
		return nil, err
	}

	role := &engine.Role{Name: "publish"}

	role.Tasks = append(role.Tasks, engine.Task{
		Name: "published metadata root",
		Action: &tasks.Directory{
			Path:  v.PublishDir,
			Owner: v.Owner,
			Group: v.Owner,
			Mode:  "0755",
		},
	})

	for _, sub := range v.Subdirs {
		role.Tasks = append(role.Tasks, engine.Task{
			Name: fmt.Sprintf("published %s directory", sub),
			Action: &tasks.Directory{
				Path:  path.Join(v.PublishDir, sub),
				Owner: v.Owner,
				Group: v.Owner,
				Mode:  "0755",
			},
		})
	}

	role.Tasks = append(role.Tasks, engine.Task{
		Name: "link document root",
		Action: &tasks.Symlink{
			Target: v.PublishDir,
			Path:   v.WebRoot,
		},
	})

	return role, nil
}
