package roles

import (
	"fmt"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/tasks"
)

// DatabaseVars configures the mongodb role.
type DatabaseVars struct {
	// DataDir is the database storage directory.
	DataDir string `yaml:"data_dir" validate:"required"`

	// SmallFiles trades file preallocation for disk space. Development
	// hosts want it on; the default data files eat gigabytes up front.
	SmallFiles bool `yaml:"small_files"`
}

func defaultDatabaseVars() *DatabaseVars {
	return &DatabaseVars{
		DataDir:    "/var/lib/mongodb",
		SmallFiles: true,
	}
}

// BuildDatabase produces the document database role: server package,
// storage directory owned by the service account, config, and the
// service running and persisting across reboots.
func BuildDatabase(vars map[string]any) (*engine.Role, error) {
	v := defaultDatabaseVars()
	if err := decodeVars("database", vars, v); err != nil {
		return nil, err
	}

	role := &engine.Role{
		Name: "database",
		Handlers: []engine.Handler{
			{
				Name:   "restart mongod",
				Action: &tasks.Service{Service: "mongod", Action: "restart"},
			},
		},
	}

	role.Tasks = append(role.Tasks,
		engine.Task{
			Name:   "install mongodb-server",
			Action: &tasks.Package{Pkg: "mongodb-server", State: "present"},
		},
		engine.Task{
			Name: "data directory",
			Action: &tasks.Directory{
				Path:  v.DataDir,
				Owner: "mongodb",
				Group: "mongodb",
				Mode:  "0755",
			},
		},
		engine.Task{
			Name: "write mongod config",
			Action: &tasks.FileWrite{
				Path:    "/etc/mongod.conf",
				Content: mongodConf(v),
				Mode:    "0644",
			},
			Notify: []string{"restart mongod"},
		},
		engine.Task{
			Name:   "enable mongod",
			Action: &tasks.Service{Service: "mongod", Action: "enable"},
		},
		engine.Task{
			Name:   "start mongod",
			Action: &tasks.Service{Service: "mongod", Action: "start"},
		},
	)

	return role, nil
}

func mongodConf(v *DatabaseVars) string {
	return fmt.Sprintf(`bind_ip = 127.0.0.1
dbpath = %s
smallfiles = %t
journal = true
`, v.DataDir, v.SmallFiles)
}
