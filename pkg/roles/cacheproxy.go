package roles

import (
	"fmt"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/tasks"
)

// CacheProxyVars configures the squid cache proxy role.
type CacheProxyVars struct {
	// CacheDir is the on-disk cache directory.
	CacheDir string `yaml:"cache_dir" validate:"required"`

	// CacheSizeMB is the disk cache budget.
	CacheSizeMB int `yaml:"cache_size_mb" validate:"min=1"`

	// MaxObjectSizeMB caps the size of a single cached object. Package
	// repositories serve large RPMs, so the squid default is far too
	// small.
	MaxObjectSizeMB int `yaml:"max_object_size_mb" validate:"min=1"`

	// Port is the proxy listen port.
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

func defaultCacheProxyVars() *CacheProxyVars {
	return &CacheProxyVars{
		CacheDir:        "/var/spool/squid",
		CacheSizeMB:     10000,
		MaxObjectSizeMB: 1024,
		Port:            3128,
	}
}

// BuildCacheProxy produces the cache proxy role. The configuration file
// has two variants selected by OS major version: the squid 2 syntax for
// major <= 6 and the squid 3 syntax above it. The conditions are
// mutually exclusive, so exactly one variant lands on any host.
func BuildCacheProxy(vars map[string]any) (*engine.Role, error) {
	v := defaultCacheProxyVars()
	if err := decodeVars("cacheproxy", vars, v); err != nil {
		return nil, err
	}

	role := &engine.Role{
		Name: "cacheproxy",
		Handlers: []engine.Handler{
			{
				Name:   "restart squid",
				Action: &tasks.Service{Service: "squid", Action: "restart"},
			},
		},
	}

	role.Tasks = append(role.Tasks,
		engine.Task{
			Name:   "install squid",
			Action: &tasks.Package{Pkg: "squid", State: "present"},
		},
		engine.Task{
			Name: "write squid config (legacy)",
			When: "os_major <= 6",
			Action: &tasks.FileWrite{
				Path:    "/etc/squid/squid.conf",
				Content: squidConfLegacy(v),
				Mode:    "0644",
			},
			Notify: []string{"restart squid"},
		},
		engine.Task{
			Name: "write squid config",
			When: "os_major > 6",
			Action: &tasks.FileWrite{
				Path:    "/etc/squid/squid.conf",
				Content: squidConf(v),
				Mode:    "0644",
			},
			Notify: []string{"restart squid"},
		},
		engine.Task{
			Name: "cache directory",
			Action: &tasks.Directory{
				Path:  v.CacheDir,
				Owner: "squid",
				Group: "squid",
				Mode:  "0750",
			},
		},
		engine.Task{
			Name:   "enable squid",
			Action: &tasks.Service{Service: "squid", Action: "enable"},
		},
		engine.Task{
			Name:   "start squid",
			Action: &tasks.Service{Service: "squid", Action: "start"},
		},
	)

	return role, nil
}

func squidConf(v *CacheProxyVars) string {
	return fmt.Sprintf(`http_port %d
cache_dir aufs %s %d 16 256
maximum_object_size %d MB
cache_mem 256 MB
acl localnet src 10.0.0.0/8 172.16.0.0/12 192.168.0.0/16
http_access allow localnet
http_access allow localhost
http_access deny all
`, v.Port, v.CacheDir, v.CacheSizeMB, v.MaxObjectSizeMB)
}

// squidConfLegacy is the squid 2 variant: no aufs store, object sizes in
// bytes, and the old acl-all spelling still required.
func squidConfLegacy(v *CacheProxyVars) string {
	return fmt.Sprintf(`http_port %d
cache_dir ufs %s %d 16 256
maximum_object_size %d KB
cache_mem 128 MB
acl all src all
acl localnet src 10.0.0.0/8 172.16.0.0/12 192.168.0.0/16
http_access allow localnet
http_access allow localhost
http_access deny all
`, v.Port, v.CacheDir, v.CacheSizeMB, v.MaxObjectSizeMB*1024)
}
