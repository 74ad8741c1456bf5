package roles

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/devforge/devforge/pkg/engine"
)

// Builder produces a role's task list from its validated variables.
type Builder func(vars map[string]any) (*engine.Role, error)

// Registry maps role names to builders. All built-in roles register at
// construction; the set is fixed, there is no plugin loading.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry creates a registry with the built-in roles.
func NewRegistry() *Registry {
	r := &Registry{
		builders: make(map[string]Builder),
	}

	r.builders["bootstrap"] = BuildBootstrap
	r.builders["base"] = BuildBase
	r.builders["cacheproxy"] = BuildCacheProxy
	r.builders["database"] = BuildDatabase
	r.builders["coverage"] = BuildCoverage
	r.builders["publish"] = BuildPublish

	return r
}

// Build constructs the named role from caller variables. Unknown role
// names and invalid variables are validation errors.
func (r *Registry) Build(name string, vars map[string]any) (*engine.Role, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, engine.NewValidationError(
			fmt.Sprintf("unknown role: %s", name), nil).
			WithCode(engine.ErrCodeNotFound)
	}
	return builder(vars)
}

// Names returns the registered role names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var validate = validator.New()

// decodeVars fills a vars struct from the caller's variable map and
// validates it. The struct arrives with its defaults set; only keys
// present in the map overwrite them. Missing required variables and
// out-of-range values fail here, before any task runs.
func decodeVars(roleName string, vars map[string]any, out any) error {
	if vars != nil {
		raw, err := yaml.Marshal(vars)
		if err != nil {
			return engine.NewValidationError(
				fmt.Sprintf("invalid variables for role %s", roleName), err)
		}
		if err := yaml.Unmarshal(raw, out); err != nil {
			return engine.NewValidationError(
				fmt.Sprintf("invalid variables for role %s", roleName), err)
		}
	}

	if err := validate.Struct(out); err != nil {
		return engine.NewValidationError(
			fmt.Sprintf("invalid variables for role %s: %v", roleName, err), err)
	}

	return nil
}
