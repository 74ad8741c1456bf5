package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation. Sources are retained
// so schemas can be recompiled into other CUE contexts.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	sources map[string]string
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
		sources: make(map[string]string),
	}

	sr.registerBuiltInSchemas()

	return sr
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("inventory", builtinInventorySchema)
	sr.RegisterSchema("playbook", builtinPlaybookSchema)
	sr.RegisterSchema("archive", builtinArchiveSchema)
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	sr.sources[name] = schema
	return nil
}

// GetSchema retrieves a compiled schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Source retrieves a schema's CUE source by name.
func (sr *SchemaRegistry) Source(name string) (string, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	src, ok := sr.sources[name]
	return src, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions

const builtinInventorySchema = `
// Inventory schema
hosts: [...#Host]

#Host: {
	// Name is the inventory name for this host
	name: string & =~"^[a-zA-Z0-9._-]+$"

	// Address is the SSH address, or "local"
	address: string

	// Port is the SSH port
	port?: int & >0 & <65536

	// User is the SSH login user
	user: string

	// KeyPath is the SSH private key path
	key_path?: string

	// Labels select hosts in plays
	labels?: {[string]: string}

	// Roles this host carries
	roles?: [...string]
}
`

const builtinPlaybookSchema = `
// Playbook schema
name: string & =~"^[a-zA-Z0-9._-]+$"
plays: [...#Play]

#Play: {
	// Name identifies the play
	name: string

	// Hosts is a label selector, "all", or a host name
	hosts: string

	// Roles run in order
	roles: [...#RoleInvocation]
}

#RoleInvocation: {
	// Role is the role name
	role: "bootstrap" | "base" | "cacheproxy" | "database" | "coverage" | "publish"

	// Vars are role variables
	vars?: {...}
}
`

const builtinArchiveSchema = `
// Release archive request schema

// WorkingDir is the scratch directory for the clone
working_dir: string

// DestPath is the archive destination, must end in .tar.gz
dest_path: string & =~"\\.tar\\.gz$"

// Project is the project name
project: string & =~"^[a-zA-Z0-9._-]+$"

// Prefix is the leading path inside the archive
prefix: string

// GitURL is the repository clone URL
git_url: string

// Treeish is the branch, tag, or commit to archive
treeish: string
`

// ValidateInventory validates an inventory against the inventory schema.
func (sr *SchemaRegistry) ValidateInventory(ctx context.Context, inventory *InventoryConfig) error {
	return sr.ValidateAgainstSchema(ctx, "inventory", inventory)
}

// ValidatePlaybook validates a playbook against the playbook schema.
func (sr *SchemaRegistry) ValidatePlaybook(ctx context.Context, playbook *PlaybookConfig) error {
	return sr.ValidateAgainstSchema(ctx, "playbook", playbook)
}
