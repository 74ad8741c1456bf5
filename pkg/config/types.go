package config

import (
	"time"

	"github.com/devforge/devforge/pkg/engine"
)

// HostConfig is one inventory entry.
type HostConfig struct {
	// Name is the inventory name, used as the fact-store key.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Address is the SSH address. "local" runs over the local transport.
	Address string `json:"address" yaml:"address" validate:"required"`

	// Port is the SSH port. Defaults to 22.
	Port int `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`

	// User is the SSH login user.
	User string `json:"user" yaml:"user" validate:"required"`

	// KeyPath is the private key path. Empty falls back to the default
	// key discovery in the SSH transport.
	KeyPath string `json:"key_path,omitempty" yaml:"key_path,omitempty"`

	// Labels select hosts in plays, e.g. "tier=cache".
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// Roles lists the roles this host carries.
	Roles []string `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// InventoryConfig is the parsed inventory file.
type InventoryConfig struct {
	Hosts []HostConfig `json:"hosts" yaml:"hosts" validate:"required,min=1,dive"`
}

// RoleInvocation names a role within a play with its variables.
type RoleInvocation struct {
	// Role is the role name, e.g. "cacheproxy".
	Role string `json:"role" yaml:"role" validate:"required"`

	// Vars are role variables, validated by the role itself.
	Vars map[string]any `json:"vars,omitempty" yaml:"vars,omitempty"`
}

// PlayConfig maps a host selection to an ordered list of roles.
type PlayConfig struct {
	// Name identifies the play in logs.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Hosts is a label selector ("tier=cache"), "all", or a host name.
	Hosts string `json:"hosts" yaml:"hosts" validate:"required"`

	// Roles run in order against every selected host.
	Roles []RoleInvocation `json:"roles" yaml:"roles" validate:"required,min=1,dive"`
}

// PlaybookConfig is the parsed playbook file.
type PlaybookConfig struct {
	Name  string       `json:"name" yaml:"name" validate:"required"`
	Plays []PlayConfig `json:"plays" yaml:"plays" validate:"required,min=1,dive"`
}

// ParsedPlaybook carries a playbook plus parse metadata.
type ParsedPlaybook struct {
	Playbook    PlaybookConfig    `json:"playbook"`
	SourceFiles []string          `json:"source_files"`
	ParsedAt    time.Time         `json:"parsed_at"`
	Errors      []ValidationError `json:"errors,omitempty"`
}

// ValidationError is a parse or validation error with source position.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the config path to the error (e.g. "plays[0].roles").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// ToHosts converts inventory entries into engine hosts.
func (ic *InventoryConfig) ToHosts() []*engine.Host {
	hosts := make([]*engine.Host, len(ic.Hosts))
	for i, hc := range ic.Hosts {
		port := hc.Port
		if port == 0 {
			port = 22
		}
		hosts[i] = &engine.Host{
			Name:    hc.Name,
			Address: hc.Address,
			Port:    port,
			User:    hc.User,
			KeyPath: hc.KeyPath,
			Labels:  hc.Labels,
			Roles:   hc.Roles,
		}
	}
	return hosts
}
