package policy

import (
	"time"
)

// BuiltinPolicies returns the policies that ship with the engine. They
// encode the operational rules roles and archive requests must follow.
func BuiltinPolicies() []Policy {
	return []Policy{
		worldWritableStickyPolicy(),
		serviceRestartPairingPolicy(),
		archiveDestPolicy(),
		serviceEnableRunningPolicy(),
	}
}

// worldWritableStickyPolicy requires the sticky bit on world-writable
// directories, so shared scratch directories cannot have their contents
// deleted by other users.
func worldWritableStickyPolicy() Policy {
	return Policy{
		Name:        "world-writable-sticky",
		Description: "World-writable directories must carry the sticky bit",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"filesystem", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package devforge.policies.dirs

import rego.v1

# A mode ending in 777 grants write to everyone; without the sticky bit
# any user can delete any other user's files in it.
deny contains violation if {
	some task in input.role.tasks
	task.action == "directory"
	endswith(task.params.mode, "777")
	not startswith(task.params.mode, "1")
	violation := {
		"message": sprintf("directory %s is world-writable without the sticky bit (mode %s)", [task.params.path, task.params.mode]),
		"severity": "error",
		"subject": task.params.path,
	}
}
`,
	}
}

// serviceRestartPairingPolicy requires that every service a role stops is
// started or restarted again by a later task or a handler. Instrumentation
// roles stop services to swap code under them; leaving them down is an
// outage, not a configuration.
func serviceRestartPairingPolicy() Policy {
	return Policy{
		Name:        "service-restart-pairing",
		Description: "Every service stopped by a role must be started or restarted again",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"services"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package devforge.policies.restart

import rego.v1

stopped contains unit if {
	some task in input.role.tasks
	task.action == "service"
	task.params.state == "stop"
	unit := task.params.service
}

revived contains unit if {
	some task in input.role.tasks
	task.action == "service"
	task.params.state in {"start", "restart"}
	unit := task.params.service
}

revived contains unit if {
	some handler in input.role.handlers
	handler.action == "service"
	handler.params.state in {"start", "restart"}
	unit := handler.params.service
}

deny contains violation if {
	some unit in stopped
	not unit in revived
	violation := {
		"message": sprintf("role %s stops service %s without a matching start or restart", [input.role.name, unit]),
		"severity": "error",
		"subject": unit,
	}
}
`,
	}
}

// archiveDestPolicy constrains release archive requests: gzipped tarball
// destinations and a non-empty prefix so extraction never splats files
// into the current directory.
func archiveDestPolicy() Policy {
	return Policy{
		Name:        "archive-dest",
		Description: "Release archives must be .tar.gz files with a path prefix",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"release"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package devforge.policies.archive

import rego.v1

deny contains violation if {
	input.archive
	not endswith(input.archive.dest_path, ".tar.gz")
	violation := {
		"message": sprintf("archive destination %s must end in .tar.gz", [input.archive.dest_path]),
		"severity": "error",
		"subject": input.archive.dest_path,
	}
}

deny contains violation if {
	input.archive
	input.archive.prefix == ""
	violation := {
		"message": "archive prefix must not be empty",
		"severity": "error",
		"subject": input.archive.dest_path,
	}
}
`,
	}
}

// serviceEnableRunningPolicy warns when a role enables a unit at boot but
// never starts it, since the host then runs a different set of services
// than it will after the next reboot.
func serviceEnableRunningPolicy() Policy {
	return Policy{
		Name:        "service-enable-running",
		Description: "A service enabled at boot should also be running",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"services"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package devforge.policies.enabled

import rego.v1

enabled contains unit if {
	some task in input.role.tasks
	task.action == "service"
	task.params.state == "enable"
	unit := task.params.service
}

running contains unit if {
	some task in input.role.tasks
	task.action == "service"
	task.params.state in {"start", "restart"}
	unit := task.params.service
}

running contains unit if {
	some handler in input.role.handlers
	handler.action == "service"
	handler.params.state in {"start", "restart"}
	unit := handler.params.service
}

deny contains violation if {
	some unit in enabled
	not unit in running
	violation := {
		"message": sprintf("role %s enables service %s at boot but never starts it", [input.role.name, unit]),
		"severity": "warning",
		"subject": unit,
	}
}
`,
	}
}
