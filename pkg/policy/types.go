package policy

import (
	"time"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/tasks"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that block the operation.
	SeverityError Severity = "error"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Subject is the role, task, or archive the violation is about.
	Subject string `json:"subject,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed indicates if the operation is allowed. Warnings do not
	// block; error violations do.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// TaskInput is the policy-visible shape of a task or handler.
type TaskInput struct {
	// Name is the task name.
	Name string `json:"name"`

	// Action is the action type: "package", "service", "directory", ...
	Action string `json:"action"`

	// When is the task's condition expression, if any.
	When string `json:"when,omitempty"`

	// Notify lists handlers the task notifies on change.
	Notify []string `json:"notify,omitempty"`

	// Params are the action parameters relevant to policy: unit names,
	// paths, modes, desired states.
	Params map[string]any `json:"params,omitempty"`
}

// RoleInput is the policy-visible shape of a role.
type RoleInput struct {
	// Name is the role name.
	Name string `json:"name"`

	// Tasks run in order.
	Tasks []TaskInput `json:"tasks"`

	// Handlers fire after the tasks when notified.
	Handlers []TaskInput `json:"handlers,omitempty"`
}

// ArchiveInput is the policy-visible shape of a release archive request.
type ArchiveInput struct {
	WorkingDir string `json:"working_dir"`
	DestPath   string `json:"dest_path"`
	Project    string `json:"project"`
	Prefix     string `json:"prefix"`
	GitURL     string `json:"git_url"`
	Treeish    string `json:"treeish"`
}

// Input is the input document for policy evaluation. Exactly one of Role
// and Archive is set.
type Input struct {
	Role    *RoleInput    `json:"role,omitempty"`
	Archive *ArchiveInput `json:"archive,omitempty"`

	// Context provides evaluation context.
	Context *Context `json:"context"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Operation is what is being checked: "apply" or "archive".
	Operation string `json:"operation"`

	// Host is the target host, when known.
	Host string `json:"host,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// NewRoleInput converts a role into its policy-visible form, extracting
// the action parameters policies care about.
func NewRoleInput(role *engine.Role) *RoleInput {
	input := &RoleInput{
		Name:  role.Name,
		Tasks: make([]TaskInput, 0, len(role.Tasks)),
	}

	for _, task := range role.Tasks {
		input.Tasks = append(input.Tasks, TaskInput{
			Name:   task.Name,
			Action: task.Action.Name(),
			When:   task.When,
			Notify: task.Notify,
			Params: actionParams(task.Action),
		})
	}

	for _, handler := range role.Handlers {
		input.Handlers = append(input.Handlers, TaskInput{
			Name:   handler.Name,
			Action: handler.Action.Name(),
			Params: actionParams(handler.Action),
		})
	}

	return input
}

// actionParams extracts the policy-relevant parameters from an action.
func actionParams(action tasks.Action) map[string]any {
	switch a := action.(type) {
	case *tasks.Service:
		return map[string]any{"service": a.Service, "state": a.Action}
	case *tasks.Directory:
		return map[string]any{"path": a.Path, "mode": a.Mode, "recreate": a.Recreate}
	case *tasks.FileWrite:
		return map[string]any{"path": a.Path, "mode": a.Mode, "validate": a.Validate}
	case *tasks.Package:
		return map[string]any{"package": a.Pkg, "state": a.State}
	case *tasks.Symlink:
		return map[string]any{"path": a.Path, "target": a.Target}
	case *tasks.GitClone:
		return map[string]any{"repo": a.Repo, "dest": a.Dest, "depth": a.Depth}
	case *tasks.User:
		return map[string]any{"user": a.User, "home": a.Home, "home_mode": a.HomeMode}
	case *tasks.Command:
		return map[string]any{"cmd": a.Cmd, "sudo": a.Sudo}
	case *tasks.LineInFile:
		return map[string]any{"path": a.Path}
	case *tasks.PipInstall:
		return map[string]any{"package": a.Pkg, "source": a.Source}
	default:
		return nil
	}
}
