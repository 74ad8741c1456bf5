package engine

import (
	"time"

	"github.com/devforge/devforge/pkg/tasks"
)

// Task is a single named step within a role. Tasks run in declaration order.
type Task struct {
	// Name identifies the task in logs and results.
	Name string

	// When is an optional condition expression evaluated against host
	// facts. A false result skips the task without error.
	When string

	// Action performs the actual work.
	Action tasks.Action

	// Notify lists handler names to fire if this task reports a change.
	Notify []string
}

// Handler is a named task that runs after the task list, at most once per
// run, when at least one task notified it.
type Handler struct {
	Name   string
	Action tasks.Action
}

// Role is an ordered list of tasks with handlers.
type Role struct {
	// Name identifies the role.
	Name string

	// Tasks run in order. The first failure aborts the remainder and any
	// pending handlers.
	Tasks []Task

	// Handlers fire after the task list in notification order.
	Handlers []Handler
}

// Handler returns the handler with the given name, or nil.
func (r *Role) Handler(name string) *Handler {
	for i := range r.Handlers {
		if r.Handlers[i].Name == name {
			return &r.Handlers[i]
		}
	}
	return nil
}

// TaskOutcome is the in-memory record of one executed task.
type TaskOutcome struct {
	Task     string
	Action   string
	Status   TaskStatus
	Changed  bool
	Output   string
	Error    error
	Duration time.Duration
}

// RunReport summarizes a role application against one host.
type RunReport struct {
	RunID     string
	Host      string
	Role      string
	Status    RunStatus
	Outcomes  []TaskOutcome
	Handlers  []TaskOutcome
	StartedAt time.Time
	Duration  time.Duration
	Error     error
}

// Changed reports whether any task or handler changed host state.
func (r *RunReport) Changed() bool {
	for _, o := range r.Outcomes {
		if o.Changed {
			return true
		}
	}
	for _, o := range r.Handlers {
		if o.Changed {
			return true
		}
	}
	return false
}

// ConditionEvaluator evaluates a task condition expression against host
// facts. Implementations live outside the engine; the starlark evaluator in
// the config package is the default.
type ConditionEvaluator interface {
	Evaluate(expr string, facts map[string]any) (bool, error)
}
