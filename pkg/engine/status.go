package engine

import (
	"encoding/json"
	"fmt"
)

// RunStatus represents the overall status of a run.
type RunStatus string

const (
	// RunStatusPending indicates the run is created but not yet started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates the run completed successfully.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run aborted on a task failure.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled by the user.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// IsActive returns true if the run is currently active (pending or running).
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// TaskStatus represents the outcome of one task within a run.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not yet been reached.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusOK indicates the host was already in the desired state.
	TaskStatusOK TaskStatus = "ok"

	// TaskStatusChanged indicates the task mutated the host.
	TaskStatusChanged TaskStatus = "changed"

	// TaskStatusSkipped indicates the task condition evaluated to false.
	TaskStatusSkipped TaskStatus = "skipped"

	// TaskStatusFailed indicates the task failed; the run aborts here.
	TaskStatusFailed TaskStatus = "failed"
)

// IsTerminal returns true if the task status represents a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusOK || s == TaskStatusChanged ||
		s == TaskStatusSkipped || s == TaskStatusFailed
}

// Changed returns true if the task mutated the host.
func (s TaskStatus) Changed() bool {
	return s == TaskStatusChanged
}

// Validate checks if the task status is valid.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusPending, TaskStatusOK, TaskStatusChanged,
		TaskStatusSkipped, TaskStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid task status: %s", s)
	}
}

// EventType represents the type of event in the run timeline.
type EventType string

const (
	// EventTypeRunStarted indicates a run has started.
	EventTypeRunStarted EventType = "run_started"

	// EventTypeRunCompleted indicates a run has completed.
	EventTypeRunCompleted EventType = "run_completed"

	// EventTypeRunFailed indicates a run has failed.
	EventTypeRunFailed EventType = "run_failed"

	// EventTypeTaskCompleted indicates a task finished (ok, changed, or skipped).
	EventTypeTaskCompleted EventType = "task_completed"

	// EventTypeTaskFailed indicates a task has failed.
	EventTypeTaskFailed EventType = "task_failed"

	// EventTypeHandlerFired indicates a notified handler was executed.
	EventTypeHandlerFired EventType = "handler_fired"

	// EventTypeFactsCollected indicates facts were gathered from a host.
	EventTypeFactsCollected EventType = "facts_collected"

	// EventTypeError indicates an error occurred.
	EventTypeError EventType = "error"

	// EventTypeWarning indicates a warning was raised.
	EventTypeWarning EventType = "warning"

	// EventTypeInfo indicates an informational event.
	EventTypeInfo EventType = "info"
)

// Severity returns the severity level of the event type.
func (e EventType) Severity() string {
	switch e {
	case EventTypeRunFailed, EventTypeTaskFailed, EventTypeError:
		return "error"
	case EventTypeWarning:
		return "warning"
	default:
		return "info"
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}
