package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/devforge/devforge/pkg/stores"
	"github.com/devforge/devforge/pkg/tasks"
	"github.com/devforge/devforge/pkg/telemetry"
	"github.com/devforge/devforge/pkg/transports"
)

// Runner applies roles to hosts. Tasks run in declaration order, handlers
// fire after the task list in notification order, and the first failure
// aborts both the remaining tasks and any pending handlers.
type Runner struct {
	store     stores.Store
	telemetry *telemetry.Telemetry
	evaluator ConditionEvaluator
	logger    *telemetry.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStore enables run and task result persistence.
func WithStore(store stores.Store) RunnerOption {
	return func(r *Runner) { r.store = store }
}

// WithTelemetry wires logging, metrics, and tracing.
func WithTelemetry(tel *telemetry.Telemetry) RunnerOption {
	return func(r *Runner) { r.telemetry = tel }
}

// WithEvaluator sets the condition evaluator for task When expressions.
func WithEvaluator(eval ConditionEvaluator) RunnerOption {
	return func(r *Runner) { r.evaluator = eval }
}

// NewRunner creates a runner. A store and evaluator are optional; roles
// without conditions run without an evaluator, and without a store nothing
// is persisted.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.telemetry != nil {
		r.logger = r.telemetry.Logger.NewComponentLogger("runner")
	} else {
		// Default logging config only writes to stderr, so this cannot fail.
		logger, _ := telemetry.NewLogger(telemetry.DefaultConfig().Logging)
		r.logger = logger.NewComponentLogger("runner")
	}
	return r
}

// RunRole applies a role to one host over the given connection. Facts feed
// task conditions. The report carries per-task outcomes; the returned error
// mirrors report.Error for callers that only care about success.
func (r *Runner) RunRole(ctx context.Context, conn transports.Conn, host string, role *Role, facts map[string]any) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.New().String(),
		Host:      host,
		Role:      role.Name,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}

	logger := r.logger.WithRunID(report.RunID).WithHost(host).WithRole(role.Name)
	logger.Infof("applying role with %d tasks", len(role.Tasks))

	var span trace.Span
	if r.telemetry != nil && r.telemetry.Tracer != nil {
		ctx, span = r.telemetry.Tracer.StartRoleSpan(ctx, report.RunID, role.Name)
		defer span.End()
	}
	if r.telemetry != nil && r.telemetry.Metrics != nil {
		r.telemetry.Metrics.RecordRunStarted(role.Name)
	}

	r.persistRunStart(ctx, report)

	// Handler names in the order first notified.
	var pending []string
	notified := make(map[string]bool)

	runErr := func() error {
		for i := range role.Tasks {
			task := &role.Tasks[i]

			if err := ctx.Err(); err != nil {
				report.Status = RunStatusCancelled
				return NewTransientError(fmt.Sprintf("run cancelled before task %q", task.Name), err).
					WithCode(ErrCodeTimeout).WithHost(host).WithTask(task.Name)
			}

			if task.When != "" {
				if r.evaluator == nil {
					return NewValidationError(fmt.Sprintf("task %q has a condition but no evaluator is configured", task.Name), nil).
						WithHost(host).WithTask(task.Name)
				}
				ok, err := r.evaluator.Evaluate(task.When, facts)
				if err != nil {
					return NewValidationError(fmt.Sprintf("condition for task %q failed to evaluate", task.Name), err).
						WithHost(host).WithTask(task.Name)
				}
				if !ok {
					outcome := TaskOutcome{
						Task:   task.Name,
						Action: task.Action.Name(),
						Status: TaskStatusSkipped,
					}
					report.Outcomes = append(report.Outcomes, outcome)
					r.persistOutcome(ctx, report, &outcome)
					logger.WithTask(task.Name).Debug("condition false, task skipped")
					continue
				}
			}

			outcome := r.applyTask(ctx, conn, role.Name, task.Name, task.Action, logger)
			report.Outcomes = append(report.Outcomes, outcome)
			r.persistOutcome(ctx, report, &outcome)

			if outcome.Error != nil {
				return NewPermanentError(fmt.Sprintf("task %q failed", task.Name), outcome.Error).
					WithCode(ErrCodeTaskFailed).WithHost(host).WithTask(task.Name)
			}

			if outcome.Changed {
				for _, name := range task.Notify {
					if role.Handler(name) == nil {
						return NewValidationError(fmt.Sprintf("task %q notifies unknown handler %q", task.Name, name), nil).
							WithHost(host).WithTask(task.Name)
					}
					if !notified[name] {
						notified[name] = true
						pending = append(pending, name)
					}
				}
			}
		}

		for _, name := range pending {
			handler := role.Handler(name)

			if err := ctx.Err(); err != nil {
				report.Status = RunStatusCancelled
				return NewTransientError(fmt.Sprintf("run cancelled before handler %q", name), err).
					WithCode(ErrCodeTimeout).WithHost(host).WithTask(name)
			}

			outcome := r.applyTask(ctx, conn, role.Name, name, handler.Action, logger)
			report.Handlers = append(report.Handlers, outcome)
			r.persistOutcome(ctx, report, &outcome)

			if outcome.Error != nil {
				return NewPermanentError(fmt.Sprintf("handler %q failed", name), outcome.Error).
					WithCode(ErrCodeHandlerFailed).WithHost(host).WithTask(name)
			}
			if r.telemetry != nil && r.telemetry.Metrics != nil {
				r.telemetry.Metrics.RecordHandlerFired(role.Name)
			}
		}

		return nil
	}()

	report.Duration = time.Since(report.StartedAt)
	report.Error = runErr

	switch {
	case runErr == nil:
		report.Status = RunStatusSucceeded
		logger.Infof("role applied in %s, changed=%t", report.Duration.Round(time.Millisecond), report.Changed())
	case report.Status == RunStatusCancelled:
		logger.WithError(runErr).Warn("run cancelled")
	default:
		report.Status = RunStatusFailed
		logger.WithError(runErr).Error("run failed")
	}

	r.persistRunEnd(ctx, report)

	if r.telemetry != nil && r.telemetry.Metrics != nil {
		r.telemetry.Metrics.RecordRunCompleted(string(report.Status), report.Duration)
		if engErr, ok := runErr.(*EngineError); ok {
			r.telemetry.Metrics.RecordError(string(engErr.Class), engErr.Code)
		}
	}
	if span != nil {
		if runErr != nil {
			telemetry.RecordError(span, runErr)
		} else {
			telemetry.RecordSuccess(span)
		}
	}

	return report, runErr
}

// applyTask executes one action and converts its result into an outcome.
func (r *Runner) applyTask(ctx context.Context, conn transports.Conn, roleName, taskName string, action tasks.Action, logger *telemetry.Logger) TaskOutcome {
	outcome := TaskOutcome{
		Task:   taskName,
		Action: action.Name(),
	}

	var span trace.Span
	taskCtx := ctx
	if r.telemetry != nil && r.telemetry.Tracer != nil {
		taskCtx, span = r.telemetry.Tracer.StartTaskSpan(ctx, roleName, taskName, action.Name())
		defer span.End()
	}

	start := time.Now()
	result, err := action.Apply(taskCtx, conn)
	outcome.Duration = time.Since(start)

	if err != nil {
		outcome.Status = TaskStatusFailed
		outcome.Error = err
		logger.WithTask(taskName).WithError(err).Error("task failed")
		if span != nil {
			telemetry.RecordError(span, err)
		}
	} else {
		outcome.Changed = result.Changed
		outcome.Output = result.Output
		if result.Changed {
			outcome.Status = TaskStatusChanged
		} else {
			outcome.Status = TaskStatusOK
		}
		logger.WithTask(taskName).Debugf("task %s (%s)", outcome.Status, result.Action)
		if span != nil {
			telemetry.RecordSuccess(span)
		}
	}

	if r.telemetry != nil && r.telemetry.Metrics != nil {
		r.telemetry.Metrics.RecordTaskExecution(roleName, action.Name(), string(outcome.Status), outcome.Duration)
	}

	return outcome
}

func (r *Runner) persistRunStart(ctx context.Context, report *RunReport) {
	if r.store == nil {
		return
	}

	now := time.Now()
	run := &stores.Run{
		ID:        report.RunID,
		Host:      report.Host,
		Role:      report.Role,
		Status:    stores.RunStatusRunning,
		StartedAt: report.StartedAt,
		Metadata:  "{}",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		r.logger.WithError(err).Warn("failed to persist run start")
	}

	r.appendEvent(ctx, report, stores.EventLevelInfo, "run started", nil)
}

func (r *Runner) persistRunEnd(ctx context.Context, report *RunReport) {
	if r.store == nil {
		return
	}

	var errMsg *string
	level := stores.EventLevelInfo
	message := "run completed"
	if report.Error != nil {
		msg := report.Error.Error()
		errMsg = &msg
		level = stores.EventLevelError
		message = "run failed"
	}

	if err := r.store.UpdateRunStatus(ctx, report.RunID, stores.RunStatus(report.Status), errMsg); err != nil {
		r.logger.WithError(err).Warn("failed to persist run completion")
	}

	r.appendEvent(ctx, report, level, message, nil)
}

func (r *Runner) persistOutcome(ctx context.Context, report *RunReport, outcome *TaskOutcome) {
	if r.store == nil {
		return
	}

	now := time.Now()
	completed := now
	var output, errMsg *string
	if outcome.Output != "" {
		output = &outcome.Output
	}
	if outcome.Error != nil {
		msg := outcome.Error.Error()
		errMsg = &msg
	}

	result := &stores.TaskResult{
		ID:          uuid.New().String(),
		RunID:       report.RunID,
		Role:        report.Role,
		Task:        outcome.Task,
		Action:      outcome.Action,
		Status:      stores.TaskStatus(outcome.Status),
		Changed:     outcome.Changed,
		Output:      output,
		Error:       errMsg,
		StartedAt:   now.Add(-outcome.Duration),
		CompletedAt: &completed,
		DurationMS:  outcome.Duration.Milliseconds(),
		CreatedAt:   now,
	}
	if err := r.store.CreateTaskResult(ctx, result); err != nil {
		r.logger.WithError(err).Warn("failed to persist task result")
	}

	if outcome.Error != nil {
		details, _ := json.Marshal(map[string]string{"error": outcome.Error.Error()})
		detailsStr := string(details)
		r.appendEventTask(ctx, report, outcome.Task, stores.EventLevelError, "task failed", &detailsStr)
	}
}

func (r *Runner) appendEvent(ctx context.Context, report *RunReport, level stores.EventLevel, message string, details *string) {
	r.appendEventTask(ctx, report, "", level, message, details)
}

func (r *Runner) appendEventTask(ctx context.Context, report *RunReport, task string, level stores.EventLevel, message string, details *string) {
	if r.store == nil {
		return
	}

	event := &stores.Event{
		RunID:     &report.RunID,
		Level:     level,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
	if task != "" {
		event.Task = &task
	}
	if err := r.store.AppendEvent(ctx, event); err != nil {
		r.logger.WithError(err).Warn("failed to append event")
	}
}
