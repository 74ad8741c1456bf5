package stores

import (
	"context"
	"database/sql"
	"time"
)

// RunStatus is the persisted status of a provisioning run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// TaskStatus is the persisted status of a single task within a run.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusOK      TaskStatus = "ok"
	TaskStatusChanged TaskStatus = "changed"
	TaskStatusSkipped TaskStatus = "skipped"
	TaskStatusFailed  TaskStatus = "failed"
)

// EventLevel is the severity of an event log entry.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run is a recorded application of one or more roles against a host.
type Run struct {
	ID          string     `json:"id"`
	Host        string     `json:"host"`
	Role        string     `json:"role"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Metadata    string     `json:"metadata"` // JSON blob
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskResult records the outcome of one task within a run.
type TaskResult struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	Role        string     `json:"role"`
	Task        string     `json:"task"`
	Action      string     `json:"action"` // package, service, file, ...
	Status      TaskStatus `json:"status"`
	Changed     bool       `json:"changed"`
	Output      *string    `json:"output,omitempty"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Event is an append-only log entry tied to a run.
type Event struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	Task      *string    `json:"task,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Fact is a cached piece of discovered host state. A zero TTL never expires.
type Fact struct {
	ID        string     `json:"id"`
	Host      string     `json:"host"`
	Namespace string     `json:"namespace"` // e.g. "os.release", "security.selinux"
	Key       string     `json:"key"`
	Value     string     `json:"value"` // JSON blob
	TTL       int        `json:"ttl"`   // seconds
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Archive records a release archive build.
type Archive struct {
	ID          string     `json:"id"`
	Project     string     `json:"project"`
	GitURL      string     `json:"git_url"`
	Treeish     string     `json:"treeish"`
	CommitHash  *string    `json:"commit_hash,omitempty"`
	DestPath    string     `json:"dest_path"`
	Prefix      string     `json:"prefix"`
	Status      RunStatus  `json:"status"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Store is the persistence layer contract.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, err *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// TaskResult operations
	CreateTaskResult(ctx context.Context, result *TaskResult) error
	ListTaskResultsByRun(ctx context.Context, runID string) ([]*TaskResult, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Fact operations
	UpsertFact(ctx context.Context, fact *Fact) error
	GetFact(ctx context.Context, host, namespace, key string) (*Fact, error)
	ListFacts(ctx context.Context, host *string, namespace *string, limit, offset int) ([]*Fact, error)
	DeleteExpiredFacts(ctx context.Context) (int64, error)
	DeleteFact(ctx context.Context, id string) error

	// Archive operations
	CreateArchive(ctx context.Context, archive *Archive) error
	UpdateArchiveStatus(ctx context.Context, id string, status RunStatus, commitHash *string, errMsg *string) error
	ListArchives(ctx context.Context, project *string, limit, offset int) ([]*Archive, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
