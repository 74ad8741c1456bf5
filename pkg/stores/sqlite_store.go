package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded migration files.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction.
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction.
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction.
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// CreateRun creates a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, host, role, status, started_at, completed_at, error, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Host,
		run.Role,
		run.Status,
		run.StartedAt,
		run.CompletedAt,
		run.Error,
		run.Metadata,
		run.CreatedAt,
		run.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, host, role, status, started_at, completed_at, error, metadata, created_at, updated_at
		FROM runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Host,
		&run.Role,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.Metadata,
		&run.CreatedAt,
		&run.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// UpdateRunStatus updates the status of a run. Terminal statuses also set
// the completion timestamp.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, error = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	var completedAt *time.Time
	if status == RunStatusSucceeded || status == RunStatusFailed || status == RunStatusCancelled {
		now := time.Now()
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, errMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// ListRuns lists runs with pagination, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, host, role, status, started_at, completed_at, error, metadata, created_at, updated_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID,
			&run.Host,
			&run.Role,
			&run.Status,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
			&run.Metadata,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run by ID. Task results and events cascade.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	query := `DELETE FROM runs WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// CreateTaskResult records the outcome of one task.
func (s *SQLiteStore) CreateTaskResult(ctx context.Context, result *TaskResult) error {
	query := `
		INSERT INTO task_results (
			id, run_id, role, task, action, status, changed,
			output, error, started_at, completed_at, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		result.ID,
		result.RunID,
		result.Role,
		result.Task,
		result.Action,
		result.Status,
		result.Changed,
		result.Output,
		result.Error,
		result.StartedAt,
		result.CompletedAt,
		result.DurationMS,
		result.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create task result: %w", err)
	}

	return nil
}

// ListTaskResultsByRun lists all task results for a run in execution order.
func (s *SQLiteStore) ListTaskResultsByRun(ctx context.Context, runID string) ([]*TaskResult, error) {
	query := `
		SELECT id, run_id, role, task, action, status, changed,
			   output, error, started_at, completed_at, duration_ms, created_at
		FROM task_results
		WHERE run_id = ?
		ORDER BY started_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task results: %w", err)
	}
	defer rows.Close()

	results := []*TaskResult{}
	for rows.Next() {
		result := &TaskResult{}
		err := rows.Scan(
			&result.ID,
			&result.RunID,
			&result.Role,
			&result.Task,
			&result.Action,
			&result.Status,
			&result.Changed,
			&result.Output,
			&result.Error,
			&result.StartedAt,
			&result.CompletedAt,
			&result.DurationMS,
			&result.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task results: %w", err)
	}

	return results, nil
}

// AppendEvent appends a new event to the log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (run_id, task, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.RunID,
		event.Task,
		event.Level,
		event.Message,
		event.Details,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves events with optional filters and pagination.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, run_id, task, level, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR run_id = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID, runID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.Task,
			&event.Level,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// UpsertFact inserts or updates a fact keyed by (host, namespace, key).
func (s *SQLiteStore) UpsertFact(ctx context.Context, fact *Fact) error {
	query := `
		INSERT INTO facts (
			id, host, namespace, key, value, ttl, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(host, namespace, key) DO UPDATE SET
			value = excluded.value,
			ttl = excluded.ttl,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	// SQLite datetime() comparisons need a canonical string format.
	var expiresAtStr *string
	if fact.ExpiresAt != nil {
		formatted := fact.ExpiresAt.UTC().Format("2006-01-02 15:04:05")
		expiresAtStr = &formatted
	}

	_, err := s.db.ExecContext(ctx, query,
		fact.ID,
		fact.Host,
		fact.Namespace,
		fact.Key,
		fact.Value,
		fact.TTL,
		expiresAtStr,
		fact.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		fact.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert fact: %w", err)
	}

	return nil
}

// GetFact retrieves a fact by host, namespace, and key. Expired facts are
// treated as missing.
func (s *SQLiteStore) GetFact(ctx context.Context, host, namespace, key string) (*Fact, error) {
	query := `
		SELECT id, host, namespace, key, value, ttl, expires_at, created_at, updated_at
		FROM facts
		WHERE host = ? AND namespace = ? AND key = ?
		  AND (expires_at IS NULL OR datetime(expires_at) > datetime('now'))
	`

	fact := &Fact{}
	err := s.db.QueryRowContext(ctx, query, host, namespace, key).Scan(
		&fact.ID,
		&fact.Host,
		&fact.Namespace,
		&fact.Key,
		&fact.Value,
		&fact.TTL,
		&fact.ExpiresAt,
		&fact.CreatedAt,
		&fact.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("fact not found or expired: %s/%s/%s", host, namespace, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fact: %w", err)
	}

	return fact, nil
}

// ListFacts lists non-expired facts with optional filters and pagination.
func (s *SQLiteStore) ListFacts(ctx context.Context, host *string, namespace *string, limit, offset int) ([]*Fact, error) {
	query := `
		SELECT id, host, namespace, key, value, ttl, expires_at, created_at, updated_at
		FROM facts
		WHERE (? IS NULL OR host = ?)
		  AND (? IS NULL OR namespace = ?)
		  AND (expires_at IS NULL OR datetime(expires_at) > datetime('now'))
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, host, host, namespace, namespace, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	defer rows.Close()

	facts := []*Fact{}
	for rows.Next() {
		fact := &Fact{}
		err := rows.Scan(
			&fact.ID,
			&fact.Host,
			&fact.Namespace,
			&fact.Key,
			&fact.Value,
			&fact.TTL,
			&fact.ExpiresAt,
			&fact.CreatedAt,
			&fact.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		facts = append(facts, fact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facts: %w", err)
	}

	return facts, nil
}

// DeleteExpiredFacts deletes all expired facts and reports how many.
func (s *SQLiteStore) DeleteExpiredFacts(ctx context.Context) (int64, error) {
	query := `DELETE FROM facts WHERE expires_at IS NOT NULL AND datetime(expires_at) <= datetime('now')`

	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired facts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// DeleteFact deletes a fact by ID.
func (s *SQLiteStore) DeleteFact(ctx context.Context, id string) error {
	query := `DELETE FROM facts WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete fact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("fact not found: %s", id)
	}

	return nil
}

// CreateArchive records a new archive build.
func (s *SQLiteStore) CreateArchive(ctx context.Context, archive *Archive) error {
	query := `
		INSERT INTO archives (
			id, project, git_url, treeish, commit_hash, dest_path, prefix,
			status, error, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		archive.ID,
		archive.Project,
		archive.GitURL,
		archive.Treeish,
		archive.CommitHash,
		archive.DestPath,
		archive.Prefix,
		archive.Status,
		archive.Error,
		archive.CreatedAt,
		archive.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	return nil
}

// UpdateArchiveStatus updates an archive build outcome. Terminal statuses
// also set the completion timestamp.
func (s *SQLiteStore) UpdateArchiveStatus(ctx context.Context, id string, status RunStatus, commitHash *string, errMsg *string) error {
	query := `
		UPDATE archives
		SET status = ?, commit_hash = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	var completedAt *time.Time
	if status == RunStatusSucceeded || status == RunStatusFailed {
		now := time.Now()
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, commitHash, errMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update archive status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("archive not found: %s", id)
	}

	return nil
}

// ListArchives lists archive builds with an optional project filter.
func (s *SQLiteStore) ListArchives(ctx context.Context, project *string, limit, offset int) ([]*Archive, error) {
	query := `
		SELECT id, project, git_url, treeish, commit_hash, dest_path, prefix,
			   status, error, created_at, completed_at
		FROM archives
		WHERE (? IS NULL OR project = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, project, project, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	defer rows.Close()

	archives := []*Archive{}
	for rows.Next() {
		archive := &Archive{}
		err := rows.Scan(
			&archive.ID,
			&archive.Project,
			&archive.GitURL,
			&archive.Treeish,
			&archive.CommitHash,
			&archive.DestPath,
			&archive.Prefix,
			&archive.Status,
			&archive.Error,
			&archive.CreatedAt,
			&archive.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archive: %w", err)
		}
		archives = append(archives, archive)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archives: %w", err)
	}

	return archives, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
