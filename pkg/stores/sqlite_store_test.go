package stores

import (
	"context"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tables := []string{"runs", "task_results", "events", "facts", "archives"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	run := &Run{
		ID:        "run-001",
		Host:      "cache01.example.com",
		Role:      "cacheproxy",
		Status:    RunStatusPending,
		StartedAt: now,
		Metadata:  `{"labels":{"env":"test"}}`,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}

	if retrieved.ID != run.ID {
		t.Errorf("expected ID %s, got %s", run.ID, retrieved.ID)
	}
	if retrieved.Host != run.Host {
		t.Errorf("expected Host %s, got %s", run.Host, retrieved.Host)
	}
	if retrieved.Role != run.Role {
		t.Errorf("expected Role %s, got %s", run.Role, retrieved.Role)
	}
	if retrieved.Status != run.Status {
		t.Errorf("expected Status %s, got %s", run.Status, retrieved.Status)
	}

	errMsg := "task squid-config failed"
	if err := store.UpdateRunStatus(ctx, run.ID, RunStatusFailed, &errMsg); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}

	updated, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get updated run: %v", err)
	}

	if updated.Status != RunStatusFailed {
		t.Errorf("expected Status %s, got %s", RunStatusFailed, updated.Status)
	}
	if updated.Error == nil || *updated.Error != errMsg {
		t.Errorf("expected Error %s, got %v", errMsg, updated.Error)
	}
	if updated.CompletedAt == nil {
		t.Error("expected CompletedAt to be set for a terminal status")
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}

	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}

	if _, err := store.GetRun(ctx, run.ID); err == nil {
		t.Error("expected error when getting deleted run")
	}
}

func TestTaskResults(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	run := &Run{
		ID:        "run-002",
		Host:      "db01.example.com",
		Role:      "database",
		Status:    RunStatusRunning,
		StartedAt: now,
		Metadata:  `{}`,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	completed := now.Add(2 * time.Second)
	results := []*TaskResult{
		{
			ID:          "tr-001",
			RunID:       run.ID,
			Role:        "database",
			Task:        "install mongodb server",
			Action:      "package",
			Status:      TaskStatusChanged,
			Changed:     true,
			StartedAt:   now,
			CompletedAt: &completed,
			DurationMS:  2000,
			CreatedAt:   now,
		},
		{
			ID:         "tr-002",
			RunID:      run.ID,
			Role:       "database",
			Task:       "start mongod",
			Action:     "service",
			Status:     TaskStatusOK,
			StartedAt:  now.Add(2 * time.Second),
			DurationMS: 150,
			CreatedAt:  now,
		},
	}

	for _, result := range results {
		if err := store.CreateTaskResult(ctx, result); err != nil {
			t.Fatalf("failed to create task result: %v", err)
		}
	}

	listed, err := store.ListTaskResultsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list task results: %v", err)
	}

	if len(listed) != 2 {
		t.Fatalf("expected 2 task results, got %d", len(listed))
	}
	if listed[0].Task != "install mongodb server" {
		t.Errorf("expected results in execution order, got %s first", listed[0].Task)
	}
	if !listed[0].Changed {
		t.Error("expected first result to report a change")
	}
	if listed[1].Status != TaskStatusOK {
		t.Errorf("expected Status %s, got %s", TaskStatusOK, listed[1].Status)
	}
}

func TestEventOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	run := &Run{
		ID:        "run-003",
		Host:      "cov01.example.com",
		Role:      "coverage",
		Status:    RunStatusRunning,
		StartedAt: now,
		Metadata:  `{}`,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	events := []*Event{
		{
			RunID:     &run.ID,
			Level:     EventLevelInfo,
			Message:   "run started",
			Timestamp: now,
		},
		{
			RunID:     &run.ID,
			Level:     EventLevelWarning,
			Message:   "scratch directory already present",
			Timestamp: now.Add(1 * time.Second),
		},
		{
			RunID:     &run.ID,
			Level:     EventLevelError,
			Message:   "failed to restart instrumented services",
			Timestamp: now.Add(2 * time.Second),
		},
	}

	for _, event := range events {
		if err := store.AppendEvent(ctx, event); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
		if event.ID == 0 {
			t.Error("expected event ID to be set after insert")
		}
	}

	retrieved, err := store.GetEvents(ctx, &run.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}

	if len(retrieved) != 3 {
		t.Errorf("expected 3 events, got %d", len(retrieved))
	}

	errorLevel := EventLevelError
	filtered, err := store.GetEvents(ctx, nil, &errorLevel, 10, 0)
	if err != nil {
		t.Fatalf("failed to get filtered events: %v", err)
	}

	if len(filtered) != 1 {
		t.Errorf("expected 1 error event, got %d", len(filtered))
	}
	if filtered[0].Level != EventLevelError {
		t.Errorf("expected level %s, got %s", EventLevelError, filtered[0].Level)
	}
}

func TestFactOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	fact1 := &Fact{
		ID:        "fact-001",
		Host:      "cache01.example.com",
		Namespace: "os.release",
		Key:       "family",
		Value:     `"redhat"`,
		TTL:       0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.UpsertFact(ctx, fact1); err != nil {
		t.Fatalf("failed to upsert fact: %v", err)
	}

	expiresAt := now.Add(1 * time.Hour)
	fact2 := &Fact{
		ID:        "fact-002",
		Host:      "cache01.example.com",
		Namespace: "security.selinux",
		Key:       "mode",
		Value:     `"enforcing"`,
		TTL:       3600,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.UpsertFact(ctx, fact2); err != nil {
		t.Fatalf("failed to upsert fact with TTL: %v", err)
	}

	expiredAt := now.Add(-1 * time.Hour)
	fact3 := &Fact{
		ID:        "fact-003",
		Host:      "cache01.example.com",
		Namespace: "repo.nightly",
		Key:       "enabled",
		Value:     `true`,
		TTL:       3600,
		ExpiresAt: &expiredAt,
		CreatedAt: now.Add(-2 * time.Hour),
		UpdatedAt: now.Add(-2 * time.Hour),
	}

	if err := store.UpsertFact(ctx, fact3); err != nil {
		t.Fatalf("failed to upsert expired fact: %v", err)
	}

	retrieved, err := store.GetFact(ctx, fact1.Host, fact1.Namespace, fact1.Key)
	if err != nil {
		t.Fatalf("failed to get fact: %v", err)
	}

	if retrieved.Value != fact1.Value {
		t.Errorf("expected Value %s, got %s", fact1.Value, retrieved.Value)
	}

	if _, err := store.GetFact(ctx, fact3.Host, fact3.Namespace, fact3.Key); err == nil {
		t.Error("expected error when getting expired fact")
	}

	host := "cache01.example.com"
	facts, err := store.ListFacts(ctx, &host, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list facts: %v", err)
	}

	if len(facts) != 2 {
		t.Errorf("expected 2 non-expired facts, got %d", len(facts))
		for i, f := range facts {
			t.Logf("fact[%d]: id=%s, expires_at=%v", i, f.ID, f.ExpiresAt)
		}
	}

	// Upserting the same key refreshes value and expiry.
	fact1.Value = `"debian"`
	if err := store.UpsertFact(ctx, fact1); err != nil {
		t.Fatalf("failed to re-upsert fact: %v", err)
	}
	refreshed, err := store.GetFact(ctx, fact1.Host, fact1.Namespace, fact1.Key)
	if err != nil {
		t.Fatalf("failed to get refreshed fact: %v", err)
	}
	if refreshed.Value != `"debian"` {
		t.Errorf("expected refreshed Value, got %s", refreshed.Value)
	}

	deleted, err := store.DeleteExpiredFacts(ctx)
	if err != nil {
		t.Fatalf("failed to delete expired facts: %v", err)
	}

	if deleted != 1 {
		t.Errorf("expected 1 expired fact deleted, got %d", deleted)
	}

	if err := store.DeleteFact(ctx, fact1.ID); err != nil {
		t.Fatalf("failed to delete fact: %v", err)
	}

	if _, err := store.GetFact(ctx, fact1.Host, fact1.Namespace, fact1.Key); err == nil {
		t.Error("expected error when getting deleted fact")
	}
}

func TestArchiveOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	archive := &Archive{
		ID:        "arc-001",
		Project:   "pulp",
		GitURL:    "https://example.com/pulp/pulp.git",
		Treeish:   "v2.4.0",
		DestPath:  "/srv/releases/pulp-2.4.0.tar.gz",
		Prefix:    "pulp-2.4.0",
		Status:    RunStatusRunning,
		CreatedAt: now,
	}

	if err := store.CreateArchive(ctx, archive); err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}

	commit := "8b3f2c1d9a0e4f6b7c8d9e0f1a2b3c4d5e6f7a8b"
	if err := store.UpdateArchiveStatus(ctx, archive.ID, RunStatusSucceeded, &commit, nil); err != nil {
		t.Fatalf("failed to update archive status: %v", err)
	}

	project := "pulp"
	archives, err := store.ListArchives(ctx, &project, 10, 0)
	if err != nil {
		t.Fatalf("failed to list archives: %v", err)
	}

	if len(archives) != 1 {
		t.Fatalf("expected 1 archive, got %d", len(archives))
	}
	if archives[0].Status != RunStatusSucceeded {
		t.Errorf("expected Status %s, got %s", RunStatusSucceeded, archives[0].Status)
	}
	if archives[0].CommitHash == nil || *archives[0].CommitHash != commit {
		t.Errorf("expected CommitHash %s, got %v", commit, archives[0].CommitHash)
	}
	if archives[0].CompletedAt == nil {
		t.Error("expected CompletedAt to be set for a terminal status")
	}

	other := "crane"
	none, err := store.ListArchives(ctx, &other, 10, 0)
	if err != nil {
		t.Fatalf("failed to list archives for other project: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected 0 archives for other project, got %d", len(none))
	}
}

func TestTransactions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	run := &Run{
		ID:        "run-tx-001",
		Host:      "cache01.example.com",
		Role:      "base",
		Status:    RunStatusPending,
		StartedAt: now,
		Metadata:  `{}`,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO runs (id, host, role, status, started_at, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query, run.ID, run.Host, run.Role, run.Status, run.StartedAt, run.Metadata, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert run in transaction: %v", err)
	}

	if err := store.RollbackTx(tx); err != nil {
		t.Fatalf("failed to rollback transaction: %v", err)
	}

	if _, err := store.GetRun(ctx, run.ID); err == nil {
		t.Error("expected error when getting rolled back run")
	}

	tx, err = store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin second transaction: %v", err)
	}

	_, err = tx.ExecContext(ctx, query, run.ID, run.Host, run.Role, run.Status, run.StartedAt, run.Metadata, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert run in second transaction: %v", err)
	}

	if err := store.CommitTx(tx); err != nil {
		t.Fatalf("failed to commit transaction: %v", err)
	}

	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get committed run: %v", err)
	}

	if retrieved.ID != run.ID {
		t.Errorf("expected ID %s, got %s", run.ID, retrieved.ID)
	}
}

func TestCascadeDelete(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	run := &Run{
		ID:        "run-cascade-001",
		Host:      "cache01.example.com",
		Role:      "cacheproxy",
		Status:    RunStatusRunning,
		StartedAt: now,
		Metadata:  `{}`,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	result := &TaskResult{
		ID:        "tr-cascade-001",
		RunID:     run.ID,
		Role:      "cacheproxy",
		Task:      "install squid",
		Action:    "package",
		Status:    TaskStatusOK,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := store.CreateTaskResult(ctx, result); err != nil {
		t.Fatalf("failed to create task result: %v", err)
	}

	event := &Event{
		RunID:     &run.ID,
		Level:     EventLevelInfo,
		Message:   "test event",
		Timestamp: now,
	}
	if err := store.AppendEvent(ctx, event); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}

	results, err := store.ListTaskResultsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list task results: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 task results after cascade delete, got %d", len(results))
	}

	events, err := store.GetEvents(ctx, &run.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events after cascade delete, got %d", len(events))
	}
}
