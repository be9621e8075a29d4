// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"database/sql"
	"fmt"
	"time"
)

// TaskType names the kind of background work a Task represents.
type TaskType string

const (
	TaskTagging     TaskType = "TAGGING"
	TaskMultivector TaskType = "MULTIVECTOR"
)

// TaskPriority is a total order for claim: HIGH < MEDIUM < LOW.
type TaskPriority string

const (
	PriorityHigh   TaskPriority = "HIGH"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityLow    TaskPriority = "LOW"
)

// TaskStatus is the lifecycle state of a Task row.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
)

// TaskResult is the terminal outcome of a Task, distinct from Status.
type TaskResult string

const (
	ResultSuccess TaskResult = "SUCCESS"
	ResultFailure TaskResult = "FAILURE"
)

// Task is a unit of background work claimed by the scheduler's polling loops.
type Task struct {
	ID             int64
	TaskName       string
	TaskType       TaskType
	Priority       TaskPriority
	Status         TaskStatus
	Result         sql.NullString
	ExtraData      string // JSON
	TargetFilePath string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartTime      sql.NullTime
	ErrorMessage   sql.NullString
}

// TaskStore manages the tasks table, including the atomic claim
// operation the scheduler's two polling loops rely on.
type TaskStore struct {
	db *sql.DB
}

func newTaskStore(db *sql.DB) (*TaskStore, error) {
	s := &TaskStore{db: db}
	const schema = `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_name TEXT NOT NULL,
		task_type TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'MEDIUM',
		status TEXT NOT NULL DEFAULT 'PENDING',
		result TEXT,
		extra_data TEXT NOT NULL DEFAULT '{}',
		target_file_path TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		start_time DATETIME,
		error_message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks(status, priority, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init tasks schema: %w", err)
	}
	return s, nil
}

var priorityRank = map[TaskPriority]int{
	PriorityHigh:   0,
	PriorityMedium: 1,
	PriorityLow:    2,
}

// Enqueue inserts a new PENDING task.
func (s *TaskStore) Enqueue(name string, taskType TaskType, priority TaskPriority, targetFilePath, extraData string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO tasks (task_name, task_type, priority, status, extra_data, target_file_path)
		VALUES (?, ?, ?, 'PENDING', ?, ?)
	`, name, taskType, priority, extraData, targetFilePath)
	if err != nil {
		return 0, fmt.Errorf("enqueue task: %w", err)
	}
	return res.LastInsertId()
}

// ClaimNextTask implements claim_next_task: atomically selects the
// highest-priority oldest PENDING task (optionally HIGH-only), marks it
// RUNNING, stamps start_time, and returns a detached snapshot, all in
// one transaction. The store's single open connection serializes
// concurrent callers (the HIGH and ALL loops): the second caller waits
// for the connection until the first commits, then finds no matching row.
func (s *TaskStore) ClaimNextTask(highOnly bool) (*Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim_next_task: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT id FROM tasks WHERE status = 'PENDING'`
	args := []interface{}{}
	if highOnly {
		query += ` AND priority = 'HIGH'`
	}
	query += ` ORDER BY CASE priority WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END, created_at LIMIT 1`

	var id int64
	if err := tx.QueryRow(query, args...).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("select next pending task: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(
		`UPDATE tasks SET status = 'RUNNING', start_time = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	); err != nil {
		return nil, fmt.Errorf("claim task %d: %w", id, err)
	}

	task := &Task{}
	if err := tx.QueryRow(`
		SELECT id, task_name, task_type, priority, status, result, extra_data,
		       target_file_path, created_at, updated_at, start_time, error_message
		FROM tasks WHERE id = ?
	`, id).Scan(
		&task.ID, &task.TaskName, &task.TaskType, &task.Priority, &task.Status, &task.Result,
		&task.ExtraData, &task.TargetFilePath, &task.CreatedAt, &task.UpdatedAt, &task.StartTime, &task.ErrorMessage,
	); err != nil {
		return nil, fmt.Errorf("reload claimed task %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim_next_task: %w", err)
	}
	return task, nil
}

// Complete writes the final COMPLETED/SUCCESS state.
func (s *TaskStore) Complete(id int64) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = 'COMPLETED', result = 'SUCCESS', updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return err
}

// Fail writes the final FAILED/FAILURE state with a message.
func (s *TaskStore) Fail(id int64, message string) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = 'FAILED', result = 'FAILURE', error_message = ?, updated_at = ? WHERE id = ?`,
		message, time.Now().UTC(), id,
	)
	return err
}

// Defer reverts a claimed (RUNNING) task back to PENDING without
// touching result or error_message. This is the explicit write the
// scheduler issues on errs.ModelUnavailable: ClaimNextTask already
// transitioned the row to RUNNING, so backing off requires undoing
// that transition rather than leaving the row alone.
func (s *TaskStore) Defer(id int64) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = 'PENDING', start_time = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return err
}

// ByID fetches a single task.
func (s *TaskStore) ByID(id int64) (*Task, error) {
	task := &Task{}
	err := s.db.QueryRow(`
		SELECT id, task_name, task_type, priority, status, result, extra_data,
		       target_file_path, created_at, updated_at, start_time, error_message
		FROM tasks WHERE id = ?
	`, id).Scan(
		&task.ID, &task.TaskName, &task.TaskType, &task.Priority, &task.Status, &task.Result,
		&task.ExtraData, &task.TargetFilePath, &task.CreatedAt, &task.UpdatedAt, &task.StartTime, &task.ErrorMessage,
	)
	if err != nil {
		return nil, fmt.Errorf("task by id %d: %w", id, err)
	}
	return task, nil
}

// sweepStaleRunning resets every RUNNING task back to PENDING. Called
// once at startup, before the scheduler's loops begin, since a prior
// process crash can strand a task mid-execution with no other signal
// that it needs retrying.
func (s *TaskStore) sweepStaleRunning() error {
	_, err := s.db.Exec(`UPDATE tasks SET status = 'PENDING', start_time = NULL WHERE status = 'RUNNING'`)
	return err
}
