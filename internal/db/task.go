package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/duckling/internal/task"
)

// taskColumns is the column list shared by every task SELECT.
const taskColumns = `id, title, description, summary, status, coding_tool,
	repository_path, current_stage, branch_name, pr_number, pr_url,
	created_at, updated_at, completed_at`

// CreateTask inserts a new task and fills in the store-assigned id and
// timestamps. Status defaults to pending when unset.
func (d *DB) CreateTask(ctx context.Context, t *task.Task) error {
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	now := time.Now().UTC().Truncate(time.Second)
	t.CreatedAt = now
	t.UpdatedAt = now

	row := d.queryRow(ctx, `
		INSERT INTO tasks (title, description, summary, status, coding_tool,
			repository_path, current_stage, branch_name, pr_number, pr_url,
			created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, t.Title, t.Description, t.Summary, string(t.Status), string(t.CodingTool),
		t.RepositoryPath, nullString(string(t.CurrentStage)), nullString(t.BranchName),
		nullInt(t.PRNumber), nullString(t.PRURL),
		now.Format(time.RFC3339), now.Format(time.RFC3339), nullTime(t.CompletedAt))

	if err := row.Scan(&t.ID); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by id.
func (d *DB) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	row := d.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// UpdateTask writes every mutable column of the task row and refreshes
// updated_at. The caller is expected to have read the row first; the engine
// serializes all task writes.
func (d *DB) UpdateTask(ctx context.Context, t *task.Task) error {
	now := time.Now().UTC().Truncate(time.Second)
	t.UpdatedAt = now

	res, err := d.exec(ctx, `
		UPDATE tasks SET
			title = ?,
			description = ?,
			summary = ?,
			status = ?,
			coding_tool = ?,
			repository_path = ?,
			current_stage = ?,
			branch_name = ?,
			pr_number = ?,
			pr_url = ?,
			updated_at = ?,
			completed_at = ?
		WHERE id = ?
	`, t.Title, t.Description, t.Summary, string(t.Status), string(t.CodingTool),
		t.RepositoryPath, nullString(string(t.CurrentStage)), nullString(t.BranchName),
		nullInt(t.PRNumber), nullString(t.PRURL),
		now.Format(time.RFC3339), nullTime(t.CompletedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", t.ID, ErrNotFound)
	}
	return nil
}

// ListTasksByStatus returns all tasks with the given status in ascending id
// order (FIFO by creation).
func (d *DB) ListTasksByStatus(ctx context.Context, status task.Status) ([]task.Task, error) {
	rows, err := d.query(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY id ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectTasks(rows)
}

// ListTasks returns all tasks, newest first.
func (d *DB) ListTasks(ctx context.Context) ([]task.Task, error) {
	rows, err := d.query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectTasks(rows)
}

// CountTasksByStatus returns a status → count map for the dashboard.
func (d *DB) CountTasksByStatus(ctx context.Context) (map[task.Status]int, error) {
	rows, err := d.query(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[task.Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan task count: %w", err)
		}
		counts[task.Status(s)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var status, tool string
	var stage, branch, prURL sql.NullString
	var prNumber sql.NullInt64
	var createdAt, updatedAt string
	var completedAt sql.NullString

	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Summary, &status, &tool,
		&t.RepositoryPath, &stage, &branch, &prNumber, &prURL,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	t.CodingTool = task.CodingTool(tool)
	t.CurrentStage = task.Stage(stage.String)
	t.BranchName = branch.String
	t.PRNumber = int(prNumber.Int64)
	t.PRURL = prURL.String

	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if completedAt.Valid {
		ts, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		t.CompletedAt = &ts
	}

	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]task.Task, error) {
	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
