package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/randalmurphal/duckling/internal/task"
)

// AppendTaskLog adds one append-only log entry for a task. Entries are never
// updated or deleted; per-task ids are strictly increasing.
func (d *DB) AppendTaskLog(ctx context.Context, taskID int64, level task.LogLevel, message string) error {
	if !task.IsValidLogLevel(level) {
		level = task.LogInfo
	}
	now := time.Now().UTC().Truncate(time.Second)

	_, err := d.exec(ctx, `
		INSERT INTO task_logs (task_id, level, message, created_at)
		VALUES (?, ?, ?, ?)
	`, taskID, string(level), message, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append task log: %w", err)
	}
	return nil
}

// TaskLogOpts filters ListTaskLogs.
type TaskLogOpts struct {
	Level   task.LogLevel // only entries at this level when set
	AfterID int64         // only entries with id > AfterID
	Limit   int           // max entries returned (0 = no limit)
	Offset  int
}

// ListTaskLogs returns log entries for a task ordered by ascending id.
func (d *DB) ListTaskLogs(ctx context.Context, taskID int64, opts TaskLogOpts) ([]task.Log, error) {
	query := `SELECT id, task_id, level, message, created_at FROM task_logs WHERE task_id = ?`
	args := []any{taskID}

	if opts.Level != "" {
		query += ` AND level = ?`
		args = append(args, string(opts.Level))
	}
	if opts.AfterID > 0 {
		query += ` AND id > ?`
		args = append(args, opts.AfterID)
	}
	query += ` ORDER BY id ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	rows, err := d.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list task logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []task.Log
	for rows.Next() {
		l, err := scanTaskLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task log: %w", err)
		}
		logs = append(logs, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task logs: %w", err)
	}
	return logs, nil
}

func scanTaskLog(rows *sql.Rows) (*task.Log, error) {
	var l task.Log
	var level, createdAt string

	if err := rows.Scan(&l.ID, &l.TaskID, &level, &l.Message, &createdAt); err != nil {
		return nil, err
	}

	l.Level = task.LogLevel(level)
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	l.CreatedAt = ts
	return &l, nil
}
