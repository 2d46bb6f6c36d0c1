package db

import (
	"context"
	"fmt"

	"github.com/randalmurphal/duckling/internal/task"
)

// SavePrecommitCheck inserts a new check (id zero) or updates an existing one.
func (d *DB) SavePrecommitCheck(ctx context.Context, c *task.PrecommitCheck) error {
	if c.ID == 0 {
		row := d.queryRow(ctx, `
			INSERT INTO precommit_checks (name, command, paths, order_index)
			VALUES (?, ?, ?, ?)
			RETURNING id
		`, c.Name, c.Command, c.Paths, c.OrderIndex)
		if err := row.Scan(&c.ID); err != nil {
			return fmt.Errorf("create precommit check: %w", err)
		}
		return nil
	}

	res, err := d.exec(ctx, `
		UPDATE precommit_checks SET name = ?, command = ?, paths = ?, order_index = ?
		WHERE id = ?
	`, c.Name, c.Command, c.Paths, c.OrderIndex, c.ID)
	if err != nil {
		return fmt.Errorf("update precommit check: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update precommit check: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("precommit check %d: %w", c.ID, ErrNotFound)
	}
	return nil
}

// ListPrecommitChecks returns all checks in execution order: ascending
// order_index, then ascending id.
func (d *DB) ListPrecommitChecks(ctx context.Context) ([]task.PrecommitCheck, error) {
	rows, err := d.query(ctx, `
		SELECT id, name, command, paths, order_index
		FROM precommit_checks
		ORDER BY order_index ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list precommit checks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var checks []task.PrecommitCheck
	for rows.Next() {
		var c task.PrecommitCheck
		if err := rows.Scan(&c.ID, &c.Name, &c.Command, &c.Paths, &c.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan precommit check: %w", err)
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate precommit checks: %w", err)
	}
	return checks, nil
}

// DeletePrecommitCheck removes a check by id.
func (d *DB) DeletePrecommitCheck(ctx context.Context, id int64) error {
	res, err := d.exec(ctx, `DELETE FROM precommit_checks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete precommit check: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete precommit check: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("precommit check %d: %w", id, ErrNotFound)
	}
	return nil
}
