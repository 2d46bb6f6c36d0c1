package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/duckling/internal/task"
)

// SaveRepository inserts or updates a registry row. The path is the identity.
func (d *DB) SaveRepository(ctx context.Context, r *task.Repository) error {
	if r.Provider == "" {
		r.Provider = "github"
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	_, err := d.exec(ctx, `
		INSERT INTO repositories (path, name, owner, provider, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			owner = excluded.owner,
			provider = excluded.provider
	`, r.Path, r.Name, r.Owner, r.Provider, r.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save repository: %w", err)
	}
	return nil
}

// GetRepository retrieves a registry row by absolute path.
func (d *DB) GetRepository(ctx context.Context, path string) (*task.Repository, error) {
	row := d.queryRow(ctx, `
		SELECT path, name, owner, provider, created_at FROM repositories WHERE path = ?
	`, path)

	var r task.Repository
	var createdAt string
	err := row.Scan(&r.Path, &r.Name, &r.Owner, &r.Provider, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}

	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &r, nil
}

// ListRepositories returns all registered repositories ordered by path.
func (d *DB) ListRepositories(ctx context.Context) ([]task.Repository, error) {
	rows, err := d.query(ctx, `
		SELECT path, name, owner, provider, created_at FROM repositories ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var repos []task.Repository
	for rows.Next() {
		var r task.Repository
		var createdAt string
		if err := rows.Scan(&r.Path, &r.Name, &r.Owner, &r.Provider, &createdAt); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		repos = append(repos, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}
	return repos, nil
}

// DeleteRepository removes a registry row.
func (d *DB) DeleteRepository(ctx context.Context, path string) error {
	res, err := d.exec(ctx, `DELETE FROM repositories WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository %s: %w", path, ErrNotFound)
	}
	return nil
}
