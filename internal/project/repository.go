package project

import (
	"context"
	"database/sql"
	"time"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

type Repository interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)

	CreateAsset(ctx context.Context, a *Asset) error
	ListAssets(ctx context.Context, projectID string) ([]*Asset, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)
	`, p.ID, p.Name, p.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	var createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM projects ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (r *SQLiteRepository) CreateAsset(ctx context.Context, a *Asset) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (id, project_id, kind, filename, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.ProjectID, string(a.Kind), a.Filename, a.DurationMs, a.CreatedAt.Format(time.RFC3339Nano))
	return err
}

// ListAssets returns a project's assets in upload order.
func (r *SQLiteRepository) ListAssets(ctx context.Context, projectID string) ([]*Asset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, kind, filename, duration_ms, created_at
		FROM assets WHERE project_id = ? ORDER BY rowid ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		var a Asset
		var kind, createdAt string
		if err := rows.Scan(&a.ID, &a.ProjectID, &kind, &a.Filename, &a.DurationMs, &createdAt); err != nil {
			return nil, err
		}
		a.Kind = timeline.TrackKind(kind)
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		assets = append(assets, &a)
	}
	return assets, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
