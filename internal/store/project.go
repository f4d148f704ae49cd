package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"basegraph.app/forge/internal/model"
)

type projectStore struct {
	pool *pgxpool.Pool
}

func newProjectStore(pool *pgxpool.Pool) ProjectStore {
	return &projectStore{pool: pool}
}

const projectColumns = `id, name, slug, repo_owner, repo_name, clone_url, default_branch, is_enabled, created_at, updated_at`

func (s *projectStore) GetByID(ctx context.Context, id int64) (*model.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (s *projectStore) FindByRepository(ctx context.Context, owner, name string) (*model.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE lower(repo_owner) = lower($1) AND lower(repo_name) = lower($2)`,
		owner, name)
	return scanProject(row)
}

func scanProject(row pgx.Row) (*model.Project, error) {
	var project model.Project
	err := row.Scan(
		&project.ID,
		&project.Name,
		&project.Slug,
		&project.RepoOwner,
		&project.RepoName,
		&project.CloneURL,
		&project.DefaultBranch,
		&project.IsEnabled,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}
