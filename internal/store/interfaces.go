package store

import (
	"context"
	"errors"

	"basegraph.app/forge/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ProjectStore reads registered projects.
type ProjectStore interface {
	GetByID(ctx context.Context, id int64) (*model.Project, error)
	FindByRepository(ctx context.Context, owner, name string) (*model.Project, error)
}

// TaskStore writes the durable copy of queue items. The queue itself is
// in-memory; these writes exist for observers and post-hoc inspection.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	Update(ctx context.Context, task *model.Task) error
	GetByID(ctx context.Context, id int64) (*model.Task, error)
}
