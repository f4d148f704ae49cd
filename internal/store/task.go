package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"basegraph.app/forge/internal/model"
)

type taskStore struct {
	pool *pgxpool.Pool
}

func newTaskStore(pool *pgxpool.Pool) TaskStore {
	return &taskStore{pool: pool}
}

func (s *taskStore) Create(ctx context.Context, task *model.Task) error {
	payloadJSON, resultJSON, err := marshalTaskBlobs(task)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tasks (
			id, category, priority, status, specialization,
			project_id, agent_id, payload, result, error,
			created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		task.ID,
		string(task.Category),
		string(task.Priority),
		string(task.Status),
		string(task.Specialization),
		task.ProjectID,
		task.AgentID,
		payloadJSON,
		resultJSON,
		task.Error,
		task.CreatedAt,
		task.StartedAt,
		task.CompletedAt,
	)
	return err
}

func (s *taskStore) Update(ctx context.Context, task *model.Task) error {
	payloadJSON, resultJSON, err := marshalTaskBlobs(task)
	if err != nil {
		return err
	}

	// Upsert keeps updates idempotent and tolerates a missed insert.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tasks (
			id, category, priority, status, specialization,
			project_id, agent_id, payload, result, error,
			created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			agent_id = EXCLUDED.agent_id,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at`,
		task.ID,
		string(task.Category),
		string(task.Priority),
		string(task.Status),
		string(task.Specialization),
		task.ProjectID,
		task.AgentID,
		payloadJSON,
		resultJSON,
		task.Error,
		task.CreatedAt,
		task.StartedAt,
		task.CompletedAt,
	)
	return err
}

func (s *taskStore) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, category, priority, status, specialization,
			project_id, agent_id, payload, result, error,
			created_at, started_at, completed_at
		 FROM tasks WHERE id = $1`, id)

	var task model.Task
	var category, priority, status, specialization string
	var payloadJSON, resultJSON []byte

	err := row.Scan(
		&task.ID,
		&category,
		&priority,
		&status,
		&specialization,
		&task.ProjectID,
		&task.AgentID,
		&payloadJSON,
		&resultJSON,
		&task.Error,
		&task.CreatedAt,
		&task.StartedAt,
		&task.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	task.Category = model.TaskCategory(category)
	task.Priority = model.TaskPriority(priority)
	task.Status = model.TaskStatus(status)
	task.Specialization = model.Specialization(specialization)

	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &task.Payload); err != nil {
			return nil, err
		}
	}
	if len(resultJSON) > 0 {
		var result model.ExecutionResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, err
		}
		task.Result = &result
	}

	return &task, nil
}

func marshalTaskBlobs(task *model.Task) (payloadJSON, resultJSON []byte, err error) {
	payloadJSON, err = json.Marshal(task.Payload)
	if err != nil {
		return nil, nil, err
	}
	if task.Result != nil {
		resultJSON, err = json.Marshal(task.Result)
		if err != nil {
			return nil, nil, err
		}
	}
	return payloadJSON, resultJSON, nil
}
