package reporter

import (
	"context"
	"log/slog"
	"time"

	"basegraph.app/forge/common/logger"
	"basegraph.app/forge/internal/events"
	"basegraph.app/forge/internal/model"
	"basegraph.app/forge/internal/store"
)

// Reporter turns an execution result into the task's terminal record: status,
// completion time, result blob, and the terminal lifecycle event.
type Reporter struct {
	tasks   store.TaskStore
	emitter events.Emitter
}

func New(tasks store.TaskStore, emitter events.Emitter) *Reporter {
	return &Reporter{tasks: tasks, emitter: emitter}
}

// Finalize maps the result onto the task and returns the terminal snapshot.
// Re-finalizing overwrites the previous terminal state, so retried deliveries
// converge on the latest outcome.
//
// Persistence failures are logged and swallowed: the returned snapshot is the
// authoritative outcome whether or not the durable copy was written.
func (r *Reporter) Finalize(ctx context.Context, task model.Task, result *model.ExecutionResult) model.Task {
	now := time.Now().UTC()
	task.CompletedAt = &now
	task.Result = result

	eventType := events.TypeCompleted
	if result.Success {
		task.Status = model.TaskStatusCompleted
		task.Error = nil
	} else {
		task.Status = model.TaskStatusFailed
		task.Error = &result.Error
		eventType = events.TypeFailed
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "forge.reporter",
		TaskID:    logger.Ptr(task.ID),
	})

	if err := r.tasks.Update(ctx, &task); err != nil {
		slog.WarnContext(ctx, "failed to persist task outcome", "error", err)
	}

	if result.Success {
		slog.InfoContext(ctx, "task completed",
			"commit", result.CommitSHA,
			"branch", result.Branch,
			"files", result.FilesTouched())
	} else {
		slog.WarnContext(ctx, "task failed", "error", result.Error)
	}

	r.emitter.Emit(ctx, events.Event{Type: eventType, Task: task, At: now})

	return task
}
