package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/forge/common/id"
	"basegraph.app/forge/common/logger"
	"basegraph.app/forge/internal/events"
	"basegraph.app/forge/internal/model"
	"basegraph.app/forge/internal/registry"
	"basegraph.app/forge/internal/store"
)

// SessionRunner executes one in-progress task. Implementations must not
// panic across the boundary; the dispatcher still guards with recover.
type SessionRunner interface {
	Run(ctx context.Context, task model.Task, agent model.Agent) *model.ExecutionResult
}

// Finalizer stamps a terminal outcome onto a task snapshot, persists it and
// emits the terminal lifecycle event.
type Finalizer interface {
	Finalize(ctx context.Context, task model.Task, result *model.ExecutionResult) model.Task
}

type Config struct {
	// Concurrency is the number of in-flight sessions allowed at once.
	Concurrency int
}

// EnqueueRequest describes new work for the queue.
type EnqueueRequest struct {
	Category       model.TaskCategory
	Priority       model.TaskPriority
	Specialization model.Specialization
	ProjectID      int64
	Payload        model.TaskPayload
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Total               int     `json:"total"`
	Pending             int     `json:"pending"`
	InProgress          int     `json:"in_progress"`
	Completed           int     `json:"completed"`
	Failed              int     `json:"failed"`
	Cancelled           int     `json:"cancelled"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
}

// Dispatcher owns the in-memory task arena and the pending priority queue,
// and releases items to execution as capacity allows.
//
// Queue state is volatile: nothing here survives a restart. The durable copy
// written through the task store is an observer's view, never the source of
// truth for scheduling.
//
// All collaborators are injected; exactly one Run loop may be active per
// dispatcher.
type Dispatcher struct {
	cfg       Config
	registry  *registry.Registry
	runner    SessionRunner
	finalizer Finalizer
	tasks     store.TaskStore
	emitter   events.Emitter

	mu       sync.Mutex
	all      map[int64]*model.Task
	pending  []*model.Task
	inFlight int

	wake      chan struct{}
	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func New(cfg Config, reg *registry.Registry, runner SessionRunner, finalizer Finalizer, tasks store.TaskStore, emitter events.Emitter) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 3
	}
	return &Dispatcher{
		cfg:       cfg,
		registry:  reg,
		runner:    runner,
		finalizer: finalizer,
		tasks:     tasks,
		emitter:   emitter,
		all:       make(map[int64]*model.Task),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run drives the dispatch loop until the context is cancelled or Stop is
// called. In-flight sessions are awaited before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "forge.dispatch"})
	slog.InfoContext(ctx, "dispatcher started", "concurrency", d.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return ctx.Err()
		case <-d.stopCh:
			slog.InfoContext(ctx, "dispatcher stopping")
			d.wg.Wait()
			return nil
		case <-d.wake:
			d.dispatchReady(ctx)
		}
	}
}

// Stop shuts the loop down and blocks until it has exited.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	<-d.stoppedCh
}

// Enqueue assigns an identity and pending status, inserts the task in
// priority order (arrival order within equal priority) and triggers a
// dispatch attempt.
func (d *Dispatcher) Enqueue(ctx context.Context, req EnqueueRequest) model.Task {
	if !req.Priority.Valid() {
		req.Priority = model.PriorityMedium
	}
	if !req.Category.Valid() {
		req.Category = model.CategoryGeneration
	}

	task := &model.Task{
		ID:             id.New(),
		Category:       req.Category,
		Priority:       req.Priority,
		Specialization: req.Specialization,
		Status:         model.TaskStatusPending,
		ProjectID:      req.ProjectID,
		Payload:        req.Payload,
		CreatedAt:      time.Now().UTC(),
	}

	d.mu.Lock()
	d.all[task.ID] = task
	d.insertPending(task)
	snapshot := task.Clone()
	d.mu.Unlock()

	ctx = logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(task.ID)})
	slog.InfoContext(ctx, "task enqueued",
		"category", task.Category,
		"priority", task.Priority,
		"specialization", task.Specialization)

	d.persist(ctx, snapshot, true)
	d.emitter.Emit(ctx, events.Event{Type: events.TypeAdded, Task: snapshot, At: time.Now().UTC()})

	d.signalWake()
	return snapshot
}

// Cancel removes a still-pending task from the queue. It returns false for
// already-dispatched, terminal or unknown ids; in-flight cancellation is not
// supported.
func (d *Dispatcher) Cancel(ctx context.Context, taskID int64) bool {
	d.mu.Lock()

	task, ok := d.all[taskID]
	if !ok || task.Status != model.TaskStatusPending {
		d.mu.Unlock()
		return false
	}

	for i, pending := range d.pending {
		if pending.ID == taskID {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
	task.Status = model.TaskStatusCancelled
	snapshot := task.Clone()
	d.mu.Unlock()

	slog.InfoContext(ctx, "task cancelled", "task_id", taskID)
	d.persist(ctx, snapshot, false)
	d.emitter.Emit(ctx, events.Event{Type: events.TypeCancelled, Task: snapshot, At: time.Now().UTC()})

	return true
}

// Get returns a snapshot of one task.
func (d *Dispatcher) Get(taskID int64) (model.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, ok := d.all[taskID]
	if !ok {
		return model.Task{}, false
	}
	return task.Clone(), true
}

// Stats returns counts by status plus the average processing time over
// completed tasks.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := Stats{Total: len(d.all)}
	var processed time.Duration
	var processedCount int

	for _, task := range d.all {
		switch task.Status {
		case model.TaskStatusPending:
			stats.Pending++
		case model.TaskStatusInProgress:
			stats.InProgress++
		case model.TaskStatusCompleted:
			stats.Completed++
		case model.TaskStatusFailed:
			stats.Failed++
		case model.TaskStatusCancelled:
			stats.Cancelled++
		}

		if task.Status == model.TaskStatusCompleted && task.StartedAt != nil && task.CompletedAt != nil {
			processed += task.CompletedAt.Sub(*task.StartedAt)
			processedCount++
		}
	}

	if processedCount > 0 {
		stats.AvgProcessingTimeMs = float64(processed.Milliseconds()) / float64(processedCount)
	}
	return stats
}

// insertPending keeps the pending list ordered by priority rank, stable
// within equal rank. Caller holds d.mu.
func (d *Dispatcher) insertPending(task *model.Task) {
	rank := task.Priority.Rank()
	idx := len(d.pending)
	for i, pending := range d.pending {
		if pending.Priority.Rank() > rank {
			idx = i
			break
		}
	}
	d.pending = append(d.pending, nil)
	copy(d.pending[idx+1:], d.pending[idx:])
	d.pending[idx] = task
}

// dispatchReady releases pending tasks to execution while slots and agents
// are available. The head item stays put when no agent anywhere has spare
// capacity, preserving strict priority order.
func (d *Dispatcher) dispatchReady(ctx context.Context) {
	for {
		d.mu.Lock()
		if d.inFlight >= d.cfg.Concurrency || len(d.pending) == 0 {
			d.mu.Unlock()
			return
		}

		task := d.pending[0]
		agent, err := d.acquireAgent(task.Specialization)
		if err != nil {
			d.mu.Unlock()
			slog.DebugContext(ctx, "no agent available, task stays pending",
				"task_id", task.ID,
				"specialization", task.Specialization)
			return
		}

		d.pending = d.pending[1:]
		now := time.Now().UTC()
		task.Status = model.TaskStatusInProgress
		task.StartedAt = &now
		task.AgentID = &agent.ID
		d.inFlight++
		snapshot := task.Clone()
		d.mu.Unlock()

		slog.InfoContext(ctx, "task dispatched",
			"task_id", task.ID,
			"agent_id", agent.ID,
			"priority", task.Priority)

		d.persist(ctx, snapshot, false)
		d.emitter.Emit(ctx, events.Event{Type: events.TypeStarted, Task: snapshot, At: now})

		d.wg.Add(1)
		go d.runSession(ctx, task, snapshot, agent)
	}
}

// acquireAgent prefers an exact specialization match and falls back to any
// available agent. Caller holds d.mu; the registry takes its own lock, which
// is safe because the registry never calls back into the dispatcher.
func (d *Dispatcher) acquireAgent(spec model.Specialization) (model.Agent, error) {
	agent, err := d.registry.Acquire(spec)
	if err != nil && spec != "" && errors.Is(err, registry.ErrNoAgentAvailable) {
		agent, err = d.registry.Acquire("")
	}
	return agent, err
}

// runSession executes one task to completion. Failures are recorded on the
// task and never stop the loop; completion always re-triggers dispatch so
// the queue drains eagerly.
func (d *Dispatcher) runSession(ctx context.Context, task *model.Task, snapshot model.Task, agent model.Agent) {
	defer d.wg.Done()

	result := d.runSessionSafe(ctx, snapshot, agent)
	final := d.finalizer.Finalize(ctx, snapshot, result)

	d.mu.Lock()
	task.Status = final.Status
	task.CompletedAt = final.CompletedAt
	task.Result = final.Result
	task.Error = final.Error
	d.inFlight--
	d.mu.Unlock()

	d.registry.Release(agent.ID)
	d.signalWake()
}

func (d *Dispatcher) runSessionSafe(ctx context.Context, task model.Task, agent model.Agent) (result *model.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in session",
				"panic", r,
				"task_id", task.ID,
				"agent_id", agent.ID)
			result = &model.ExecutionResult{
				Success: false,
				Summary: "execution failed",
				Error:   fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	return d.runner.Run(ctx, task, agent)
}

// persist writes the durable copy. Store errors are logged, never fatal: the
// in-memory task remains the true outcome even when the durable copy lags.
func (d *Dispatcher) persist(ctx context.Context, task model.Task, create bool) {
	var err error
	if create {
		err = d.tasks.Create(ctx, &task)
	} else {
		err = d.tasks.Update(ctx, &task)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to persist task", "error", err, "task_id", task.ID)
	}
}

func (d *Dispatcher) signalWake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
