package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/forge/internal/model"
	"github.com/redis/go-redis/v9"
)

type Type string

const (
	TypeAdded     Type = "added"
	TypeStarted   Type = "started"
	TypeCompleted Type = "completed"
	TypeFailed    Type = "failed"
	TypeCancelled Type = "cancelled"
)

// Event carries a task snapshot for observer/dashboard consumption.
type Event struct {
	Type Type       `json:"type"`
	Task model.Task `json:"task"`
	At   time.Time  `json:"at"`
}

// Emitter publishes lifecycle events. Emission is best-effort: a slow or
// unavailable observer channel must never stall the dispatch loop.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

const streamMaxLen = 2000

// RedisEmitter appends events to a capped Redis stream. Dashboards tail the
// stream over SSE; history beyond the cap is dropped.
type RedisEmitter struct {
	client *redis.Client
	stream string
}

func NewRedisEmitter(client *redis.Client, stream string) *RedisEmitter {
	return &RedisEmitter{client: client, stream: stream}
}

func (e *RedisEmitter) Emit(ctx context.Context, event Event) {
	snapshot, err := json.Marshal(event.Task)
	if err != nil {
		slog.ErrorContext(ctx, "failed to serialize task snapshot", "error", err, "task_id", event.Task.ID)
		return
	}

	values := map[string]any{
		"type":     string(event.Type),
		"task_id":  event.Task.ID,
		"status":   string(event.Task.Status),
		"priority": string(event.Task.Priority),
		"task":     string(snapshot),
		"ts":       event.At.UTC().Format(time.RFC3339Nano),
	}
	if event.Task.AgentID != nil {
		values["agent_id"] = *event.Task.AgentID
	}

	if err := e.client.XAdd(ctx, &redis.XAddArgs{
		Stream: e.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		slog.WarnContext(ctx, "failed to emit task event", "error", err, "type", event.Type, "task_id", event.Task.ID)
	}
}

// MemoryEmitter records events in memory for in-process observers and tests.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

func (e *MemoryEmitter) Emit(_ context.Context, event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

// Events returns a copy of everything emitted so far.
func (e *MemoryEmitter) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.events...)
}

// Fanout emits to multiple sinks in order.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, event Event) {
	for _, emitter := range f {
		emitter.Emit(ctx, event)
	}
}
