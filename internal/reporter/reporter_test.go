package reporter_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/forge/internal/events"
	"basegraph.app/forge/internal/model"
	"basegraph.app/forge/internal/reporter"
	"basegraph.app/forge/internal/store"
)

type recordingTaskStore struct {
	mu      sync.Mutex
	updates []model.Task
	err     error
}

func (s *recordingTaskStore) Create(_ context.Context, task *model.Task) error {
	return s.Update(context.Background(), task)
}

func (s *recordingTaskStore) Update(_ context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, *task)
	return nil
}

func (s *recordingTaskStore) GetByID(_ context.Context, _ int64) (*model.Task, error) {
	return nil, store.ErrNotFound
}

var _ = Describe("Reporter", func() {
	var (
		taskStore *recordingTaskStore
		emitter   *events.MemoryEmitter
		rep       *reporter.Reporter
		task      model.Task
	)

	BeforeEach(func() {
		taskStore = &recordingTaskStore{}
		emitter = events.NewMemoryEmitter()
		rep = reporter.New(taskStore, emitter)

		started := time.Now().UTC().Add(-time.Minute)
		agentID := "backend-1"
		task = model.Task{
			ID:        101,
			Category:  model.CategoryFix,
			Priority:  model.PriorityHigh,
			Status:    model.TaskStatusInProgress,
			AgentID:   &agentID,
			StartedAt: &started,
			CreatedAt: started.Add(-time.Minute),
		}
	})

	It("maps a successful result to a completed terminal record", func() {
		result := &model.ExecutionResult{
			Success:       true,
			Branch:        "forge/task-101-1700000000",
			CommitSHA:     "abc123",
			ModifiedFiles: []string{"main.go"},
			Summary:       "1 files changed (0 created, 1 modified, 0 deleted)",
		}

		final := rep.Finalize(context.Background(), task, result)

		Expect(final.Status).To(Equal(model.TaskStatusCompleted))
		Expect(final.Error).To(BeNil())
		Expect(final.CompletedAt).NotTo(BeNil())
		Expect(final.Result).To(Equal(result))

		Expect(taskStore.updates).To(HaveLen(1))
		Expect(taskStore.updates[0].Status).To(Equal(model.TaskStatusCompleted))

		recorded := emitter.Events()
		Expect(recorded).To(HaveLen(1))
		Expect(recorded[0].Type).To(Equal(events.TypeCompleted))
		Expect(recorded[0].Task.ID).To(Equal(int64(101)))
	})

	It("maps a failed result to a failed terminal record carrying the error", func() {
		result := &model.ExecutionResult{
			Success: false,
			Summary: "execution failed",
			Error:   "tool execution failed: exit status 1: syntax error",
		}

		final := rep.Finalize(context.Background(), task, result)

		Expect(final.Status).To(Equal(model.TaskStatusFailed))
		Expect(final.Error).NotTo(BeNil())
		Expect(*final.Error).To(ContainSubstring("syntax error"))
		Expect(final.Result.CommitSHA).To(BeEmpty())
		Expect(final.Result.Branch).To(BeEmpty())

		recorded := emitter.Events()
		Expect(recorded).To(HaveLen(1))
		Expect(recorded[0].Type).To(Equal(events.TypeFailed))
	})

	It("overwrites the previous terminal state when finalized again", func() {
		failed := rep.Finalize(context.Background(), task, &model.ExecutionResult{
			Success: false,
			Summary: "execution failed",
			Error:   "transient",
		})
		Expect(failed.Status).To(Equal(model.TaskStatusFailed))

		final := rep.Finalize(context.Background(), failed, &model.ExecutionResult{
			Success:   true,
			CommitSHA: "def456",
			Summary:   "ok",
		})

		Expect(final.Status).To(Equal(model.TaskStatusCompleted))
		Expect(final.Error).To(BeNil())
		Expect(final.Result.CommitSHA).To(Equal("def456"))
		Expect(final.CompletedAt.After(*failed.CompletedAt) ||
			final.CompletedAt.Equal(*failed.CompletedAt)).To(BeTrue())
	})

	It("returns the outcome even when persistence fails", func() {
		taskStore.err = errors.New("connection refused")

		final := rep.Finalize(context.Background(), task, &model.ExecutionResult{
			Success: true,
			Summary: "ok",
		})

		Expect(final.Status).To(Equal(model.TaskStatusCompleted))
		Expect(emitter.Events()).To(HaveLen(1))
	})
})
