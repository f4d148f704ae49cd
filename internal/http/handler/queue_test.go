package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/forge/internal/dispatch"
	"basegraph.app/forge/internal/events"
	"basegraph.app/forge/internal/http/handler"
	"basegraph.app/forge/internal/model"
	"basegraph.app/forge/internal/registry"
	"basegraph.app/forge/internal/store"
)

type noopSessionRunner struct{}

func (noopSessionRunner) Run(_ context.Context, _ model.Task, _ model.Agent) *model.ExecutionResult {
	return &model.ExecutionResult{Success: true, Summary: "ok"}
}

type noopFinalizer struct{}

func (noopFinalizer) Finalize(_ context.Context, task model.Task, result *model.ExecutionResult) model.Task {
	task.Status = model.TaskStatusCompleted
	task.Result = result
	return task
}

type stubTaskStore struct {
	stored map[int64]*model.Task
}

func (stubTaskStore) Create(_ context.Context, _ *model.Task) error { return nil }
func (stubTaskStore) Update(_ context.Context, _ *model.Task) error { return nil }
func (s stubTaskStore) GetByID(_ context.Context, id int64) (*model.Task, error) {
	if task, ok := s.stored[id]; ok {
		return task, nil
	}
	return nil, store.ErrNotFound
}

type stubProjectStore struct {
	projects map[int64]*model.Project
}

func (s stubProjectStore) GetByID(_ context.Context, id int64) (*model.Project, error) {
	if project, ok := s.projects[id]; ok {
		return project, nil
	}
	return nil, store.ErrNotFound
}

func (stubProjectStore) FindByRepository(_ context.Context, _, _ string) (*model.Project, error) {
	return nil, store.ErrNotFound
}

var _ = Describe("QueueHandler", func() {
	var (
		dispatcher *dispatch.Dispatcher
		reg        *registry.Registry
		projects   stubProjectStore
		tasks      stubTaskStore
		router     *gin.Engine
	)

	enqueueBody := func(projectID int64) []byte {
		raw, err := json.Marshal(map[string]any{
			"category":    "fix",
			"priority":    "high",
			"project_id":  projectID,
			"issue_title": "Crash when config is empty",
		})
		Expect(err).NotTo(HaveOccurred())
		return raw
	}

	do := func(method, path string, body []byte) *httptest.ResponseRecorder {
		var req *http.Request
		if body != nil {
			req = httptest.NewRequest(method, path, bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		reg = registry.New()
		reg.Register(model.Agent{
			ID:             "backend-1",
			Name:           "backend-1",
			Specialization: model.SpecializationBackend,
			MaxConcurrent:  2,
		})

		develop := "develop"
		projects = stubProjectStore{projects: map[int64]*model.Project{
			7: {
				ID:            7,
				Name:          "Widget",
				RepoOwner:     "acme",
				RepoName:      "widget",
				CloneURL:      "https://gitlab.com/acme/widget.git",
				DefaultBranch: &develop,
				IsEnabled:     true,
			},
			8: {
				ID:        8,
				Name:      "Mothballed",
				RepoOwner: "acme",
				RepoName:  "mothballed",
				CloneURL:  "https://gitlab.com/acme/mothballed.git",
				IsEnabled: false,
			},
		}}
		tasks = stubTaskStore{stored: map[int64]*model.Task{}}

		// The dispatch loop is intentionally not started: queued tasks stay
		// pending, which makes Get/Cancel/Stats deterministic.
		dispatcher = dispatch.New(
			dispatch.Config{Concurrency: 1},
			reg,
			noopSessionRunner{},
			noopFinalizer{},
			tasks,
			events.NewMemoryEmitter(),
		)

		h := handler.NewQueueHandler(dispatcher, reg, projects, tasks)
		router = gin.New()
		router.POST("/tasks", h.Enqueue)
		router.GET("/tasks/:task_id", h.Get)
		router.DELETE("/tasks/:task_id", h.Cancel)
		router.GET("/queue/stats", h.Stats)
		router.GET("/agents", h.Agents)
		router.PATCH("/agents/:agent_id/state", h.SetAgentState)
	})

	It("enqueues a task carrying the project's repository", func() {
		rec := do(http.MethodPost, "/tasks", enqueueBody(7))

		Expect(rec.Code).To(Equal(http.StatusCreated))

		var resp struct {
			ID       int64         `json:"id"`
			Status   string        `json:"status"`
			Priority string        `json:"priority"`
			Repo     model.RepoRef `json:"repo"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.ID).NotTo(BeZero())
		Expect(resp.Status).To(Equal("pending"))
		Expect(resp.Priority).To(Equal("high"))
		Expect(resp.Repo.CloneURL).To(Equal("https://gitlab.com/acme/widget.git"))
		Expect(resp.Repo.Owner).To(Equal("acme"))
		Expect(resp.Repo.DefaultBranch).To(Equal("develop"))

		queued, ok := dispatcher.Get(resp.ID)
		Expect(ok).To(BeTrue())
		Expect(queued.Payload.Repo.CloneURL).To(Equal("https://gitlab.com/acme/widget.git"))
	})

	It("rejects an enqueue request without a title", func() {
		rec := do(http.MethodPost, "/tasks", []byte(`{"project_id":7}`))
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("answers 404 for an unknown project", func() {
		rec := do(http.MethodPost, "/tasks", enqueueBody(999))
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(dispatcher.Stats().Total).To(BeZero())
	})

	It("refuses to enqueue for a disabled project", func() {
		rec := do(http.MethodPost, "/tasks", enqueueBody(8))
		Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		Expect(dispatcher.Stats().Total).To(BeZero())
	})

	It("fetches a queued task by id", func() {
		created := dispatcher.Enqueue(context.Background(), dispatch.EnqueueRequest{
			Category:  model.CategoryFix,
			Priority:  model.PriorityHigh,
			ProjectID: 7,
		})

		rec := do(http.MethodGet, fmt.Sprintf("/tasks/%d", created.ID), nil)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(fmt.Sprintf(`"id":%d`, created.ID)))
	})

	It("falls back to the durable copy for tasks the queue no longer holds", func() {
		tasks.stored[555] = &model.Task{
			ID:        555,
			Category:  model.CategoryFix,
			Priority:  model.PriorityLow,
			Status:    model.TaskStatusCompleted,
			ProjectID: 7,
			CreatedAt: time.Now().UTC(),
		}

		rec := do(http.MethodGet, "/tasks/555", nil)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"status":"completed"`))
	})

	It("answers 404 for unknown tasks and 400 for bad ids", func() {
		Expect(do(http.MethodGet, "/tasks/123456", nil).Code).To(Equal(http.StatusNotFound))
		Expect(do(http.MethodGet, "/tasks/abc", nil).Code).To(Equal(http.StatusBadRequest))
	})

	It("cancels a pending task once", func() {
		created := dispatcher.Enqueue(context.Background(), dispatch.EnqueueRequest{
			Category:  model.CategoryFix,
			Priority:  model.PriorityMedium,
			ProjectID: 7,
		})

		first := do(http.MethodDelete, fmt.Sprintf("/tasks/%d", created.ID), nil)
		Expect(first.Code).To(Equal(http.StatusOK))

		second := do(http.MethodDelete, fmt.Sprintf("/tasks/%d", created.ID), nil)
		Expect(second.Code).To(Equal(http.StatusConflict))
	})

	It("reports queue stats", func() {
		dispatcher.Enqueue(context.Background(), dispatch.EnqueueRequest{
			Category:  model.CategoryFix,
			Priority:  model.PriorityMedium,
			ProjectID: 7,
		})

		rec := do(http.MethodGet, "/queue/stats", nil)

		Expect(rec.Code).To(Equal(http.StatusOK))

		var stats dispatch.Stats
		Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats.Total).To(Equal(1))
		Expect(stats.Pending).To(Equal(1))
	})

	It("lists registered agents", func() {
		rec := do(http.MethodGet, "/agents", nil)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"id":"backend-1"`))
		Expect(rec.Body.String()).To(ContainSubstring(`"state":"idle"`))
	})

	It("takes an agent offline and back", func() {
		rec := do(http.MethodPatch, "/agents/backend-1/state", []byte(`{"state":"offline"}`))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"state":"offline"`))

		agent, ok := reg.Get("backend-1")
		Expect(ok).To(BeTrue())
		Expect(agent.State).To(Equal(model.AgentStateOffline))

		rec = do(http.MethodPatch, "/agents/backend-1/state", []byte(`{"state":"idle"}`))
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("rejects invalid agent states and unknown agents", func() {
		Expect(do(http.MethodPatch, "/agents/backend-1/state", []byte(`{"state":"napping"}`)).Code).
			To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodPatch, "/agents/ghost-1/state", []byte(`{"state":"offline"}`)).Code).
			To(Equal(http.StatusNotFound))
	})
})
