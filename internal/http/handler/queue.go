package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"basegraph.app/forge/internal/dispatch"
	"basegraph.app/forge/internal/http/dto"
	"basegraph.app/forge/internal/model"
	"basegraph.app/forge/internal/registry"
	"basegraph.app/forge/internal/store"
)

// QueueHandler exposes the dispatcher and the agent registry over HTTP.
type QueueHandler struct {
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	projects   store.ProjectStore
	tasks      store.TaskStore
}

func NewQueueHandler(dispatcher *dispatch.Dispatcher, reg *registry.Registry, projects store.ProjectStore, tasks store.TaskStore) *QueueHandler {
	return &QueueHandler{dispatcher: dispatcher, registry: reg, projects: projects, tasks: tasks}
}

func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req dto.EnqueueTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The request only names a project; the session needs the full
	// repository descriptor to clone from.
	project, err := h.projects.GetByID(c.Request.Context(), req.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetching project"})
		return
	}
	if !project.IsEnabled {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "project is disabled"})
		return
	}

	task := h.dispatcher.Enqueue(c.Request.Context(), dispatch.EnqueueRequest{
		Category:       model.TaskCategory(req.Category),
		Priority:       model.TaskPriority(req.Priority),
		Specialization: model.Specialization(req.Specialization),
		ProjectID:      project.ID,
		Payload: model.TaskPayload{
			Issue: model.IssueRef{
				Number: req.IssueNumber,
				Title:  req.IssueTitle,
				Body:   req.IssueBody,
				Labels: req.IssueLabels,
			},
			Repo: project.RepoRef(),
		},
	})

	c.JSON(http.StatusCreated, dto.ToTaskResponse(task))
}

func (h *QueueHandler) Get(c *gin.Context) {
	taskID, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	task, ok := h.dispatcher.Get(taskID)
	if ok {
		c.JSON(http.StatusOK, dto.ToTaskResponse(task))
		return
	}

	// Tasks from before the last restart only exist in the durable copy.
	stored, err := h.tasks.GetByID(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetching task"})
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskResponse(*stored))
}

func (h *QueueHandler) Cancel(c *gin.Context) {
	taskID, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	if !h.dispatcher.Cancel(c.Request.Context(), taskID) {
		c.JSON(http.StatusConflict, gin.H{"error": "task is not pending"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "task_id": taskID})
}

func (h *QueueHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.dispatcher.Stats())
}

func (h *QueueHandler) Agents(c *gin.Context) {
	agents := h.registry.List()
	resp := make([]dto.AgentResponse, 0, len(agents))
	for _, agent := range agents {
		resp = append(resp, dto.ToAgentResponse(agent))
	}
	c.JSON(http.StatusOK, gin.H{"agents": resp})
}

// SetAgentState force-sets an agent's operational state, e.g. taking an
// agent offline for maintenance. In-flight work on the agent finishes;
// it just stops receiving new assignments.
func (h *QueueHandler) SetAgentState(c *gin.Context) {
	var req dto.AgentStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state := model.AgentState(req.State)
	if !state.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent state"})
		return
	}

	agentID := c.Param("agent_id")
	if err := h.registry.SetState(agentID, state); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}

	agent, _ := h.registry.Get(agentID)
	c.JSON(http.StatusOK, dto.ToAgentResponse(agent))
}
