package dto

import "basegraph.app/forge/internal/model"

// EnqueueTaskRequest queues work directly, bypassing webhook ingestion.
type EnqueueTaskRequest struct {
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	Specialization string `json:"specialization"`
	ProjectID      int64  `json:"project_id" binding:"required"`

	IssueNumber int      `json:"issue_number"`
	IssueTitle  string   `json:"issue_title" binding:"required"`
	IssueBody   string   `json:"issue_body"`
	IssueLabels []string `json:"issue_labels"`
}

// TaskResponse is the wire view of a task.
type TaskResponse struct {
	ID             int64                  `json:"id"`
	Category       model.TaskCategory     `json:"category"`
	Priority       model.TaskPriority     `json:"priority"`
	Status         model.TaskStatus       `json:"status"`
	Specialization model.Specialization   `json:"specialization,omitempty"`
	ProjectID      int64                  `json:"project_id"`
	AgentID        *string                `json:"agent_id,omitempty"`
	Issue          model.IssueRef         `json:"issue"`
	Repo           model.RepoRef          `json:"repo"`
	Result         *model.ExecutionResult `json:"result,omitempty"`
	Error          *string                `json:"error,omitempty"`
	CreatedAt      string                 `json:"created_at"`
	StartedAt      *string                `json:"started_at,omitempty"`
	CompletedAt    *string                `json:"completed_at,omitempty"`
}

func ToTaskResponse(task model.Task) TaskResponse {
	resp := TaskResponse{
		ID:             task.ID,
		Category:       task.Category,
		Priority:       task.Priority,
		Status:         task.Status,
		Specialization: task.Specialization,
		ProjectID:      task.ProjectID,
		AgentID:        task.AgentID,
		Issue:          task.Payload.Issue,
		Repo:           task.Payload.Repo,
		Result:         task.Result,
		Error:          task.Error,
		CreatedAt:      task.CreatedAt.Format(timeLayout),
	}
	if task.StartedAt != nil {
		started := task.StartedAt.Format(timeLayout)
		resp.StartedAt = &started
	}
	if task.CompletedAt != nil {
		completed := task.CompletedAt.Format(timeLayout)
		resp.CompletedAt = &completed
	}
	return resp
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// AgentStateRequest force-sets an agent's operational state.
type AgentStateRequest struct {
	State string `json:"state" binding:"required"`
}

// AgentResponse is the wire view of a registered agent.
type AgentResponse struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	Specialization model.Specialization `json:"specialization"`
	Capabilities   []string             `json:"capabilities,omitempty"`
	MaxConcurrent  int                  `json:"max_concurrent"`
	Assigned       int                  `json:"assigned"`
	State          model.AgentState     `json:"state"`
}

func ToAgentResponse(agent model.Agent) AgentResponse {
	return AgentResponse{
		ID:             agent.ID,
		Name:           agent.Name,
		Specialization: agent.Specialization,
		Capabilities:   agent.Capabilities,
		MaxConcurrent:  agent.MaxConcurrent,
		Assigned:       agent.Assigned,
		State:          agent.State,
	}
}
