package model

import "time"

type (
	TaskCategory string
	TaskPriority string
	TaskStatus   string
)

const (
	CategoryGeneration    TaskCategory = "generation"
	CategoryFix           TaskCategory = "fix"
	CategoryReview        TaskCategory = "review"
	CategoryDocumentation TaskCategory = "documentation"
	CategoryTesting       TaskCategory = "testing"
)

const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Rank maps a priority to its dispatch order. Lower dispatches first.
// Unknown priorities rank below low so a malformed label never jumps
// the queue.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

func (c TaskCategory) Valid() bool {
	switch c {
	case CategoryGeneration, CategoryFix, CategoryReview, CategoryDocumentation, CategoryTesting:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is final. A task never leaves a
// terminal status.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IssueRef is the normalized issue descriptor carried on a task payload.
type IssueRef struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
	URL    string   `json:"url,omitempty"`
}

// RepoRef is the repository descriptor carried on a task payload.
type RepoRef struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	ExternalID    int64  `json:"external_id,omitempty"`
	DefaultBranch string `json:"default_branch"`
	CloneURL      string `json:"clone_url"`
	WebURL        string `json:"web_url,omitempty"`
}

// TaskPayload is the opaque work description the dispatcher hands to an
// execution session.
type TaskPayload struct {
	Issue IssueRef `json:"issue"`
	Repo  RepoRef  `json:"repo"`
}

// ExecutionResult is the outcome of one execution session.
type ExecutionResult struct {
	Success          bool     `json:"success"`
	ModifiedFiles    []string `json:"modified_files,omitempty"`
	CreatedFiles     []string `json:"created_files,omitempty"`
	DeletedFiles     []string `json:"deleted_files,omitempty"`
	Branch           string   `json:"branch,omitempty"`
	CommitSHA        string   `json:"commit_sha,omitempty"`
	ReviewRequestURL string   `json:"review_request_url,omitempty"`
	Summary          string   `json:"summary"`
	Error            string   `json:"error,omitempty"`
}

// FilesTouched is the total number of paths the session changed.
func (r *ExecutionResult) FilesTouched() int {
	return len(r.ModifiedFiles) + len(r.CreatedFiles) + len(r.DeletedFiles)
}

// Task is one unit of requested automated work derived from an issue event.
//
// Status moves strictly forward: pending -> in_progress -> completed|failed,
// with pending -> cancelled as the only other edge. The dispatcher owns the
// pending -> in_progress transition; the reporter owns the terminal stamp.
type Task struct {
	ID             int64            `json:"id"`
	Category       TaskCategory     `json:"category"`
	Priority       TaskPriority     `json:"priority"`
	Status         TaskStatus       `json:"status"`
	Specialization Specialization   `json:"specialization"`
	ProjectID      int64            `json:"project_id"`
	AgentID        *string          `json:"agent_id,omitempty"`
	Payload        TaskPayload      `json:"payload"`
	Result         *ExecutionResult `json:"result,omitempty"`
	Error          *string          `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// Clone returns a snapshot safe to hand to observers while the dispatcher
// keeps mutating the original.
func (t *Task) Clone() Task {
	snapshot := *t
	if t.AgentID != nil {
		agentID := *t.AgentID
		snapshot.AgentID = &agentID
	}
	if t.Error != nil {
		errMsg := *t.Error
		snapshot.Error = &errMsg
	}
	if t.Result != nil {
		result := *t.Result
		snapshot.Result = &result
	}
	if t.StartedAt != nil {
		startedAt := *t.StartedAt
		snapshot.StartedAt = &startedAt
	}
	if t.CompletedAt != nil {
		completedAt := *t.CompletedAt
		snapshot.CompletedAt = &completedAt
	}
	return snapshot
}
