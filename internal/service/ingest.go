package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/forge/common/logger"
	"basegraph.app/forge/internal/classifier"
	"basegraph.app/forge/internal/dispatch"
	"basegraph.app/forge/internal/model"
	"basegraph.app/forge/internal/store"
)

// TriggerLabel marks an issue as ready for automated work. Only labeled
// events carrying it enter the pipeline.
const TriggerLabel = "ai-ready"

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectDisabled = errors.New("project is disabled")
)

// IssueEventParams is a provider-neutral view of an issue webhook event.
type IssueEventParams struct {
	Action    string
	RepoOwner string
	RepoName  string
	Issue     model.IssueRef
}

// IngestResult reports what the pipeline did with one event.
type IngestResult struct {
	Task    *model.Task
	Skipped bool
	Reason  string
}

// Enqueuer is the slice of the dispatcher the ingest path needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, req dispatch.EnqueueRequest) model.Task
}

type IngestService interface {
	HandleIssueEvent(ctx context.Context, params IssueEventParams) (*IngestResult, error)
}

type ingestService struct {
	projects   store.ProjectStore
	classifier *classifier.Classifier
	dispatcher Enqueuer
}

func NewIngestService(projects store.ProjectStore, cls *classifier.Classifier, dispatcher Enqueuer) IngestService {
	return &ingestService{
		projects:   projects,
		classifier: cls,
		dispatcher: dispatcher,
	}
}

// HandleIssueEvent turns a qualifying issue event into a queued task.
// Non-qualifying events are skipped, never errors: webhook providers retry
// error responses and these events will not become actionable later.
func (s *ingestService) HandleIssueEvent(ctx context.Context, params IssueEventParams) (*IngestResult, error) {
	sc := logger.StartSpan(ctx, "ingest.issue_event")
	defer sc.End()
	ctx = sc.Context()

	if params.RepoOwner == "" || params.RepoName == "" {
		return nil, fmt.Errorf("repository owner and name are required")
	}

	if params.Action != "labeled" {
		return skip("action is not labeled"), nil
	}
	if !hasLabel(params.Issue.Labels, TriggerLabel) {
		return skip("trigger label not present"), nil
	}

	project, err := s.projects.FindByRepository(ctx, params.RepoOwner, params.RepoName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("fetching project: %w", err)
	}
	if !project.IsEnabled {
		return nil, ErrProjectDisabled
	}

	classification := s.classifier.Classify(params.Issue.Title, params.Issue.Body, nil)
	priority := classifier.PriorityFromLabels(params.Issue.Labels)

	task := s.dispatcher.Enqueue(ctx, dispatch.EnqueueRequest{
		Category:       classification.Category,
		Priority:       priority,
		Specialization: classification.Specialization,
		ProjectID:      project.ID,
		Payload: model.TaskPayload{
			Issue: params.Issue,
			Repo:  project.RepoRef(),
		},
	})

	slog.InfoContext(ctx, "issue event accepted",
		"task_id", task.ID,
		"project_id", project.ID,
		"issue", params.Issue.Number,
		"category", task.Category,
		"priority", task.Priority)

	return &IngestResult{Task: &task}, nil
}

func skip(reason string) *IngestResult {
	return &IngestResult{Skipped: true, Reason: reason}
}

func hasLabel(labels []string, want string) bool {
	for _, label := range labels {
		if strings.EqualFold(label, want) {
			return true
		}
	}
	return false
}
