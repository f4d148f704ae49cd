package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/forge/internal/classifier"
	"basegraph.app/forge/internal/dispatch"
	"basegraph.app/forge/internal/model"
	"basegraph.app/forge/internal/service"
	"basegraph.app/forge/internal/store"
)

type fakeProjectStore struct {
	projects map[string]*model.Project
	err      error
}

func (f *fakeProjectStore) GetByID(_ context.Context, id int64) (*model.Project, error) {
	for _, project := range f.projects {
		if project.ID == id {
			return project, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeProjectStore) FindByRepository(_ context.Context, owner, name string) (*model.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	project, ok := f.projects[owner+"/"+name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return project, nil
}

type fakeEnqueuer struct {
	requests []dispatch.EnqueueRequest
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, req dispatch.EnqueueRequest) model.Task {
	f.requests = append(f.requests, req)
	return model.Task{
		ID:             int64(len(f.requests)),
		Category:       req.Category,
		Priority:       req.Priority,
		Specialization: req.Specialization,
		Status:         model.TaskStatusPending,
		ProjectID:      req.ProjectID,
		Payload:        req.Payload,
	}
}

var _ = Describe("IngestService", func() {
	var (
		projects *fakeProjectStore
		enqueuer *fakeEnqueuer
		ingest   service.IngestService
		params   service.IssueEventParams
	)

	BeforeEach(func() {
		defaultBranch := "develop"
		projects = &fakeProjectStore{
			projects: map[string]*model.Project{
				"acme/widget": {
					ID:            7,
					Name:          "Widget",
					Slug:          "widget",
					RepoOwner:     "acme",
					RepoName:      "widget",
					CloneURL:      "https://gitlab.com/acme/widget.git",
					DefaultBranch: &defaultBranch,
					IsEnabled:     true,
				},
			},
		}
		enqueuer = &fakeEnqueuer{}
		ingest = service.NewIngestService(projects, classifier.New(classifier.DefaultRules()), enqueuer)

		params = service.IssueEventParams{
			Action:    "labeled",
			RepoOwner: "acme",
			RepoName:  "widget",
			Issue: model.IssueRef{
				Number: 42,
				Title:  "Crash when config is empty",
				Body:   "The server panics on startup with an empty config file.",
				Labels: []string{"ai-ready", "priority::high"},
			},
		}
	})

	It("enqueues a classified task for a qualifying event", func() {
		result, err := ingest.HandleIssueEvent(context.Background(), params)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Skipped).To(BeFalse())
		Expect(result.Task).NotTo(BeNil())

		Expect(enqueuer.requests).To(HaveLen(1))
		req := enqueuer.requests[0]
		Expect(req.Category).To(Equal(model.CategoryFix))
		Expect(req.Priority).To(Equal(model.PriorityHigh))
		Expect(req.ProjectID).To(Equal(int64(7)))
		Expect(req.Payload.Issue.Number).To(Equal(42))
		Expect(req.Payload.Repo.DefaultBranch).To(Equal("develop"))
		Expect(req.Payload.Repo.CloneURL).To(Equal("https://gitlab.com/acme/widget.git"))
	})

	It("matches the trigger label case-insensitively", func() {
		params.Issue.Labels = []string{"AI-Ready"}

		result, err := ingest.HandleIssueEvent(context.Background(), params)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Skipped).To(BeFalse())
	})

	It("skips actions other than labeled", func() {
		params.Action = "opened"

		result, err := ingest.HandleIssueEvent(context.Background(), params)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Skipped).To(BeTrue())
		Expect(result.Reason).To(ContainSubstring("not labeled"))
		Expect(enqueuer.requests).To(BeEmpty())
	})

	It("skips events without the trigger label", func() {
		params.Issue.Labels = []string{"bug", "priority::high"}

		result, err := ingest.HandleIssueEvent(context.Background(), params)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Skipped).To(BeTrue())
		Expect(enqueuer.requests).To(BeEmpty())
	})

	It("rejects events for unknown repositories", func() {
		params.RepoOwner = "nobody"

		_, err := ingest.HandleIssueEvent(context.Background(), params)

		Expect(err).To(MatchError(service.ErrProjectNotFound))
		Expect(enqueuer.requests).To(BeEmpty())
	})

	It("rejects events for disabled projects", func() {
		projects.projects["acme/widget"].IsEnabled = false

		_, err := ingest.HandleIssueEvent(context.Background(), params)

		Expect(err).To(MatchError(service.ErrProjectDisabled))
	})

	It("surfaces store failures", func() {
		projects.err = errors.New("connection refused")

		_, err := ingest.HandleIssueEvent(context.Background(), params)

		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, service.ErrProjectNotFound)).To(BeFalse())
	})

	It("defaults to medium priority without a priority label", func() {
		params.Issue.Labels = []string{"ai-ready"}

		_, err := ingest.HandleIssueEvent(context.Background(), params)

		Expect(err).NotTo(HaveOccurred())
		Expect(enqueuer.requests[0].Priority).To(Equal(model.PriorityMedium))
	})
})
