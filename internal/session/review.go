package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/forge/internal/model"
)

// ReviewOpener opens a review request for a task branch.
type ReviewOpener interface {
	Open(ctx context.Context, repo model.RepoRef, sourceBranch, targetBranch, title string) (string, error)
}

// GitLabReviewOpener creates a merge request through the GitLab API.
type GitLabReviewOpener struct {
	client *gitlab.Client
}

func NewGitLabReviewOpener(token, instanceURL string) (*GitLabReviewOpener, error) {
	baseURL := strings.TrimSuffix(instanceURL, "/") + "/api/v4"
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLabReviewOpener{client: client}, nil
}

func (o *GitLabReviewOpener) Open(ctx context.Context, repo model.RepoRef, sourceBranch, targetBranch, title string) (string, error) {
	project := fmt.Sprintf("%s/%s", repo.Owner, repo.Name)

	mr, _, err := o.client.MergeRequests.CreateMergeRequest(project, &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(title),
		SourceBranch: gitlab.Ptr(sourceBranch),
		TargetBranch: gitlab.Ptr(targetBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("creating merge request: %w", err)
	}

	return mr.WebURL, nil
}

// StubReviewOpener constructs a "new merge request" URL without calling any
// API. Used when no review-capable integration is configured.
type StubReviewOpener struct{}

func (StubReviewOpener) Open(_ context.Context, repo model.RepoRef, sourceBranch, targetBranch, _ string) (string, error) {
	base := repo.WebURL
	if base == "" {
		base = fmt.Sprintf("https://gitlab.com/%s/%s", repo.Owner, repo.Name)
	}

	query := url.Values{}
	query.Set("merge_request[source_branch]", sourceBranch)
	if targetBranch != "" {
		query.Set("merge_request[target_branch]", targetBranch)
	}

	return fmt.Sprintf("%s/-/merge_requests/new?%s", strings.TrimSuffix(base, "/"), query.Encode()), nil
}
