package dto

import (
	"strings"

	"basegraph.app/forge/internal/model"
	"basegraph.app/forge/internal/service"
)

// GitLabIssueEvent is the subset of GitLab's issue webhook payload the
// pipeline consumes.
type GitLabIssueEvent struct {
	ObjectKind string `json:"object_kind"`
	Project    struct {
		PathWithNamespace string `json:"path_with_namespace"`
		WebURL            string `json:"web_url"`
	} `json:"project"`
	ObjectAttributes struct {
		IID         int    `json:"iid"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Action      string `json:"action"`
		URL         string `json:"url"`
	} `json:"object_attributes"`
	Labels []struct {
		Title string `json:"title"`
	} `json:"labels"`
	Changes struct {
		Labels *struct {
			Current []struct {
				Title string `json:"title"`
			} `json:"current"`
		} `json:"labels"`
	} `json:"changes"`
}

// ToIssueEventParams normalizes the GitLab payload into the provider-neutral
// event the ingest service consumes. GitLab encodes label changes as an
// "update" action with a labels diff; that combination maps to "labeled".
func (e *GitLabIssueEvent) ToIssueEventParams() service.IssueEventParams {
	owner, name := splitProjectPath(e.Project.PathWithNamespace)

	labels := make([]string, 0, len(e.Labels))
	for _, label := range e.Labels {
		labels = append(labels, label.Title)
	}

	action := e.ObjectAttributes.Action
	if action == "update" && e.Changes.Labels != nil {
		action = "labeled"
	}

	return service.IssueEventParams{
		Action:    action,
		RepoOwner: owner,
		RepoName:  name,
		Issue: model.IssueRef{
			Number: e.ObjectAttributes.IID,
			Title:  e.ObjectAttributes.Title,
			Body:   e.ObjectAttributes.Description,
			Labels: labels,
			URL:    e.ObjectAttributes.URL,
		},
	}
}

func splitProjectPath(path string) (owner, name string) {
	idx := strings.LastIndex(path, "/")
	if idx == -1 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}
