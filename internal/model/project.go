package model

import (
	"strings"
	"time"
)

// Project links an issue-tracker repository to the pipeline. Projects are
// administered elsewhere; the pipeline only reads them.
type Project struct {
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	DefaultBranch *string   `json:"default_branch,omitempty"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	RepoOwner     string    `json:"repo_owner"`
	RepoName      string    `json:"repo_name"`
	CloneURL      string    `json:"clone_url"`
	ID            int64     `json:"id"`
	IsEnabled     bool      `json:"is_enabled"`
}

// RepoRef builds the repository descriptor carried on task payloads.
// Every enqueue path must go through this so sessions always see a
// clone URL and a default branch.
func (p *Project) RepoRef() RepoRef {
	defaultBranch := "main"
	if p.DefaultBranch != nil && *p.DefaultBranch != "" {
		defaultBranch = *p.DefaultBranch
	}
	return RepoRef{
		Owner:         p.RepoOwner,
		Name:          p.RepoName,
		ExternalID:    p.ID,
		DefaultBranch: defaultBranch,
		CloneURL:      p.CloneURL,
		WebURL:        strings.TrimSuffix(p.CloneURL, ".git"),
	}
}
