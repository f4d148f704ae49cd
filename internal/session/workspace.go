package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"basegraph.app/forge/common"
	"basegraph.app/forge/internal/model"
)

// Workspaces manages per-agent git checkouts under a shared data root.
//
// Workspace paths are deterministic per (agent, repository). Two sessions
// must never write the same path concurrently, so every path carries its own
// mutex; callers hold it for the whole session.
type Workspaces struct {
	root    string
	runner  CommandRunner
	retries int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewWorkspaces(root string, runner CommandRunner, retries int) *Workspaces {
	return &Workspaces{
		root:    root,
		runner:  runner,
		retries: retries,
		locks:   make(map[string]*sync.Mutex),
	}
}

// PathFor computes the deterministic workspace path for an agent/repository
// pair.
func (w *Workspaces) PathFor(agent model.Agent, repo model.RepoRef) (string, error) {
	agentSlug, err := common.Slugify(agent.ID, agent.Name)
	if err != nil {
		return "", fmt.Errorf("agent slug: %w", err)
	}
	ownerSlug, err := common.Slugify(repo.Owner, "repo")
	if err != nil {
		return "", fmt.Errorf("owner slug: %w", err)
	}
	nameSlug, err := common.Slugify(repo.Name, "repo")
	if err != nil {
		return "", fmt.Errorf("repo slug: %w", err)
	}
	return filepath.Join(w.root, agentSlug, ownerSlug, nameSlug), nil
}

// Lock acquires the per-path mutex and returns its unlock func.
func (w *Workspaces) Lock(path string) func() {
	w.mu.Lock()
	lock, ok := w.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[path] = lock
	}
	w.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// BranchName derives a unique task branch from the task ID and current time
// so concurrent sessions on the same repository never collide.
func BranchName(taskID int64, now time.Time) string {
	return fmt.Sprintf("forge/task-%d-%d", taskID, now.Unix())
}

// Prepare brings the workspace to a fresh task branch off the repository's
// default branch: discard local changes, fetch and fast-forward an existing
// checkout, clone otherwise. The caller must hold the workspace lock.
func (w *Workspaces) Prepare(ctx context.Context, path string, repo model.RepoRef, branch string) error {
	defaultBranch := repo.DefaultBranch
	if defaultBranch == "" {
		defaultBranch = "main"
	}

	if isDir(filepath.Join(path, ".git")) {
		// A prior session may have left uncommitted or untracked files
		// behind (tool failures keep the workspace for inspection). They
		// must not bleed into this task's branch or change set.
		if _, err := w.runGit(ctx, path, "reset", "--hard"); err != nil {
			return fmt.Errorf("resetting workspace: %w", err)
		}
		if _, err := w.runGit(ctx, path, "clean", "-fd"); err != nil {
			return fmt.Errorf("cleaning workspace: %w", err)
		}
		if _, err := w.runGitRetry(ctx, path, "fetch", "origin", defaultBranch); err != nil {
			return fmt.Errorf("fetching %s: %w", defaultBranch, err)
		}
		if _, err := w.runGit(ctx, path, "checkout", defaultBranch); err != nil {
			return fmt.Errorf("checking out %s: %w", defaultBranch, err)
		}
		if _, err := w.runGitRetry(ctx, path, "pull", "--ff-only", "origin", defaultBranch); err != nil {
			return fmt.Errorf("fast-forwarding %s: %w", defaultBranch, err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating workspace parent: %w", err)
		}
		if _, err := w.runGitRetry(ctx, "", "clone", "--branch", defaultBranch, repo.CloneURL, path); err != nil {
			return fmt.Errorf("cloning %s: %w", repo.CloneURL, err)
		}
	}

	if _, err := w.runGit(ctx, path, "checkout", "-b", branch); err != nil {
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}

	return nil
}

func (w *Workspaces) runGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	stdout, stderr, err := w.runner.Run(ctx, Command{
		Name: "git",
		Args: args,
		Dir:  dir,
		Env:  []string{"GIT_TERMINAL_PROMPT=0"},
	})
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(stderr)))
	}
	return stdout, nil
}

// runGitRetry retries transient network operations. Retry count is explicit
// configuration; 0 means a single attempt.
func (w *Workspaces) runGitRetry(ctx context.Context, dir string, args ...string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		out, err := w.runGit(ctx, dir, args...)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
