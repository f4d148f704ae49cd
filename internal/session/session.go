package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"basegraph.app/forge/common/logger"
	"basegraph.app/forge/internal/model"
)

type Config struct {
	// ToolPath is the code-generation executable invoked per task.
	ToolPath string

	// ToolTimeout bounds a single tool invocation.
	ToolTimeout time.Duration

	// AutoReviewRequests opens a review request after a successful commit.
	AutoReviewRequests bool
}

// Runner turns one in-progress task into an ExecutionResult: prepare an
// isolated workspace, invoke the tool, harvest the diff, commit, and
// optionally open a review request.
//
// On failure the workspace is left intact for inspection; only the transient
// context file is guaranteed to be cleaned up.
type Runner struct {
	cfg        Config
	runner     CommandRunner
	workspaces *Workspaces
	review     ReviewOpener
}

func NewRunner(cfg Config, runner CommandRunner, workspaces *Workspaces, review ReviewOpener) *Runner {
	return &Runner{
		cfg:        cfg,
		runner:     runner,
		workspaces: workspaces,
		review:     review,
	}
}

func (r *Runner) Run(ctx context.Context, task model.Task, agent model.Agent) *model.ExecutionResult {
	sc := logger.StartSpan(ctx, "session.run")
	defer sc.End()
	ctx = sc.Context()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "forge.session",
		TaskID:    logger.Ptr(task.ID),
		AgentID:   logger.Ptr(agent.ID),
	})

	// Step 1: workspace preparation.
	wsPath, err := r.workspaces.PathFor(agent, task.Payload.Repo)
	if err != nil {
		return failure(fmt.Errorf("resolving workspace path: %w", err))
	}

	// Serializes sessions targeting the same agent/repository directory.
	unlock := r.workspaces.Lock(wsPath)
	defer unlock()

	branch := BranchName(task.ID, time.Now().UTC())
	if err := r.workspaces.Prepare(ctx, wsPath, task.Payload.Repo, branch); err != nil {
		return failure(fmt.Errorf("preparing workspace: %w", err))
	}

	slog.InfoContext(ctx, "workspace prepared", "path", wsPath, "branch", branch)

	// Step 2: context handoff. The file is removed before change analysis
	// on the happy path; the defer covers every failure path.
	contextPath := filepath.Join(wsPath, ContextFileName)
	if err := os.WriteFile(contextPath, []byte(ContextFileContent(task, agent)), 0o644); err != nil {
		return failure(fmt.Errorf("writing task context: %w", err))
	}
	defer os.Remove(contextPath)

	// Step 3: tool invocation, bounded by the configured timeout.
	prompt := BuildPrompt(task, agent)
	toolCtx, cancel := context.WithTimeout(ctx, r.cfg.ToolTimeout)
	defer cancel()

	stdout, stderr, err := r.runner.Run(toolCtx, Command{
		Name:  r.cfg.ToolPath,
		Dir:   wsPath,
		Stdin: strings.NewReader(prompt),
	})
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = strings.TrimSpace(string(stdout))
		}
		return failure(fmt.Errorf("tool execution failed: %w: %s", err, detail))
	}

	slog.DebugContext(ctx, "tool finished", "output", logger.Truncate(string(stdout), 512))

	if err := os.Remove(contextPath); err != nil && !os.IsNotExist(err) {
		return failure(fmt.Errorf("removing task context: %w", err))
	}

	// Step 4: change analysis. No changes is a valid outcome.
	statusOut, err := r.workspaces.runGit(ctx, wsPath, "status", "--porcelain")
	if err != nil {
		return failure(fmt.Errorf("inspecting workspace status: %w", err))
	}
	changes := ParseStatus(statusOut)

	result := &model.ExecutionResult{
		Success:       true,
		ModifiedFiles: changes.Modified,
		CreatedFiles:  changes.Created,
		DeletedFiles:  changes.Deleted,
	}

	if changes.Empty() {
		result.Summary = "tool produced no changes"
		slog.InfoContext(ctx, "session finished with no changes")
		return result
	}

	// Step 5: commit.
	if _, err := r.workspaces.runGit(ctx, wsPath, "add", "."); err != nil {
		return failure(fmt.Errorf("staging changes: %w", err))
	}
	if _, err := r.workspaces.runGit(ctx, wsPath, "commit", "-m", CommitMessage(task, agent)); err != nil {
		return failure(fmt.Errorf("committing changes: %w", err))
	}

	commitOut, err := r.workspaces.runGit(ctx, wsPath, "rev-parse", "HEAD")
	if err != nil {
		return failure(fmt.Errorf("resolving commit: %w", err))
	}
	result.CommitSHA = strings.TrimSpace(string(commitOut))

	branchOut, err := r.workspaces.runGit(ctx, wsPath, "branch", "--show-current")
	if err != nil {
		return failure(fmt.Errorf("resolving branch: %w", err))
	}
	result.Branch = strings.TrimSpace(string(branchOut))

	result.Summary = fmt.Sprintf("%d files changed (%d created, %d modified, %d deleted)",
		changes.Total(), len(changes.Created), len(changes.Modified), len(changes.Deleted))

	// Step 6: optional review request.
	if r.cfg.AutoReviewRequests && r.review != nil {
		title := fmt.Sprintf("forge: resolve issue #%d: %s", task.Payload.Issue.Number, task.Payload.Issue.Title)
		reviewURL, err := r.review.Open(ctx, task.Payload.Repo, result.Branch, task.Payload.Repo.DefaultBranch, title)
		if err != nil {
			return failure(fmt.Errorf("opening review request: %w", err))
		}
		result.ReviewRequestURL = reviewURL
	}

	slog.InfoContext(ctx, "session finished",
		"commit", result.CommitSHA,
		"branch", result.Branch,
		"files", changes.Total())

	return result
}

func failure(err error) *model.ExecutionResult {
	return &model.ExecutionResult{
		Success: false,
		Summary: "execution failed",
		Error:   err.Error(),
	}
}
