package session

import (
	"fmt"
	"strings"

	"basegraph.app/forge/internal/model"
)

// ContextFileName is the transient task-context file written into the
// workspace for the tool's benefit. It is always removed before change
// analysis so it never pollutes diffs.
const ContextFileName = ".forge-task.md"

var specializationInstructions = map[model.Specialization]string{
	model.SpecializationBackend:       "Focus on server-side code. Preserve existing API contracts and database schemas unless the issue explicitly asks otherwise.",
	model.SpecializationFrontend:      "Focus on UI code. Match the existing component patterns and styling conventions.",
	model.SpecializationTesting:       "Focus on test coverage. Prefer extending existing test suites over introducing new frameworks.",
	model.SpecializationDocumentation: "Focus on documentation. Keep the existing tone and structure; update code samples to match current behavior.",
	model.SpecializationGeneral:       "Make the smallest change that resolves the issue.",
}

// BuildPrompt renders the natural-language prompt streamed to the tool's
// stdin.
func BuildPrompt(task model.Task, agent model.Agent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are working on issue #%d in %s/%s.\n\n",
		task.Payload.Issue.Number, task.Payload.Repo.Owner, task.Payload.Repo.Name)
	fmt.Fprintf(&b, "Title: %s\n\n", task.Payload.Issue.Title)

	if body := strings.TrimSpace(task.Payload.Issue.Body); body != "" {
		fmt.Fprintf(&b, "Description:\n%s\n\n", body)
	}

	fmt.Fprintf(&b, "Work category: %s\n", task.Category)

	if instructions, ok := specializationInstructions[agent.Specialization]; ok {
		fmt.Fprintf(&b, "\n%s\n", instructions)
	}

	b.WriteString("\nImplement the change in the current working directory. Do not commit; the pipeline handles version control.\n")

	return b.String()
}

// ContextFileContent renders the human-readable task summary written to the
// workspace.
func ContextFileContent(task model.Task, agent model.Agent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task %d\n\n", task.ID)
	fmt.Fprintf(&b, "- Issue: #%d %s\n", task.Payload.Issue.Number, task.Payload.Issue.Title)
	fmt.Fprintf(&b, "- Repository: %s/%s (default branch %s)\n",
		task.Payload.Repo.Owner, task.Payload.Repo.Name, task.Payload.Repo.DefaultBranch)
	fmt.Fprintf(&b, "- Category: %s\n", task.Category)
	fmt.Fprintf(&b, "- Priority: %s\n", task.Priority)
	fmt.Fprintf(&b, "- Agent: %s (%s", agent.Name, agent.Specialization)
	if len(agent.Capabilities) > 0 {
		fmt.Fprintf(&b, "; %s", strings.Join(agent.Capabilities, ", "))
	}
	b.WriteString(")\n")

	return b.String()
}

// CommitMessage renders the structured commit message for a session's
// changes.
func CommitMessage(task model.Task, agent model.Agent) string {
	return fmt.Sprintf("forge: resolve issue #%d (task %d)\n\nAgent: %s\n\nCo-authored-by: %s <agents@basegraph.app>",
		task.Payload.Issue.Number, task.ID, agent.ID, agent.Name)
}
