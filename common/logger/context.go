package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, enabling zero-touch logging where pipeline
// context (task_id, agent_id, etc.) is automatically included in all log statements.
type LogFields struct {
	TaskID    *int64  // Forge task ID
	AgentID   *string // Agent the task is assigned to
	ProjectID *int64  // Owning project ID
	EventType *string // Inbound event type (e.g., "labeled")
	Component string  // Component name (OTel semantic convention style, e.g., "forge.dispatch")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, updated LogFields) LogFields {
	result := existing

	if updated.TaskID != nil {
		result.TaskID = updated.TaskID
	}
	if updated.AgentID != nil {
		result.AgentID = updated.AgentID
	}
	if updated.ProjectID != nil {
		result.ProjectID = updated.ProjectID
	}
	if updated.EventType != nil {
		result.EventType = updated.EventType
	}
	if updated.Component != "" {
		result.Component = updated.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like prompts or captured tool output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
