package model

type (
	Specialization string
	AgentState     string
)

const (
	SpecializationBackend       Specialization = "backend"
	SpecializationFrontend      Specialization = "frontend"
	SpecializationTesting       Specialization = "testing"
	SpecializationDocumentation Specialization = "documentation"
	SpecializationGeneral       Specialization = "general"
)

const (
	AgentStateIdle    AgentState = "idle"
	AgentStateBusy    AgentState = "busy"
	AgentStateError   AgentState = "error"
	AgentStateOffline AgentState = "offline"
)

func (s AgentState) Valid() bool {
	switch s {
	case AgentStateIdle, AgentStateBusy, AgentStateError, AgentStateOffline:
		return true
	default:
		return false
	}
}

// Agent is a capacity-bounded executor of one specialization.
//
// Assigned is derived state: it is mutated only by the registry under its
// lock and must never exceed MaxConcurrent.
type Agent struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Specialization Specialization `json:"specialization"`
	Capabilities   []string       `json:"capabilities,omitempty"`
	MaxConcurrent  int            `json:"max_concurrent"`
	Assigned       int            `json:"assigned"`
	State          AgentState     `json:"state"`
}

// Available reports whether the agent can take one more task.
// Offline and errored agents never take work.
func (a *Agent) Available() bool {
	if a.State != AgentStateIdle && a.State != AgentStateBusy {
		return false
	}
	return a.Assigned < a.MaxConcurrent
}
