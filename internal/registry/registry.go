package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"basegraph.app/forge/internal/model"
)

// ErrNoAgentAvailable is returned when no agent of the requested
// specialization has spare capacity. Callers decide whether to fall back to
// an unspecialized selection or leave the task pending.
var ErrNoAgentAvailable = errors.New("no agent with spare capacity")

// Registry holds agent descriptors and hands out assignments.
//
// Selection and assignment happen under one lock so the assigned count can
// never exceed MaxConcurrent, even with concurrent callers.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*model.Agent
	order  []string
}

func New() *Registry {
	return &Registry{agents: make(map[string]*model.Agent)}
}

// Register adds or replaces an agent descriptor. Registered agents start
// idle with no assignments.
func (r *Registry) Register(agent model.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if agent.State == "" {
		agent.State = model.AgentStateIdle
	}
	agent.Assigned = 0

	if _, exists := r.agents[agent.ID]; !exists {
		r.order = append(r.order, agent.ID)
	}
	r.agents[agent.ID] = &agent
}

// Acquire selects an available agent and assigns one slot atomically.
//
// When spec is non-empty only exact specialization matches are considered;
// ErrNoAgentAvailable signals the caller to decide on a fallback. Among
// candidates the least-loaded wins, registration order breaking ties.
func (r *Registry) Acquire(spec model.Specialization) (model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*model.Agent
	for _, agentID := range r.order {
		agent := r.agents[agentID]
		if !agent.Available() {
			continue
		}
		if spec != "" && agent.Specialization != spec {
			continue
		}
		candidates = append(candidates, agent)
	}

	if len(candidates) == 0 {
		if spec != "" {
			return model.Agent{}, fmt.Errorf("specialization %q: %w", spec, ErrNoAgentAvailable)
		}
		return model.Agent{}, ErrNoAgentAvailable
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Assigned < candidates[j].Assigned
	})

	selected := candidates[0]
	selected.Assigned++
	selected.State = model.AgentStateBusy

	return *selected, nil
}

// Release returns one slot. The agent goes back to idle when its last
// assignment is released. Releasing an unknown agent is a no-op.
func (r *Registry) Release(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return
	}

	if agent.Assigned > 0 {
		agent.Assigned--
	}
	if agent.Assigned == 0 && agent.State == model.AgentStateBusy {
		agent.State = model.AgentStateIdle
	}
}

// SetState force-sets an agent's operational state (admin action, e.g.
// taking an agent offline). Offline agents keep their descriptor but stop
// receiving work.
func (r *Registry) SetState(agentID string, state model.AgentState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("unknown agent %q", agentID)
	}
	agent.State = state
	return nil
}

// Get returns a snapshot of one agent.
func (r *Registry) Get(agentID string) (model.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return model.Agent{}, false
	}
	return *agent, true
}

// List returns snapshots of all agents in registration order.
func (r *Registry) List() []model.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents := make([]model.Agent, 0, len(r.order))
	for _, agentID := range r.order {
		agents = append(agents, *r.agents[agentID])
	}
	return agents
}
