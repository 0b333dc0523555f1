package orchestrator

import (
	"github.com/aos-sim/aos/internal/agent"
)

// AgentResult summarizes one agent's final situation.
type AgentResult struct {
	State        string   `json:"state"`
	Role         string   `json:"role"`
	Parent       string   `json:"parent,omitempty"`
	Subagents    []string `json:"subagents"`
	FinalBalance float64  `json:"final_balance"`
}

// Results is the simulation outcome returned to the caller and written to
// the output directory.
type Results struct {
	TotalAgents int                    `json:"total_agents"`
	AgentStates map[string]AgentResult `json:"agent_states"`
	Hierarchy   map[string][]string    `json:"hierarchy"`
	TotalCost   float64                `json:"total_cost"`
}

// CollectResults builds the final report: per-agent states, the delegation
// hierarchy, and the total spend.
func (o *Orchestrator) CollectResults() *Results {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := &Results{
		TotalAgents: len(o.agents),
		AgentStates: make(map[string]AgentResult, len(o.agents)),
		Hierarchy:   make(map[string][]string),
		TotalCost:   o.book.TotalExpenditure(),
	}

	for _, id := range o.order {
		m := o.agents[id]
		bal := o.book.Balance(id)
		res.AgentStates[id] = AgentResult{
			State:        string(m.agent.State()),
			Role:         m.cfg.Role,
			Parent:       m.cfg.ParentID,
			Subagents:    m.agent.Subagents(),
			FinalBalance: bal,
		}
		if m.cfg.ParentID != "" {
			res.Hierarchy[m.cfg.ParentID] = append(res.Hierarchy[m.cfg.ParentID], id)
		}
	}
	return res
}

// AgentInfo is a point-in-time view of one agent, in admission order, for
// visualizer snapshots.
type AgentInfo struct {
	ID     string
	Role   string
	Parent string
	State  agent.State
}

// AgentsSnapshot returns the current society in admission order.
func (o *Orchestrator) AgentsSnapshot() []AgentInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]AgentInfo, 0, len(o.order))
	for _, id := range o.order {
		m := o.agents[id]
		out = append(out, AgentInfo{
			ID:     id,
			Role:   m.cfg.Role,
			Parent: m.cfg.ParentID,
			State:  m.agent.State(),
		})
	}
	return out
}
