package events

// Payload constructors for the simulation lifecycle events. The field names
// are the wire names the visualizer expects.

// AgentCreated describes a newly admitted agent.
func AgentCreated(id, role, parent string, budget float64) Event {
	return NewEvent(EventAgentCreated, map[string]any{
		"agent_id": id,
		"role":     role,
		"parent":   parent,
		"budget":   budget,
	})
}

// AgentStateChanged records a state transition with the agent's latest
// thought and balance.
func AgentStateChanged(id, state, thought string, balance float64) Event {
	return NewEvent(EventAgentStateChanged, map[string]any{
		"agent_id": id,
		"state":    state,
		"thought":  thought,
		"balance":  balance,
	})
}

// MessageSent records inter-agent mail.
func MessageSent(from, to string) Event {
	return NewEvent(EventMessageSent, map[string]any{
		"from": from,
		"to":   to,
	})
}

// ToolDeployed records a forged tool entering the registry.
func ToolDeployed(name, forger string) Event {
	return NewEvent(EventToolDeployed, map[string]any{
		"tool_name": name,
		"forger":    forger,
	})
}

// SimulationStarted carries the objective and the initial budget.
func SimulationStarted(objective string, budget float64) Event {
	return NewEvent(EventSimulationStarted, map[string]any{
		"objective": objective,
		"budget":    budget,
	})
}

// SimulationEnded carries the termination reason and total cost.
func SimulationEnded(reason string, totalCost float64) Event {
	return NewEvent(EventSimulationEnded, map[string]any{
		"reason":     reason,
		"total_cost": totalCost,
	})
}
