// Package gateway serves the live visualizer: a WebSocket feed of the
// agent hierarchy as it grows and changes state.
package gateway

import "encoding/json"

// Frame types on the visualizer wire.
const (
	FrameFullSync          = "full_sync"
	FrameAgentCreated      = "agent_created"
	FrameAgentStateChanged = "agent_state_changed"
)

// Node is one agent in the hierarchy graph.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Title string `json:"title"`
	State string `json:"state"`
}

// Edge is a parent-to-child delegation link.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Frame is one visualizer message.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// FullSyncPayload carries the whole graph, sent once per connection.
type FullSyncPayload struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// AgentCreatedPayload carries the new node and, for non-root agents, the
// delegation edge.
type AgentCreatedPayload struct {
	Node Node  `json:"node"`
	Edge *Edge `json:"edge"`
}

// StateChangedPayload carries a state transition.
type StateChangedPayload struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func marshalFrame(frameType string, payload any) ([]byte, error) {
	return json.Marshal(Frame{Type: frameType, Payload: payload})
}
