package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/aos-sim/aos/internal/events"
	"github.com/aos-sim/aos/internal/orchestrator"
)

// SnapshotFunc returns the current society in admission order, for the
// full_sync frame a fresh connection receives.
type SnapshotFunc func() []orchestrator.AgentInfo

// client is one connected visualizer.
type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub manages visualizer connections and bridges bus events onto them.
type Hub struct {
	snapshot    SnapshotFunc
	unsubscribe func()

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub wires a hub to the event bus. Only agent lifecycle events reach
// the visualizer.
func NewHub(bus *events.Bus, snapshot SnapshotFunc) *Hub {
	h := &Hub{
		snapshot: snapshot,
		clients:  make(map[*client]struct{}),
	}

	h.unsubscribe = bus.Subscribe(h.bridge, events.EventAgentCreated, events.EventAgentStateChanged)
	return h
}

// bridge converts a bus event into a visualizer frame and broadcasts it.
func (h *Hub) bridge(e events.Event) {
	var data []byte
	var err error

	switch e.Type {
	case events.EventAgentCreated:
		id, _ := e.Payload["agent_id"].(string)
		role, _ := e.Payload["role"].(string)
		parent, _ := e.Payload["parent"].(string)

		payload := AgentCreatedPayload{
			Node: Node{ID: id, Label: role, Title: id, State: "Active"},
		}
		if parent != "" {
			payload.Edge = &Edge{From: parent, To: id}
		}
		data, err = marshalFrame(FrameAgentCreated, payload)

	case events.EventAgentStateChanged:
		id, _ := e.Payload["agent_id"].(string)
		state, _ := e.Payload["state"].(string)
		data, err = marshalFrame(FrameAgentStateChanged, StateChangedPayload{ID: id, State: state})

	default:
		return
	}

	if err != nil {
		slog.Error("marshal visualizer frame", "error", err)
		return
	}
	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("visualizer connected", "clients", len(h.clients))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("visualizer disconnected", "clients", len(h.clients))
	}
}

// fullSync renders the current graph for a new connection.
func (h *Hub) fullSync() ([]byte, error) {
	payload := FullSyncPayload{Nodes: []Node{}, Edges: []Edge{}}
	for _, info := range h.snapshot() {
		payload.Nodes = append(payload.Nodes, Node{
			ID:    info.ID,
			Label: info.Role,
			Title: info.ID,
			State: string(info.State),
		})
		if info.Parent != "" {
			payload.Edges = append(payload.Edges, Edge{From: info.Parent, To: info.ID})
		}
	}
	return marshalFrame(FrameFullSync, payload)
}

// ServeWS handles a WebSocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local visualizer, any origin
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	h.register(c)

	// The snapshot goes out first so the graph starts complete; later
	// frames are increments on top of it.
	if data, err := h.fullSync(); err == nil {
		c.send <- data
	}

	ctx := r.Context()
	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump discards inbound frames; the visualizer feed is one-way. It
// exists to notice the close.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
