package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aos-sim/aos/internal/agent"
	"github.com/aos-sim/aos/internal/config"
	"github.com/aos-sim/aos/internal/events"
	"github.com/aos-sim/aos/internal/ledger"
	"github.com/aos-sim/aos/internal/models"
)

// routedClient answers prompts by substring match, so one client can serve
// several concurrently running agents deterministically.
type routedClient struct {
	routes []route
}

type route struct {
	match    string
	response string
}

func (c *routedClient) Call(_ context.Context, prompt string) (string, int, int) {
	for _, r := range c.routes {
		if strings.Contains(prompt, r.match) {
			return r.response, 0, 0
		}
	}
	return `{"reasoning": "no idea", "action": "FAIL"}`, 0, 0
}

// slowClient stalls until cancellation, for timeout tests.
type slowClient struct{}

func (slowClient) Call(ctx context.Context, _ string) (string, int, int) {
	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
	}
	return "interrupted", 0, 0
}

func testSystem(t *testing.T) *config.SystemConfig {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.OutputBaseDir = base
	cfg.PluginsDir = filepath.Join(base, "plugins")
	cfg.Objective = "test objective"
	cfg.Capabilities.AllowMessaging = true
	// Scenario tests script the single-shot delegation path.
	cfg.Capabilities.AllowAdvancedPlanning = false
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	for _, dir := range []string{cfg.WorkspacePath, cfg.DeliveryPath, cfg.PluginsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return cfg
}

func testOrchestrator(t *testing.T, cfg *config.SystemConfig, llm models.Client) (*Orchestrator, *ledger.Ledger, *events.Bus) {
	t.Helper()
	book := ledger.New()
	bus := events.NewBus(256)
	t.Cleanup(bus.Close)
	return New(cfg, book, llm, bus), book, bus
}

func TestAdmissionCap(t *testing.T) {
	cfg := testSystem(t)
	cfg.MaxAgents = 2
	o, _, _ := testOrchestrator(t, cfg, &routedClient{})

	ctx := context.Background()
	if _, err := o.SpawnFounder(ctx); err != nil {
		t.Fatalf("SpawnFounder: %v", err)
	}
	if _, err := o.SpawnAgent(ctx, agent.Config{Role: "Poet", Task: "t", ParentID: o.FounderID(), StepIndex: -1}); err != nil {
		t.Fatalf("second spawn: %v", err)
	}
	_, err := o.SpawnAgent(ctx, agent.Config{Role: "Poet", Task: "t", ParentID: o.FounderID(), StepIndex: -1})
	if !errors.Is(err, ErrMaxAgentsReached) {
		t.Errorf("third spawn error = %v, want ErrMaxAgentsReached", err)
	}
}

func TestMailboxExistsAtAdmission(t *testing.T) {
	cfg := testSystem(t)
	o, _, _ := testOrchestrator(t, cfg, &routedClient{})

	id, err := o.SpawnFounder(context.Background())
	if err != nil {
		t.Fatalf("SpawnFounder: %v", err)
	}

	// Mail addressed to a freshly admitted agent must not bounce, even
	// though the agent has not started yet.
	if err := o.SendMessage("someone", id, map[string]any{"hello": "there"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	msgs := o.Messages(id)
	if len(msgs) != 1 || msgs[0].Content["hello"] != "there" {
		t.Errorf("messages = %+v, want the queued greeting", msgs)
	}
	if again := o.Messages(id); len(again) != 0 {
		t.Errorf("second drain returned %d messages, want 0", len(again))
	}

	if err := o.SendMessage("someone", "nobody", map[string]any{}); err == nil {
		t.Error("SendMessage to unknown recipient succeeded, want error")
	}
}

func TestAgentWorkspaceAndAccountCreated(t *testing.T) {
	cfg := testSystem(t)
	o, book, _ := testOrchestrator(t, cfg, &routedClient{})

	id, err := o.SpawnFounder(context.Background())
	if err != nil {
		t.Fatalf("SpawnFounder: %v", err)
	}
	if len(id) != 8 {
		t.Errorf("agent id = %q, want 8 characters", id)
	}
	if _, err := os.Stat(filepath.Join(cfg.WorkspacePath, id)); err != nil {
		t.Errorf("workspace missing: %v", err)
	}
	if bal := book.Balance(id); bal != cfg.InitialBudget {
		t.Errorf("founder balance = %v, want %v", bal, cfg.InitialBudget)
	}
}

func TestRunFounderDelegation(t *testing.T) {
	cfg := testSystem(t)
	cfg.SimulationTimeout = config.Duration(30 * time.Second)
	llm := &routedClient{routes: []route{
		{
			match:    "Your main action should be DELEGATE",
			response: `{"reasoning": "hire a poet", "action": "DELEGATE", "details": {"role": "Poet", "task": "Write a poem"}}`,
		},
		{
			match:    "wait for your sub-agents",
			response: `{"reasoning": "waiting"}`,
		},
		{
			match:    "highly specialized autonomous agent",
			response: `{"reasoning": "done", "action": "COMPLETE"}`,
		},
	}}
	o, _, _ := testOrchestrator(t, cfg, llm)

	founderID, err := o.SpawnFounder(context.Background())
	if err != nil {
		t.Fatalf("SpawnFounder: %v", err)
	}

	reason := o.Run(context.Background())
	if !strings.Contains(reason, "terminal") {
		t.Errorf("reason = %q, want all-terminal termination", reason)
	}

	res := o.CollectResults()
	if res.TotalAgents != 2 {
		t.Fatalf("total_agents = %d, want 2", res.TotalAgents)
	}
	founder := res.AgentStates[founderID]
	if founder.State != string(agent.StateCompleted) {
		t.Errorf("founder state = %s, want Completed", founder.State)
	}
	if len(res.Hierarchy[founderID]) != 1 {
		t.Errorf("hierarchy = %v, want one child under the founder", res.Hierarchy)
	}
	childID := res.Hierarchy[founderID][0]
	if got := res.AgentStates[childID]; got.State != string(agent.StateCompleted) || got.Role != "Poet" {
		t.Errorf("child = %+v, want a completed Poet", got)
	}
	if res.TotalCost <= 0 {
		t.Errorf("total_cost = %v, want positive spend from the delegation fees", res.TotalCost)
	}
}

func TestRunTimeout(t *testing.T) {
	cfg := testSystem(t)
	cfg.SimulationTimeout = config.Duration(2 * time.Second)
	cfg.ShutdownTimeout = config.Duration(2 * time.Second)
	o, _, _ := testOrchestrator(t, cfg, slowClient{})

	if _, err := o.SpawnFounder(context.Background()); err != nil {
		t.Fatalf("SpawnFounder: %v", err)
	}

	start := time.Now()
	reason := o.Run(context.Background())
	elapsed := time.Since(start)

	if !strings.Contains(reason, "timeout") {
		t.Errorf("reason = %q, want timeout", reason)
	}
	if elapsed < 1500*time.Millisecond || elapsed > 5*time.Second {
		t.Errorf("run took %v, want roughly the 2s simulation timeout", elapsed)
	}
	for _, info := range o.AgentsSnapshot() {
		if !info.State.Terminal() {
			t.Errorf("agent %s still %s after shutdown", info.ID, info.State)
		}
	}
}

func TestToolRequestDeniedWithoutCapability(t *testing.T) {
	cfg := testSystem(t)
	cfg.Capabilities.AllowToolCreation = false
	o, _, _ := testOrchestrator(t, cfg, &routedClient{})

	id, err := o.SpawnFounder(context.Background())
	if err != nil {
		t.Fatalf("SpawnFounder: %v", err)
	}

	o.HandleToolRequest(id, "a hashing tool")

	msgs := o.Messages(id)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].From != SystemSender || msgs[0].Content["status"] != "tool_request_denied" {
		t.Errorf("message = %+v, want a denial from %s", msgs[0], SystemSender)
	}
	if snap := o.AgentsSnapshot(); len(snap) != 1 {
		t.Errorf("agents = %d, want 1 (no forger admitted)", len(snap))
	}
}

func TestToolRequestDeduped(t *testing.T) {
	cfg := testSystem(t)
	cfg.Capabilities.AllowToolCreation = true
	o, book, _ := testOrchestrator(t, cfg, &routedClient{})

	id, err := o.SpawnFounder(context.Background())
	if err != nil {
		t.Fatalf("SpawnFounder: %v", err)
	}

	o.HandleToolRequest(id, "a hashing tool")
	o.HandleToolRequest(id, "a hashing tool again")

	snap := o.AgentsSnapshot()
	if len(snap) != 2 {
		t.Fatalf("agents = %d, want founder plus one forger", len(snap))
	}
	forger := snap[1]
	if forger.Role != ToolForgingRole || forger.Parent != id {
		t.Errorf("forger = %+v, want %s under the requester", forger, ToolForgingRole)
	}
	bal := book.Balance(forger.ID)
	if want := forgerBudgetRatio * cfg.InitialBudget; bal != want {
		t.Errorf("forger budget = %v, want %v", bal, want)
	}

	msgs := o.Messages(id)
	if len(msgs) != 1 || msgs[0].Content["status"] != "tool_request_duplicate" {
		t.Errorf("messages = %+v, want one duplicate notice", msgs)
	}
}

func TestForgingDeployment(t *testing.T) {
	cfg := testSystem(t)
	cfg.Capabilities.AllowToolCreation = true
	o, _, _ := testOrchestrator(t, cfg, &routedClient{})
	ctx := context.Background()

	requesterID, err := o.SpawnFounder(ctx)
	if err != nil {
		t.Fatalf("SpawnFounder: %v", err)
	}
	o.HandleToolRequest(requesterID, "A SHA256 hashing tool")

	snap := o.AgentsSnapshot()
	if len(snap) != 2 {
		t.Fatalf("agents = %d, want 2", len(snap))
	}
	forgerID := snap[1].ID

	// The forger "writes" its validated tool, then reports success.
	code := []byte("import json, sys\nprint(json.dumps({\"ok\": True}))\n")
	if err := os.WriteFile(filepath.Join(cfg.WorkspacePath, forgerID, "new_tool.py"), code, 0o644); err != nil {
		t.Fatalf("write forged code: %v", err)
	}
	if err := o.SendMessage(forgerID, requesterID, map[string]any{
		"status":         "tool_creation_success",
		"tool_code_path": "new_tool.py",
	}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	o.processSystemEvents(ctx)

	wantTool := "generated_new_tool_" + forgerID
	if _, err := os.Stat(filepath.Join(cfg.PluginsDir, wantTool, wantTool+".py")); err != nil {
		t.Errorf("deployed script missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.PluginsDir, wantTool, "manifest.jsonc")); err != nil {
		t.Errorf("deployed manifest missing: %v", err)
	}

	// The requester hears about it and its toolbox picks it up.
	msgs := o.Messages(requesterID)
	if len(msgs) != 1 || msgs[0].Content["status"] != "tool_request_fulfilled" {
		t.Fatalf("messages = %+v, want one fulfillment notice", msgs)
	}
	if msgs[0].Content["tool_name"] != wantTool {
		t.Errorf("tool_name = %v, want %s", msgs[0].Content["tool_name"], wantTool)
	}
	o.mu.Lock()
	requesterBox := o.agents[requesterID].toolbox
	o.mu.Unlock()
	if !requesterBox.Has(wantTool) {
		t.Errorf("requester toolbox lacks %s after deployment", wantTool)
	}

	// The forger is retired and the pending slot is free again.
	if state, _ := o.AgentState(forgerID); state != agent.StateCompleted {
		t.Errorf("forger state = %s, want Completed", state)
	}
	o.HandleToolRequest(requesterID, "another tool")
	if msgs := o.Messages(requesterID); len(msgs) != 0 {
		t.Errorf("fresh request after fulfillment got %+v, want silent admission of a new forger", msgs)
	}
}

func TestSystemEventsPreserveOrdinaryMail(t *testing.T) {
	cfg := testSystem(t)
	cfg.Capabilities.AllowToolCreation = true
	o, _, _ := testOrchestrator(t, cfg, &routedClient{})
	ctx := context.Background()

	requesterID, err := o.SpawnFounder(ctx)
	if err != nil {
		t.Fatalf("SpawnFounder: %v", err)
	}
	childID, err := o.SpawnAgent(ctx, agent.Config{Role: "Poet", Task: "t", ParentID: requesterID, StepIndex: -1})
	if err != nil {
		t.Fatalf("SpawnAgent: %v", err)
	}
	o.HandleToolRequest(requesterID, "A hashing tool")
	forgerID := o.AgentsSnapshot()[2].ID
	if err := os.WriteFile(filepath.Join(cfg.WorkspacePath, forgerID, "new_tool.py"), []byte("print('{}')\n"), 0o644); err != nil {
		t.Fatalf("write forged code: %v", err)
	}

	// Interleave ordinary mail around the system event.
	o.SendMessage(childID, requesterID, map[string]any{"seq": "first"})
	o.SendMessage(forgerID, requesterID, map[string]any{"status": "tool_creation_success", "tool_code_path": "new_tool.py"})
	o.SendMessage(childID, requesterID, map[string]any{"seq": "second"})

	o.processSystemEvents(ctx)

	msgs := o.Messages(requesterID)
	var seqs []string
	for _, m := range msgs {
		if s, ok := m.Content["seq"].(string); ok {
			seqs = append(seqs, s)
		} else if m.From == SystemSender {
			seqs = append(seqs, "system")
		} else {
			t.Errorf("unexpected surviving message %+v", m)
		}
	}
	// Ordinary mail keeps its relative order; the fulfillment notice lands
	// after interception.
	if len(seqs) != 3 || seqs[0] != "first" || seqs[1] != "second" || seqs[2] != "system" {
		t.Errorf("sequence = %v, want [first second system]", seqs)
	}
}
