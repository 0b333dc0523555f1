// Package orchestrator runs the agent society: it admits agents under the
// population cap, routes their mail, supervises the simulation loop, and
// drives the tool-forging protocol.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aos-sim/aos/internal/agent"
	"github.com/aos-sim/aos/internal/config"
	"github.com/aos-sim/aos/internal/events"
	"github.com/aos-sim/aos/internal/ledger"
	"github.com/aos-sim/aos/internal/models"
	"github.com/aos-sim/aos/internal/plugins"
)

// ErrMaxAgentsReached is returned by SpawnAgent when admitting one more
// agent would exceed the configured population cap.
var ErrMaxAgentsReached = errors.New("maximum number of agents reached")

// SystemSender is the reserved sender id for orchestrator notifications.
const SystemSender = "AOS_SYSTEM"

// ToolForgingRole marks forger agents; their success reports are system
// events, not ordinary mail.
const ToolForgingRole = "Tool Forging Agent"

const (
	tickInterval     = 1 * time.Second
	progressInterval = 30 * time.Second
)

// forgerBudgetRatio is the forger's allowance as a share of the initial
// simulation budget. It comes from the system, not the requester's funds.
const forgerBudgetRatio = 0.2

type managed struct {
	agent   *agent.Agent
	toolbox *plugins.Toolbox
	cfg     agent.Config
	started bool
}

// Orchestrator implements agent.Supervisor and plugins.MessageSender.
type Orchestrator struct {
	cfg  *config.SystemConfig
	book *ledger.Ledger
	llm  models.Client
	bus  *events.Bus
	log  *slog.Logger

	// admitMu serializes whole admissions so the cap check and the
	// registration are atomic.
	admitMu sync.Mutex

	mu        sync.Mutex
	agents    map[string]*managed
	order     []string
	mailboxes map[string][]agent.Message

	// pendingToolRequests dedupes forging, keyed by requester id.
	pendingToolRequests map[string]string

	founderID string
	wg        sync.WaitGroup
}

// New wires an orchestrator over a shared ledger and event bus.
func New(cfg *config.SystemConfig, book *ledger.Ledger, llm models.Client, bus *events.Bus) *Orchestrator {
	return &Orchestrator{
		cfg:                 cfg,
		book:                book,
		llm:                 llm,
		bus:                 bus,
		log:                 slog.With("component", "orchestrator"),
		agents:              make(map[string]*managed),
		mailboxes:           make(map[string][]agent.Message),
		pendingToolRequests: make(map[string]string),
	}
}

// newAgentID returns a short unique id; callers must hold mu.
func (o *Orchestrator) newAgentID() string {
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		if _, taken := o.agents[id]; !taken {
			if _, taken := o.mailboxes[id]; !taken {
				return id
			}
		}
	}
}

// SpawnFounder admits the root agent with the full initial budget and the
// objective as its task.
func (o *Orchestrator) SpawnFounder(ctx context.Context) (string, error) {
	id, err := o.spawn(ctx, agent.Config{
		Role:         "Founder",
		Task:         o.cfg.Objective,
		Budget:       o.cfg.InitialBudget,
		MaxSubagents: o.cfg.MaxAgents - 1,
		StepIndex:    -1,
	}, o.cfg.DisabledTools, nil)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	o.founderID = id
	o.mu.Unlock()
	return id, nil
}

// FounderID returns the root agent's id once SpawnFounder has run.
func (o *Orchestrator) FounderID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.founderID
}

// SpawnAgent admits a regular child agent, respecting the population cap.
func (o *Orchestrator) SpawnAgent(ctx context.Context, cfg agent.Config) (string, error) {
	return o.spawn(ctx, cfg, o.cfg.DisabledTools, nil)
}

// spawn performs one admission: cap check, id allocation, mailbox,
// workspace, ledger account, toolbox, agent. The mailbox exists before the
// agent does, so nothing addressed to the new id is ever lost. taskFn, when
// set, derives the task from the finished toolbox's inventory.
func (o *Orchestrator) spawn(ctx context.Context, cfg agent.Config, disabled []string, taskFn func([]plugins.ToolSpec) string) (string, error) {
	o.admitMu.Lock()
	defer o.admitMu.Unlock()

	o.mu.Lock()
	if len(o.agents) >= o.cfg.MaxAgents {
		o.mu.Unlock()
		return "", ErrMaxAgentsReached
	}
	id := o.newAgentID()
	o.mailboxes[id] = nil
	o.mu.Unlock()

	fail := func(err error) (string, error) {
		o.mu.Lock()
		delete(o.mailboxes, id)
		o.mu.Unlock()
		return "", err
	}

	if err := os.MkdirAll(filepath.Join(o.cfg.WorkspacePath, id), 0o755); err != nil {
		return fail(fmt.Errorf("create workspace for %s: %w", id, err))
	}
	if err := o.book.CreateAccount(id, cfg.Budget); err != nil {
		return fail(fmt.Errorf("open account for %s: %w", id, err))
	}
	tb, err := plugins.NewToolbox(ctx, id, o.cfg, o, disabled)
	if err != nil {
		return fail(fmt.Errorf("build toolbox for %s: %w", id, err))
	}
	if taskFn != nil {
		cfg.Task = taskFn(tb.Specs())
	}

	a := agent.New(id, cfg, o.cfg, o.book, o.llm, tb, o)

	o.mu.Lock()
	o.agents[id] = &managed{agent: a, toolbox: tb, cfg: cfg}
	o.order = append(o.order, id)
	o.mu.Unlock()

	o.bus.Publish(events.AgentCreated(id, cfg.Role, cfg.ParentID, cfg.Budget))
	o.log.Info("agent admitted", "agent", id, "role", cfg.Role, "parent", cfg.ParentID, "budget", cfg.Budget)
	return id, nil
}

// SendMessage enqueues mail for an existing agent.
func (o *Orchestrator) SendMessage(from, to string, content map[string]any) error {
	o.mu.Lock()
	if _, ok := o.mailboxes[to]; !ok {
		o.mu.Unlock()
		return fmt.Errorf("unknown recipient %q", to)
	}
	o.mailboxes[to] = append(o.mailboxes[to], agent.Message{
		From:    from,
		To:      to,
		Content: content,
		Ts:      time.Now(),
	})
	o.mu.Unlock()

	o.bus.Publish(events.MessageSent(from, to))
	return nil
}

// systemMessage delivers an orchestrator notification; undeliverable system
// mail is only logged.
func (o *Orchestrator) systemMessage(to string, content map[string]any) {
	if err := o.SendMessage(SystemSender, to, content); err != nil {
		o.log.Warn("system message undeliverable", "to", to, "error", err)
	}
}

// Messages atomically drains an agent's mailbox.
func (o *Orchestrator) Messages(agentID string) []agent.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.mailboxes[agentID]
	o.mailboxes[agentID] = nil
	return out
}

// AgentState reports another agent's current state.
func (o *Orchestrator) AgentState(agentID string) (agent.State, bool) {
	o.mu.Lock()
	m, ok := o.agents[agentID]
	o.mu.Unlock()
	if !ok {
		return "", false
	}
	return m.agent.State(), true
}

// Run drives the simulation: a 1s tick loop processing system events,
// starting admitted agents, and checking the termination conditions. It
// returns the termination reason.
func (o *Orchestrator) Run(ctx context.Context) string {
	o.bus.Publish(events.SimulationStarted(o.cfg.Objective, o.cfg.InitialBudget))

	deadline := time.Now().Add(o.cfg.SimulationTimeout.Duration())
	agentCtx, cancelAgents := context.WithCancel(context.Background())
	defer cancelAgents()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	lastReport := time.Now()

	reason := ""
	for reason == "" {
		select {
		case <-ctx.Done():
			reason = "cancelled"
		case <-ticker.C:
			o.processSystemEvents(agentCtx)
			o.startAdmitted(agentCtx)

			switch {
			case o.allTerminal():
				reason = "all agents reached a terminal state"
			case time.Now().After(deadline):
				reason = "simulation timeout"
			}

			if time.Since(lastReport) >= progressInterval {
				o.progressReport()
				lastReport = time.Now()
			}
		}
	}

	o.log.Info("simulation ending", "reason", reason)
	cancelAgents()
	o.join()

	o.bus.Publish(events.SimulationEnded(reason, o.book.TotalExpenditure()))
	return reason
}

// startAdmitted launches every admitted-but-unstarted agent.
func (o *Orchestrator) startAdmitted(ctx context.Context) {
	o.mu.Lock()
	var toStart []*managed
	var ids []string
	for _, id := range o.order {
		m := o.agents[id]
		if !m.started {
			m.started = true
			toStart = append(toStart, m)
			ids = append(ids, id)
		}
	}
	o.mu.Unlock()

	for i, m := range toStart {
		id := ids[i]
		o.wg.Add(1)
		go func(id string, m *managed) {
			defer o.wg.Done()
			m.agent.Run(ctx)

			bal := o.book.Balance(id)
			o.bus.Publish(events.AgentStateChanged(id, string(m.agent.State()), m.agent.LastThought(), bal))
		}(id, m)
	}
}

// allTerminal reports whether every admitted agent is done. An empty
// society is not terminal; the founder may not be admitted yet.
func (o *Orchestrator) allTerminal() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.agents) == 0 {
		return false
	}
	for _, m := range o.agents {
		if !m.agent.State().Terminal() {
			return false
		}
	}
	return true
}

// join waits for agent goroutines up to the shutdown timeout, then marks
// any straggler Failed.
func (o *Orchestrator) join() {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(o.cfg.ShutdownTimeout.Duration()):
		o.log.Warn("shutdown timeout reached, abandoning stragglers")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, m := range o.agents {
		if !m.agent.State().Terminal() {
			m.agent.Fail("Did not stop within the shutdown window")
			o.log.Warn("straggler marked failed", "agent", id)
		}
	}
}

func (o *Orchestrator) progressReport() {
	o.mu.Lock()
	counts := map[agent.State]int{}
	for _, m := range o.agents {
		counts[m.agent.State()]++
	}
	total := len(o.agents)
	o.mu.Unlock()

	o.log.Info("simulation progress",
		"agents", total,
		"active", counts[agent.StateActive],
		"completed", counts[agent.StateCompleted],
		"failed", counts[agent.StateFailed],
		"dead", counts[agent.StateDead],
		"total_cost", o.book.TotalExpenditure(),
	)
}
