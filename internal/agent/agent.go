// Package agent implements the reasoning loop that drives every member of
// the society: the founder's plan+dispatch pipeline and the worker's
// think/act cycle, with the delegation economics and the completion
// machinery shared between them.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aos-sim/aos/internal/config"
	"github.com/aos-sim/aos/internal/ledger"
	"github.com/aos-sim/aos/internal/models"
	"github.com/aos-sim/aos/internal/plugins"
)

// State is an agent lifecycle state. Terminal states are sticky.
type State string

const (
	StateActive    State = "Active"
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
	StateDead      State = "Dead"
)

// Terminal reports whether s is one of the three end states.
func (s State) Terminal() bool { return s != StateActive }

// MaxConsecutiveErrors is the per-agent error budget.
const MaxConsecutiveErrors = 3

// DefaultMaxSubagents caps how many children an agent may spawn unless the
// config says otherwise. The founder gets the whole population instead.
const DefaultMaxSubagents = 3

// founderWait is the dispatch-loop sleep; it costs no LLM tokens.
const founderWait = 2 * time.Second

// Message is one mailbox entry.
type Message struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	Content map[string]any `json:"content"`
	Ts      time.Time      `json:"ts"`
}

// Config is the immutable per-agent configuration.
type Config struct {
	Role               string
	Task               string
	Budget             float64
	ParentID           string
	MaxSubagents       int // 0 means DefaultMaxSubagents
	CompletionCriteria *Criteria
	StepIndex          int // plan step this agent serves; -1 when unbound
}

// Supervisor is the orchestrator surface agents depend on.
type Supervisor interface {
	// SpawnAgent admits a child agent and returns its id. It fails with an
	// error wrapping orchestrator admission errors (e.g. the agent cap).
	SpawnAgent(ctx context.Context, cfg Config) (string, error)
	// SendMessage enqueues mail into the recipient's mailbox.
	SendMessage(from, to string, content map[string]any) error
	// Messages atomically drains the agent's mailbox.
	Messages(agentID string) []Message
	// AgentState looks up another agent's current state.
	AgentState(agentID string) (State, bool)
	// HandleToolRequest starts the tool-forging protocol for the requester.
	HandleToolRequest(requesterID, description string)
}

// Record is one entry of an agent's action history. Error is set for failed
// actions; completion criteria only match records with Error empty.
type Record struct {
	Action     string         `json:"action"`
	Tool       string         `json:"tool,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Agent is a single reasoning loop with its own budget, toolbox, workspace
// and mailbox. The founder (no parent) plans and dispatches; workers think
// and act.
type Agent struct {
	ID     string
	Config Config

	sys     *config.SystemConfig
	ledger  *ledger.Ledger
	llm     models.Client
	toolbox *plugins.Toolbox
	sup     Supervisor
	log     *slog.Logger

	mu                sync.Mutex
	state             State
	thoughts          []string
	results           []Record
	subagents         []string
	delegatedTasks    map[string]int
	consecutiveErrors int

	plan        []PlanStep
	planCreated bool

	// childReports collects mailbox reports keyed by child id, for the
	// founder's context propagation.
	childReports map[string]map[string]any
}

// New constructs an agent. The ledger account must already exist (the
// orchestrator creates it at admission).
func New(id string, cfg Config, sys *config.SystemConfig, book *ledger.Ledger, llm models.Client, toolbox *plugins.Toolbox, sup Supervisor) *Agent {
	if cfg.MaxSubagents <= 0 {
		cfg.MaxSubagents = DefaultMaxSubagents
	}
	return &Agent{
		ID:             id,
		Config:         cfg,
		sys:            sys,
		ledger:         book,
		llm:            llm,
		toolbox:        toolbox,
		sup:            sup,
		log:            slog.With("agent", id, "role", cfg.Role),
		state:          StateActive,
		delegatedTasks: make(map[string]int),
		childReports:   make(map[string]map[string]any),
	}
}

// IsFounder reports whether this agent is the root of the hierarchy.
func (a *Agent) IsFounder() bool { return a.Config.ParentID == "" }

// State returns the agent's current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Subagents returns a copy of the agent's child ids.
func (a *Agent) Subagents() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.subagents))
	copy(out, a.subagents)
	return out
}

// LastThought returns the most recent reasoning text.
func (a *Agent) LastThought() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.thoughts) == 0 {
		return ""
	}
	return a.thoughts[len(a.thoughts)-1]
}

// Fail transitions the agent to Failed regardless of current state; the
// orchestrator uses it for cancellation and crashes.
func (a *Agent) Fail(reason string) {
	a.setState(StateFailed, reason)
}

// Complete transitions the agent to Completed. The orchestrator uses it to
// retire a forger whose deliverable has been deployed.
func (a *Agent) Complete(reason string) {
	a.setState(StateCompleted, reason)
}

func (a *Agent) setState(s State, thought string) {
	a.mu.Lock()
	if a.state.Terminal() {
		a.mu.Unlock()
		return
	}
	a.state = s
	if thought != "" {
		a.thoughts = append(a.thoughts, thought)
	}
	a.mu.Unlock()

	if s.Terminal() {
		a.log.Info("agent reached terminal state", "state", string(s))
	}
}

func (a *Agent) addThought(t string) {
	a.mu.Lock()
	a.thoughts = append(a.thoughts, t)
	a.mu.Unlock()
}

func (a *Agent) record(r Record) {
	a.mu.Lock()
	a.results = append(a.results, r)
	if r.Error == "" {
		a.consecutiveErrors = 0
	} else {
		a.consecutiveErrors++
	}
	exhausted := a.consecutiveErrors >= MaxConsecutiveErrors
	a.mu.Unlock()

	if exhausted {
		a.setState(StateFailed, fmt.Sprintf("Exceeded error budget (%d consecutive errors)", MaxConsecutiveErrors))
	}
}

// Run drives the agent until a terminal state or context cancellation.
// Cancellation flips the agent to Failed.
func (a *Agent) Run(ctx context.Context) {
	a.log.Info("agent starting", "task", a.Config.Task, "budget", a.Config.Budget)

	if a.IsFounder() {
		a.runFounder(ctx)
	} else {
		a.runWorker(ctx)
	}

	if ctx.Err() != nil && !a.State().Terminal() {
		a.setState(StateFailed, "Cancelled during shutdown")
	}
	a.reportToParent()
}

// balance reads the agent's current funds; a missing account reads as 0.
func (a *Agent) balance() float64 {
	return a.ledger.Balance(a.ID)
}

// think issues one LLM call and charges the token cost. A denied charge
// kills the agent. Returns the raw response text and whether the agent may
// continue.
func (a *Agent) think(ctx context.Context, prompt string) (string, bool) {
	if a.balance() <= 0 {
		a.setState(StateDead, "Out of funds - cannot think")
		return "", false
	}

	text, inTokens, outTokens := a.llm.Call(ctx, prompt)

	cost := float64(inTokens)/1e6*a.sys.PricePer1MInputTokens +
		float64(outTokens)/1e6*a.sys.PricePer1MOutputTokens
	if cost > 0 {
		if err := a.ledger.Charge(a.ID, cost, ledger.KindAPICall, "LLM call"); err != nil {
			a.setState(StateDead, "Out of funds - cannot think")
			return "", false
		}
	}

	a.addThought(text)
	return text, true
}

// reportToParent sends the final status and artifact list to the parent's
// mailbox. The founder has no parent and reports to nobody.
func (a *Agent) reportToParent() {
	if a.Config.ParentID == "" {
		return
	}

	status := "task_failed"
	if a.State() == StateCompleted {
		status = "task_completed"
	}

	content := map[string]any{
		"status":    status,
		"artifacts": a.workspaceArtifacts(),
		"summary":   a.LastThought(),
	}
	if err := a.sup.SendMessage(a.ID, a.Config.ParentID, content); err != nil {
		a.log.Warn("final report undeliverable", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
