package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aos-sim/aos/internal/ledger"
)

// workerPause keeps the think/act loop from spinning between iterations.
const workerPause = 100 * time.Millisecond

// runWorker is the think/act loop: drain mail, prompt, charge, parse,
// dispatch, until a terminal state.
func (a *Agent) runWorker(ctx context.Context) {
	for a.State() == StateActive {
		if ctx.Err() != nil {
			return
		}

		if a.criteriaMet() {
			a.autoDeliver(ctx)
			a.setState(StateCompleted, "Completion criteria satisfied")
			return
		}

		messages := a.sup.Messages(a.ID)
		prompt := a.workerPrompt(messages)

		text, ok := a.think(ctx, prompt)
		if !ok {
			return
		}

		a.dispatch(ctx, ParseAction(text))

		if !sleepCtx(ctx, workerPause) {
			return
		}
	}
}

func (a *Agent) dispatch(ctx context.Context, act Action) {
	switch act.Kind {
	case ActionUseTool:
		a.record(a.useTool(ctx, act))
	case ActionDelegate:
		a.record(a.delegate(ctx, act))
	case ActionRequestNewTool:
		a.sup.HandleToolRequest(a.ID, act.Description)
		a.record(Record{
			Action: string(ActionRequestNewTool),
			Output: map[string]any{"status": "pending", "description": act.Description},
		})
	case ActionComplete:
		a.autoDeliver(ctx)
		a.setState(StateCompleted, act.Reasoning)
	case ActionFail:
		a.setState(StateFailed, act.Reasoning)
	default:
		a.record(Record{Action: "error", Error: "unparseable LLM response: " + snippet(act.Raw)})
	}
}

// useTool charges the flat tool fee and executes through the toolbox. A
// denied charge is bankruptcy; tool-level failures are data and only count
// against the error budget.
func (a *Agent) useTool(ctx context.Context, act Action) Record {
	if err := a.ledger.Charge(a.ID, a.sys.ToolUseCost, ledger.KindToolUsage, "tool: "+act.Tool); err != nil {
		a.setState(StateDead, "Out of funds - cannot use tools")
		return Record{Action: string(ActionUseTool), Tool: act.Tool, Parameters: act.Parameters, Error: "charge denied"}
	}

	result := a.toolbox.Execute(ctx, act.Tool, act.Parameters)

	rec := Record{
		Action:     string(ActionUseTool),
		Tool:       act.Tool,
		Parameters: act.Parameters,
		Output:     result,
	}
	if msg, ok := result["error"].(string); ok {
		rec.Error = msg
	}
	return rec
}

// criteriaMet scans the history for a non-error record matching the
// configured completion criteria.
func (a *Agent) criteriaMet() bool {
	if a.Config.CompletionCriteria == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.results {
		if a.Config.CompletionCriteria.Matches(r) {
			return true
		}
	}
	return false
}

// workerPrompt renders the worker template with mailbox content, recent
// history and the tool inventory.
func (a *Agent) workerPrompt(messages []Message) string {
	return fmt.Sprintf(workerPromptTemplate,
		a.Config.Role,
		a.Config.Task,
		a.Config.ParentID,
		a.balance(),
		formatMessages(messages),
		a.historyContext(),
		a.Config.ParentID,
		a.Config.ParentID,
		formatToolSpecs(a.toolbox.Specs()),
	)
}

// historyContext renders the last few records as JSON lines.
func (a *Agent) historyContext() string {
	a.mu.Lock()
	recent := a.results
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	out := make([]Record, len(recent))
	copy(out, recent)
	a.mu.Unlock()

	if len(out) == 0 {
		return "None"
	}
	var s string
	for _, r := range out {
		line, _ := json.Marshal(r)
		s += string(line) + "\n"
	}
	return s
}

func formatMessages(messages []Message) string {
	if len(messages) == 0 {
		return "None"
	}
	var s string
	for _, m := range messages {
		content, _ := json.Marshal(m.Content)
		s += fmt.Sprintf("From %s: %s\n", m.From, content)
	}
	return s
}

func snippet(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
