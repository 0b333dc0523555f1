package agent

import (
	"context"
	"fmt"
	"strings"
)

// PlanStep is one DELEGATE entry of the founder's validated plan. Steps run
// strictly in order: step N is dispatched only once step N-1 is finished.
type PlanStep struct {
	Role     string
	Task     string
	Criteria *Criteria
}

// runFounder drives the root agent. With advanced planning on, the plan
// pipeline (planning prompt, architect validation, one regeneration) is
// authoritative; otherwise the founder degrades to the single-shot
// delegation/waiting prompts.
func (a *Agent) runFounder(ctx context.Context) {
	if !a.sys.Capabilities.AllowAdvancedPlanning {
		a.runFounderFallback(ctx)
		return
	}
	if !a.ensurePlan(ctx) {
		return
	}
	a.dispatchPlan(ctx)
}

// ensurePlan creates and validates the plan once. Returns false when the
// founder reached a terminal state instead.
func (a *Agent) ensurePlan(ctx context.Context) bool {
	prompt := fmt.Sprintf(founderPlanningTemplate, a.Config.Task)

	text, ok := a.think(ctx, prompt)
	if !ok {
		return false
	}
	plan, err := parsePlan(text)

	if err == nil {
		valid, reasoning := a.validatePlan(ctx, text)
		if a.State().Terminal() {
			return false
		}
		if !valid {
			err = fmt.Errorf("architect rejected plan: %s", reasoning)
		}
	}

	if err != nil {
		// One regeneration with the failure reason appended.
		a.log.Warn("plan rejected, regenerating once", "reason", err)
		retry := prompt + "\n\nYour previous plan was rejected for this reason, address it:\n" + err.Error()
		text, ok = a.think(ctx, retry)
		if !ok {
			return false
		}
		plan, err = parsePlan(text)
		if err != nil {
			a.setState(StateFailed, "Planning failed: "+err.Error())
			return false
		}
	}

	a.mu.Lock()
	a.plan = plan
	a.planCreated = true
	a.mu.Unlock()
	a.log.Info("plan created", "steps", len(plan))
	return true
}

// validatePlan runs the architect round over a draft plan.
func (a *Agent) validatePlan(ctx context.Context, planJSON string) (bool, string) {
	prompt := fmt.Sprintf(architectValidationTemplate, a.Config.Task, planJSON)

	text, ok := a.think(ctx, prompt)
	if !ok {
		return false, "founder terminated during validation"
	}

	obj, parsed := outerJSONObject(text)
	if !parsed {
		// An unreadable verdict does not invalidate the plan.
		return true, ""
	}
	valid, _ := obj["is_valid"].(bool)
	reasoning := stringField(obj, "reasoning")
	return valid, reasoning
}

// dispatchPlan runs the step loop: wait for the previous step to finish and
// report, then delegate the next one; complete when every child is done.
func (a *Agent) dispatchPlan(ctx context.Context) {
	for a.State() == StateActive {
		if ctx.Err() != nil {
			return
		}

		a.ingestReports()
		next := len(a.Subagents())

		if next >= len(a.plan) {
			if a.childrenTerminal() {
				a.setState(StateCompleted, "All plan steps delegated and finished")
				return
			}
			if !sleepCtx(ctx, founderWait) {
				return
			}
			continue
		}

		if next > 0 && !a.stepReady(next) {
			if !sleepCtx(ctx, founderWait) {
				return
			}
			continue
		}

		step := a.plan[next]
		task := step.Task
		if next > 0 {
			task += a.contextFromStep(next - 1)
		}

		rec := a.delegate(ctx, Action{
			Kind:               ActionDelegate,
			Role:               step.Role,
			Task:               task,
			CompletionCriteria: step.Criteria,
			StepIndex:          next,
		})
		a.record(rec)
		if rec.Error != "" {
			if !sleepCtx(ctx, founderWait) {
				return
			}
		}
	}
}

// ingestReports drains the founder's mailbox into childReports.
func (a *Agent) ingestReports() {
	for _, m := range a.sup.Messages(a.ID) {
		a.mu.Lock()
		a.childReports[m.From] = m.Content
		a.mu.Unlock()
	}
}

// stepReady reports whether every child bound to an earlier step is
// terminal and has reported back. Every agent files a final report on the
// way out, even a dead one, so waiting for it cannot wedge the plan — and
// dispatching before it arrives would drop the previous-step context.
func (a *Agent) stepReady(next int) bool {
	a.mu.Lock()
	children := make([]string, 0, len(a.delegatedTasks))
	for id, idx := range a.delegatedTasks {
		if idx < next {
			children = append(children, id)
		}
	}
	reported := make(map[string]bool, len(a.childReports))
	for id := range a.childReports {
		reported[id] = true
	}
	a.mu.Unlock()

	for _, id := range children {
		state, ok := a.sup.AgentState(id)
		if !ok || !state.Terminal() {
			return false
		}
		if !reported[id] {
			return false
		}
	}
	return true
}

func (a *Agent) childrenTerminal() bool {
	for _, id := range a.Subagents() {
		state, ok := a.sup.AgentState(id)
		if !ok || !state.Terminal() {
			return false
		}
	}
	return true
}

// contextFromStep builds the "CONTEXT FROM PREVIOUS STEP" suffix from the
// report of the child bound to stepIndex.
func (a *Agent) contextFromStep(stepIndex int) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, idx := range a.delegatedTasks {
		if idx != stepIndex {
			continue
		}
		report, ok := a.childReports[id]
		if !ok {
			break
		}
		if artifacts, ok := report["artifacts"].([]any); ok && len(artifacts) > 0 {
			parts := make([]string, 0, len(artifacts))
			for _, art := range artifacts {
				if s, ok := art.(string); ok {
					parts = append(parts, s)
				}
			}
			return "\n\nCONTEXT FROM PREVIOUS STEP: the previous specialist produced these artifacts: " +
				strings.Join(parts, ", ")
		}
		if summary, ok := report["summary"].(string); ok && summary != "" {
			return "\n\nCONTEXT FROM PREVIOUS STEP: " + snippet(summary)
		}
	}
	return ""
}

// runFounderFallback is the degraded single-shot path: one delegation
// prompt, then waiting prompts until the children finish.
func (a *Agent) runFounderFallback(ctx context.Context) {
	for a.State() == StateActive {
		if ctx.Err() != nil {
			return
		}
		a.ingestReports()

		if len(a.Subagents()) == 0 {
			prompt := fmt.Sprintf(founderDelegationTemplate, a.Config.Task, a.balance(), a.historyContext())
			text, ok := a.think(ctx, prompt)
			if !ok {
				return
			}
			act := ParseAction(text)
			switch act.Kind {
			case ActionDelegate:
				a.record(a.delegate(ctx, act))
			case ActionComplete:
				a.setState(StateCompleted, act.Reasoning)
				return
			case ActionFail:
				a.setState(StateFailed, act.Reasoning)
				return
			default:
				a.record(Record{Action: "error", Error: "unparseable founder response: " + snippet(act.Raw)})
			}
			if !sleepCtx(ctx, workerPause) {
				return
			}
			continue
		}

		if a.childrenTerminal() {
			a.setState(StateCompleted, "All delegated work finished")
			return
		}

		prompt := fmt.Sprintf(founderWaitingTemplate, a.Config.Task, a.balance(), a.historyContext())
		text, ok := a.think(ctx, prompt)
		if !ok {
			return
		}
		if act := ParseAction(text); act.Kind == ActionFail {
			a.setState(StateFailed, act.Reasoning)
			return
		}
		if !sleepCtx(ctx, founderWait) {
			return
		}
	}
}

// parsePlan extracts the ordered DELEGATE steps from a planning response.
func parsePlan(raw string) ([]PlanStep, error) {
	obj, ok := outerJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("planning response is not JSON")
	}

	rawPlan, ok := obj["plan"].([]any)
	if !ok || len(rawPlan) == 0 {
		return nil, fmt.Errorf("planning response has no plan")
	}

	steps := make([]PlanStep, 0, len(rawPlan))
	for i, entry := range rawPlan {
		stepObj, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("plan step %d is not an object", i)
		}
		if action := strings.ToUpper(stringField(stepObj, "action")); action != string(ActionDelegate) {
			return nil, fmt.Errorf("plan step %d has action %q, want DELEGATE", i, action)
		}
		details, _ := stepObj["details"].(map[string]any)
		if details == nil {
			details = stepObj
		}
		step := PlanStep{
			Role:     stringField(details, "role"),
			Task:     stringField(details, "task"),
			Criteria: criteriaField(details),
		}
		if step.Role == "" || step.Task == "" {
			return nil, fmt.Errorf("plan step %d is missing role or task", i)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// Plan returns a copy of the validated plan, for result reporting.
func (a *Agent) Plan() []PlanStep {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]PlanStep, len(a.plan))
	copy(out, a.plan)
	return out
}
