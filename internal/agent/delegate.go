package agent

import (
	"context"
	"fmt"

	"github.com/aos-sim/aos/internal/ledger"
)

// delegationRatio is the share of the remaining balance (after the spawn
// fee) handed to the child.
const delegationRatio = 0.75

// delegate performs the two-step economic protocol: charge the spawn fee,
// charge the child's allocation, then ask the supervisor to admit the
// child. Any failure after a successful debit is rolled back with refund
// credits, so the operation is atomic from the agent's point of view.
func (a *Agent) delegate(ctx context.Context, act Action) Record {
	if len(a.Subagents()) >= a.Config.MaxSubagents {
		return Record{
			Action: string(ActionDelegate),
			Error:  fmt.Sprintf("maximum subagents reached (%d)", a.Config.MaxSubagents),
		}
	}

	balance := a.balance()
	if balance < a.sys.SpawnCost {
		return Record{
			Action: string(ActionDelegate),
			Error:  fmt.Sprintf("insufficient funds to spawn: balance %.6f < spawn cost %.6f", balance, a.sys.SpawnCost),
		}
	}

	allocation := delegationRatio * (balance - a.sys.SpawnCost)

	if err := a.ledger.Charge(a.ID, a.sys.SpawnCost, ledger.KindSpawnAgent,
		fmt.Sprintf("spawn %s", act.Role)); err != nil {
		return Record{Action: string(ActionDelegate), Error: fmt.Sprintf("spawn charge denied: %v", err)}
	}

	if allocation > 0 {
		if err := a.ledger.Charge(a.ID, allocation, ledger.KindBudgetAllocation,
			fmt.Sprintf("budget for %s", act.Role)); err != nil {
			a.refund(a.sys.SpawnCost, "rollback: spawn fee after failed allocation")
			return Record{Action: string(ActionDelegate), Error: fmt.Sprintf("allocation charge denied: %v", err)}
		}
	}

	childID, err := a.sup.SpawnAgent(ctx, Config{
		Role:               act.Role,
		Task:               act.Task,
		Budget:             allocation,
		ParentID:           a.ID,
		CompletionCriteria: act.CompletionCriteria,
		StepIndex:          act.StepIndex,
	})
	if err != nil {
		a.refund(a.sys.SpawnCost+allocation, "rollback: admission denied")
		return Record{Action: string(ActionDelegate), Error: fmt.Sprintf("spawn denied: %v", err)}
	}

	a.mu.Lock()
	a.subagents = append(a.subagents, childID)
	if act.StepIndex >= 0 {
		a.delegatedTasks[childID] = act.StepIndex
	}
	a.mu.Unlock()

	a.log.Info("delegated task", "child", childID, "child_role", act.Role, "allocation", allocation)
	return Record{
		Action: string(ActionDelegate),
		Output: map[string]any{
			"subagent_id": childID,
			"role":        act.Role,
			"task":        act.Task,
			"budget":      allocation,
		},
	}
}

func (a *Agent) refund(amount float64, desc string) {
	if amount <= 0 {
		return
	}
	if err := a.ledger.Credit(a.ID, amount, ledger.KindRefund, desc); err != nil {
		a.log.Error("refund failed", "amount", amount, "error", err)
	}
}
