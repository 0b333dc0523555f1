package agent

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestDelegateAllocation(t *testing.T) {
	sys := testSystem(t)
	sup := newFakeSupervisor()
	llm := &scriptedClient{responses: []string{``}}

	a, book := testAgent(t, "f1", Config{Role: "Founder", Task: "build", StepIndex: -1}, sys, sup, llm, 10)
	rec := a.delegate(context.Background(), Action{
		Kind: ActionDelegate,
		Role: "Poet",
		Task: "write a poem",
	})
	if rec.Error != "" {
		t.Fatalf("delegate failed: %s", rec.Error)
	}

	// allocation = 0.75 * (10 - 0.01)
	wantAllocation := 0.75 * (10 - sys.SpawnCost)
	if len(sup.spawned) != 1 {
		t.Fatalf("spawned %d agents, want 1", len(sup.spawned))
	}
	if got := sup.spawned[0].Budget; math.Abs(got-wantAllocation) > 1e-9 {
		t.Errorf("child budget = %v, want %v", got, wantAllocation)
	}

	bal := book.Balance("f1")
	wantBalance := 10 - sys.SpawnCost - wantAllocation
	if math.Abs(bal-wantBalance) > 1e-9 {
		t.Errorf("parent balance = %v, want %v", bal, wantBalance)
	}

	if subs := a.Subagents(); len(subs) != 1 || subs[0] != "child-1" {
		t.Errorf("subagents = %v, want [child-1]", subs)
	}
}

func TestDelegateNearBankruptcy(t *testing.T) {
	sys := testSystem(t)
	sup := newFakeSupervisor()
	llm := &scriptedClient{responses: []string{``}}

	// Just above the spawn fee: the child gets 75% of the sliver left.
	balance := sys.SpawnCost + 0.004
	a, book := testAgent(t, "f2", Config{Role: "Founder", Task: "build", StepIndex: -1}, sys, sup, llm, balance)
	rec := a.delegate(context.Background(), Action{Kind: ActionDelegate, Role: "Poet", Task: "write"})
	if rec.Error != "" {
		t.Fatalf("delegate failed: %s", rec.Error)
	}

	wantAllocation := 0.75 * 0.004
	if got := sup.spawned[0].Budget; math.Abs(got-wantAllocation) > 1e-9 {
		t.Errorf("child budget = %v, want %v", got, wantAllocation)
	}
	bal := book.Balance("f2")
	if math.Abs(bal-0.25*0.004) > 1e-9 {
		t.Errorf("parent balance = %v, want %v", bal, 0.25*0.004)
	}
}

func TestDelegateBelowSpawnCost(t *testing.T) {
	sys := testSystem(t)
	sup := newFakeSupervisor()
	llm := &scriptedClient{responses: []string{``}}

	a, book := testAgent(t, "f3", Config{Role: "Founder", Task: "build", StepIndex: -1}, sys, sup, llm, sys.SpawnCost/2)
	rec := a.delegate(context.Background(), Action{Kind: ActionDelegate, Role: "Poet", Task: "write"})
	if rec.Error == "" {
		t.Fatal("delegate succeeded below the spawn fee")
	}
	if len(sup.spawned) != 0 {
		t.Errorf("spawned %d agents, want 0", len(sup.spawned))
	}
	bal := book.Balance("f3")
	if math.Abs(bal-sys.SpawnCost/2) > 1e-12 {
		t.Errorf("balance changed to %v on a refused delegation", bal)
	}
}

func TestDelegateSubagentCap(t *testing.T) {
	sys := testSystem(t)
	sup := newFakeSupervisor()
	llm := &scriptedClient{responses: []string{``}}

	a, book := testAgent(t, "f5", Config{Role: "Founder", Task: "build", MaxSubagents: 1, StepIndex: -1}, sys, sup, llm, 10)

	if rec := a.delegate(context.Background(), Action{Kind: ActionDelegate, Role: "Poet", Task: "write"}); rec.Error != "" {
		t.Fatalf("first delegate failed: %s", rec.Error)
	}
	balAfterFirst := book.Balance("f5")

	rec := a.delegate(context.Background(), Action{Kind: ActionDelegate, Role: "Editor", Task: "edit"})
	if !strings.Contains(rec.Error, "maximum subagents") {
		t.Fatalf("second delegate error = %q, want the subagent cap", rec.Error)
	}
	if len(sup.spawned) != 1 {
		t.Errorf("spawned %d agents, want 1", len(sup.spawned))
	}
	if bal := book.Balance("f5"); bal != balAfterFirst {
		t.Errorf("balance = %v after refused delegation, want %v", bal, balAfterFirst)
	}
}

func TestDelegateAdmissionDeniedRollsBack(t *testing.T) {
	sys := testSystem(t)
	sup := newFakeSupervisor()
	sup.spawnErr = errors.New("maximum number of agents reached")
	llm := &scriptedClient{responses: []string{``}}

	a, book := testAgent(t, "f4", Config{Role: "Founder", Task: "build", StepIndex: -1}, sys, sup, llm, 10)
	rec := a.delegate(context.Background(), Action{Kind: ActionDelegate, Role: "Poet", Task: "write"})
	if rec.Error == "" {
		t.Fatal("delegate succeeded against a denying supervisor")
	}

	// Both the spawn fee and the allocation come back.
	bal := book.Balance("f4")
	if math.Abs(bal-10) > 1e-9 {
		t.Errorf("balance = %v after rollback, want 10", bal)
	}
	if subs := a.Subagents(); len(subs) != 0 {
		t.Errorf("subagents = %v, want none", subs)
	}
}
