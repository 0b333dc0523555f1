package ledger

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func TestCreateAccountDuplicate(t *testing.T) {
	l := New()
	if err := l.CreateAccount("a1", 10); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := l.CreateAccount("a1", 5); !errors.Is(err, ErrDuplicateAccount) {
		t.Errorf("duplicate create err = %v, want ErrDuplicateAccount", err)
	}
	if bal := l.Balance("a1"); bal != 10 {
		t.Errorf("balance after duplicate create = %v, want 10", bal)
	}
}

func TestChargeExactBalance(t *testing.T) {
	l := New()
	l.CreateAccount("a1", 1.5)

	if err := l.Charge("a1", 1.5, KindAPICall, "llm call"); err != nil {
		t.Fatalf("exact-balance charge failed: %v", err)
	}
	if bal := l.Balance("a1"); bal != 0 {
		t.Errorf("balance = %v, want 0", bal)
	}
}

func TestChargeDeniedRecordsDeath(t *testing.T) {
	l := New()
	l.CreateAccount("a1", 1)

	err := l.Charge("a1", 2, KindAPICall, "llm call")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if bal := l.Balance("a1"); bal != 1 {
		t.Errorf("balance changed on denied charge: %v", bal)
	}

	hist := l.TransactionHistory("a1")
	last := hist[len(hist)-1]
	if last.Kind != KindAgentDeath || last.Amount != 0 {
		t.Errorf("last tx = %+v, want zero-amount agent_death", last)
	}
}

func TestTransferAtomicity(t *testing.T) {
	l := New()
	l.CreateAccount("parent", 10)
	l.CreateAccount("child", 0)

	if err := l.Transfer("parent", "child", 4, "delegation budget"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	pb := l.Balance("parent")
	cb := l.Balance("child")
	if pb != 6 || cb != 4 {
		t.Errorf("balances = %v/%v, want 6/4", pb, cb)
	}

	// Insufficient funds: neither side moves.
	if err := l.Transfer("parent", "child", 100, "too much"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	pb = l.Balance("parent")
	cb = l.Balance("child")
	if pb != 6 || cb != 4 {
		t.Errorf("balances moved on failed transfer: %v/%v", pb, cb)
	}

	// Unknown destination: source untouched.
	if err := l.Transfer("parent", "ghost", 1, "nowhere"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
	if pb = l.Balance("parent"); pb != 6 {
		t.Errorf("source debited on failed transfer: %v", pb)
	}
}

func TestConservationUnderConcurrency(t *testing.T) {
	l := New()
	l.CreateAccount("a", 100)
	l.CreateAccount("b", 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Transfer("a", "b", 1, "ping")
		}()
		go func() {
			defer wg.Done()
			l.Transfer("b", "a", 1, "pong")
		}()
	}
	wg.Wait()

	ab := l.Balance("a")
	bb := l.Balance("b")
	if ab+bb != 200 {
		t.Errorf("total = %v, want 200", ab+bb)
	}
}

func TestTotalExpenditure(t *testing.T) {
	l := New()
	l.CreateAccount("a1", 10)

	l.Charge("a1", 2, KindAPICall, "call")
	l.Charge("a1", 1, KindToolUsage, "tool")
	l.Transfer("a1", "a1", 0.0, "") // invalid, ignored
	l.Credit("a1", 5, KindRefund, "refund")

	if got := l.TotalExpenditure(); got != 3 {
		t.Errorf("TotalExpenditure = %v, want 3", got)
	}
}

func TestTotalExpenditureCountsAllocations(t *testing.T) {
	l := New()
	l.CreateAccount("parent", 10)

	// A budget handed to a child is a debit like any other.
	l.Charge("parent", 4, KindBudgetAllocation, "budget for child")
	l.Charge("parent", 1, KindAPICall, "llm call")

	if got := l.TotalExpenditure(); got != 5 {
		t.Errorf("TotalExpenditure = %v, want 5", got)
	}
}

func TestBalanceMissingAccountReadsZero(t *testing.T) {
	l := New()
	if got := l.Balance("nobody"); got != 0 {
		t.Errorf("Balance(nobody) = %v, want 0", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	l := New()
	l.CreateAccount("founder", 50)
	l.CreateAccount("worker", 0)
	l.Charge("founder", 0.01, KindSpawnAgent, "spawn worker")
	l.Transfer("founder", "worker", 20, "delegation budget")
	l.Charge("worker", 0.5, KindAPICall, "llm call")

	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := l.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	restored, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	wantBal := l.Balances()
	gotBal := restored.Balances()
	for id, want := range wantBal {
		if got := gotBal[id]; got != want {
			t.Errorf("balance[%s] = %v, want %v", id, got, want)
		}
	}
	if got, want := len(restored.Transactions()), len(l.Transactions()); got != want {
		t.Errorf("transaction count = %d, want %d", got, want)
	}
	if got, want := restored.TotalExpenditure(), l.TotalExpenditure(); got != want {
		t.Errorf("expenditure = %v, want %v", got, want)
	}
}
