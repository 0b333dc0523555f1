// Package ledger is the account book of the simulation economy. Every agent
// has one account; all debits, credits and transfers go through the Ledger
// under a single lock, and every movement is recorded in an append-only
// transaction log.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Transaction kinds.
const (
	KindAPICall          = "api_call"
	KindSpawnAgent       = "spawn_agent"
	KindToolUsage        = "tool_usage"
	KindBudgetAllocation = "budget_allocation"
	KindAgentDeath       = "agent_death"
	KindRefund           = "refund"
)

var (
	ErrDuplicateAccount  = errors.New("account already exists")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Transaction is one recorded movement of funds. Amount is signed: negative
// for debits, positive for credits. An agent_death record has amount zero.
type Transaction struct {
	Timestamp   time.Time `json:"timestamp"`
	AgentID     string    `json:"agent_id"`
	Kind        string    `json:"kind"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
}

// Ledger tracks per-agent balances and the transaction log.
type Ledger struct {
	mu           sync.Mutex
	balances     map[string]float64
	transactions []Transaction
}

func New() *Ledger {
	return &Ledger{balances: make(map[string]float64)}
}

func (l *Ledger) record(agentID, kind string, amount float64, desc string) {
	l.transactions = append(l.transactions, Transaction{
		Timestamp:   time.Now().UTC(),
		AgentID:     agentID,
		Kind:        kind,
		Amount:      amount,
		Description: desc,
	})
}

// CreateAccount opens an account with an initial balance and records a
// budget_allocation transaction.
func (l *Ledger) CreateAccount(agentID string, initialBalance float64) error {
	if initialBalance < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.balances[agentID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, agentID)
	}
	l.balances[agentID] = initialBalance
	l.record(agentID, KindBudgetAllocation, initialBalance, "initial budget allocation")
	return nil
}

// Balance returns the current balance of an account. A missing account
// reads as 0.
func (l *Ledger) Balance(agentID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[agentID]
}

// Charge debits an account. A denied charge (unknown account or not enough
// funds) records a zero-amount agent_death transaction and returns an error;
// the balance is left untouched.
func (l *Ledger) Charge(agentID string, amount float64, kind, desc string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[agentID]
	if !ok {
		l.record(agentID, KindAgentDeath, 0, "charge denied: unknown account")
		return fmt.Errorf("%w: %s", ErrAccountNotFound, agentID)
	}
	if bal < amount {
		l.record(agentID, KindAgentDeath, 0, fmt.Sprintf("charge denied: %s (needed %.6f, had %.6f)", desc, amount, bal))
		return fmt.Errorf("%w: agent %s needs %.6f, has %.6f", ErrInsufficientFunds, agentID, amount, bal)
	}

	l.balances[agentID] = bal - amount
	l.record(agentID, kind, -amount, desc)
	return nil
}

// Credit adds funds to an existing account.
func (l *Ledger) Credit(agentID string, amount float64, kind, desc string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[agentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, agentID)
	}
	l.balances[agentID] = bal + amount
	l.record(agentID, kind, amount, desc)
	return nil
}

// Transfer atomically moves funds between two accounts: either both sides
// happen or neither does.
func (l *Ledger) Transfer(from, to string, amount float64, desc string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal, ok := l.balances[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, from)
	}
	toBal, ok := l.balances[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, to)
	}
	if fromBal < amount {
		return fmt.Errorf("%w: agent %s needs %.6f, has %.6f", ErrInsufficientFunds, from, amount, fromBal)
	}

	l.balances[from] = fromBal - amount
	l.balances[to] = toBal + amount
	l.record(from, KindBudgetAllocation, -amount, desc)
	l.record(to, KindBudgetAllocation, amount, desc)
	return nil
}

// TotalExpenditure sums |amount| over every negative entry of the
// transaction log, budget allocations included. The log is the source of
// truth for spend.
func (l *Ledger) TotalExpenditure() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, tx := range l.transactions {
		if tx.Amount < 0 {
			total += -tx.Amount
		}
	}
	return total
}

// Transactions returns a copy of the full transaction log.
func (l *Ledger) Transactions() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Transaction, len(l.transactions))
	copy(out, l.transactions)
	return out
}

// TransactionHistory returns the transactions touching one agent, in order.
func (l *Ledger) TransactionHistory(agentID string) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Transaction
	for _, tx := range l.transactions {
		if tx.AgentID == agentID {
			out = append(out, tx)
		}
	}
	return out
}

// Balances returns a copy of the balance map.
func (l *Ledger) Balances() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]float64, len(l.balances))
	for id, bal := range l.balances {
		out[id] = bal
	}
	return out
}

type snapshot struct {
	Balances     map[string]float64 `json:"balances"`
	Transactions []Transaction      `json:"transactions"`
}

// SaveToFile writes the ledger state as indented JSON.
func (l *Ledger) SaveToFile(path string) error {
	l.mu.Lock()
	snap := snapshot{
		Balances:     make(map[string]float64, len(l.balances)),
		Transactions: make([]Transaction, len(l.transactions)),
	}
	for id, bal := range l.balances {
		snap.Balances[id] = bal
	}
	copy(snap.Transactions, l.transactions)
	l.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// LoadFromFile restores a ledger from a snapshot written by SaveToFile.
func LoadFromFile(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal ledger: %w", err)
	}

	l := New()
	if snap.Balances != nil {
		l.balances = snap.Balances
	}
	l.transactions = snap.Transactions
	return l, nil
}
