package ledger

import (
	"context"
	"fmt"
	"sync"

	"fairlaunch/internal/fairlaunch/keys"
	id "fairlaunch/pkg/domain"
)

// MemoryLedger is an in-process ledger for tests and single-node runs.
// Transfers fail on insufficient funds, which is how the transfer-failure
// error path gets exercised without a real ledger.
type MemoryLedger struct {
	mu         sync.Mutex
	balances   map[Account]uint64
	minted     map[keys.Key]map[Account]uint64
	currencies map[id.CurrencyID]Currency
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[Account]uint64),
		minted:     make(map[keys.Key]map[Account]uint64),
		currencies: make(map[id.CurrencyID]Currency),
	}
}

// Credit funds an account, used to seed buyers.
func (l *MemoryLedger) Credit(account Account, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// Balance returns an account's current funds.
func (l *MemoryLedger) Balance(account Account) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Minted returns how many sale-token units an account has received.
func (l *MemoryLedger) Minted(mint keys.Key, account Account) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minted[mint][account]
}

// RegisterCurrency records an alternate-currency descriptor.
func (l *MemoryLedger) RegisterCurrency(c id.CurrencyID, currency Currency) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currencies[c] = currency
}

// Transfer moves the full amount or nothing.
func (l *MemoryLedger) Transfer(ctx context.Context, from, to Account, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return fmt.Errorf("account %s holds %d, cannot transfer %d", from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// MintTo issues sale-token units.
func (l *MemoryLedger) MintTo(ctx context.Context, mint keys.Key, to Account, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.minted[mint] == nil {
		l.minted[mint] = make(map[Account]uint64)
	}
	l.minted[mint][to] += amount
	return nil
}

// CurrencyInfo resolves a registered descriptor; unknown currencies resolve
// to an uninitialized descriptor rather than an error.
func (l *MemoryLedger) CurrencyInfo(ctx context.Context, currency id.CurrencyID) (*Currency, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.currencies[currency]
	if !ok {
		return &Currency{}, nil
	}
	return &c, nil
}
