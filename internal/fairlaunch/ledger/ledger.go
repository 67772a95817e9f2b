// Package ledger defines the value-movement collaborators the auction core
// calls. The core only needs the contractual effect "amount moves from A to
// B" and "N sale tokens are issued to buyer"; funding, rent, and instruction
// encoding belong to the hosting ledger.
package ledger

import (
	"context"

	"fairlaunch/internal/fairlaunch/keys"
	id "fairlaunch/pkg/domain"
)

// Account addresses a party that can hold value: a buyer's wallet, the
// derived treasury, or a currency descriptor's vault.
type Account string

// BuyerAccount addresses a buyer's wallet.
func BuyerAccount(b id.BuyerID) Account { return Account("buyer:" + b.String()) }

// TreasuryAccount addresses a sale's derived treasury.
func TreasuryAccount(k keys.Key) Account { return Account("treasury:" + k.String()) }

// Transferer moves bid value between accounts. Implementations must be
// atomic per call: either the full amount moves or nothing does.
type Transferer interface {
	Transfer(ctx context.Context, from, to Account, amount uint64) error
}

// Minter issues sale-token units to a buyer at punch time.
type Minter interface {
	MintTo(ctx context.Context, mint keys.Key, to Account, amount uint64) error
}

// Currency describes an alternate-currency descriptor referenced at
// initialization.
type Currency struct {
	Initialized   bool
	OwnedByLedger bool
}

// CurrencyInspector resolves alternate-currency descriptors so the core can
// validate them before adopting one as the sale's treasury denomination.
type CurrencyInspector interface {
	CurrencyInfo(ctx context.Context, currency id.CurrencyID) (*Currency, error)
}

// Ledger is the full collaborator surface the service needs.
type Ledger interface {
	Transferer
	Minter
	CurrencyInspector
}
