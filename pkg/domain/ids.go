// Package domain holds typed identifiers shared across the repo. Distinct
// types prevent cross-wiring a buyer where an authority is expected; the
// compiler enforces what code review would otherwise have to catch.
package domain

import (
	"github.com/google/uuid"

	dErrors "fairlaunch/pkg/domainerrors"
)

// AuthorityID identifies the sale operator who may run privileged operations.
type AuthorityID uuid.UUID

// BuyerID identifies a ticket holder.
type BuyerID uuid.UUID

// CurrencyID identifies an alternate-currency descriptor managed by the
// external ledger (the treasury mint, when a sale is not priced in the
// native currency).
type CurrencyID uuid.UUID

// ParseAuthorityID parses and validates an authority identifier.
// Rejects empty, malformed, and nil UUIDs at the trust boundary.
func ParseAuthorityID(s string) (AuthorityID, error) {
	u, err := parse(s)
	if err != nil {
		return AuthorityID{}, err
	}
	return AuthorityID(u), nil
}

// ParseBuyerID parses and validates a buyer identifier.
func ParseBuyerID(s string) (BuyerID, error) {
	u, err := parse(s)
	if err != nil {
		return BuyerID{}, err
	}
	return BuyerID(u), nil
}

func parse(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid uuid")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil uuid")
	}
	return u, nil
}

// ParseCurrencyID parses and validates an alternate-currency identifier.
func ParseCurrencyID(s string) (CurrencyID, error) {
	u, err := parse(s)
	if err != nil {
		return CurrencyID{}, err
	}
	return CurrencyID(u), nil
}

func (id AuthorityID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id BuyerID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CurrencyID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func (id AuthorityID) String() string { return uuid.UUID(id).String() }
func (id BuyerID) String() string     { return uuid.UUID(id).String() }
func (id CurrencyID) String() string  { return uuid.UUID(id).String() }

// MarshalText renders ids in their canonical uuid form in JSON payloads.
func (id AuthorityID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id BuyerID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id CurrencyID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

// UnmarshalText parses the canonical uuid form.
func (id *AuthorityID) UnmarshalText(text []byte) error {
	parsed, err := ParseAuthorityID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *BuyerID) UnmarshalText(text []byte) error {
	parsed, err := ParseBuyerID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *CurrencyID) UnmarshalText(text []byte) error {
	parsed, err := ParseCurrencyID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Bytes returns the raw 16-byte form, used as a parent key in derivations.
func (id AuthorityID) Bytes() []byte { u := uuid.UUID(id); return u[:] }
func (id BuyerID) Bytes() []byte     { u := uuid.UUID(id); return u[:] }
func (id CurrencyID) Bytes() []byte  { u := uuid.UUID(id); return u[:] }
