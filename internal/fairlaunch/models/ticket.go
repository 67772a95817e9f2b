package models

import (
	"fairlaunch/internal/fairlaunch/keys"
	id "fairlaunch/pkg/domain"
)

// TicketState is the closed set of ticket lifecycle states. Unpunched is the
// only non-terminal state.
type TicketState uint8

const (
	TicketUnpunched TicketState = iota
	TicketPunched
	TicketWithdrawn
)

// IsValid reports whether the tag is one of the known states.
func (s TicketState) IsValid() bool {
	return s == TicketUnpunched || s == TicketPunched || s == TicketWithdrawn
}

// Terminal reports whether the ticket can no longer change.
func (s TicketState) Terminal() bool {
	return s == TicketPunched || s == TicketWithdrawn
}

func (s TicketState) String() string {
	switch s {
	case TicketUnpunched:
		return "unpunched"
	case TicketPunched:
		return "punched"
	case TicketWithdrawn:
		return "withdrawn"
	}
	return "unknown"
}

// Ticket is a buyer's adjustable bid. One per (auction, buyer), enforced by
// the store's create-if-absent semantics on the derived ticket key.
type Ticket struct {
	Auction keys.Key    `json:"auction"`
	Buyer   id.BuyerID  `json:"buyer"`
	Amount  uint64      `json:"amount"`
	State   TicketState `json:"state"`
	Seq     uint64      `json:"seq"`
}

// Key returns the ticket's derived storage address.
func (t *Ticket) Key() keys.Key {
	return keys.TicketKey(t.Auction, t.Buyer.Bytes())
}

// SequenceIndex is the reverse lookup from a sale-order number to a ticket
// key, created atomically alongside the ticket. It is what makes the lottery
// bitmap addressable by sequence number.
type SequenceIndex struct {
	Ticket keys.Key `json:"ticket"`
	Seq    uint64   `json:"seq"`
}
