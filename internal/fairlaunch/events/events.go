// Package events publishes auction lifecycle events for downstream
// consumers (analytics, notification fan-out). Publishing is best-effort
// from the service's perspective: a failed publish is logged, never rolls
// back a committed operation.
package events

import (
	"context"
	"time"
)

// Type enumerates the lifecycle events the service emits.
type Type string

const (
	TypeAuctionInitialized Type = "auction_initialized"
	TypeConfigUpdated      Type = "config_updated"
	TypePhaseThreeSet      Type = "phase_three_set"
	TypeTicketPurchased    Type = "ticket_purchased"
	TypeTicketAdjusted     Type = "ticket_adjusted"
	TypeMedianDecided      Type = "median_decided"
	TypeLotteryStrip       Type = "lottery_strip_applied"
	TypeTicketPunched      Type = "ticket_punched"
	TypeTicketWithdrawn    Type = "ticket_withdrawn"
)

// Event is one lifecycle fact. Auction is the aggregate's key in hex; the
// remaining fields are populated where they apply.
type Event struct {
	Type      Type      `json:"type"`
	Auction   string    `json:"auction"`
	Buyer     string    `json:"buyer,omitempty"`
	Amount    uint64    `json:"amount,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`
	Median    uint64    `json:"median,omitempty"`
	Ones      uint32    `json:"ones,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
