// Package models holds the fair-launch entities: the auction aggregate, its
// config, tickets with their sequence index, and the lottery bitmap. All
// relationships between entities are expressed as derived keys, never as
// in-memory references.
package models

import (
	"fairlaunch/internal/fairlaunch/keys"
	id "fairlaunch/pkg/domain"
)

// Bucket is one histogram slot: the count of live bids at a price tick.
type Bucket struct {
	Price uint64 `json:"price"`
	Count uint64 `json:"count"`
}

// Auction is the aggregate root for one token sale. Counters and histogram
// are mutated only through ticket operations; DecidedMedian is set exactly
// once by price discovery and immutable afterwards.
type Auction struct {
	Key          keys.Key        `json:"key"`
	Authority    id.AuthorityID  `json:"authority"`
	TokenMint    keys.Key        `json:"token_mint"`
	Treasury     keys.Key        `json:"treasury"`
	TreasuryMint *id.CurrencyID  `json:"treasury_mint,omitempty"`
	Config       AuctionConfig   `json:"config"`

	TicketsSoldPhaseOne      uint64  `json:"tickets_sold_phase_1"`
	TicketsRemainingPhaseTwo uint64  `json:"tickets_remaining_phase_2"`
	TicketsPunchedPhaseThree uint64  `json:"tickets_punched_phase_3"`
	DecidedMedian            *uint64 `json:"decided_median,omitempty"`

	// Histogram has exactly Config.TickCount() slots, fixed at creation.
	Histogram []Bucket `json:"histogram"`
}

// NewAuction builds a zeroed aggregate for a validated config. Derived
// identities (auction key, token mint, treasury) are computed, not supplied.
func NewAuction(cfg AuctionConfig, authority id.AuthorityID, treasuryMint *id.CurrencyID) *Auction {
	mint := keys.TokenMintKey(authority.Bytes(), cfg.UUID)
	auctionKey := keys.AuctionKey(mint)

	hist := make([]Bucket, cfg.TickCount())
	for i := range hist {
		hist[i].Price = cfg.PriceForTick(i)
	}

	return &Auction{
		Key:          auctionKey,
		Authority:    authority,
		TokenMint:    mint,
		Treasury:     keys.TreasuryKey(mint),
		TreasuryMint: treasuryMint,
		Config:       cfg,
		Histogram:    hist,
	}
}

// Size returns the aggregate's storage allocation in bytes.
func (a *Auction) Size() uint64 {
	return keys.AuctionSize(uint64(len(a.Histogram)))
}

// AddBid increments the histogram bucket for a bid amount.
func (a *Auction) AddBid(amount uint64) error {
	i, err := a.Config.TickIndex(amount)
	if err != nil {
		return err
	}
	if a.Histogram[i].Count+1 < a.Histogram[i].Count {
		return ErrNumericalOverflow
	}
	a.Histogram[i].Count++
	return nil
}

// RemoveBid decrements the histogram bucket for a bid amount. A decrement of
// an empty bucket means the aggregate and a ticket disagree, which is an
// invariant breach, not a user error.
func (a *Auction) RemoveBid(amount uint64) error {
	i, err := a.Config.TickIndex(amount)
	if err != nil {
		return err
	}
	if a.Histogram[i].Count == 0 {
		return ErrNumericalOverflow
	}
	a.Histogram[i].Count--
	return nil
}

// BidsInHistogram returns the sum over all buckets. Equals
// TicketsSoldPhaseOne at every point during the sale.
func (a *Auction) BidsInHistogram() uint64 {
	var total uint64
	for _, b := range a.Histogram {
		total += b.Count
	}
	return total
}
