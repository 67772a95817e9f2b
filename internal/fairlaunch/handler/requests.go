package handler

import (
	"time"

	"fairlaunch/internal/fairlaunch/keys"
	"fairlaunch/internal/fairlaunch/lottery"
	"fairlaunch/internal/fairlaunch/models"
	"fairlaunch/internal/fairlaunch/service"
	id "fairlaunch/pkg/domain"
)

// InitializeRequest creates a sale. Treasury is the hex key the caller
// derived for the sale's treasury; TreasuryMint optionally selects an
// alternate currency.
type InitializeRequest struct {
	UUID            string    `json:"uuid"`
	PriceRangeStart uint64    `json:"price_range_start"`
	PriceRangeEnd   uint64    `json:"price_range_end"`
	TickSize        uint64    `json:"tick_size"`
	PhaseOneStart   time.Time `json:"phase_one_start"`
	PhaseOneEnd     time.Time `json:"phase_one_end"`
	PhaseTwoEnd     time.Time `json:"phase_two_end"`
	NumberOfTokens  uint64    `json:"number_of_tokens"`
	Treasury        string    `json:"treasury"`
	TreasuryMint    string    `json:"treasury_mint,omitempty"`
}

func (r *InitializeRequest) toParams(authority id.AuthorityID) (service.InitializeParams, error) {
	treasury, err := keys.Parse(r.Treasury)
	if err != nil {
		return service.InitializeParams{}, err
	}

	params := service.InitializeParams{
		Config: models.AuctionConfig{
			UUID:            r.UUID,
			PriceRangeStart: r.PriceRangeStart,
			PriceRangeEnd:   r.PriceRangeEnd,
			TickSize:        r.TickSize,
			PhaseOneStart:   r.PhaseOneStart,
			PhaseOneEnd:     r.PhaseOneEnd,
			PhaseTwoEnd:     r.PhaseTwoEnd,
			NumberOfTokens:  r.NumberOfTokens,
		},
		Authority: authority,
		Treasury:  treasury,
	}
	if r.TreasuryMint != "" {
		currency, err := id.ParseCurrencyID(r.TreasuryMint)
		if err != nil {
			return service.InitializeParams{}, err
		}
		params.TreasuryMint = &currency
	}
	return params, nil
}

// UpdateConfigRequest carries the mutable sale parameters; absent fields
// keep their current values.
type UpdateConfigRequest struct {
	PriceRangeStart *uint64    `json:"price_range_start,omitempty"`
	PriceRangeEnd   *uint64    `json:"price_range_end,omitempty"`
	TickSize        *uint64    `json:"tick_size,omitempty"`
	PhaseOneStart   *time.Time `json:"phase_one_start,omitempty"`
	PhaseOneEnd     *time.Time `json:"phase_one_end,omitempty"`
	PhaseTwoEnd     *time.Time `json:"phase_two_end,omitempty"`
	NumberOfTokens  *uint64    `json:"number_of_tokens,omitempty"`
}

func (r *UpdateConfigRequest) toUpdate() service.ConfigUpdate {
	return service.ConfigUpdate{
		PriceRangeStart: r.PriceRangeStart,
		PriceRangeEnd:   r.PriceRangeEnd,
		TickSize:        r.TickSize,
		PhaseOneStart:   r.PhaseOneStart,
		PhaseOneEnd:     r.PhaseOneEnd,
		PhaseTwoEnd:     r.PhaseTwoEnd,
		NumberOfTokens:  r.NumberOfTokens,
	}
}

// StartPhaseThreeRequest sets the claim window.
type StartPhaseThreeRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ExtendLotteryRequest ORs one winner strip into the bitmap. Bits is
// base64-encoded raw bitmap bytes.
type ExtendLotteryRequest struct {
	Offset uint64 `json:"offset"`
	Bits   []byte `json:"bits"`
}

// PlanLotteryRequest computes the winner strips for a draw seed.
type PlanLotteryRequest struct {
	Seed []byte `json:"seed"`
}

// PlanLotteryResponse returns the strips ready for submission.
type PlanLotteryResponse struct {
	Strips []lottery.Strip `json:"strips"`
}

// PurchaseRequest buys the caller's ticket at a bid amount.
type PurchaseRequest struct {
	Amount uint64 `json:"amount"`
}

// AdjustRequest moves the caller's bid to a new amount.
type AdjustRequest struct {
	Amount uint64 `json:"amount"`
}
