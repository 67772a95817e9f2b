package models

import (
	"time"

	dErrors "fairlaunch/pkg/domainerrors"
)

// MaxGranularity bounds the number of price ticks a sale may configure. The
// histogram is allocated one slot per tick, so this caps aggregate size.
const MaxGranularity = 100

// UUIDLength is the exact length of the sale discriminator string.
const UUIDLength = 6

// Validation and lifecycle errors. Messages follow the protocol's error
// taxonomy; codes drive transport mapping.
var (
	ErrUUIDLength            = dErrors.New(dErrors.CodeValidation, "uuid must be exactly of 6 length")
	ErrInvalidPriceRanges    = dErrors.New(dErrors.CodeValidation, "invalid price ranges")
	ErrTickSizeTooSmall      = dErrors.New(dErrors.CodeValidation, "tick size too small")
	ErrTickSizeRemainder     = dErrors.New(dErrors.CodeValidation, "cannot use a tick size that gives a remainder over the price range")
	ErrTooMuchGranularity    = dErrors.New(dErrors.CodeValidation, "too much granularity in range, choose a larger tick size")
	ErrZeroTokens            = dErrors.New(dErrors.CodeValidation, "cannot give zero tokens")
	ErrTimestampsDontLineUp  = dErrors.New(dErrors.CodeValidation, "timestamps of phases should line up")
	ErrAmountOutOfRange      = dErrors.New(dErrors.CodeValidation, "amount outside the configured price range")
	ErrAmountNotOnTick       = dErrors.New(dErrors.CodeValidation, "amount does not align to a tick boundary")
	ErrCantSetPhaseThreeYet  = dErrors.New(dErrors.CodePhaseViolation, "cant set phase 3 dates yet")
	ErrPhaseThreeAlreadySet  = dErrors.New(dErrors.CodePhaseViolation, "phase 3 dates already set")
	ErrConfigLocked          = dErrors.New(dErrors.CodePhaseViolation, "config is immutable once phase 1 has started")
	ErrOutsidePhaseOne       = dErrors.New(dErrors.CodePhaseViolation, "operation only permitted during phase 1")
	ErrOutsideAdjustWindow   = dErrors.New(dErrors.CodePhaseViolation, "operation not permitted in the current phase")
	ErrOutsidePhaseThree     = dErrors.New(dErrors.CodePhaseViolation, "operation only permitted during phase 3")
	ErrPhaseOneNotOver       = dErrors.New(dErrors.CodePhaseViolation, "phase 1 has not ended yet")
	ErrDiscoveryWindowClosed = dErrors.New(dErrors.CodePhaseViolation, "price discovery window has closed")
	ErrMedianAlreadyDecided  = dErrors.New(dErrors.CodePhaseViolation, "median already decided")
	ErrMedianNotDecided      = dErrors.New(dErrors.CodePhaseViolation, "median has not been decided")
	ErrCannotIncreaseBid     = dErrors.New(dErrors.CodePhaseViolation, "bid may not increase during phase 3")
	ErrCannotDropBelowMedian = dErrors.New(dErrors.CodePhaseViolation, "bid above the median may not drop below it")
	ErrTicketFinalized       = dErrors.New(dErrors.CodePhaseViolation, "ticket already punched or withdrawn")
	ErrDerivedKeyInvalid     = dErrors.New(dErrors.CodeIntegrity, "derived key invalid")
	ErrTreasuryAlreadyExists = dErrors.New(dErrors.CodeIntegrity, "treasury already exists")
	ErrUninitialized         = dErrors.New(dErrors.CodeIntegrity, "referenced account is not initialized")
	ErrIncorrectOwner        = dErrors.New(dErrors.CodeIntegrity, "referenced account does not have the correct owner")
	ErrNumericalOverflow     = dErrors.New(dErrors.CodeNumericOverflow, "numerical overflow")
	ErrLotteryCapacity       = dErrors.New(dErrors.CodeNumericOverflow, "lottery winners would exceed the token supply")
	ErrStripOutOfBounds      = dErrors.New(dErrors.CodeValidation, "strip extends past the end of the bitmap")
)

// AuctionConfig holds the immutable-once-locked sale parameters. Prices are
// minor currency units; the valid bid domain is every tick in
// [PriceRangeStart, PriceRangeEnd].
type AuctionConfig struct {
	UUID            string     `json:"uuid"`
	PriceRangeStart uint64     `json:"price_range_start"`
	PriceRangeEnd   uint64     `json:"price_range_end"`
	TickSize        uint64     `json:"tick_size"`
	PhaseOneStart   time.Time  `json:"phase_one_start"`
	PhaseOneEnd     time.Time  `json:"phase_one_end"`
	PhaseTwoEnd     time.Time  `json:"phase_two_end"`
	PhaseThreeStart *time.Time `json:"phase_three_start,omitempty"`
	PhaseThreeEnd   *time.Time `json:"phase_three_end,omitempty"`
	NumberOfTokens  uint64     `json:"number_of_tokens"`
}

// Validate checks every construction-time invariant.
func (c *AuctionConfig) Validate() error {
	if len(c.UUID) != UUIDLength {
		return ErrUUIDLength
	}
	if c.TickSize == 0 {
		return ErrTickSizeTooSmall
	}
	if c.PriceRangeEnd <= c.PriceRangeStart {
		return ErrInvalidPriceRanges
	}
	if (c.PriceRangeEnd-c.PriceRangeStart)%c.TickSize != 0 {
		return ErrTickSizeRemainder
	}
	if c.TickCount() > MaxGranularity {
		return ErrTooMuchGranularity
	}
	if c.NumberOfTokens == 0 {
		return ErrZeroTokens
	}
	if !c.PhaseOneStart.Before(c.PhaseOneEnd) || c.PhaseTwoEnd.Before(c.PhaseOneEnd) {
		return ErrTimestampsDontLineUp
	}
	if c.PhaseThreeStart != nil || c.PhaseThreeEnd != nil {
		if err := c.validatePhaseThree(); err != nil {
			return err
		}
	}
	return nil
}

func (c *AuctionConfig) validatePhaseThree() error {
	if c.PhaseThreeStart == nil || c.PhaseThreeEnd == nil {
		return ErrTimestampsDontLineUp
	}
	if !c.PhaseThreeStart.After(c.PhaseTwoEnd) || !c.PhaseThreeEnd.After(c.PhaseTwoEnd) {
		return ErrTimestampsDontLineUp
	}
	if !c.PhaseThreeStart.Before(*c.PhaseThreeEnd) {
		return ErrTimestampsDontLineUp
	}
	return nil
}

// TickCount returns the number of valid price ticks, (end-start)/tick + 1.
// Only meaningful on a validated config.
func (c *AuctionConfig) TickCount() uint64 {
	return (c.PriceRangeEnd-c.PriceRangeStart)/c.TickSize + 1
}

// TickIndex maps a bid amount to its histogram slot, rejecting amounts that
// fall outside the range or between ticks.
func (c *AuctionConfig) TickIndex(amount uint64) (int, error) {
	if amount < c.PriceRangeStart || amount > c.PriceRangeEnd {
		return 0, ErrAmountOutOfRange
	}
	if (amount-c.PriceRangeStart)%c.TickSize != 0 {
		return 0, ErrAmountNotOnTick
	}
	return int((amount - c.PriceRangeStart) / c.TickSize), nil
}

// PriceForTick returns the bid amount for a histogram slot.
func (c *AuctionConfig) PriceForTick(i int) uint64 {
	return c.PriceRangeStart + uint64(i)*c.TickSize
}

// InPhaseOne reports whether now falls in the open bidding window.
func (c *AuctionConfig) InPhaseOne(now time.Time) bool {
	return !now.Before(c.PhaseOneStart) && now.Before(c.PhaseOneEnd)
}

// InAdjustWindow reports whether now falls in phase one or phase two, where
// bids may move freely in either direction.
func (c *AuctionConfig) InAdjustWindow(now time.Time) bool {
	return !now.Before(c.PhaseOneStart) && now.Before(c.PhaseTwoEnd)
}

// InPhaseThree reports whether now falls inside the configured claim window.
// False when the window has not been set.
func (c *AuctionConfig) InPhaseThree(now time.Time) bool {
	if c.PhaseThreeStart == nil || c.PhaseThreeEnd == nil {
		return false
	}
	return !now.Before(*c.PhaseThreeStart) && now.Before(*c.PhaseThreeEnd)
}
