package service

import (
	"context"
	"errors"
	"time"

	"fairlaunch/internal/fairlaunch/events"
	"fairlaunch/internal/fairlaunch/keys"
	"fairlaunch/internal/fairlaunch/models"
	id "fairlaunch/pkg/domain"
	dErrors "fairlaunch/pkg/domainerrors"
	"fairlaunch/pkg/sentinel"
)

// InitializeParams carries everything needed to create a sale. Treasury is
// the caller's claimed treasury address and must match the derivation from
// the token mint; TreasuryMint, when set, selects an alternate currency
// instead of the native one.
type InitializeParams struct {
	Config       models.AuctionConfig
	Authority    id.AuthorityID
	Treasury     keys.Key
	TreasuryMint *id.CurrencyID
}

// Initialize validates the config, derives the sale's identities, and
// creates the auction aggregate with an empty histogram.
func (s *Service) Initialize(ctx context.Context, params InitializeParams) (*models.Auction, error) {
	ctx, span := s.tracer.Start(ctx, "service.Initialize")
	defer span.End()

	if params.Authority.IsNil() {
		s.opFailed("initialize")
		return nil, dErrors.New(dErrors.CodeBadRequest, "authority is required")
	}
	if err := params.Config.Validate(); err != nil {
		s.opFailed("initialize")
		return nil, err
	}

	mint := keys.TokenMintKey(params.Authority.Bytes(), params.Config.UUID)
	if params.Treasury != keys.TreasuryKey(mint) {
		s.opFailed("initialize")
		return nil, models.ErrDerivedKeyInvalid
	}

	if params.TreasuryMint != nil {
		currency, err := s.ledger.CurrencyInfo(ctx, *params.TreasuryMint)
		if err != nil {
			s.opFailed("initialize")
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to inspect treasury currency")
		}
		if !currency.Initialized {
			s.opFailed("initialize")
			return nil, models.ErrUninitialized
		}
		if !currency.OwnedByLedger {
			s.opFailed("initialize")
			return nil, models.ErrIncorrectOwner
		}
	} else {
		taken, err := s.store.Exists(ctx, params.Treasury)
		if err != nil {
			s.opFailed("initialize")
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check treasury")
		}
		if taken {
			s.opFailed("initialize")
			return nil, models.ErrTreasuryAlreadyExists
		}
	}

	auction := models.NewAuction(params.Config, params.Authority, params.TreasuryMint)

	if err := s.store.CreateIfAbsent(ctx, auction.Key, auction.Size()); err != nil {
		s.opFailed("initialize")
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "auction already exists for this authority and uuid")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate auction")
	}
	if err := s.saveAuction(ctx, auction); err != nil {
		s.opFailed("initialize")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AuctionsInitialized.Inc()
	}
	s.emit(ctx, events.Event{Type: events.TypeAuctionInitialized, Auction: auction.Key.String()})
	s.logger.InfoContext(ctx, "auction initialized",
		"auction", auction.Key,
		"authority", params.Authority,
		"ticks", len(auction.Histogram),
		"tokens", params.Config.NumberOfTokens,
	)
	return auction, nil
}

// ConfigUpdate is a partial update of the mutable sale parameters. Nil
// fields keep their current values. The uuid is part of the sale's derived
// identity and the phase-three window has its own operation, so neither
// appears here.
type ConfigUpdate struct {
	PriceRangeStart *uint64
	PriceRangeEnd   *uint64
	TickSize        *uint64
	PhaseOneStart   *time.Time
	PhaseOneEnd     *time.Time
	PhaseTwoEnd     *time.Time
	NumberOfTokens  *uint64
}

// UpdateConfig rewrites the sale parameters. Permitted to the authority
// only, and only strictly before phase one starts. A range or tick change
// rebuilds the histogram, which is safe because no tickets can exist yet.
func (s *Service) UpdateConfig(ctx context.Context, auctionKey keys.Key, authority id.AuthorityID, update ConfigUpdate) (*models.Auction, error) {
	ctx, span := s.tracer.Start(ctx, "service.UpdateConfig")
	defer span.End()

	auction, err := s.loadAuction(ctx, auctionKey)
	if err != nil {
		s.opFailed("update_config")
		return nil, err
	}
	if err := requireAuthority(auction, authority); err != nil {
		s.opFailed("update_config")
		return nil, err
	}
	if !s.now().Before(auction.Config.PhaseOneStart) {
		s.opFailed("update_config")
		return nil, models.ErrConfigLocked
	}

	cfg := auction.Config
	if update.PriceRangeStart != nil {
		cfg.PriceRangeStart = *update.PriceRangeStart
	}
	if update.PriceRangeEnd != nil {
		cfg.PriceRangeEnd = *update.PriceRangeEnd
	}
	if update.TickSize != nil {
		cfg.TickSize = *update.TickSize
	}
	if update.PhaseOneStart != nil {
		cfg.PhaseOneStart = *update.PhaseOneStart
	}
	if update.PhaseOneEnd != nil {
		cfg.PhaseOneEnd = *update.PhaseOneEnd
	}
	if update.PhaseTwoEnd != nil {
		cfg.PhaseTwoEnd = *update.PhaseTwoEnd
	}
	if update.NumberOfTokens != nil {
		cfg.NumberOfTokens = *update.NumberOfTokens
	}
	if err := cfg.Validate(); err != nil {
		s.opFailed("update_config")
		return nil, err
	}

	auction.Config = cfg
	hist := make([]models.Bucket, cfg.TickCount())
	for i := range hist {
		hist[i].Price = cfg.PriceForTick(i)
	}
	auction.Histogram = hist

	if err := s.saveAuction(ctx, auction); err != nil {
		s.opFailed("update_config")
		if errors.Is(err, sentinel.ErrSizeExceeded) {
			return nil, dErrors.New(dErrors.CodeValidation, "new tick count exceeds the auction's allocation")
		}
		return nil, err
	}

	s.emit(ctx, events.Event{Type: events.TypeConfigUpdated, Auction: auction.Key.String()})
	s.logger.InfoContext(ctx, "auction config updated", "auction", auction.Key)
	return auction, nil
}

// StartPhaseThree sets the claim window. Permitted once, only after the
// lottery bitmap exists, and only with timestamps after phase two's close.
func (s *Service) StartPhaseThree(ctx context.Context, auctionKey keys.Key, authority id.AuthorityID, start, end time.Time) (*models.Auction, error) {
	ctx, span := s.tracer.Start(ctx, "service.StartPhaseThree")
	defer span.End()

	auction, err := s.loadAuction(ctx, auctionKey)
	if err != nil {
		s.opFailed("start_phase_three")
		return nil, err
	}
	if err := requireAuthority(auction, authority); err != nil {
		s.opFailed("start_phase_three")
		return nil, err
	}
	if auction.Config.PhaseThreeStart != nil || auction.Config.PhaseThreeEnd != nil {
		s.opFailed("start_phase_three")
		return nil, models.ErrPhaseThreeAlreadySet
	}

	haveBitmap, err := s.store.Exists(ctx, keys.LotteryKey(auction.Key))
	if err != nil {
		s.opFailed("start_phase_three")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check lottery bitmap")
	}
	if !haveBitmap || auction.DecidedMedian == nil {
		s.opFailed("start_phase_three")
		return nil, models.ErrCantSetPhaseThreeYet
	}

	auction.Config.PhaseThreeStart = &start
	auction.Config.PhaseThreeEnd = &end
	if err := auction.Config.Validate(); err != nil {
		s.opFailed("start_phase_three")
		return nil, err
	}

	if err := s.saveAuction(ctx, auction); err != nil {
		s.opFailed("start_phase_three")
		return nil, err
	}

	s.emit(ctx, events.Event{Type: events.TypePhaseThreeSet, Auction: auction.Key.String()})
	s.logger.InfoContext(ctx, "phase three scheduled",
		"auction", auction.Key,
		"start", start,
		"end", end,
	)
	return auction, nil
}

// GetAuction loads an auction by key.
func (s *Service) GetAuction(ctx context.Context, auctionKey keys.Key) (*models.Auction, error) {
	return s.loadAuction(ctx, auctionKey)
}
