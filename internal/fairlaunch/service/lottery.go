package service

import (
	"context"
	"errors"

	"fairlaunch/internal/fairlaunch/events"
	"fairlaunch/internal/fairlaunch/keys"
	"fairlaunch/internal/fairlaunch/lottery"
	"fairlaunch/internal/fairlaunch/models"
	"fairlaunch/internal/fairlaunch/pricing"
	id "fairlaunch/pkg/domain"
	dErrors "fairlaunch/pkg/domainerrors"
	"fairlaunch/pkg/sentinel"
)

// CreateLotteryBitmap runs price discovery and allocates the winner bitmap.
// Permitted to the authority, after phase one ends and no later than phase
// two's close. Discovery fixes the clearing price and the phase-two
// oversubscription counter; both are immutable afterwards.
func (s *Service) CreateLotteryBitmap(ctx context.Context, auctionKey keys.Key, authority id.AuthorityID) (*models.LotteryBitmap, error) {
	ctx, span := s.tracer.Start(ctx, "service.CreateLotteryBitmap")
	defer span.End()

	auction, err := s.loadAuction(ctx, auctionKey)
	if err != nil {
		s.opFailed("create_lottery_bitmap")
		return nil, err
	}
	if err := requireAuthority(auction, authority); err != nil {
		s.opFailed("create_lottery_bitmap")
		return nil, err
	}

	now := s.now()
	if now.Before(auction.Config.PhaseOneEnd) {
		s.opFailed("create_lottery_bitmap")
		return nil, models.ErrPhaseOneNotOver
	}
	if now.After(auction.Config.PhaseTwoEnd) {
		s.opFailed("create_lottery_bitmap")
		return nil, models.ErrDiscoveryWindowClosed
	}
	if auction.DecidedMedian != nil {
		s.opFailed("create_lottery_bitmap")
		return nil, models.ErrMedianAlreadyDecided
	}

	result := pricing.Discover(auction.Histogram, auction.Config.NumberOfTokens)
	median := result.Median
	auction.DecidedMedian = &median
	auction.TicketsRemainingPhaseTwo = result.Oversubscription

	bitmap := models.NewLotteryBitmap(auction.Key, auction.TicketsSoldPhaseOne)
	if err := s.store.CreateIfAbsent(ctx, keys.LotteryKey(auction.Key), bitmap.Size()); err != nil {
		s.opFailed("create_lottery_bitmap")
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, models.ErrMedianAlreadyDecided
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate lottery bitmap")
	}
	if err := s.saveLottery(ctx, bitmap); err != nil {
		s.opFailed("create_lottery_bitmap")
		return nil, err
	}
	if err := s.saveAuction(ctx, auction); err != nil {
		s.opFailed("create_lottery_bitmap")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.MediansDecided.Inc()
	}
	s.emit(ctx, events.Event{
		Type:    events.TypeMedianDecided,
		Auction: auction.Key.String(),
		Median:  median,
	})
	s.logger.InfoContext(ctx, "median decided",
		"auction", auction.Key,
		"median", median,
		"eligible", result.EligibleAtOrAbove,
		"oversubscription", result.Oversubscription,
	)
	return bitmap, nil
}

// ExtendLotteryBitmap ORs one winner strip into the bitmap at a byte
// offset. Strips only ever set bits, so the winner count is monotone; a
// strip that would push it past the token supply is rejected whole.
func (s *Service) ExtendLotteryBitmap(ctx context.Context, auctionKey keys.Key, authority id.AuthorityID, offset uint64, strip []byte) (*models.LotteryBitmap, error) {
	ctx, span := s.tracer.Start(ctx, "service.ExtendLotteryBitmap")
	defer span.End()

	auction, err := s.loadAuction(ctx, auctionKey)
	if err != nil {
		s.opFailed("extend_lottery_bitmap")
		return nil, err
	}
	if err := requireAuthority(auction, authority); err != nil {
		s.opFailed("extend_lottery_bitmap")
		return nil, err
	}
	if auction.DecidedMedian == nil {
		s.opFailed("extend_lottery_bitmap")
		return nil, models.ErrMedianNotDecided
	}

	bitmap, err := s.loadLottery(ctx, auction.Key)
	if err != nil {
		s.opFailed("extend_lottery_bitmap")
		return nil, err
	}

	before := bitmap.BitmapOnes
	if err := bitmap.ApplyStrip(offset, strip, auction.Config.NumberOfTokens); err != nil {
		s.opFailed("extend_lottery_bitmap")
		return nil, err
	}

	if err := s.saveLottery(ctx, bitmap); err != nil {
		s.opFailed("extend_lottery_bitmap")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.LotteryBitsSet.Add(float64(bitmap.BitmapOnes - before))
	}
	s.emit(ctx, events.Event{
		Type:    events.TypeLotteryStrip,
		Auction: auction.Key.String(),
		Ones:    bitmap.BitmapOnes,
	})
	s.logger.InfoContext(ctx, "lottery strip applied",
		"auction", auction.Key,
		"offset", offset,
		"bytes", len(strip),
		"ones", bitmap.BitmapOnes,
	)
	return bitmap, nil
}

// PlanLottery computes the winner set and returns it as ready-to-apply
// strips. Every bid strictly above the clearing price wins outright; the
// remaining supply is raffled among the bids sitting exactly at it, seeded
// deterministically so independent operators derive the same draw. The
// returned strips feed ExtendLotteryBitmap and are not applied here.
func (s *Service) PlanLottery(ctx context.Context, auctionKey keys.Key, authority id.AuthorityID, seed []byte) ([]lottery.Strip, error) {
	ctx, span := s.tracer.Start(ctx, "service.PlanLottery")
	defer span.End()

	auction, err := s.loadAuction(ctx, auctionKey)
	if err != nil {
		s.opFailed("plan_lottery")
		return nil, err
	}
	if err := requireAuthority(auction, authority); err != nil {
		s.opFailed("plan_lottery")
		return nil, err
	}
	if auction.DecidedMedian == nil {
		s.opFailed("plan_lottery")
		return nil, models.ErrMedianNotDecided
	}
	median := *auction.DecidedMedian

	var winners, atMedian []uint64
	for seq := uint64(0); seq < auction.TicketsSoldPhaseOne; seq++ {
		ticket, err := s.ticketBySeq(ctx, auction.Key, seq)
		if err != nil {
			s.opFailed("plan_lottery")
			return nil, err
		}
		switch {
		case ticket.Amount > median:
			winners = append(winners, seq)
		case ticket.Amount == median:
			atMedian = append(atMedian, seq)
		}
	}

	remaining := 0
	if uint64(len(winners)) < auction.Config.NumberOfTokens {
		remaining = int(auction.Config.NumberOfTokens - uint64(len(winners)))
	}
	winners = append(winners, lottery.SelectWinners(auction.Key, seed, atMedian, remaining)...)

	bitmapLen := int((auction.TicketsSoldPhaseOne + 7) / 8)
	strips := lottery.Strips(winners, bitmapLen, lottery.DefaultStripBytes)

	s.logger.InfoContext(ctx, "lottery planned",
		"auction", auction.Key,
		"winners", len(winners),
		"strips", len(strips),
	)
	return strips, nil
}

func (s *Service) ticketBySeq(ctx context.Context, auctionKey keys.Key, seq uint64) (*models.Ticket, error) {
	data, err := s.store.Read(ctx, keys.SequenceKey(auctionKey, seq))
	if err != nil || len(data) == 0 {
		return nil, dErrors.Newf(dErrors.CodeIntegrity, "sequence index %d missing", seq)
	}
	var index models.SequenceIndex
	if err := index.UnmarshalBinary(data); err != nil {
		return nil, err
	}

	raw, err := s.store.Read(ctx, index.Ticket)
	if err != nil || len(raw) == 0 {
		return nil, dErrors.Newf(dErrors.CodeIntegrity, "ticket for sequence %d missing", seq)
	}
	var ticket models.Ticket
	if err := ticket.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetLottery loads an auction's lottery bitmap.
func (s *Service) GetLottery(ctx context.Context, auctionKey keys.Key) (*models.LotteryBitmap, error) {
	return s.loadLottery(ctx, auctionKey)
}
