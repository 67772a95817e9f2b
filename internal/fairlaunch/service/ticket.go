package service

import (
	"context"
	"errors"

	"fairlaunch/internal/fairlaunch/events"
	"fairlaunch/internal/fairlaunch/keys"
	"fairlaunch/internal/fairlaunch/ledger"
	"fairlaunch/internal/fairlaunch/models"
	id "fairlaunch/pkg/domain"
	dErrors "fairlaunch/pkg/domainerrors"
	"fairlaunch/pkg/sentinel"
)

// Purchase creates the buyer's ticket during phase one. The bid amount must
// sit on a tick inside the configured range, and the full amount moves to
// the treasury before any record is written. The ticket is assigned the next
// sale-order sequence number, so sequences stay gapless.
func (s *Service) Purchase(ctx context.Context, auctionKey keys.Key, buyer id.BuyerID, amount uint64) (*models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "service.Purchase")
	defer span.End()

	if buyer.IsNil() {
		s.opFailed("purchase")
		return nil, dErrors.New(dErrors.CodeBadRequest, "buyer is required")
	}

	auction, err := s.loadAuction(ctx, auctionKey)
	if err != nil {
		s.opFailed("purchase")
		return nil, err
	}
	if !auction.Config.InPhaseOne(s.now()) {
		s.opFailed("purchase")
		return nil, models.ErrOutsidePhaseOne
	}
	if _, err := auction.Config.TickIndex(amount); err != nil {
		s.opFailed("purchase")
		return nil, err
	}

	sold, err := checkedInc(auction.TicketsSoldPhaseOne)
	if err != nil {
		s.opFailed("purchase")
		return nil, err
	}

	ticket := &models.Ticket{
		Auction: auction.Key,
		Buyer:   buyer,
		Amount:  amount,
		State:   models.TicketUnpunched,
		Seq:     auction.TicketsSoldPhaseOne,
	}

	// Refuse a duplicate buyer before charging them. A reserved-but-empty
	// record under the key is a prior attempt that failed mid-flight; it is
	// resumed below, after this attempt's payment clears.
	if data, rerr := s.store.Read(ctx, ticket.Key()); rerr == nil && len(data) > 0 {
		s.opFailed("purchase")
		return nil, dErrors.New(dErrors.CodeConflict, "buyer already holds a ticket for this sale")
	} else if rerr != nil && !errors.Is(rerr, sentinel.ErrNotFound) {
		s.opFailed("purchase")
		return nil, dErrors.Wrap(rerr, dErrors.CodeInternal, "failed to read ticket")
	}

	// Payment comes first. If it fails nothing has been reserved, so the
	// counter never moves and the buyer can simply retry.
	buyerAcct := ledger.BuyerAccount(buyer)
	treasuryAcct := ledger.TreasuryAccount(auction.Treasury)
	if err := s.ledger.Transfer(ctx, buyerAcct, treasuryAcct, amount); err != nil {
		s.opFailed("purchase")
		return nil, dErrors.Wrap(err, dErrors.CodeTransferFailed, "bid payment failed")
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rerr := s.ledger.Transfer(ctx, treasuryAcct, buyerAcct, amount); rerr != nil {
			s.logger.WarnContext(ctx, "refund of failed purchase did not complete",
				"auction", auction.Key,
				"buyer", buyer,
				"amount", amount,
				"error", rerr,
			)
		}
	}()

	// The ticket key doubles as the one-per-buyer lock. Written duplicates
	// were refused above, so a racing conflict here means another request for
	// the same buyer won the lock.
	if err := s.reserve(ctx, ticket.Key(), keys.SizeTicket); err != nil {
		s.opFailed("purchase")
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "buyer already holds a ticket for this sale")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate ticket")
	}
	seqKey := keys.SequenceKey(auction.Key, ticket.Seq)
	if err := s.reserve(ctx, seqKey, keys.SizeSequenceIndex); err != nil {
		s.opFailed("purchase")
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeIntegrity, "sequence index already committed")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate sequence index")
	}

	if err := auction.AddBid(amount); err != nil {
		s.opFailed("purchase")
		return nil, err
	}
	auction.TicketsSoldPhaseOne = sold

	if err := s.saveTicket(ctx, ticket); err != nil {
		s.opFailed("purchase")
		return nil, err
	}
	index := models.SequenceIndex{Ticket: ticket.Key(), Seq: ticket.Seq}
	data, err := index.MarshalBinary()
	if err != nil {
		s.opFailed("purchase")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode sequence index")
	}
	if err := s.store.Write(ctx, seqKey, data); err != nil {
		s.opFailed("purchase")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write sequence index")
	}
	if err := s.saveAuction(ctx, auction); err != nil {
		s.opFailed("purchase")
		return nil, err
	}
	committed = true

	if s.metrics != nil {
		s.metrics.TicketsPurchased.Inc()
		s.metrics.BidVolume.Add(float64(amount))
	}
	s.emit(ctx, events.Event{
		Type:    events.TypeTicketPurchased,
		Auction: auction.Key.String(),
		Buyer:   buyer.String(),
		Amount:  amount,
		Seq:     ticket.Seq,
	})
	s.logger.InfoContext(ctx, "ticket purchased",
		"auction", auction.Key,
		"buyer", buyer,
		"amount", amount,
		"seq", ticket.Seq,
	)
	return ticket, nil
}

// reserve creates a record under a key. A conflict on a record that is still
// empty is a leftover of an attempt that failed before writing; the
// reservation is reused so the record stays claimable. A conflict on a
// written record is surfaced as sentinel.ErrConflict.
func (s *Service) reserve(ctx context.Context, key keys.Key, size uint64) error {
	err := s.store.CreateIfAbsent(ctx, key, size)
	if err == nil || !errors.Is(err, sentinel.ErrConflict) {
		return err
	}
	data, rerr := s.store.Read(ctx, key)
	if rerr != nil {
		return rerr
	}
	if len(data) > 0 {
		return sentinel.ErrConflict
	}
	return nil
}

// Adjust moves a live bid to a new amount. During phases one and two the bid
// moves freely in either direction; during phase three a bid above the
// clearing price may only move down without crossing it, and a bid at or
// below may only move down. Setting the current amount is a no-op success.
func (s *Service) Adjust(ctx context.Context, auctionKey keys.Key, buyer id.BuyerID, newAmount uint64) (*models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "service.Adjust")
	defer span.End()

	auction, err := s.loadAuction(ctx, auctionKey)
	if err != nil {
		s.opFailed("adjust")
		return nil, err
	}
	ticket, err := s.loadTicket(ctx, auction.Key, buyer)
	if err != nil {
		s.opFailed("adjust")
		return nil, err
	}
	if ticket.State.Terminal() {
		s.opFailed("adjust")
		return nil, models.ErrTicketFinalized
	}
	if _, err := auction.Config.TickIndex(newAmount); err != nil {
		s.opFailed("adjust")
		return nil, err
	}

	now := s.now()
	switch {
	case auction.Config.InAdjustWindow(now):
		// Free movement.
	case auction.Config.InPhaseThree(now):
		if auction.DecidedMedian == nil {
			s.opFailed("adjust")
			return nil, models.ErrMedianNotDecided
		}
		median := *auction.DecidedMedian
		if newAmount > ticket.Amount {
			s.opFailed("adjust")
			return nil, models.ErrCannotIncreaseBid
		}
		if ticket.Amount > median && newAmount < median {
			s.opFailed("adjust")
			return nil, models.ErrCannotDropBelowMedian
		}
	default:
		s.opFailed("adjust")
		return nil, models.ErrOutsideAdjustWindow
	}

	if newAmount == ticket.Amount {
		return ticket, nil
	}

	buyerAcct := ledger.BuyerAccount(buyer)
	treasuryAcct := ledger.TreasuryAccount(auction.Treasury)
	if newAmount > ticket.Amount {
		err = s.ledger.Transfer(ctx, buyerAcct, treasuryAcct, newAmount-ticket.Amount)
	} else {
		err = s.ledger.Transfer(ctx, treasuryAcct, buyerAcct, ticket.Amount-newAmount)
	}
	if err != nil {
		s.opFailed("adjust")
		return nil, dErrors.Wrap(err, dErrors.CodeTransferFailed, "bid adjustment payment failed")
	}

	if err := auction.RemoveBid(ticket.Amount); err != nil {
		s.opFailed("adjust")
		return nil, err
	}
	if err := auction.AddBid(newAmount); err != nil {
		s.opFailed("adjust")
		return nil, err
	}
	oldAmount := ticket.Amount
	ticket.Amount = newAmount

	if err := s.saveTicket(ctx, ticket); err != nil {
		s.opFailed("adjust")
		return nil, err
	}
	if err := s.saveAuction(ctx, auction); err != nil {
		s.opFailed("adjust")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TicketsAdjusted.Inc()
		if newAmount > oldAmount {
			s.metrics.BidVolume.Add(float64(newAmount - oldAmount))
		}
	}
	s.emit(ctx, events.Event{
		Type:    events.TypeTicketAdjusted,
		Auction: auction.Key.String(),
		Buyer:   buyer.String(),
		Amount:  newAmount,
		Seq:     ticket.Seq,
	})
	s.logger.InfoContext(ctx, "ticket adjusted",
		"auction", auction.Key,
		"buyer", buyer,
		"from", oldAmount,
		"to", newAmount,
	)
	return ticket, nil
}

// Punch settles a ticket during phase three. A winner (its sequence bit is
// set in the lottery bitmap) is minted exactly one sale token and the ticket
// becomes punched; a loser is refunded its full bid and the ticket becomes
// withdrawn. Either way the ticket is terminal afterwards.
func (s *Service) Punch(ctx context.Context, auctionKey keys.Key, buyer id.BuyerID) (*models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "service.Punch")
	defer span.End()

	auction, err := s.loadAuction(ctx, auctionKey)
	if err != nil {
		s.opFailed("punch")
		return nil, err
	}
	if !auction.Config.InPhaseThree(s.now()) {
		s.opFailed("punch")
		return nil, models.ErrOutsidePhaseThree
	}
	ticket, err := s.loadTicket(ctx, auction.Key, buyer)
	if err != nil {
		s.opFailed("punch")
		return nil, err
	}
	if ticket.State.Terminal() {
		s.opFailed("punch")
		return nil, models.ErrTicketFinalized
	}

	bitmap, err := s.loadLottery(ctx, auction.Key)
	if err != nil {
		s.opFailed("punch")
		return nil, err
	}

	buyerAcct := ledger.BuyerAccount(buyer)
	if bitmap.IsWinner(ticket.Seq) {
		if err := s.ledger.MintTo(ctx, auction.TokenMint, buyerAcct, 1); err != nil {
			s.opFailed("punch")
			return nil, dErrors.Wrap(err, dErrors.CodeTransferFailed, "token mint failed")
		}
		punched, err := checkedInc(auction.TicketsPunchedPhaseThree)
		if err != nil {
			s.opFailed("punch")
			return nil, err
		}
		auction.TicketsPunchedPhaseThree = punched
		ticket.State = models.TicketPunched
	} else {
		if err := s.ledger.Transfer(ctx, ledger.TreasuryAccount(auction.Treasury), buyerAcct, ticket.Amount); err != nil {
			s.opFailed("punch")
			return nil, dErrors.Wrap(err, dErrors.CodeTransferFailed, "refund failed")
		}
		ticket.State = models.TicketWithdrawn
	}

	if err := s.saveTicket(ctx, ticket); err != nil {
		s.opFailed("punch")
		return nil, err
	}
	if err := s.saveAuction(ctx, auction); err != nil {
		s.opFailed("punch")
		return nil, err
	}

	if ticket.State == models.TicketPunched {
		if s.metrics != nil {
			s.metrics.TicketsPunched.Inc()
		}
		s.emit(ctx, events.Event{
			Type:    events.TypeTicketPunched,
			Auction: auction.Key.String(),
			Buyer:   buyer.String(),
			Seq:     ticket.Seq,
		})
	} else {
		if s.metrics != nil {
			s.metrics.TicketsWithdrawn.Inc()
		}
		s.emit(ctx, events.Event{
			Type:    events.TypeTicketWithdrawn,
			Auction: auction.Key.String(),
			Buyer:   buyer.String(),
			Amount:  ticket.Amount,
			Seq:     ticket.Seq,
		})
	}
	s.logger.InfoContext(ctx, "ticket settled",
		"auction", auction.Key,
		"buyer", buyer,
		"state", ticket.State,
	)
	return ticket, nil
}

// GetTicket loads a buyer's ticket for an auction.
func (s *Service) GetTicket(ctx context.Context, auctionKey keys.Key, buyer id.BuyerID) (*models.Ticket, error) {
	return s.loadTicket(ctx, auctionKey, buyer)
}
