package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairlaunch/internal/fairlaunch/events"
	"fairlaunch/internal/fairlaunch/keys"
	"fairlaunch/internal/fairlaunch/ledger"
	"fairlaunch/internal/fairlaunch/metrics"
	"fairlaunch/internal/fairlaunch/models"
	"fairlaunch/internal/fairlaunch/store/memory"
	id "fairlaunch/pkg/domain"
	dErrors "fairlaunch/pkg/domainerrors"
)

var saleBase = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

func saleConfig() models.AuctionConfig {
	return models.AuctionConfig{
		UUID:            "ABCDEF",
		PriceRangeStart: 100,
		PriceRangeEnd:   200,
		TickSize:        50,
		PhaseOneStart:   saleBase,
		PhaseOneEnd:     saleBase.Add(24 * time.Hour),
		PhaseTwoEnd:     saleBase.Add(48 * time.Hour),
		NumberOfTokens:  10,
	}
}

type fixture struct {
	t         *testing.T
	svc       *Service
	store     *memory.Store
	ledger    *ledger.MemoryLedger
	publisher *events.MemoryPublisher
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:         t,
		store:     memory.New(),
		ledger:    ledger.NewMemoryLedger(),
		publisher: events.NewMemoryPublisher(),
		clock:     saleBase.Add(-time.Hour),
	}
	svc, err := New(f.store, f.ledger,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
		WithPublisher(f.publisher),
		WithClock(func() time.Time { return f.clock }),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) initialize(cfg models.AuctionConfig) (*models.Auction, id.AuthorityID) {
	f.t.Helper()

	authority := id.AuthorityID(uuid.New())
	mint := keys.TokenMintKey(authority.Bytes(), cfg.UUID)
	auction, err := f.svc.Initialize(context.Background(), InitializeParams{
		Config:    cfg,
		Authority: authority,
		Treasury:  keys.TreasuryKey(mint),
	})
	require.NoError(f.t, err)
	return auction, authority
}

func (f *fixture) buy(auction *models.Auction, amount uint64) id.BuyerID {
	f.t.Helper()

	buyer := id.BuyerID(uuid.New())
	f.ledger.Credit(ledger.BuyerAccount(buyer), amount*10)
	_, err := f.svc.Purchase(context.Background(), auction.Key, buyer, amount)
	require.NoError(f.t, err)
	return buyer
}

func (f *fixture) fillBitmap(auction *models.Auction, authority id.AuthorityID) *models.LotteryBitmap {
	f.t.Helper()
	ctx := context.Background()

	strips, err := f.svc.PlanLottery(ctx, auction.Key, authority, []byte("draw-seed"))
	require.NoError(f.t, err)
	for _, strip := range strips {
		_, err := f.svc.ExtendLotteryBitmap(ctx, auction.Key, authority, strip.Offset, strip.Bits)
		require.NoError(f.t, err)
	}

	bitmap, err := f.svc.GetLottery(ctx, auction.Key)
	require.NoError(f.t, err)
	return bitmap
}

func (f *fixture) openPhaseThree(auction *models.Auction, authority id.AuthorityID) {
	f.t.Helper()

	start := saleBase.Add(72 * time.Hour)
	end := saleBase.Add(96 * time.Hour)
	_, err := f.svc.StartPhaseThree(context.Background(), auction.Key, authority, start, end)
	require.NoError(f.t, err)
	f.clock = start.Add(time.Minute)
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("creates auction with derived identities and empty histogram", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())

		mint := keys.TokenMintKey(authority.Bytes(), "ABCDEF")
		assert.Equal(t, mint, auction.TokenMint)
		assert.Equal(t, keys.AuctionKey(mint), auction.Key)
		assert.Equal(t, keys.TreasuryKey(mint), auction.Treasury)
		assert.Len(t, auction.Histogram, 3)
		assert.Zero(t, auction.BidsInHistogram())
		assert.Nil(t, auction.DecidedMedian)

		loaded, err := f.svc.GetAuction(ctx, auction.Key)
		require.NoError(t, err)
		assert.Equal(t, auction.Config.UUID, loaded.Config.UUID)
		assert.Len(t, f.publisher.ByType(events.TypeAuctionInitialized), 1)
	})

	t.Run("rejects treasury key that does not derive from the mint", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Initialize(ctx, InitializeParams{
			Config:    saleConfig(),
			Authority: id.AuthorityID(uuid.New()),
			Treasury:  keys.Key{0xde, 0xad},
		})
		assert.ErrorIs(t, err, models.ErrDerivedKeyInvalid)
	})

	t.Run("rejects second auction for same authority and uuid", func(t *testing.T) {
		f := newFixture(t)
		_, authority := f.initialize(saleConfig())

		mint := keys.TokenMintKey(authority.Bytes(), "ABCDEF")
		_, err := f.svc.Initialize(ctx, InitializeParams{
			Config:    saleConfig(),
			Authority: authority,
			Treasury:  keys.TreasuryKey(mint),
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("rejects occupied treasury", func(t *testing.T) {
		f := newFixture(t)
		authority := id.AuthorityID(uuid.New())
		mint := keys.TokenMintKey(authority.Bytes(), "ABCDEF")
		treasury := keys.TreasuryKey(mint)
		require.NoError(t, f.store.CreateIfAbsent(ctx, treasury, 8))

		_, err := f.svc.Initialize(ctx, InitializeParams{
			Config:    saleConfig(),
			Authority: authority,
			Treasury:  treasury,
		})
		assert.ErrorIs(t, err, models.ErrTreasuryAlreadyExists)
	})

	t.Run("validates an alternate treasury currency", func(t *testing.T) {
		f := newFixture(t)
		authority := id.AuthorityID(uuid.New())
		mint := keys.TokenMintKey(authority.Bytes(), "ABCDEF")

		unknown := id.CurrencyID(uuid.New())
		_, err := f.svc.Initialize(ctx, InitializeParams{
			Config:       saleConfig(),
			Authority:    authority,
			Treasury:     keys.TreasuryKey(mint),
			TreasuryMint: &unknown,
		})
		assert.ErrorIs(t, err, models.ErrUninitialized)

		foreign := id.CurrencyID(uuid.New())
		f.ledger.RegisterCurrency(foreign, ledger.Currency{Initialized: true, OwnedByLedger: false})
		_, err = f.svc.Initialize(ctx, InitializeParams{
			Config:       saleConfig(),
			Authority:    authority,
			Treasury:     keys.TreasuryKey(mint),
			TreasuryMint: &foreign,
		})
		assert.ErrorIs(t, err, models.ErrIncorrectOwner)

		good := id.CurrencyID(uuid.New())
		f.ledger.RegisterCurrency(good, ledger.Currency{Initialized: true, OwnedByLedger: true})
		auction, err := f.svc.Initialize(ctx, InitializeParams{
			Config:       saleConfig(),
			Authority:    authority,
			Treasury:     keys.TreasuryKey(mint),
			TreasuryMint: &good,
		})
		require.NoError(t, err)
		require.NotNil(t, auction.TreasuryMint)
		assert.Equal(t, good, *auction.TreasuryMint)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		f := newFixture(t)
		cfg := saleConfig()
		cfg.NumberOfTokens = 0
		authority := id.AuthorityID(uuid.New())
		mint := keys.TokenMintKey(authority.Bytes(), cfg.UUID)
		_, err := f.svc.Initialize(ctx, InitializeParams{
			Config:    cfg,
			Authority: authority,
			Treasury:  keys.TreasuryKey(mint),
		})
		assert.ErrorIs(t, err, models.ErrZeroTokens)
	})
}

func TestUpdateConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("rewrites mutable fields before phase one", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())

		tokens := uint64(25)
		tick := uint64(100)
		updated, err := f.svc.UpdateConfig(ctx, auction.Key, authority, ConfigUpdate{
			NumberOfTokens: &tokens,
			TickSize:       &tick,
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(25), updated.Config.NumberOfTokens)
		assert.Len(t, updated.Histogram, 2)
	})

	t.Run("rejects growth past the original allocation", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())

		tick := uint64(25)
		_, err := f.svc.UpdateConfig(ctx, auction.Key, authority, ConfigUpdate{TickSize: &tick})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("locks once phase one has started", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Minute)

		tokens := uint64(25)
		_, err := f.svc.UpdateConfig(ctx, auction.Key, authority, ConfigUpdate{NumberOfTokens: &tokens})
		assert.ErrorIs(t, err, models.ErrConfigLocked)
	})

	t.Run("rejects non-authority callers", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())

		tokens := uint64(25)
		_, err := f.svc.UpdateConfig(ctx, auction.Key, id.AuthorityID(uuid.New()), ConfigUpdate{NumberOfTokens: &tokens})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("rejects an update that fails validation", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())

		end := uint64(199)
		_, err := f.svc.UpdateConfig(ctx, auction.Key, authority, ConfigUpdate{PriceRangeEnd: &end})
		assert.ErrorIs(t, err, models.ErrTickSizeRemainder)
	})
}

func TestPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns gapless sequence numbers and fills the histogram", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)

		buyers := []id.BuyerID{
			f.buy(auction, 100),
			f.buy(auction, 150),
			f.buy(auction, 200),
		}

		for want, buyer := range buyers {
			ticket, err := f.svc.GetTicket(ctx, auction.Key, buyer)
			require.NoError(t, err)
			assert.Equal(t, uint64(want), ticket.Seq)
			assert.Equal(t, models.TicketUnpunched, ticket.State)
		}

		loaded, err := f.svc.GetAuction(ctx, auction.Key)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), loaded.TicketsSoldPhaseOne)
		assert.Equal(t, loaded.TicketsSoldPhaseOne, loaded.BidsInHistogram())
		assert.Equal(t, uint64(450), f.ledger.Balance(ledger.TreasuryAccount(auction.Treasury)))
	})

	t.Run("rejects a second ticket for the same buyer", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)

		buyer := f.buy(auction, 150)
		_, err := f.svc.Purchase(ctx, auction.Key, buyer, 200)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("rejects amounts off the tick grid", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)

		buyer := id.BuyerID(uuid.New())
		f.ledger.Credit(ledger.BuyerAccount(buyer), 1000)
		_, err := f.svc.Purchase(ctx, auction.Key, buyer, 125)
		assert.ErrorIs(t, err, models.ErrAmountNotOnTick)

		_, err = f.svc.Purchase(ctx, auction.Key, buyer, 250)
		assert.ErrorIs(t, err, models.ErrAmountOutOfRange)
	})

	t.Run("rejects purchases outside phase one", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())

		buyer := id.BuyerID(uuid.New())
		f.ledger.Credit(ledger.BuyerAccount(buyer), 1000)

		_, err := f.svc.Purchase(ctx, auction.Key, buyer, 150)
		assert.ErrorIs(t, err, models.ErrOutsidePhaseOne)

		f.clock = saleBase.Add(25 * time.Hour)
		_, err = f.svc.Purchase(ctx, auction.Key, buyer, 150)
		assert.ErrorIs(t, err, models.ErrOutsidePhaseOne)
	})

	t.Run("fails when the buyer cannot fund the bid", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)

		buyer := id.BuyerID(uuid.New())
		f.ledger.Credit(ledger.BuyerAccount(buyer), 50)
		_, err := f.svc.Purchase(ctx, auction.Key, buyer, 150)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTransferFailed))
	})

	t.Run("a failed payment does not burn the sequence number", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)

		broke := id.BuyerID(uuid.New())
		_, err := f.svc.Purchase(ctx, auction.Key, broke, 150)
		require.True(t, dErrors.HasCode(err, dErrors.CodeTransferFailed))

		// The sale keeps moving for everyone else.
		next := f.buy(auction, 100)
		ticket, err := f.svc.GetTicket(ctx, auction.Key, next)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), ticket.Seq)

		// And the failed buyer retries cleanly once funded.
		f.ledger.Credit(ledger.BuyerAccount(broke), 150)
		retried, err := f.svc.Purchase(ctx, auction.Key, broke, 150)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), retried.Seq)

		loaded, err := f.svc.GetAuction(ctx, auction.Key)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), loaded.TicketsSoldPhaseOne)
		assert.Equal(t, loaded.TicketsSoldPhaseOne, loaded.BidsInHistogram())
		assert.Equal(t, uint64(250), f.ledger.Balance(ledger.TreasuryAccount(auction.Treasury)))
	})

	t.Run("resumes a reservation left by an interrupted attempt", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)

		buyer := id.BuyerID(uuid.New())
		f.ledger.Credit(ledger.BuyerAccount(buyer), 1000)

		// An attempt that died after reserving its keys leaves them empty.
		ticketKey := keys.TicketKey(auction.Key, buyer.Bytes())
		require.NoError(t, f.store.CreateIfAbsent(ctx, ticketKey, keys.SizeTicket))
		require.NoError(t, f.store.CreateIfAbsent(ctx, keys.SequenceKey(auction.Key, 0), keys.SizeSequenceIndex))

		ticket, err := f.svc.Purchase(ctx, auction.Key, buyer, 150)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), ticket.Seq)
		assert.Equal(t, uint64(150), f.ledger.Balance(ledger.TreasuryAccount(auction.Treasury)))
	})

	t.Run("refunds the payment when commit fails after the transfer", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)

		buyer := id.BuyerID(uuid.New())
		f.ledger.Credit(ledger.BuyerAccount(buyer), 1000)

		// A committed sequence record without its auction counter means the
		// aggregate is out of step with the index; the purchase must back out.
		seqKey := keys.SequenceKey(auction.Key, 0)
		require.NoError(t, f.store.CreateIfAbsent(ctx, seqKey, keys.SizeSequenceIndex))
		index := models.SequenceIndex{Ticket: keys.TicketKey(auction.Key, buyer.Bytes()), Seq: 0}
		data, err := index.MarshalBinary()
		require.NoError(t, err)
		require.NoError(t, f.store.Write(ctx, seqKey, data))

		_, err = f.svc.Purchase(ctx, auction.Key, buyer, 150)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))
		assert.Equal(t, uint64(1000), f.ledger.Balance(ledger.BuyerAccount(buyer)), "payment must be returned")
		assert.Zero(t, f.ledger.Balance(ledger.TreasuryAccount(auction.Treasury)))
	})
}

func TestAdjust(t *testing.T) {
	ctx := context.Background()

	t.Run("moves freely during phases one and two", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)
		buyer := f.buy(auction, 100)

		ticket, err := f.svc.Adjust(ctx, auction.Key, buyer, 200)
		require.NoError(t, err)
		assert.Equal(t, uint64(200), ticket.Amount)

		f.clock = saleBase.Add(30 * time.Hour) // phase two
		ticket, err = f.svc.Adjust(ctx, auction.Key, buyer, 100)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), ticket.Amount)

		loaded, err := f.svc.GetAuction(ctx, auction.Key)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), loaded.BidsInHistogram())
		assert.Equal(t, uint64(100), f.ledger.Balance(ledger.TreasuryAccount(auction.Treasury)))
	})

	t.Run("same amount is a no-op success", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)
		buyer := f.buy(auction, 150)

		before := f.ledger.Balance(ledger.BuyerAccount(buyer))
		adjusted := len(f.publisher.ByType(events.TypeTicketAdjusted))

		ticket, err := f.svc.Adjust(ctx, auction.Key, buyer, 150)
		require.NoError(t, err)
		assert.Equal(t, uint64(150), ticket.Amount)
		assert.Equal(t, before, f.ledger.Balance(ledger.BuyerAccount(buyer)))
		assert.Len(t, f.publisher.ByType(events.TypeTicketAdjusted), adjusted)
	})

	t.Run("rejects adjustments between phase two and phase three", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)
		buyer := f.buy(auction, 150)

		f.clock = saleBase.Add(49 * time.Hour)
		_, err := f.svc.Adjust(ctx, auction.Key, buyer, 100)
		assert.ErrorIs(t, err, models.ErrOutsideAdjustWindow)
	})

	t.Run("enforces median rules during phase three", func(t *testing.T) {
		f := newFixture(t)
		cfg := saleConfig()
		cfg.NumberOfTokens = 2
		auction, authority := f.initialize(cfg)
		f.clock = saleBase.Add(time.Hour)

		low := f.buy(auction, 100)
		high := f.buy(auction, 200)
		f.buy(auction, 150)
		f.buy(auction, 150)

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)

		loaded, err := f.svc.GetAuction(ctx, auction.Key)
		require.NoError(t, err)
		require.NotNil(t, loaded.DecidedMedian)
		require.Equal(t, uint64(150), *loaded.DecidedMedian)

		f.openPhaseThree(auction, authority)

		// Above the median: down to the median is allowed, below or up is not.
		_, err = f.svc.Adjust(ctx, auction.Key, high, 100)
		assert.ErrorIs(t, err, models.ErrCannotDropBelowMedian)
		ticket, err := f.svc.Adjust(ctx, auction.Key, high, 150)
		require.NoError(t, err)
		assert.Equal(t, uint64(150), ticket.Amount)
		_, err = f.svc.Adjust(ctx, auction.Key, high, 200)
		assert.ErrorIs(t, err, models.ErrCannotIncreaseBid)

		// At or below the median: increases are rejected.
		_, err = f.svc.Adjust(ctx, auction.Key, low, 150)
		assert.ErrorIs(t, err, models.ErrCannotIncreaseBid)
	})
}

func TestCreateLotteryBitmap(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects discovery while phase one is open", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)

		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		assert.ErrorIs(t, err, models.ErrPhaseOneNotOver)
	})

	t.Run("rejects discovery after phase two closes", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())
		f.clock = saleBase.Add(49 * time.Hour)

		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		assert.ErrorIs(t, err, models.ErrDiscoveryWindowClosed)
	})

	t.Run("decides the median exactly once", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)
		f.buy(auction, 150)

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)

		_, err = f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		assert.ErrorIs(t, err, models.ErrMedianAlreadyDecided)
	})

	t.Run("undersubscribed sale clears at the lowest bid and everyone wins", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig()) // supply 10
		f.clock = saleBase.Add(time.Hour)

		buyers := []id.BuyerID{
			f.buy(auction, 200),
			f.buy(auction, 150),
			f.buy(auction, 100),
		}

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)

		loaded, err := f.svc.GetAuction(ctx, auction.Key)
		require.NoError(t, err)
		require.NotNil(t, loaded.DecidedMedian)
		assert.Equal(t, uint64(100), *loaded.DecidedMedian)
		assert.Zero(t, loaded.TicketsRemainingPhaseTwo)

		bitmap := f.fillBitmap(auction, authority)
		assert.Equal(t, uint32(len(buyers)), bitmap.BitmapOnes)
		for seq := range buyers {
			assert.True(t, bitmap.IsWinner(uint64(seq)))
		}
	})

	t.Run("tied oversubscription reports the excess and caps winners at supply", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig()) // supply 10
		f.clock = saleBase.Add(time.Hour)

		for range 12 {
			f.buy(auction, 150)
		}

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)

		loaded, err := f.svc.GetAuction(ctx, auction.Key)
		require.NoError(t, err)
		require.NotNil(t, loaded.DecidedMedian)
		assert.Equal(t, uint64(150), *loaded.DecidedMedian)
		assert.Equal(t, uint64(2), loaded.TicketsRemainingPhaseTwo)

		bitmap := f.fillBitmap(auction, authority)
		assert.Equal(t, uint32(10), bitmap.BitmapOnes)
	})

	t.Run("rejects non-authority callers", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(25 * time.Hour)

		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, id.AuthorityID(uuid.New()))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func TestExtendLotteryBitmap(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects strips before the median is decided", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())

		_, err := f.svc.ExtendLotteryBitmap(ctx, auction.Key, authority, 0, []byte{0x01})
		assert.ErrorIs(t, err, models.ErrMedianNotDecided)
	})

	t.Run("rejects a strip that would exceed the token supply", func(t *testing.T) {
		f := newFixture(t)
		cfg := saleConfig()
		cfg.NumberOfTokens = 2
		auction, authority := f.initialize(cfg)
		f.clock = saleBase.Add(time.Hour)
		for range 4 {
			f.buy(auction, 150)
		}

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)

		_, err = f.svc.ExtendLotteryBitmap(ctx, auction.Key, authority, 0, []byte{0x0f})
		assert.ErrorIs(t, err, models.ErrLotteryCapacity)

		bitmap, err := f.svc.ExtendLotteryBitmap(ctx, auction.Key, authority, 0, []byte{0x05})
		require.NoError(t, err)
		assert.Equal(t, uint32(2), bitmap.BitmapOnes)
	})

	t.Run("overlapping strips never double count", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)
		for range 5 {
			f.buy(auction, 150)
		}

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)

		_, err = f.svc.ExtendLotteryBitmap(ctx, auction.Key, authority, 0, []byte{0x03})
		require.NoError(t, err)
		bitmap, err := f.svc.ExtendLotteryBitmap(ctx, auction.Key, authority, 0, []byte{0x07})
		require.NoError(t, err)
		assert.Equal(t, uint32(3), bitmap.BitmapOnes)
	})

	t.Run("rejects a strip past the bitmap end", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)
		f.buy(auction, 150)

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)

		_, err = f.svc.ExtendLotteryBitmap(ctx, auction.Key, authority, 1, []byte{0x01})
		assert.ErrorIs(t, err, models.ErrStripOutOfBounds)
	})
}

func TestStartPhaseThree(t *testing.T) {
	ctx := context.Background()

	t.Run("requires the lottery bitmap to exist", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())

		_, err := f.svc.StartPhaseThree(ctx, auction.Key, authority,
			saleBase.Add(72*time.Hour), saleBase.Add(96*time.Hour))
		assert.ErrorIs(t, err, models.ErrCantSetPhaseThreeYet)
	})

	t.Run("sets the window once and only once", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)
		f.buy(auction, 150)

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)

		updated, err := f.svc.StartPhaseThree(ctx, auction.Key, authority,
			saleBase.Add(72*time.Hour), saleBase.Add(96*time.Hour))
		require.NoError(t, err)
		require.NotNil(t, updated.Config.PhaseThreeStart)

		_, err = f.svc.StartPhaseThree(ctx, auction.Key, authority,
			saleBase.Add(80*time.Hour), saleBase.Add(90*time.Hour))
		assert.ErrorIs(t, err, models.ErrPhaseThreeAlreadySet)
	})

	t.Run("rejects a window that does not follow phase two", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)
		f.buy(auction, 150)

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)

		_, err = f.svc.StartPhaseThree(ctx, auction.Key, authority,
			saleBase.Add(40*time.Hour), saleBase.Add(96*time.Hour))
		assert.ErrorIs(t, err, models.ErrTimestampsDontLineUp)
	})
}

func TestPunch(t *testing.T) {
	ctx := context.Background()

	// Winner gets exactly one token; loser gets the full bid back.
	t.Run("settles winners and losers", func(t *testing.T) {
		f := newFixture(t)
		cfg := saleConfig()
		cfg.NumberOfTokens = 1
		auction, authority := f.initialize(cfg)
		f.clock = saleBase.Add(time.Hour)

		winner := f.buy(auction, 200)
		loser := f.buy(auction, 100)

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)
		f.fillBitmap(auction, authority)
		f.openPhaseThree(auction, authority)

		loserBefore := f.ledger.Balance(ledger.BuyerAccount(loser))

		ticket, err := f.svc.Punch(ctx, auction.Key, winner)
		require.NoError(t, err)
		assert.Equal(t, models.TicketPunched, ticket.State)
		assert.Equal(t, uint64(1), f.ledger.Minted(auction.TokenMint, ledger.BuyerAccount(winner)))

		ticket, err = f.svc.Punch(ctx, auction.Key, loser)
		require.NoError(t, err)
		assert.Equal(t, models.TicketWithdrawn, ticket.State)
		assert.Equal(t, loserBefore+100, f.ledger.Balance(ledger.BuyerAccount(loser)))
		assert.Zero(t, f.ledger.Minted(auction.TokenMint, ledger.BuyerAccount(loser)))

		loaded, err := f.svc.GetAuction(ctx, auction.Key)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), loaded.TicketsPunchedPhaseThree)
	})

	t.Run("rejects punching outside phase three", func(t *testing.T) {
		f := newFixture(t)
		auction, _ := f.initialize(saleConfig())
		f.clock = saleBase.Add(time.Hour)
		buyer := f.buy(auction, 150)

		_, err := f.svc.Punch(ctx, auction.Key, buyer)
		assert.ErrorIs(t, err, models.ErrOutsidePhaseThree)
	})

	t.Run("rejects a second punch", func(t *testing.T) {
		f := newFixture(t)
		cfg := saleConfig()
		cfg.NumberOfTokens = 1
		auction, authority := f.initialize(cfg)
		f.clock = saleBase.Add(time.Hour)
		buyer := f.buy(auction, 150)

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)
		f.fillBitmap(auction, authority)
		f.openPhaseThree(auction, authority)

		_, err = f.svc.Punch(ctx, auction.Key, buyer)
		require.NoError(t, err)
		_, err = f.svc.Punch(ctx, auction.Key, buyer)
		assert.ErrorIs(t, err, models.ErrTicketFinalized)
	})
}

func TestPlanLottery(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a decided median", func(t *testing.T) {
		f := newFixture(t)
		auction, authority := f.initialize(saleConfig())

		_, err := f.svc.PlanLottery(ctx, auction.Key, authority, []byte("seed"))
		assert.ErrorIs(t, err, models.ErrMedianNotDecided)
	})

	t.Run("same seed yields the same strips", func(t *testing.T) {
		f := newFixture(t)
		cfg := saleConfig()
		cfg.NumberOfTokens = 3
		auction, authority := f.initialize(cfg)
		f.clock = saleBase.Add(time.Hour)
		for range 8 {
			f.buy(auction, 150)
		}

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)

		first, err := f.svc.PlanLottery(ctx, auction.Key, authority, []byte("seed-a"))
		require.NoError(t, err)
		second, err := f.svc.PlanLottery(ctx, auction.Key, authority, []byte("seed-a"))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("bids above the median always win", func(t *testing.T) {
		f := newFixture(t)
		cfg := saleConfig()
		cfg.NumberOfTokens = 2
		auction, authority := f.initialize(cfg)
		f.clock = saleBase.Add(time.Hour)

		high := f.buy(auction, 200)
		for range 3 {
			f.buy(auction, 150)
		}

		f.clock = saleBase.Add(25 * time.Hour)
		_, err := f.svc.CreateLotteryBitmap(ctx, auction.Key, authority)
		require.NoError(t, err)

		bitmap := f.fillBitmap(auction, authority)
		assert.Equal(t, uint32(2), bitmap.BitmapOnes)

		ticket, err := f.svc.GetTicket(ctx, auction.Key, high)
		require.NoError(t, err)
		assert.True(t, bitmap.IsWinner(ticket.Seq))
	})
}
