// Package service implements the fair-launch operations: auction
// initialization and config updates, the phase-gated ticket lifecycle,
// price discovery, and lottery bitmap construction. Every operation is a
// single externally-serialized transaction against the keyed store; time is
// read once per operation from the injected clock.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"fairlaunch/internal/fairlaunch/events"
	"fairlaunch/internal/fairlaunch/keys"
	"fairlaunch/internal/fairlaunch/ledger"
	"fairlaunch/internal/fairlaunch/metrics"
	"fairlaunch/internal/fairlaunch/models"
	"fairlaunch/internal/fairlaunch/store"
	id "fairlaunch/pkg/domain"
	dErrors "fairlaunch/pkg/domainerrors"
	"fairlaunch/pkg/sentinel"
)

// Service runs auction operations against a keyed store and a ledger.
type Service struct {
	store     store.KeyedStore
	ledger    ledger.Ledger
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher events.Publisher
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the domain metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the time source, used by tests to step through phases.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. Store and ledger are required.
func New(st store.KeyedStore, lg ledger.Ledger, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("keyed store is required")
	}
	if lg == nil {
		return nil, fmt.Errorf("ledger is required")
	}

	svc := &Service{
		store:  st,
		ledger: lg,
		logger: slog.Default(),
		tracer: otel.Tracer("fairlaunch/service"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *Service) loadAuction(ctx context.Context, key keys.Key) (*models.Auction, error) {
	data, err := s.store.Read(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "auction not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read auction")
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "auction not found")
	}

	var a models.Auction
	if err := a.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) saveAuction(ctx context.Context, a *models.Auction) error {
	data, err := a.MarshalBinary()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode auction")
	}
	if err := s.store.Write(ctx, a.Key, data); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write auction")
	}
	return nil
}

func (s *Service) loadTicket(ctx context.Context, auction keys.Key, buyer id.BuyerID) (*models.Ticket, error) {
	data, err := s.store.Read(ctx, keys.TicketKey(auction, buyer.Bytes()))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "ticket not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ticket")
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "ticket not found")
	}

	var t models.Ticket
	if err := t.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) saveTicket(ctx context.Context, t *models.Ticket) error {
	data, err := t.MarshalBinary()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode ticket")
	}
	if err := s.store.Write(ctx, t.Key(), data); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write ticket")
	}
	return nil
}

func (s *Service) loadLottery(ctx context.Context, auction keys.Key) (*models.LotteryBitmap, error) {
	data, err := s.store.Read(ctx, keys.LotteryKey(auction))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "lottery bitmap not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read lottery bitmap")
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "lottery bitmap not found")
	}

	var l models.LotteryBitmap
	if err := l.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Service) saveLottery(ctx context.Context, l *models.LotteryBitmap) error {
	data, err := l.MarshalBinary()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode lottery bitmap")
	}
	if err := s.store.Write(ctx, keys.LotteryKey(l.Auction), data); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write lottery bitmap")
	}
	return nil
}

func requireAuthority(a *models.Auction, authority id.AuthorityID) error {
	if a.Authority != authority {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the sale authority")
	}
	return nil
}

// emit publishes best-effort: a lost event never rolls back the operation.
func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	event.Timestamp = s.now()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish lifecycle event",
			"type", event.Type,
			"auction", event.Auction,
			"error", err,
		)
	}
}

func (s *Service) opFailed(op string) {
	if s.metrics != nil {
		s.metrics.OperationFailures.WithLabelValues(op).Inc()
	}
}

func checkedInc(x uint64) (uint64, error) {
	if x+1 < x {
		return 0, models.ErrNumericalOverflow
	}
	return x + 1, nil
}
