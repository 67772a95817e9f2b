// Package metrics exposes the sale's domain counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for auction operations.
type Metrics struct {
	AuctionsInitialized prometheus.Counter
	TicketsPurchased    prometheus.Counter
	TicketsAdjusted     prometheus.Counter
	TicketsPunched      prometheus.Counter
	TicketsWithdrawn    prometheus.Counter
	MediansDecided      prometheus.Counter
	LotteryBitsSet      prometheus.Counter
	BidVolume           prometheus.Counter
	OperationFailures   *prometheus.CounterVec
}

// New registers all instruments with the given registerer. Pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuctionsInitialized: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairlaunch_auctions_initialized_total",
			Help: "Auctions created.",
		}),
		TicketsPurchased: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairlaunch_tickets_purchased_total",
			Help: "Tickets sold during phase one.",
		}),
		TicketsAdjusted: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairlaunch_tickets_adjusted_total",
			Help: "Bid adjustments across all phases.",
		}),
		TicketsPunched: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairlaunch_tickets_punched_total",
			Help: "Winning tickets claimed in phase three.",
		}),
		TicketsWithdrawn: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairlaunch_tickets_withdrawn_total",
			Help: "Losing tickets refunded in phase three.",
		}),
		MediansDecided: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairlaunch_medians_decided_total",
			Help: "Clearing prices decided.",
		}),
		LotteryBitsSet: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairlaunch_lottery_bits_set_total",
			Help: "Winning bits set by lottery strips.",
		}),
		BidVolume: factory.NewCounter(prometheus.CounterOpts{
			Name: "fairlaunch_bid_volume_total",
			Help: "Value transferred into treasuries, minor units.",
		}),
		OperationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fairlaunch_operation_failures_total",
			Help: "Failed operations by name.",
		}, []string{"operation"}),
	}
}
