package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics, registered on the default registry and served by the
// HTTP /metrics endpoint.
var (
	opportunitiesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyarb_opportunities_detected_total",
			Help: "Opportunities emitted by the detectors, by strategy kind",
		},
		[]string{"kind"},
	)

	opportunityScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polyarb_opportunity_score",
			Help:    "Composite score distribution of scored opportunities",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"kind"},
	)

	allocationsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyarb_allocations_accepted_total",
			Help: "Opportunities that passed sizing and risk filters",
		},
		[]string{"kind"},
	)

	allocationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyarb_allocations_rejected_total",
			Help: "Opportunities rejected during allocation, by reason",
		},
		[]string{"kind", "reason"},
	)

	legsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyarb_legs_executed_total",
			Help: "Leg submissions by terminal status",
		},
		[]string{"status"},
	)

	legAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polyarb_leg_attempts",
			Help:    "Submission attempts consumed per leg",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	positionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyarb_position_transitions_total",
			Help: "Position state transitions",
		},
		[]string{"from", "to"},
	)

	exposureUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyarb_exposure_usd",
			Help: "Current open exposure in USD",
		},
	)

	availableCapitalUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyarb_available_capital_usd",
			Help: "Capital available for new positions in USD",
		},
	)

	openPositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyarb_open_positions",
			Help: "Number of open positions",
		},
	)

	unrealizedPnLUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyarb_unrealized_pnl_usd",
			Help: "Aggregate unrealized PnL across open positions in USD",
		},
	)

	realizedPnLUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyarb_realized_pnl_usd",
			Help: "Cumulative realized PnL in USD",
		},
	)
)
