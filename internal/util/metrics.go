package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pantry_orders_placed_total",
		Help: "Total number of orders placed, by fulfillment method",
	}, []string{"method"})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pantry_orders_completed_total",
		Help: "Total number of orders handed to clients",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pantry_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pantry_checkout_failed_total",
		Help: "Total number of rejected checkouts",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pantry_checkout_latency_seconds",
		Help:    "Latency of checkout transactions",
		Buckets: prometheus.DefBuckets,
	})

	MovementsAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pantry_movements_appended_total",
		Help: "Total number of ledger movements appended, by kind",
	}, []string{"kind"})

	MovementCorrectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pantry_movement_corrections_total",
		Help: "Total number of staff corrections to the ledger",
	}, []string{"action"})

	NegativeOnHandTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pantry_negative_on_hand_total",
		Help: "Total number of availability replays that came out negative",
	})

	ReplayLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pantry_replay_latency_seconds",
		Help:    "Latency of ledger replays",
		Buckets: prometheus.DefBuckets,
	})

	AvailabilityCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pantry_availability_cache_total",
		Help: "Availability cache lookups, by result",
	}, []string{"result"})

	LowStockTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pantry_low_stock_total",
		Help: "Low stock detections, by product",
	}, []string{"product"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pantry_events_consumed_total",
		Help: "Domain events consumed, by type",
	}, []string{"type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// Movement kinds for MovementsAppendedTotal
const (
	MovementKindReceive  = "receive"
	MovementKindTransfer = "transfer"
	MovementKindReserve  = "reserve"
	MovementKindRelease  = "release"
	MovementKindConsume  = "consume"
	MovementKindWriteOff = "write_off"
)
