package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for the checkout funnel.
type BusinessMetrics struct {
	// Checkout funnel
	CheckoutStarted    *prometheus.CounterVec
	QuotesComputed     prometheus.Counter
	PromotionsResolved *prometheus.CounterVec

	// Payments
	PaymentAttempts  *prometheus.CounterVec
	PaymentSucceeded *prometheus.CounterVec
	PaymentFailed    *prometheus.CounterVec
	PaymentCancelled *prometheus.CounterVec
	GatewayFallbacks prometheus.Counter

	// Orders
	OrdersCreated  *prometheus.CounterVec
	OrderValue     *prometheus.HistogramVec
	OrderItemCount prometheus.Histogram
	CommitFailures *prometheus.CounterVec
	Compensations  *prometheus.CounterVec

	// External API performance
	GatewayLatency *prometheus.HistogramVec
}

// NewBusinessMetrics creates and registers all business metrics on the
// default registry.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	return NewBusinessMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewBusinessMetricsWith creates business metrics registered on reg.
func NewBusinessMetricsWith(reg prometheus.Registerer, namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "atelier"
	}

	subsystem := "business"
	factory := promauto.With(reg)

	return &BusinessMetrics{
		// =======================================================================
		// Checkout Funnel
		// =======================================================================
		CheckoutStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_started_total",
				Help:      "Total order placement attempts",
			},
			[]string{"payment_method"},
		),
		QuotesComputed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "quotes_computed_total",
				Help:      "Total cart price quotes computed",
			},
		),
		PromotionsResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "promotions_resolved_total",
				Help:      "Total promotion codes resolved",
			},
			[]string{"kind", "outcome"}, // kind: coupon, gift_card; outcome: accepted, rejected
		),

		// =======================================================================
		// Payments
		// =======================================================================
		PaymentAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_attempts_total",
				Help:      "Total payment dispatches",
			},
			[]string{"payment_method"},
		),
		PaymentSucceeded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_succeeded_total",
				Help:      "Total payments that settled or were accepted for later collection",
			},
			[]string{"payment_method"},
		),
		PaymentFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_failed_total",
				Help:      "Total failed payments",
			},
			[]string{"payment_method", "reason"},
		),
		PaymentCancelled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_cancelled_total",
				Help:      "Total payments abandoned by the shopper",
			},
			[]string{"payment_method"},
		),
		GatewayFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gateway_fallbacks_total",
				Help:      "Total gateway outages where cash on delivery was offered",
			},
		),

		// =======================================================================
		// Orders
		// =======================================================================
		OrdersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_created_total",
				Help:      "Total orders committed",
			},
			[]string{"payment_method", "status"},
		),
		OrderValue: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value",
				Help:      "Order payable amount in major currency units",
				Buckets:   []float64{0, 100, 250, 500, 1000, 2500, 5000, 10000, 25000},
			},
			[]string{"payment_method"},
		),
		OrderItemCount: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_item_count",
				Help:      "Number of lines per order",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
		CommitFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_commit_failures_total",
				Help:      "Total failed order commits",
			},
			[]string{"reason"}, // reason: order_creation_failed, order_items_failed
		),
		Compensations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_compensations_total",
				Help:      "Total orders deleted after their items failed to persist",
			},
			[]string{"outcome"}, // outcome: deleted, failed
		),

		// =======================================================================
		// External API Performance
		// =======================================================================
		GatewayLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gateway_api_duration_seconds",
				Help:      "Payment gateway call duration (checkout includes time spent by the shopper)",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"operation"}, // operation: create_session, checkout, cancel_session
		),
	}
}

// Global instance for easy access from services
var Business *BusinessMetrics

// InitBusinessMetrics initializes the global business metrics instance
func InitBusinessMetrics(namespace string) *BusinessMetrics {
	Business = NewBusinessMetrics(namespace)
	return Business
}
