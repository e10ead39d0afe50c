package metrics

import (
	"strconv"
	"time"

	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы операций для label "outcome"
const (
	OutcomeExisting  = "existing"
	OutcomeCreated   = "created"
	OutcomeApplied   = "applied"
	OutcomeStale     = "stale"
	OutcomeIgnored   = "ignored"
	OutcomeUnmapped  = "unmapped"
	OutcomeError     = "error"
	OutcomeDuplicate = "duplicate"
)

// CheckoutMetrics интерфейс для метрик checkout-флоу
type CheckoutMetrics interface {
	IncCustomerProvisioned(outcome string)
	IncSubscriptionCreated(status string)
	IncCheckoutSessionCreated()
	IncWebhookEvent(eventType, outcome string)
	ObserveStripeCall(operation string, duration time.Duration, err error)
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

type checkoutMetrics struct {
	log                  *logger.Logger
	customersProvisioned *prometheus.CounterVec
	subscriptionsCreated *prometheus.CounterVec
	checkoutSessions     prometheus.Counter
	webhookEvents        *prometheus.CounterVec
	stripeCalls          *prometheus.HistogramVec
	httpRequests         *prometheus.HistogramVec
}

// NewCheckoutMetrics создает новые метрики и регистрирует их в registry
func NewCheckoutMetrics(registry *prometheus.Registry, log *logger.Logger) CheckoutMetrics {
	customersProvisioned := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_customers_provisioned_total",
			Help: "Customer provisioning calls by outcome",
		},
		[]string{"outcome"},
	)

	subscriptionsCreated := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_subscriptions_created_total",
			Help: "The total number of created subscriptions by initial status",
		},
		[]string{"status"},
	)

	checkoutSessions := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_sessions_created_total",
			Help: "The total number of hosted checkout sessions created",
		},
	)

	webhookEvents := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_webhook_events_total",
			Help: "Stripe webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	stripeCalls := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_stripe_call_duration_seconds",
			Help:    "Latency of Stripe API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	httpRequests := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	return &checkoutMetrics{
		log:                  log,
		customersProvisioned: customersProvisioned,
		subscriptionsCreated: subscriptionsCreated,
		checkoutSessions:     checkoutSessions,
		webhookEvents:        webhookEvents,
		stripeCalls:          stripeCalls,
		httpRequests:         httpRequests,
	}
}

func (m *checkoutMetrics) IncCustomerProvisioned(outcome string) {
	m.customersProvisioned.WithLabelValues(outcome).Inc()
}

func (m *checkoutMetrics) IncSubscriptionCreated(status string) {
	m.subscriptionsCreated.WithLabelValues(status).Inc()
}

func (m *checkoutMetrics) IncCheckoutSessionCreated() {
	m.checkoutSessions.Inc()
}

func (m *checkoutMetrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// ObserveStripeCall записывает длительность вызова Stripe API
func (m *checkoutMetrics) ObserveStripeCall(operation string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.stripeCalls.WithLabelValues(operation, result).Observe(duration.Seconds())
}

func (m *checkoutMetrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
