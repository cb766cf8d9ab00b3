package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkbook_bookings_created_total",
		Help: "Bookings persisted, by payment method.",
	}, []string{"method"})

	PaymentInitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkbook_payment_init_failures_total",
		Help: "Payment initiations that failed after the booking was stored.",
	}, []string{"provider"})

	WebhookOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkbook_webhook_outcomes_total",
		Help: "Webhook deliveries by provider and reconciliation outcome.",
	}, []string{"provider", "outcome"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkbook_notifications_total",
		Help: "Notification channel runs by channel and result.",
	}, []string{"channel", "result"})

	NotificationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inkbook_notification_duration_seconds",
		Help:    "Time spent sending one notification.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})

	RateFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inkbook_exchange_rate_fallbacks_total",
		Help: "EUR/BRL lookups answered with the fallback constant.",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inkbook_rate_limited_requests_total",
		Help: "Requests rejected by the rate limiter.",
	})
)

// Notification results
const (
	ResultSent    = "sent"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)
