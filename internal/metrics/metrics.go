package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gymcore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gymcore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	SubscriptionOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gymcore_subscription_operations_total",
			Help: "Total number of committed subscription ledger operations",
		},
		[]string{"operation", "kind"},
	)

	CheckInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gymcore_checkins_total",
			Help: "Total number of check-in decisions by outcome",
		},
		[]string{"outcome"},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gymcore_payments_total",
			Help: "Total number of gateway payments resolved",
		},
		[]string{"kind", "status"},
	)

	SweptAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gymcore_swept_attempts_total",
			Help: "Total number of stale pending attempts handled by the sweeper",
		},
		[]string{"result"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gymcore_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gymcore_rate_limited_total",
			Help: "Total number of requests rejected by a rate limiter",
		},
		[]string{"scope"},
	)

	StockQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gymcore_stock_queue_length",
			Help: "Current length of the stock deduction queue",
		},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gymcore_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordSubscriptionOp(operation, kind string) {
	SubscriptionOpsTotal.WithLabelValues(operation, kind).Inc()
}

func RecordCheckIn(outcome string) {
	CheckInsTotal.WithLabelValues(outcome).Inc()
}

func RecordPayment(kind, status string) {
	PaymentsTotal.WithLabelValues(kind, status).Inc()
}

func RecordSweep(removed, failed int) {
	SweptAttemptsTotal.WithLabelValues("removed").Add(float64(removed))
	SweptAttemptsTotal.WithLabelValues("failed").Add(float64(failed))
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}

func RecordRateLimited(scope string) {
	RateLimitedTotal.WithLabelValues(scope).Inc()
}
