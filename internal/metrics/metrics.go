package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidpay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidpay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidpay_payments_total",
			Help: "Total number of payment attempts by purpose, provider and outcome",
		},
		[]string{"purpose", "provider", "status"},
	)

	WalletTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidpay_wallet_transactions_total",
			Help: "Total number of wallet ledger entries by type",
		},
		[]string{"type"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidpay_webhook_events_total",
			Help: "Total number of received gateway webhook events by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	FulfillmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidpay_fulfillments_total",
			Help: "Total number of entitlement fulfillments by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)
)
