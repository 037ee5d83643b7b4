package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and histograms exposed on /metrics.
type Metrics struct {
	EmailsScanned   prometheus.Counter
	EmailsMatched   prometheus.Counter
	EmailsSkipped   prometheus.Counter
	DuplicatesSeen  prometheus.Counter
	OrdersAccepted  prometheus.Counter
	OrdersFailed    prometheus.Counter
	OrderRetries    prometheus.Counter
	AcceptLatency   prometheus.Histogram
	MailboxErrors   prometheus.Counter
	ActiveAccounts  prometheus.Gauge
	RecordsCleaned  prometheus.Counter
}

// New registers the metric set with the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry so
// repeated construction does not panic on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EmailsScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "emails_scanned_total",
			Help: "Total number of inbox messages examined",
		}),
		EmailsMatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "emails_matched_total",
			Help: "Total number of messages matched by a rule",
		}),
		EmailsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "emails_skipped_total",
			Help: "Total number of messages with no matching rule",
		}),
		DuplicatesSeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "emails_duplicate_total",
			Help: "Total number of messages already on record",
		}),
		OrdersAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_accepted_total",
			Help: "Total number of orders accepted",
		}),
		OrdersFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_failed_total",
			Help: "Total number of orders that exhausted their retries",
		}),
		OrderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "order_retries_total",
			Help: "Total number of order acceptance retries",
		}),
		AcceptLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_accept_duration_seconds",
			Help:    "Order acceptance request latency",
			Buckets: prometheus.DefBuckets,
		}),
		MailboxErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailbox_errors_total",
			Help: "Total number of mailbox API failures",
		}),
		ActiveAccounts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "accounts_active",
			Help: "Number of accounts currently being monitored",
		}),
		RecordsCleaned: factory.NewCounter(prometheus.CounterOpts{
			Name: "records_cleaned_total",
			Help: "Total number of old processing records purged",
		}),
	}
}
