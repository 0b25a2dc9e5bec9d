// Package metrics exposes Prometheus metrics for the mailing list relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message processing metrics
var (
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ezlist_messages_processed_total",
			Help: "Total number of inbound messages processed, by classification",
		},
		[]string{"classification"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ezlist_deliveries_total",
			Help: "Total number of outbound delivery attempts",
		},
		[]string{"kind", "status"},
	)

	FanoutRecipients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ezlist_fanout_recipients_total",
			Help: "Total number of recipients across all forwarded posts",
		},
	)

	PostsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ezlist_posts_rejected_total",
			Help: "Total number of posts dropped because the sender is not a subscriber",
		},
	)
)

// Registry and poll loop metrics
var (
	SubscribersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ezlist_subscribers_total",
			Help: "Current number of subscribers in the registry",
		},
	)

	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ezlist_poll_cycles_total",
			Help: "Total number of inbox poll cycles",
		},
		[]string{"status"},
	)

	ArchiveOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ezlist_archive_operations_total",
			Help: "Total number of post archive operations",
		},
		[]string{"status"},
	)
)
