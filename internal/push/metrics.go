package push

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finpush_push_deliveries_total",
			Help: "Push delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	deliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finpush_push_delivery_seconds",
			Help:    "Latency of push service POSTs",
			Buckets: prometheus.DefBuckets,
		},
	)

	subscriptionsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finpush_subscriptions_pruned_total",
			Help: "Subscriptions deleted after the push service reported them gone",
		},
	)
)
