package cartstate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "state_transitions_total",
			Help:      "Cart state machine transitions",
		},
		[]string{"from", "to"},
	)

	staleResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "stale_responses_total",
			Help:      "Cart service responses discarded because a newer one was already applied",
		},
	)

	localRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "local_rejections_total",
			Help:      "Cart operations rejected before reaching the cart service",
		},
		[]string{"op", "reason"},
	)

	backendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "backend_request_duration_seconds",
			Help:      "Round trip time of cart service calls",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15},
		},
		[]string{"op", "outcome"},
	)
)
