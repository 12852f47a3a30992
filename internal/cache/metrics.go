package cache

import "github.com/prometheus/client_golang/prometheus"

const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

var (
	// requests counts lookups by resource and outcome (hit, miss, error).
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "cache_requests_total",
			Help:      "Cache lookups by resource and result.",
		},
		[]string{"resource", "result"},
	)

	// invalidations counts successful key or prefix deletions by resource.
	invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "cache_invalidations_total",
			Help:      "Cache invalidations by resource.",
		},
		[]string{"resource"},
	)
)

func init() {
	prometheus.MustRegister(requests, invalidations)
}

func observe(resource, result string) {
	requests.WithLabelValues(resource, result).Inc()
}
