package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	claimCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saunafreunde",
			Name:      "claim_created_total",
			Help:      "Count of claim attempts by result.",
		},
		[]string{"result"},
	)

	claimCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saunafreunde",
			Name:      "claim_cancelled_total",
			Help:      "Count of cancelled claims by notice.",
		},
		[]string{"notice"},
	)

	weekCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saunafreunde",
			Name:      "week_cache_total",
			Help:      "Week cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saunafreunde",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route.",
		},
		[]string{"route"},
	)

	httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saunafreunde",
			Name:      "http_errors_total",
			Help:      "Count of API error responses by status code.",
		},
		[]string{"code"},
	)

	tallied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "saunafreunde",
			Name:      "claims_tallied_total",
			Help:      "Count of finished claims credited to members.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(claimCreated, claimCancelled, weekCache, httpRequests, httpErrors, tallied)
	})
}

func IncClaimCreated(result string) {
	claimCreated.WithLabelValues(result).Inc()
}

func IncClaimCancelled(shortNotice bool) {
	notice := "regular"
	if shortNotice {
		notice = "short"
	}
	claimCancelled.WithLabelValues(notice).Inc()
}

func IncWeekCache(result string) {
	weekCache.WithLabelValues(result).Inc()
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}

func IncHTTPError(code string) {
	httpErrors.WithLabelValues(code).Inc()
}

func AddTallied(n int) {
	tallied.Add(float64(n))
}
