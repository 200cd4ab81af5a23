package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExternalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campreg_external_requests_total",
			Help: "Total requests issued to the ticketing service",
		},
		[]string{"operation", "outcome"},
	)

	ExternalRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campreg_external_request_seconds",
			Help:    "Duration of ticketing service calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campreg_cache_hits_total",
			Help: "Ticketing cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campreg_cache_misses_total",
			Help: "Ticketing cache misses",
		},
	)

	RegistrationAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campreg_registration_attempts_total",
			Help: "Registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	RetriesScheduledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campreg_retries_scheduled_total",
			Help: "Follow-up registration attempts scheduled",
		},
	)

	RetriesAbandonedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campreg_retries_abandoned_total",
			Help: "Retry records abandoned explicitly or by cleanup",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campreg_http_requests_total",
			Help: "API requests by route, method and status",
		},
		[]string{"route", "method", "code"},
	)
)
