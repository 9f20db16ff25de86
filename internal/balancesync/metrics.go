package balancesync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinfolio_balance_fetch_total",
		Help: "Profile fetches by outcome (success, failure, discarded).",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coinfolio_balance_fetch_duration_seconds",
		Help:    "Latency of profile fetches.",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coinfolio_balance_cache_hits_total",
		Help: "Balance reads served from the cache.",
	})

	invalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinfolio_balance_invalidations_total",
		Help: "Cache invalidations by trigger.",
	}, []string{"trigger"})

	syncState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coinfolio_balance_sync_state",
		Help: "Current sync state (0 uninitialized, 1 synced, 2 stale, 3 syncing).",
	})
)
