package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheEntries is the number of stored credentials, including expired ones not yet swept.
	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ldapauth_cache_entries",
		Help: "Number of cached credentials",
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ldapauth_cache_hits_total",
		Help: "Total number of credential cache hits",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ldapauth_cache_misses_total",
		Help: "Total number of credential cache misses (absent or expired)",
	})

	// cacheEvictionsTotal counts removals by the sweeper ("expired") and the size bound ("capacity").
	cacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldapauth_cache_evictions_total",
			Help: "Total number of credentials evicted from the cache",
		},
		[]string{"reason"},
	)
)
