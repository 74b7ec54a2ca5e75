package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by cache and layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricegetter_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache", "layer"}, // "token"|"location"|"ratelimit", "memory"|"redis"
	)

	// CacheMisses tracks cache misses by cache
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricegetter_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// CacheEntries tracks live entries held by memory stores
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricegetter_cache_entries",
			Help: "Current number of entries held by in-memory caches",
		},
		[]string{"cache"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricegetter_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)

const (
	layerMemory = "memory"
	layerRedis  = "redis"
)
