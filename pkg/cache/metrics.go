package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookup hits by layer (memory, disk)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgcache_hits_total",
			Help: "Total number of image cache lookup hits",
		},
		[]string{"layer"}, // "memory", "disk"
	)

	// CacheMisses tracks lookup misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imgcache_misses_total",
			Help: "Total number of image cache lookup misses",
		},
	)

	// EvictedProducts tracks product directories removed by scope sweeps
	EvictedProducts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imgcache_evicted_products_total",
			Help: "Total number of product directories evicted",
		},
	)

	// CacheClears tracks full cache resets
	CacheClears = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imgcache_clears_total",
			Help: "Total number of full cache clears",
		},
	)

	// MemoryEntries tracks the current memory cache population
	MemoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgcache_memory_entries",
			Help: "Current number of entries in the memory cache",
		},
	)
)
