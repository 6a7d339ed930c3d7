// Package cache provides the two-level product image cache backing the
// catalog browser: an on-disk store that is the single source of truth and
// an in-memory promotion cache in front of it.
//
// The cache is keyed by (product, folder, filename) and reproduces the
// backend blob layout on disk:
//
//	root/{product_id}/{folder}/{filename}   artifacts
//	root/{product_id}/meta.json             sidecar metadata
//
// A file that exists on disk (and is fully written) is cached; the memory
// layer only ever holds objects whose disk file exists. Downloads are staged
// as "<filename>.part" and renamed into place on success, so a lookup racing
// an in-flight download simply misses until the rename lands.
//
// # Basic Usage
//
//	manager, err := cache.New(cache.Config{Root: "/var/cache/imgcache"})
//	if err != nil {
//		return err
//	}
//	defer manager.Shutdown()
//
//	// Fill the cache for the current page.
//	manager.StartBatch(tasks, onProgress, onDone, onError)
//
//	// Serve a viewer.
//	obj, err := manager.Lookup("p1", "detail", "0.jpg")
//	if err == cache.ErrCacheMiss {
//		// show placeholder, item is still loading or unavailable
//	}
//
// # Page Scope & Eviction
//
// Resource growth is bounded by page scope, not by recency. The caller
// replaces the scope wholesale when the visible page changes and then sweeps:
//
//	manager.SetPageScope([]string{"p1", "p2"})
//	manager.EvictOutsideScope()
//
// Everything outside the scope set is removed from memory and disk; there is
// no LRU. Products targeted by a running batch are skipped by the sweep and
// become eligible again once the batch ends.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - imgcache_hits_total{layer="memory"|"disk"} - Lookup hits per layer
//   - imgcache_misses_total - Lookup misses
//   - imgcache_evicted_products_total - Product directories removed by sweeps
//   - imgcache_clears_total - Full cache resets
package cache
