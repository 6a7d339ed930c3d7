package cache

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/catalogops/imgcache/pkg/downloader"
)

// Config holds the cache configuration.
type Config struct {
	// Root is the cache directory; created if absent.
	Root string

	// RequestTimeout caps a single artifact fetch (see downloader.Config).
	RequestTimeout time.Duration

	// StopWait bounds the wait for a superseded batch to stop.
	StopWait time.Duration
}

// Manager is the cache facade: lookup with memory promotion, batch download,
// page-scoped eviction, stats and teardown. One instance owns one cache
// root; construct it explicitly and pass it to consumers, there is no
// package-level singleton.
type Manager struct {
	disk   *DiskStore
	dl     *downloader.Downloader
	logger zerolog.Logger

	// mu guards the memory map, entry states, page scope and the in-flight
	// product snapshot. Disk I/O is never done while holding it.
	mu       sync.Mutex
	mem      map[Key]*Object
	states   map[Key]State
	scope    map[string]struct{}
	inflight map[string]struct{}
}

// New creates a cache manager rooted at cfg.Root.
func New(cfg Config) (*Manager, error) {
	disk, err := NewDiskStore(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("init disk store: %w", err)
	}

	m := &Manager{
		disk:     disk,
		logger:   log.With().Str("component", "image-cache").Logger(),
		mem:      make(map[Key]*Object),
		states:   make(map[Key]State),
		scope:    make(map[string]struct{}),
		inflight: make(map[string]struct{}),
	}
	m.dl = downloader.New(diskSink{disk}, downloader.Config{
		RequestTimeout: cfg.RequestTimeout,
		StopWait:       cfg.StopWait,
	})

	// Downloads abandoned by a previous process leave part files behind.
	disk.SweepParts()

	return m, nil
}

// Disk exposes the underlying disk store (read-only use: root path, usage).
func (m *Manager) Disk() *DiskStore {
	return m.disk
}

// Lookup returns the cached artifact for (productID, folder, filename).
// Memory is checked first; on a disk hit the object is promoted into memory.
// Returns ErrCacheMiss when the artifact is not available yet - including
// while a download for it is still in flight.
func (m *Manager) Lookup(productID, folder, filename string) (*Object, error) {
	k := Key{ProductID: productID, Folder: folder, Filename: filename}
	if err := k.Validate(); err != nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	m.mu.Lock()
	obj, ok := m.mem[k]
	m.mu.Unlock()
	if ok {
		CacheHits.WithLabelValues("memory").Inc()
		return obj, nil
	}

	obj, err := m.disk.Read(k)
	if err != nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	m.mu.Lock()
	m.mem[k] = obj
	m.states[k] = StateCached
	MemoryEntries.Set(float64(len(m.mem)))
	m.mu.Unlock()

	CacheHits.WithLabelValues("disk").Inc()
	return obj, nil
}

// LookupMeta returns the product's parsed meta.json sidecar, or ErrMetaMiss.
func (m *Manager) LookupMeta(productID string) (map[string]any, error) {
	return m.disk.ReadMeta(productID)
}

// State reports the entry lifecycle state for a key.
func (m *Manager) State(productID, folder, filename string) State {
	k := Key{ProductID: productID, Folder: folder, Filename: filename}

	m.mu.Lock()
	s, ok := m.states[k]
	m.mu.Unlock()
	if ok {
		return s
	}
	if m.disk.Has(k) {
		return StateCached
	}
	return StateMissing
}

// StartBatch hands a task list to the background downloader. A still-running
// batch is cancelled and superseded first. Returns false only if the batch
// could not be started at all; per-task failures are logged and skipped and
// batch-level failures are reported through onError.
func (m *Manager) StartBatch(tasks []downloader.Task, onProgress func(done, total int), onDone func(), onError func(msg string)) bool {
	m.mu.Lock()
	m.inflight = make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		m.inflight[t.ProductID] = struct{}{}
		k := Key{ProductID: t.ProductID, Folder: t.Folder, Filename: t.Filename}
		if k.Validate() == nil {
			// Missing or Failed entries move to Downloading; retry is the
			// one allowed backwards transition.
			if m.states[k] != StateCached {
				m.states[k] = StateDownloading
			}
		}
	}
	m.mu.Unlock()

	return m.dl.Start(tasks, downloader.Callbacks{
		OnProgress: onProgress,
		OnDone:     onDone,
		OnError:    onError,
		OnItem:     m.noteItem,
	})
}

// StopBatch cancels the in-flight batch, if any.
func (m *Manager) StopBatch() {
	m.dl.Stop()
}

// noteItem keeps entry states in step with per-task outcomes.
func (m *Manager) noteItem(t downloader.Task, res downloader.ItemResult) {
	k := Key{ProductID: t.ProductID, Folder: t.Folder, Filename: t.Filename}
	if k.Validate() != nil {
		return
	}

	m.mu.Lock()
	switch res.Status {
	case downloader.ItemDownloaded, downloader.ItemSkipped:
		m.states[k] = StateCached
	case downloader.ItemFailed:
		m.states[k] = StateFailed
	}
	m.mu.Unlock()
}

// SetPageScope atomically replaces the set of products considered in view.
// The scope is replaced wholesale, never merged.
func (m *Manager) SetPageScope(productIDs []string) {
	scope := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		scope[id] = struct{}{}
	}

	m.mu.Lock()
	m.scope = scope
	m.mu.Unlock()

	m.logger.Debug().Int("products", len(scope)).Msg("Page scope replaced")
}

// EvictOutsideScope removes every cached artifact whose product is outside
// the current page scope: memory entries first, then whole product
// directories on disk. Products targeted by a running batch are left for a
// later sweep. Per-directory failures are logged and do not abort the sweep.
func (m *Manager) EvictOutsideScope() {
	m.mu.Lock()
	scope := m.scope
	inflight := map[string]struct{}{}
	if m.dl.Running() {
		for id := range m.inflight {
			inflight[id] = struct{}{}
		}
	}
	for k := range m.mem {
		if _, ok := scope[k.ProductID]; !ok {
			delete(m.mem, k)
		}
	}
	for k := range m.states {
		if _, ok := scope[k.ProductID]; !ok {
			delete(m.states, k)
		}
	}
	MemoryEntries.Set(float64(len(m.mem)))
	m.mu.Unlock()

	products, err := m.disk.Products()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Eviction sweep could not list products")
		return
	}

	evicted := 0
	for _, id := range products {
		if _, ok := scope[id]; ok {
			continue
		}
		if _, ok := inflight[id]; ok {
			m.logger.Debug().Str("product_id", id).Msg("Skipping in-flight product during eviction")
			continue
		}
		if err := m.disk.RemoveProduct(id); err != nil {
			m.logger.Warn().Str("product_id", id).Err(err).Msg("Failed to evict product directory")
			continue
		}
		EvictedProducts.Inc()
		evicted++
	}

	m.disk.SweepParts()

	m.logger.Info().
		Int("evicted", evicted).
		Int("in_scope", len(scope)).
		Msg("Eviction sweep finished")
}

// ClearAll cancels any in-flight batch, empties the memory store and the
// page scope, and recreates an empty cache root.
func (m *Manager) ClearAll() error {
	m.dl.Stop()

	m.mu.Lock()
	m.mem = make(map[Key]*Object)
	m.states = make(map[Key]State)
	m.scope = make(map[string]struct{})
	m.inflight = make(map[string]struct{})
	MemoryEntries.Set(0)
	m.mu.Unlock()

	if err := m.disk.Clear(); err != nil {
		return err
	}

	CacheClears.Inc()
	m.logger.Info().Msg("Cache cleared")
	return nil
}

// Stats walks the disk store once and reads the memory population. Always
// fresh, O(files); meant for operator views, not hot paths.
func (m *Manager) Stats() (Stats, error) {
	products, files, bytes, err := m.disk.Usage()
	if err != nil {
		return Stats{}, err
	}

	m.mu.Lock()
	memCount := len(m.mem)
	m.mu.Unlock()

	return Stats{
		ProductCount:  products,
		FileCount:     files,
		TotalBytes:    bytes,
		MemoryEntries: memCount,
	}, nil
}

// Shutdown cancels any in-flight batch and releases memory. Called once at
// process exit; the disk store is left intact for the next session.
func (m *Manager) Shutdown() {
	m.dl.Stop()

	m.mu.Lock()
	m.mem = make(map[Key]*Object)
	m.states = make(map[Key]State)
	MemoryEntries.Set(0)
	m.mu.Unlock()

	m.logger.Info().Msg("Image cache shut down")
}

// diskSink adapts the disk store to the downloader's Sink.
type diskSink struct {
	disk *DiskStore
}

func (s diskSink) Has(t downloader.Task) bool {
	return s.disk.Has(Key{ProductID: t.ProductID, Folder: t.Folder, Filename: t.Filename})
}

func (s diskSink) Put(ctx context.Context, t downloader.Task, body io.Reader) (int64, error) {
	return s.disk.Put(ctx, Key{ProductID: t.ProductID, Folder: t.Folder, Filename: t.Filename}, body)
}
