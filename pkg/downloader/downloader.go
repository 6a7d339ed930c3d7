package downloader

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for batch download operations.
var (
	downloadTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imgcache_download_tasks_total",
		Help: "Total download tasks by result",
	}, []string{"result"}) // "downloaded", "skipped", "failed"

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imgcache_download_bytes_total",
		Help: "Total bytes fetched into the cache",
	})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imgcache_batches_total",
		Help: "Total batches by outcome",
	}, []string{"outcome"}) // "completed", "cancelled", "failed"

	batchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imgcache_batch_duration_seconds",
		Help:    "Duration of completed batches in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

// Config holds downloader configuration.
type Config struct {
	// RequestTimeout caps one artifact fetch end to end. The batch itself
	// has no deadline; this guards against hung connections.
	RequestTimeout time.Duration

	// StopWait bounds how long a superseding Start (or Stop) waits for the
	// running batch to acknowledge cancellation before abandoning it.
	StopWait time.Duration
}

// DefaultConfig returns safe defaults for presigned blob URLs.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 30 * time.Second,
		StopWait:       3 * time.Second,
	}
}

// Downloader drains batches of tasks sequentially into a Sink.
type Downloader struct {
	sink   Sink
	client *http.Client
	cfg    Config
	logger zerolog.Logger

	// startMu serializes Start/Stop so two callers cannot race the
	// supersede handshake. mu guards cur only.
	startMu sync.Mutex
	mu      sync.Mutex
	cur     *run
}

// run is one batch execution. Its context doubles as the cooperative
// cancellation flag; callbacks are suppressed once it is cancelled.
type run struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a downloader writing into sink.
func New(sink Sink, cfg Config) *Downloader {
	if sink == nil {
		panic("downloader sink cannot be nil")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.StopWait <= 0 {
		cfg.StopWait = 3 * time.Second
	}

	return &Downloader{
		sink: sink,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		cfg:    cfg,
		logger: log.With().Str("component", "downloader").Logger(),
	}
}

// Start launches a batch in the background and returns immediately. If a
// previous batch is still running it is cancelled first; Start waits up to
// StopWait for it to stop before superseding it. Returns false only if the
// batch could not be started at all; fetch failures surface through the
// callbacks, never through the return value.
func (d *Downloader) Start(tasks []Task, cb Callbacks) bool {
	if d.sink == nil || d.client == nil {
		return false
	}

	d.startMu.Lock()
	defer d.startMu.Unlock()

	d.mu.Lock()
	prev := d.cur
	d.mu.Unlock()
	if prev != nil {
		d.logger.Info().
			Str("batch_id", prev.id).
			Msg("Superseding running batch")
		d.stopRun(prev)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	d.mu.Lock()
	d.cur = r
	d.mu.Unlock()

	d.logger.Info().
		Str("batch_id", r.id).
		Int("tasks", len(tasks)).
		Msg("Starting batch download")

	go d.process(r, tasks, cb)
	return true
}

// Stop requests cancellation of the running batch, if any, and waits up to
// StopWait for it to stop.
func (d *Downloader) Stop() {
	d.startMu.Lock()
	defer d.startMu.Unlock()

	d.mu.Lock()
	r := d.cur
	d.mu.Unlock()
	if r != nil {
		d.stopRun(r)
	}
}

// Running reports whether a batch is currently in flight.
func (d *Downloader) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cur != nil
}

// stopRun cancels r and waits bounded for it to finish. On timeout the run
// is detached; it will observe its cancelled context at the next task or
// chunk boundary and exit without callbacks.
func (d *Downloader) stopRun(r *run) {
	r.cancel()
	select {
	case <-r.done:
	case <-time.After(d.cfg.StopWait):
		d.logger.Warn().
			Str("batch_id", r.id).
			Dur("waited", d.cfg.StopWait).
			Msg("Batch did not stop in time, abandoning it")
		d.mu.Lock()
		if d.cur == r {
			d.cur = nil
		}
		d.mu.Unlock()
	}
}

// process executes one batch strictly in input order.
func (d *Downloader) process(r *run, tasks []Task, cb Callbacks) {
	start := time.Now()
	logger := d.logger.With().Str("batch_id", r.id).Logger()

	defer close(r.done)
	defer func() {
		d.mu.Lock()
		if d.cur == r {
			d.cur = nil
		}
		d.mu.Unlock()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			batchesTotal.WithLabelValues("failed").Inc()
			logger.Error().
				Interface("panic", rec).
				Msg("Batch aborted by unexpected error")
			if r.ctx.Err() == nil && cb.OnError != nil {
				cb.OnError(fmt.Sprintf("batch download aborted: %v", rec))
			}
		}
	}()

	total := len(tasks)
	done := 0

	for _, t := range tasks {
		if r.ctx.Err() != nil {
			d.finishCancelled(logger, done, total)
			return
		}

		if err := t.Validate(); err != nil {
			downloadTasksTotal.WithLabelValues(string(ItemFailed)).Inc()
			logger.Warn().
				Str("product_id", t.ProductID).
				Str("filename", t.Filename).
				Err(err).
				Msg("Skipping malformed task")
			emitItem(cb, t, ItemResult{Status: ItemFailed, Err: err})
			continue
		}

		// Idempotent re-download: an existing file is an immediate hit.
		if d.sink.Has(t) {
			downloadTasksTotal.WithLabelValues(string(ItemSkipped)).Inc()
			logger.Debug().
				Str("product_id", t.ProductID).
				Str("folder", t.Folder).
				Str("filename", t.Filename).
				Msg("Already cached, skipping fetch")
			emitItem(cb, t, ItemResult{Status: ItemSkipped})
			done++
			emitProgress(cb, done, total)
			continue
		}

		n, err := d.fetch(r.ctx, t)
		if err != nil {
			if r.ctx.Err() != nil {
				// Cancelled mid-transfer; the part file is already gone.
				d.finishCancelled(logger, done, total)
				return
			}
			downloadTasksTotal.WithLabelValues(string(ItemFailed)).Inc()
			logger.Warn().
				Str("product_id", t.ProductID).
				Str("folder", t.Folder).
				Str("filename", t.Filename).
				Err(err).
				Msg("Task fetch failed, continuing batch")
			emitItem(cb, t, ItemResult{Status: ItemFailed, Err: err})
			continue
		}

		downloadTasksTotal.WithLabelValues(string(ItemDownloaded)).Inc()
		downloadBytesTotal.Add(float64(n))
		emitItem(cb, t, ItemResult{Status: ItemDownloaded, Bytes: n})
		done++
		emitProgress(cb, done, total)
	}

	if r.ctx.Err() != nil {
		d.finishCancelled(logger, done, total)
		return
	}

	batchesTotal.WithLabelValues("completed").Inc()
	batchDurationSeconds.Observe(time.Since(start).Seconds())
	logger.Info().
		Int("available", done).
		Int("total", total).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	if cb.OnDone != nil {
		cb.OnDone()
	}
}

// finishCancelled logs the abandon. A cancelled batch reports neither done
// nor error; remaining tasks are simply left unfetched.
func (d *Downloader) finishCancelled(logger zerolog.Logger, done, total int) {
	batchesTotal.WithLabelValues("cancelled").Inc()
	logger.Info().
		Int("available", done).
		Int("total", total).
		Msg("Batch cancelled")
}

// fetch streams one artifact from its source URL into the sink.
func (d *Downloader) fetch(ctx context.Context, t Task) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return d.sink.Put(ctx, t, resp.Body)
}

func emitProgress(cb Callbacks, done, total int) {
	if cb.OnProgress != nil {
		cb.OnProgress(done, total)
	}
}

func emitItem(cb Callbacks, t Task, res ItemResult) {
	if cb.OnItem != nil {
		cb.OnItem(t, res)
	}
}
