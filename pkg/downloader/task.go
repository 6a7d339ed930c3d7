package downloader

import (
	"context"
	"errors"
	"io"
	"time"
)

// Task describes one artifact fetch. Tasks are produced by the backend
// collaborator (record store + blob store client) and consumed once; the
// URL is typically presigned and time-limited, and a fetch against an
// expired URL is an ordinary per-task failure.
type Task struct {
	ProductID string    `json:"product_id"`
	Folder    string    `json:"folder"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	Expires   time.Time `json:"expires,omitempty"`
}

// Validate checks the fields needed to fetch and place the artifact.
func (t Task) Validate() error {
	if t.ProductID == "" {
		return errors.New("product id required")
	}
	if t.Filename == "" {
		return errors.New("filename required")
	}
	if t.URL == "" {
		return errors.New("source url required")
	}
	return nil
}

// Sink is the destination for fetched artifacts. The cache's disk store
// implements it; Has is the idempotence check and Put must only make the
// artifact visible once it is fully written.
type Sink interface {
	// Has reports whether the task's target file already exists.
	Has(t Task) bool

	// Put streams body to the task's target file, honoring ctx between
	// chunks. The file must not be observable under its final name until
	// Put returns nil.
	Put(ctx context.Context, t Task, body io.Reader) (int64, error)
}

// ItemStatus classifies the outcome of a single task.
type ItemStatus string

const (
	// ItemDownloaded means the artifact was fetched and persisted.
	ItemDownloaded ItemStatus = "downloaded"

	// ItemSkipped means the artifact already existed; no network call made.
	ItemSkipped ItemStatus = "skipped"

	// ItemFailed means the fetch failed; the batch continues.
	ItemFailed ItemStatus = "failed"
)

// ItemResult reports one task's outcome to the optional item handler.
type ItemResult struct {
	Status ItemStatus
	Bytes  int64
	Err    error
}

// Callbacks carries the batch notification hooks. Any field may be nil.
type Callbacks struct {
	// OnProgress is called after each completed task with the running count
	// of available items and the batch total. Counts are strictly
	// increasing and follow input order; failed tasks do not advance them.
	OnProgress func(done, total int)

	// OnDone is called once after the last task of an uncancelled batch.
	OnDone func()

	// OnError is called with a descriptive message if the batch aborts for
	// a reason other than a per-task fetch failure.
	OnError func(msg string)

	// OnItem is called with each task's outcome, including skips.
	OnItem func(t Task, res ItemResult)
}
