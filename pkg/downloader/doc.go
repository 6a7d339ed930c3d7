// Package downloader provides the cancellable batch downloader feeding the
// image cache.
//
// One background worker drains a task list strictly in input order, writing
// each artifact through a Sink. A task whose target already exists is
// reported as available without a network call, so re-running a batch is
// idempotent. Cancellation is cooperative and checked at two granularities:
// between tasks and between streamed chunks. A cancelled batch invokes
// neither the done nor the error callback; it was abandoned, not failed.
//
// Starting a new batch while a previous one is running first cancels the
// prior run and waits a bounded interval before superseding it.
package downloader
