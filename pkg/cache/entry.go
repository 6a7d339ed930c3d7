package cache

import "errors"

var (
	// ErrCacheMiss indicates the requested artifact is not cached. A miss is
	// a normal return value, not a failure.
	ErrCacheMiss = errors.New("cache miss")

	// ErrMetaMiss indicates the product has no cached meta.json sidecar.
	ErrMetaMiss = errors.New("meta sidecar miss")
)

// State describes the lifecycle of a cache entry. Transitions are monotonic
// except Failed -> Downloading (retry) and Cached -> Missing (eviction).
type State int

const (
	// StateMissing means the artifact is neither on disk nor queued.
	StateMissing State = iota

	// StateDownloading means a batch task for the key is queued or running.
	StateDownloading

	// StateCached means the artifact file exists, fully written, on disk.
	StateCached

	// StateFailed means the last download attempt for the key failed.
	StateFailed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateDownloading:
		return "downloading"
	case StateCached:
		return "cached"
	case StateFailed:
		return "failed"
	default:
		return "missing"
	}
}

// Object is an in-memory handle to a cached artifact, produced by promoting
// a disk file on lookup. The raw bytes are kept as-is; decoding is the
// viewer's concern.
type Object struct {
	Key  Key
	Path string
	Data []byte
}

// Size returns the artifact size in bytes.
func (o *Object) Size() int64 {
	return int64(len(o.Data))
}

// Stats is a point-in-time snapshot of cache usage, recomputed on demand.
type Stats struct {
	ProductCount  int   `json:"product_count"`
	FileCount     int   `json:"file_count"`
	TotalBytes    int64 `json:"total_bytes"`
	MemoryEntries int   `json:"memory_entries"`
}
