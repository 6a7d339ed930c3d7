// Package testutil provides testing utilities for the image cache.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// BlobResponse defines the behavior for one mock blob object.
type BlobResponse struct {
	StatusCode int
	Body       []byte
	Delay      time.Duration
}

// MockBlobStore is a configurable fake blob backend. It stands in for the
// presigned-URL endpoints the batch downloader fetches from and tracks
// request counts so tests can assert idempotence.
type MockBlobStore struct {
	server *httptest.Server

	mu       sync.Mutex
	objects  map[string]BlobResponse
	requests map[string]int
	total    int
}

// NewMockBlobStore creates a running mock blob server.
func NewMockBlobStore() *MockBlobStore {
	m := &MockBlobStore{
		objects:  make(map[string]BlobResponse),
		requests: make(map[string]int),
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests[r.URL.Path]++
		m.total++
		obj, ok := m.objects[r.URL.Path]
		m.mu.Unlock()

		if !ok {
			// Presigned URL for a missing or expired object.
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`<Error><Code>AccessDenied</Code></Error>`))
			return
		}

		if obj.Delay > 0 {
			select {
			case <-time.After(obj.Delay):
			case <-r.Context().Done():
				return
			}
		}

		status := obj.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if len(obj.Body) > 0 {
			w.Write(obj.Body)
		}
	}))

	return m
}

// URL returns a fetch URL for the given object path.
func (m *MockBlobStore) URL(path string) string {
	return m.server.URL + path
}

// Close shuts down the mock server.
func (m *MockBlobStore) Close() {
	m.server.Close()
}

// SetObject registers an object body served at path.
func (m *MockBlobStore) SetObject(path string, body []byte) {
	m.SetResponse(path, BlobResponse{StatusCode: http.StatusOK, Body: body})
}

// SetResponse registers a fully specified response at path.
func (m *MockBlobStore) SetResponse(path string, resp BlobResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = resp
}

// RemoveObject makes path return 403 again, like an expired URL.
func (m *MockBlobStore) RemoveObject(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
}

// RequestCount returns how many times path was fetched.
func (m *MockBlobStore) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[path]
}

// TotalRequests returns the total request count across all paths.
func (m *MockBlobStore) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Reset clears all request counters.
func (m *MockBlobStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]int)
	m.total = 0
}
