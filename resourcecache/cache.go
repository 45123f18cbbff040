// Package resourcecache provides the asynchronous, deduplicating
// resource-fetch boundary the runner depends on (spec §4.1/§6): the
// runner asks for a path once and later receives exactly one
// CachedResource or ResourceGetError callback, regardless of how many
// pending test cases are waiting on that same path.
package resourcecache

import (
	"context"
	"sync"
)

// Cache resolves catalog-relative paths (schemas, sources, resources,
// query files) into raw bytes. Implementations may fetch from disk,
// an HTTP catalog mirror, or any other backing store; the runner only
// depends on this interface (spec §4.1 "resource cache").
type Cache interface {
	// GetResource requests path asynchronously. The result is
	// delivered later via the returned channel, never synchronously,
	// so the runner's single-threaded loop never blocks on I/O.
	GetResource(ctx context.Context, path string) <-chan Result
}

// Result is the outcome of one GetResource call: exactly one of Bytes
// or Err is set.
type Result struct {
	Path  string
	Bytes []byte
	Err   error
}

// Fetcher loads the raw bytes for one path. Memory adapts any Fetcher
// into a deduplicating, concurrent Cache.
type Fetcher func(ctx context.Context, path string) ([]byte, error)

// Memory is a reference Cache that fetches concurrently via a Fetcher
// and deduplicates in-flight requests for the same path, mirroring the
// once-per-key coalescing idiom the teacher's registry package applies
// to config loads (registry/registry.go) but generalized to fan-out
// per key rather than a single shared value.
type Memory struct {
	fetch Fetcher

	mu       sync.Mutex
	inFlight map[string][]chan Result
}

// NewMemory builds a Memory cache backed by fetch.
func NewMemory(fetch Fetcher) *Memory {
	return &Memory{fetch: fetch, inFlight: make(map[string][]chan Result)}
}

func (m *Memory) GetResource(ctx context.Context, path string) <-chan Result {
	out := make(chan Result, 1)

	m.mu.Lock()
	waiters, inFlight := m.inFlight[path]
	m.inFlight[path] = append(waiters, out)
	m.mu.Unlock()

	if inFlight {
		return out
	}

	go func() {
		bytes, err := m.fetch(ctx, path)
		result := Result{Path: path, Bytes: bytes, Err: err}

		m.mu.Lock()
		pending := m.inFlight[path]
		delete(m.inFlight, path)
		m.mu.Unlock()

		for _, w := range pending {
			w <- result
			close(w)
		}
	}()

	return out
}
