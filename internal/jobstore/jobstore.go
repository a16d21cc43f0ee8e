// Package jobstore is the run-status record: a TTL-bounded map from
// run ID to the pipeline's latest Status, so the HTTP API can answer
// status queries without holding a reference to the running goroutine.
package jobstore

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/streamscribe/streamscribe/internal/pipeline"
	"github.com/streamscribe/streamscribe/internal/types"
)

// DefaultTTL matches the run-status retention window.
const DefaultTTL = 24 * time.Hour

// Store holds run status, keyed by run ID.
type Store struct {
	items *gocache.Cache
}

// New builds a Store with ttl expiry for finished runs. ttl <= 0 uses
// DefaultTTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{items: gocache.New(ttl, ttl/2)}
}

// Set records runID's latest status.
func (s *Store) Set(runID string, status pipeline.Status) {
	s.items.SetDefault(runID, status)
}

// Get returns runID's latest status, if known.
func (s *Store) Get(runID string) (pipeline.Status, bool) {
	v, ok := s.items.Get(runID)
	if !ok {
		return pipeline.Status{}, false
	}
	status, ok := v.(pipeline.Status)
	return status, ok
}

// Delete removes runID's status, e.g. after a client acknowledges
// cancellation.
func (s *Store) Delete(runID string) {
	s.items.Delete(runID)
}

// Results holds completed runs' merged transcripts between COMPLETED and a
// client fetching them, with the same TTL discipline as run status.
type Results struct {
	items *gocache.Cache
}

// NewResults builds a Results store. ttl <= 0 uses DefaultTTL.
func NewResults(ttl time.Duration) *Results {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Results{items: gocache.New(ttl, ttl/2)}
}

// Set records runID's merged transcript.
func (r *Results) Set(runID string, segments []types.MergedSegment) {
	r.items.SetDefault(runID, segments)
}

// Get returns runID's merged transcript, if retained.
func (r *Results) Get(runID string) ([]types.MergedSegment, bool) {
	v, ok := r.items.Get(runID)
	if !ok {
		return nil, false
	}
	segs, ok := v.([]types.MergedSegment)
	return segs, ok
}
