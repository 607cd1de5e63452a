// Package revision tracks the process-wide mutation counter and the
// most recently written blob metadata.
//
// Every successful mutation bumps the counter, so clients comparing two
// snapshots can tell whether anything changed without diffing listings.
// The counter resets to zero on restart; it orders mutations within one
// process lifetime only.
package revision

import (
	"sync"

	"github.com/fioncat/csync/pkg/metrics"
	"github.com/fioncat/csync/pkg/models"
)

// Register holds the revision counter and the latest metadata behind a
// single lock.
type Register struct {
	mu       sync.Mutex
	revision uint64
	latest   *models.Metadata
}

// NewRegister returns a register at revision zero with no latest entry.
func NewRegister() *Register {
	return &Register{}
}

// Grow increments the revision and returns the new value.
func (r *Register) Grow() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revision++
	metrics.SetRevision(r.revision)
	return r.revision
}

// UpdateLatest records m as the most recent write and increments the
// revision.
func (r *Register) UpdateLatest(m models.Metadata) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revision++
	r.latest = &m
	metrics.SetRevision(r.revision)
	return r.revision
}

// Snapshot returns the current revision and latest metadata as one
// consistent view. The metadata is nil until the first UpdateLatest.
func (r *Register) Snapshot() (uint64, *models.Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return r.revision, nil
	}
	copied := *r.latest
	return r.revision, &copied
}
