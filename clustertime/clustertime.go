// Package clustertime implements the "cluster-time service" collaborator
// spec.md §6 leaves abstract: a small process-wide tunable the storage
// engine and GC filter consult without owning. It publishes the GC
// safe-point (an atomic timestamp below which no reader needs an older
// MVCC version) and observes the cluster's negotiated feature version.
//
// Grounded on the teacher's rate_limiter.go RateLimiter/GenericRateLimiter
// shape: a small interface plus a mutex-and-atomics-backed implementation
// that callers consult without owning, installed once per process.
package clustertime

import (
	"sync"
	"sync/atomic"

	"github.com/aalhour/txnkv/txnkey"
)

// Source is the cluster-time service collaborator: an atomic safe-point
// timestamp and an observable cluster version string.
type Source interface {
	// SafePoint returns the currently published GC safe-point, or the
	// zero Timestamp if none has been published yet.
	SafePoint() txnkey.Timestamp

	// ClusterVersion returns the cluster's negotiated feature version,
	// e.g. "5.0.0".
	ClusterVersion() string
}

// Tracker is the process-wide implementation of Source: an atomically
// updated safe-point plus a mutex-guarded version string, mirroring the
// teacher's GenericRateLimiter (atomics for the hot-path field, a mutex
// for the rarely-changed configuration field).
type Tracker struct {
	safePoint atomic.Uint64 // packed Timestamp; 0 means "not yet published"

	mu      sync.Mutex
	version string
}

// NewTracker returns a Tracker with no safe-point published and the
// given initial cluster version.
func NewTracker(initialVersion string) *Tracker {
	t := &Tracker{version: initialVersion}
	return t
}

// SafePoint implements Source.
func (t *Tracker) SafePoint() txnkey.Timestamp {
	return txnkey.Unpack(t.safePoint.Load())
}

// PublishSafePoint advances the published safe-point to ts. Safe-points
// only ever move forward; publishing an older value is a no-op, matching
// the append-only nature of GC progress.
func (t *Tracker) PublishSafePoint(ts txnkey.Timestamp) {
	packed := ts.Pack()
	for {
		cur := t.safePoint.Load()
		if packed <= cur {
			return
		}
		if t.safePoint.CompareAndSwap(cur, packed) {
			return
		}
	}
}

// ClusterVersion implements Source.
func (t *Tracker) ClusterVersion() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

// SetClusterVersion updates the observed cluster version, e.g. once every
// replica has finished a rolling upgrade.
func (t *Tracker) SetClusterVersion(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.version = v
}
