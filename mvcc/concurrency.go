package mvcc

import (
	"sync/atomic"

	"github.com/aalhour/txnkv/txnkey"
)

// ConcurrencyManager is the process-wide structure holding a monotonic
// max_ts, which async-commit and 1PC consult to choose a commit timestamp
// guaranteed newer than anything already observed.
//
// Grounded on the teacher's PessimisticTransaction.validateSnapshot
// max-sequence tracking idiom (an atomic high-water mark bumped by every
// operation that observes a sequence number), generalized here from a
// single uint64 sequence counter to txnkey.Timestamp's packed form.
//
// Reference: spec.md §4.1.6.
type ConcurrencyManager struct {
	maxTS atomic.Uint64
}

// NewConcurrencyManager returns a manager with max_ts = 0.
func NewConcurrencyManager() *ConcurrencyManager {
	return &ConcurrencyManager{}
}

// MaxTS returns the current high-water mark.
func (cm *ConcurrencyManager) MaxTS() txnkey.Timestamp {
	return txnkey.Unpack(cm.maxTS.Load())
}

// Update performs a max-assignment: max_ts becomes the larger of its
// current value and ts. Safe for concurrent use without external locks,
// per spec.md §5 ("uses atomic max-assignment; no locks required for the
// fast path").
func (cm *ConcurrencyManager) Update(ts txnkey.Timestamp) {
	packed := ts.Pack()
	for {
		cur := cm.maxTS.Load()
		if packed <= cur {
			return
		}
		if cm.maxTS.CompareAndSwap(cur, packed) {
			return
		}
	}
}
