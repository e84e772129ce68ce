package gc

import (
	"bytes"
	"fmt"

	"github.com/aalhour/txnkv/config"
	"github.com/aalhour/txnkv/internal/batch"
	"github.com/aalhour/txnkv/internal/logging"
	"github.com/aalhour/txnkv/storage"
	"github.com/aalhour/txnkv/txnkey"
)

// flushThresholdOps and flushThresholdBytes bound the pending side-band
// write-batch's size before it is flushed to the engine mid-compaction
// (spec.md §4.2.3 step 6).
const (
	flushThresholdOps   = 128
	flushThresholdBytes = 256 * 1024
)

// nearSeekSteps bounds how many Next() calls the delete-mark walk will
// take before falling back to Seek (spec.md §4.2.4).
const nearSeekSteps = 16

// Filter implements storage.CompactionFilter: the per-compaction-job
// state spec.md §4.2.3 describes (safe_point, key_prefix, remove_older,
// near-seek counter, per-key/cumulative counters, an internal iterator,
// a pending write-batch), grounded on the teacher's RemoveByPrefixFilter/
// RemoveByRangeFilter idiom of holding small per-compaction state
// directly in the filter struct, scaled up to this spec's richer
// per-record decision and side-band deletion.
type Filter struct {
	safePoint txnkey.Timestamp
	engine    *storage.Engine
	gcCtx     *Context
	logger    logging.Logger

	keyPrefix   []byte
	removeOlder bool

	writeIter      *storage.Iterator
	stepsSinceSeek int

	pending     *batch.WriteBatch
	pendingOps  int
	pendingSize int

	examined int
	removed  int
}

func newFilter(safePoint txnkey.Timestamp, engine *storage.Engine, gcCtx *Context, logger logging.Logger) *Filter {
	return &Filter{
		safePoint: safePoint,
		engine:    engine,
		gcCtx:     gcCtx,
		logger:    logger,
		writeIter: engine.NewIterator(storage.CFWrite),
		pending:   batch.New(),
	}
}

// Name implements storage.CompactionFilter.
func (f *Filter) Name() string { return "txnkv.gc.Filter" }

// Filter implements storage.CompactionFilter, following spec.md §4.2.3's
// per-record algorithm exactly.
func (f *Filter) Filter(key, value []byte) storage.CompactionFilterDecision {
	f.examined++

	userKey, commitTS := txnkey.PhysicalKey(key).Split()
	if commitTS.After(f.safePoint) {
		return storage.FilterKeep
	}

	if !bytes.Equal(userKey, f.keyPrefix) {
		f.keyPrefix = append(f.keyPrefix[:0], userKey...)
		f.removeOlder = false
	}

	rec, err := txnkey.DecodeWriteRecord(value)
	if err != nil {
		// Stored data failed to parse: this is corruption, not a
		// recoverable condition (spec.md §7: "internal failures panic
		// because they indicate corruption").
		panic(fmt.Sprintf("gc: corrupt write record for key %q at commit_ts %s: %v", userKey, commitTS, err))
	}

	if rec.Type == txnkey.WriteTypeRollback && rec.IsProtectedRollback() {
		return storage.FilterKeep
	}

	var drop bool
	switch {
	case f.removeOlder:
		drop = true
	case rec.Type == txnkey.WriteTypePut:
		drop = false
		f.removeOlder = true
	case rec.Type == txnkey.WriteTypeDelete:
		drop = true
		f.removeOlder = true
		f.deleteMarkWalk(userKey, commitTS)
	default: // Lock, unprotected Rollback
		drop = true
	}

	if !drop {
		return storage.FilterKeep
	}

	f.removed++
	if rec.Type == txnkey.WriteTypePut && len(rec.ShortValue) == 0 {
		f.scheduleDelete(storage.CFDefault, txnkey.EncodeKey(userKey, rec.StartTS))
	}
	return storage.FilterRemove
}

// deleteMarkWalk implements spec.md §4.2.4: walk forward from the delete
// marker at (userKey, deleteCommitTS), reclaiming every older version of
// userKey except protected rollbacks, which are kept, including those
// the main filter loop may never visit on its own (they may lie
// in other input segments or be excluded by range partitioning in a
// richer engine than this one).
//
// Grounded on jackysp-unistore/tikv/mvcc.go's getOldIter/Seek/
// ValidForPrefix forward-scan idiom for walking masked older versions of
// a key, adapted to this engine's Iterator contract.
func (f *Filter) deleteMarkWalk(userKey []byte, deleteCommitTS txnkey.Timestamp) {
	target := txnkey.EncodeKey(userKey, deleteCommitTS)
	f.positionNear(target)

	if f.writeIter.Valid() && bytes.Equal(f.writeIter.Key(), []byte(target)) {
		f.writeIter.Next()
		f.stepsSinceSeek++
	}

	for f.writeIter.Valid() {
		k := f.writeIter.Key()
		if !txnkey.SameUserKey(txnkey.PhysicalKey(k), txnkey.PhysicalKey(target)) {
			break
		}

		v := f.writeIter.Value()
		if rec, err := txnkey.DecodeWriteRecord(v); err == nil {
			if rec.IsProtectedRollback() {
				f.writeIter.Next()
				f.stepsSinceSeek++
				continue
			}
			if rec.Type == txnkey.WriteTypePut && len(rec.ShortValue) == 0 {
				f.scheduleDelete(storage.CFDefault, txnkey.EncodeKey(userKey, rec.StartTS))
			}
		}
		f.scheduleDelete(storage.CFWrite, k)
		f.removed++

		f.writeIter.Next()
		f.stepsSinceSeek++
	}
}

// positionNear applies the amortized positioning heuristic of spec.md
// §4.2.4: re-seek if the last seek was more than nearSeekSteps Next()
// calls ago; otherwise advance with Next() looking for target, falling
// back to Seek if it isn't found within nearSeekSteps.
func (f *Filter) positionNear(target []byte) {
	if f.stepsSinceSeek > nearSeekSteps {
		f.writeIter.Seek(target)
		f.stepsSinceSeek = 0
		return
	}

	for i := 0; i < nearSeekSteps; i++ {
		if f.writeIter.Valid() && bytes.Compare(f.writeIter.Key(), target) >= 0 {
			return
		}
		if !f.writeIter.Valid() {
			break
		}
		f.writeIter.Next()
		f.stepsSinceSeek++
	}

	f.writeIter.Seek(target)
	f.stepsSinceSeek = 0
}

// scheduleDelete buffers a side-band delete into the pending batch,
// flushing early once either threshold is exceeded (spec.md §4.2.3 step 6).
func (f *Filter) scheduleDelete(cf storage.ColumnFamily, key []byte) {
	f.pending.DeleteCF(uint32(cf), key)
	f.pendingOps++
	f.pendingSize += len(key)
	if f.pendingOps >= flushThresholdOps || f.pendingSize >= flushThresholdBytes {
		f.flush()
	}
}

func (f *Filter) flush() {
	if f.pendingOps == 0 {
		return
	}
	if err := f.engine.Write(f.pending, &config.WriteOptions{Sync: true}); err != nil {
		f.logger.Errorf(logging.NSCompact + "gc side-band flush failed: " + err.Error())
	}
	f.pending = batch.New()
	f.pendingOps = 0
	f.pendingSize = 0
}

// Close implements the optional end-of-compaction hook storage.Engine's
// Compact looks for (spec.md §4.2.5): flush any residual side-band batch,
// force a WAL sync, and emit an aggregated report if either trigger has
// fired.
func (f *Filter) Close() error {
	f.flush()
	if report := f.gcCtx.maybeReport(f.examined, f.removed); report != nil {
		f.logger.Infof(logging.NSCompact+"gc report: versions_examined=%d keys_removed=%d elapsed=%s",
			report.VersionsExamined, report.KeysRemoved, report.Elapsed)
	}
	return nil
}
