// Package storage implements the in-process "storage engine" collaborator
// spec.md leaves as an abstract design: a column-family-aware key-value
// store with WAL durability, point-in-time read handles, forward
// iteration, and a pluggable compaction filter. It is adapted from the
// teacher's RocksDB-faithful engine (db/*.go, internal/memtable,
// internal/manifest, internal/table) but drops the on-disk SST format,
// leveled/universal file selection, block cache, and MANIFEST version
// tracking entirely: this engine holds each column family as a single
// in-memory sorted store and compacts it in one pass, since spec.md
// explicitly treats those as out-of-scope collaborator designs.
package storage

import (
	"fmt"
	"sync"

	"github.com/aalhour/txnkv/config"
	"github.com/aalhour/txnkv/internal/batch"
	"github.com/aalhour/txnkv/internal/compaction"
	"github.com/aalhour/txnkv/internal/logging"
	"github.com/aalhour/txnkv/internal/vfs"
)

// Engine is the storage engine collaborator: three column families
// (default, lock, write), a WAL for crash durability, and an optional
// installed compaction filter factory consulted by Compact.
//
// Reference: teacher's DB struct (db.go, now removed) held a
// columnFamilySet plus a *wal.Writer; Engine narrows that to the fixed
// three-CF layout this domain needs.
type Engine struct {
	mu sync.Mutex

	opts *config.Options
	dir  string
	fs   vfs.FS
	log  *wal

	stores map[ColumnFamily]*cfStore

	seq uint64 // monotonically increasing write-sequence counter

	filterFactory CompactionFilterFactory

	logger logging.Logger
}

// Open creates or recovers an Engine rooted at dir. If opts.FS is nil the
// real OS filesystem is used; tests typically pass a vfs.NewMemFS().
func Open(dir string, opts *config.Options) (*Engine, error) {
	if opts == nil {
		opts = config.DefaultOptions()
	}
	fs := opts.FS
	if fs == nil {
		fs = vfs.Default()
	}
	if !fs.Exists(dir) {
		if !opts.CreateIfMissing {
			return nil, fmt.Errorf("storage: directory %q does not exist and CreateIfMissing is false", dir)
		}
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		opts:   opts,
		dir:    dir,
		fs:     fs,
		stores: make(map[ColumnFamily]*cfStore, len(columnFamilies)),
		logger: logging.OrDefault(opts.Logger),
	}
	for _, cf := range columnFamilies {
		e.stores[cf] = newCFStore()
	}

	e.logger.Infof(logging.NSRecovery+"replaying WAL for %q", dir)
	if err := replayWAL(fs, dir, opts.ChecksumType, opts.Compression, e.applyLocked); err != nil {
		return nil, fmt.Errorf("storage: WAL replay failed: %w", err)
	}

	l, err := openWAL(fs, dir, opts.ChecksumType, opts.Compression)
	if err != nil {
		return nil, err
	}
	e.log = l

	return e, nil
}

// Close flushes and closes the WAL. The in-memory stores are discarded;
// nothing further is persisted, matching this engine's "replay the WAL in
// full at Open" recovery model.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.close()
}

// store returns the cfStore backing cf. cf is always one of the three
// fixed column families, so the lookup cannot miss.
func (e *Engine) store(cf ColumnFamily) *cfStore {
	return e.stores[cf]
}

// Write applies wb atomically: it is first appended to the WAL (unless
// wo.DisableWAL), then applied to the in-memory column family stores
// while holding the engine's write mutex, so a concurrent Write or
// Compact never observes a partially-applied batch.
//
// Reference: teacher's DB.Write (db_apis.go, removed) — WriteBatch is
// logged then applied to the active memtable under the same write lock.
func (e *Engine) Write(wb *batch.WriteBatch, wo *config.WriteOptions) error {
	if wo == nil {
		wo = config.DefaultWriteOptions()
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !wo.DisableWAL {
		wb.SetSequence(e.seq + 1)
		if err := e.log.append(wb); err != nil {
			e.logger.Errorf(logging.NSWAL+"append failed: %v", err)
			return err
		}
	}
	if err := e.applyLocked(wb); err != nil {
		return err
	}
	e.seq += uint64(wb.Count())
	return nil
}

// applyLocked applies every record in wb to the in-memory stores. Callers
// must hold e.mu (or, during replay at Open, be the only goroutine with
// access to e).
func (e *Engine) applyLocked(wb *batch.WriteBatch) error {
	return wb.Iterate(engineApplyHandler{e})
}

type engineApplyHandler struct{ e *Engine }

func (h engineApplyHandler) PutCF(cfID uint32, key, value []byte) error {
	h.e.stores[ColumnFamily(cfID)].put(key, value)
	return nil
}

func (h engineApplyHandler) DeleteCF(cfID uint32, key []byte) error {
	h.e.stores[ColumnFamily(cfID)].delete(key)
	return nil
}

func (h engineApplyHandler) LogData(blob []byte) {}

// Get reads the current value for key in cf, bypassing the snapshot
// indirection for callers that don't need a stable read handle.
func (e *Engine) Get(cf ColumnFamily, key []byte) ([]byte, bool) {
	return e.store(cf).get(key)
}

// NewSnapshot returns a read handle that records the engine's current
// write-sequence number; its reads still go to the live stores, so it
// does not pin a point-in-time view.
func (e *Engine) NewSnapshot() *Snapshot {
	e.mu.Lock()
	seq := e.seq
	e.mu.Unlock()
	return &Snapshot{engine: e, seq: seq}
}

// NewIterator returns a forward iterator over cf as it stands right now.
func (e *Engine) NewIterator(cf ColumnFamily) *Iterator {
	return newIterator(e.store(cf))
}

// InstallCompactionFilterFactory registers the filter factory Compact
// consults. Passing nil disables filtering, so Compact becomes a no-op.
//
// Reference: teacher's Options.CompactionFilterFactory (options.go,
// removed), installed once at DB-open time there; here it can be swapped
// at runtime since there is no background compaction thread racing it.
func (e *Engine) InstallCompactionFilterFactory(factory CompactionFilterFactory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filterFactory = factory
}

// CompactResult reports what a Compact call did, mirroring the teacher's
// CompactionJobStats (internal/compaction) narrowed to the counters a
// single-pass in-memory compaction can produce, plus the input-range
// bookkeeping internal/compaction.InputStats still carries.
type CompactResult struct {
	KeysExamined int
	KeysRemoved  int
	Stats        compaction.InputStats
}

// Compact runs the installed compaction filter once over every record in
// cf as a manually-triggered compaction (ReasonManual): the teacher's
// background flush/size-amplification triggers have no equivalent here,
// since this engine has no background compaction thread.
func (e *Engine) Compact(cf ColumnFamily) (CompactResult, error) {
	return e.CompactWithReason(cf, compaction.ReasonManual)
}

// CompactWithReason runs the installed compaction filter once over every
// record in cf, in ascending key order, removing the ones the filter
// rejects, and records why the pass ran. With no filter installed,
// CompactWithReason is a no-op.
//
// Reference: teacher's CompactionJob::Run (internal/compaction),
// narrowed from "pick input files, merge-iterate, write new SSTs" down to
// "iterate the one in-memory store, delete what the filter rejects",
// since this engine never has more than one input segment per CF.
func (e *Engine) CompactWithReason(cf ColumnFamily, reason compaction.Reason) (CompactResult, error) {
	e.mu.Lock()
	factory := e.filterFactory
	e.mu.Unlock()

	result := CompactResult{Stats: compaction.InputStats{Reason: reason}}
	if factory == nil {
		return result, nil
	}

	store := e.store(cf)
	keys := store.snapshotKeys()
	result.Stats.NumInputSegments = 1
	if len(keys) > 0 {
		result.Stats.SmallestKey = []byte(keys[0])
		result.Stats.LargestKey = []byte(keys[len(keys)-1])
	}

	filter, ok := factory.CreateCompactionFilter(CompactionFilterContext{
		ColumnFamily:       cf,
		PreScan:            newIterator(store),
		SingleInputSegment: true,
		Logger:             e.logger,
	})
	if !ok || filter == nil {
		return result, nil
	}

	e.logger.Infof(logging.NSCompact+"starting %s compaction of %s with filter %s", reason, cf, filter.Name())
	for _, k := range keys {
		v, present := store.get([]byte(k))
		if !present {
			continue
		}
		result.KeysExamined++
		if filter.Filter([]byte(k), v) == FilterRemove {
			store.delete([]byte(k))
			result.KeysRemoved++
		}
	}
	if closer, ok := filter.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			e.logger.Errorf(logging.NSCompact+"filter close: %v", err)
			return result, err
		}
	}
	e.logger.Infof(logging.NSCompact+"compaction of %s examined=%d removed=%d", cf, result.KeysExamined, result.KeysRemoved)
	return result, nil
}
