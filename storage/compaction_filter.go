package storage

import "github.com/aalhour/txnkv/internal/logging"

// CompactionFilterDecision is the outcome of filtering a single record
// during a compaction pass.
//
// Reference (shape): teacher's db/compaction_filter.go
// CompactionFilterDecision (FilterKeep/FilterRemove/FilterChange),
// narrowed to the two outcomes the GC filter actually produces — it never
// rewrites a value in place, only keeps or drops it.
type CompactionFilterDecision int

const (
	// FilterKeep retains the record unchanged.
	FilterKeep CompactionFilterDecision = iota
	// FilterRemove drops the record from the compaction's output.
	FilterRemove
)

// CompactionFilterContext carries per-job metadata a filter factory can
// use to decide whether to activate, grounded on the teacher's
// CompactionFilterContext (IsFull, IsManual, ColumnFamilyID) extended
// with the MVCC-properties ratio this spec's activation gating needs
// (§4.2.2).
//
// The engine has no on-disk table-properties block to read the
// aggregated MVCC stats from the way the teacher's
// internal/table/properties.go ParsePropertiesBlock does (this engine
// has no SST format at all), so it hands the factory a fresh pre-scan
// Iterator over the job's input instead: the factory is free to walk it
// once to compute num_versions/num_puts before deciding whether to
// activate, then discard it — CreateCompactionFilter is called exactly
// once per Compact call, so there is no risk of the pre-scan iterator
// outliving the job.
type CompactionFilterContext struct {
	ColumnFamily ColumnFamily
	// PreScan is a fresh iterator over the same input the compaction is
	// about to process, positioned before the first entry. The factory
	// may use it to aggregate MVCC properties before deciding whether to
	// activate; it must not retain it past CreateCompactionFilter.
	PreScan *Iterator
	// SingleInputSegment is true when the compaction has exactly one
	// input segment, which the gating ratio boosts by +0.2.
	SingleInputSegment bool
	// Logger is the engine's configured logger, handed through so the
	// filter can report activation decisions and end-of-compaction
	// statistics the way the rest of the engine does.
	Logger logging.Logger
}

// CompactionFilter is invoked once per record during a compaction pass.
//
// Reference: teacher's db/compaction_filter.go CompactionFilter interface.
type CompactionFilter interface {
	Name() string
	// Filter is called with the physical key and current value of a
	// write-CF record, in ascending key order. An implementation may
	// also delete additional older versions itself, through side-band
	// writes made from within Filter (see gc.Filter's delete-mark walk).
	Filter(key, value []byte) CompactionFilterDecision
}

// CompactionFilterFactory creates a new CompactionFilter for each
// compaction job, mirroring the teacher's
// db.CompactionFilterFactory.CreateCompactionFilter contract.
type CompactionFilterFactory interface {
	Name() string
	CreateCompactionFilter(ctx CompactionFilterContext) (CompactionFilter, bool)
}
