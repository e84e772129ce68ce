package gc

import (
	"github.com/aalhour/txnkv/internal/logging"
	"github.com/aalhour/txnkv/storage"
	"github.com/aalhour/txnkv/txnkey"
)

// FilterFactory implements storage.CompactionFilterFactory, the teacher's
// db.CompactionFilterFactory contract (CreateCompactionFilter(context) ->
// filter), adapted so the context's activation ratio comes from a
// pre-scan of the job's input (see storage.CompactionFilterContext) and
// gated through a process-wide Context rather than per-job flags.
type FilterFactory struct {
	GC     *Context
	Engine *storage.Engine
}

// NewFilterFactory returns a factory that activates GC through gc, with
// side-band deletes and delete-mark walks applied against engine.
func NewFilterFactory(gcCtx *Context, engine *storage.Engine) *FilterFactory {
	return &FilterFactory{GC: gcCtx, Engine: engine}
}

// Name implements storage.CompactionFilterFactory.
func (f *FilterFactory) Name() string { return "txnkv.gc.FilterFactory" }

// CreateCompactionFilter implements storage.CompactionFilterFactory. It
// only ever activates for the write column family (spec.md §4.2.1: the
// filter plugs in "for the write column family"); a pre-scan of ctx's
// input decodes every write record's type to build the numVersions/
// numPuts ratio §4.2.2's gate needs.
func (f *FilterFactory) CreateCompactionFilter(ctx storage.CompactionFilterContext) (storage.CompactionFilter, bool) {
	if ctx.ColumnFamily != storage.CFWrite {
		return nil, false
	}

	numVersions, numPuts := aggregateMVCCProperties(ctx.PreScan)
	if !f.GC.ShouldRun(numVersions, numPuts, ctx.SingleInputSegment) {
		return nil, false
	}

	logger := logging.OrDefault(ctx.Logger)
	logger.Infof(logging.NSCompact+"gc filter activating: safe_point=%s num_versions=%d num_puts=%d", f.GC.SafePoint(), numVersions, numPuts)

	return newFilter(f.GC.SafePoint(), f.Engine, f.GC, logger), true
}

// aggregateMVCCProperties walks it once, decoding each write-CF record's
// type, and returns (total versions seen, total Put versions). Grounded
// on the teacher's internal/table/properties.go table-properties
// aggregation, adapted: rather than reading a precomputed properties
// block, this engine has no SST format to stash one in, so the factory
// recomputes the same two counters directly from a fresh iterator handed
// to it for exactly this purpose (see storage.CompactionFilterContext).
func aggregateMVCCProperties(it *storage.Iterator) (numVersions, numPuts int) {
	if it == nil {
		return 0, 0
	}
	for it.SeekToFirst(); it.Valid(); it.Next() {
		numVersions++
		rec, err := txnkey.DecodeWriteRecord(it.Value())
		if err != nil {
			continue
		}
		if rec.Type == txnkey.WriteTypePut {
			numPuts++
		}
	}
	return numVersions, numPuts
}
