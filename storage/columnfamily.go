// Package storage implements the column-family-aware, in-memory storage
// engine that stands in for the spec's "storage engine" collaborator: the
// MVCC transaction engine reads and writes through it, and the GC
// compaction filter plugs into its Compact pass.
//
// It is adapted from the teacher's column_family.go (fixed set of named
// column families backed by a per-CF memtable) and db/db.go (Write/Get/
// NewIterator/Compact surface), simplified from a generic multi-CF,
// on-disk LSM engine down to the three fixed column families this domain
// needs (lock, write, default) kept resident in memory with a
// write-ahead log for durability, since block-cache configuration, SST
// file formats, and leveled compaction are explicitly out of scope as
// *designs* here (see spec.md Non-goals) — only a real, working
// collaborator is needed to exercise the MVCC engine and the GC filter.
package storage

// ColumnFamily identifies one of the three fixed column families this
// engine supports.
type ColumnFamily uint32

const (
	// CFDefault stores value records: EncodeKey(userKey, startTS) -> raw value.
	CFDefault ColumnFamily = 0
	// CFLock stores lock records: EncodeLockKey(userKey) -> txnkey.Lock.
	CFLock ColumnFamily = 1
	// CFWrite stores write records: EncodeKey(userKey, commitTS) -> txnkey.WriteRecord.
	CFWrite ColumnFamily = 2
)

func (cf ColumnFamily) String() string {
	switch cf {
	case CFDefault:
		return "default"
	case CFLock:
		return "lock"
	case CFWrite:
		return "write"
	default:
		return "unknown"
	}
}

// columnFamilies lists every fixed column family, used to iterate all of
// them (e.g. when opening/recovering the engine).
var columnFamilies = []ColumnFamily{CFDefault, CFLock, CFWrite}
