// Package compaction carries the small pieces of RocksDB's compaction
// bookkeeping this engine's simplified, in-memory compaction pass still
// needs: why a compaction ran, how many input segments it covered, and
// its key range. The full leveled/universal/FIFO file-selection machinery
// (picker, subcompaction, job) has no equivalent here, since the storage
// engine compacts a whole column family in one pass rather than choosing
// among on-disk SST files.
//
// Reference: RocksDB v10.7.5 db/compaction/compaction.h
package compaction

// Reason indicates why a compaction was triggered.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonManual
	ReasonFlush
	ReasonSizeAmplification
)

func (r Reason) String() string {
	switch r {
	case ReasonManual:
		return "Manual"
	case ReasonFlush:
		return "Flush"
	case ReasonSizeAmplification:
		return "SizeAmplification"
	default:
		return "Unknown"
	}
}

// InputStats summarizes the segments a compaction pass read, grounded on
// the teacher's Compaction.NumInputFiles()/computeKeyRange() bookkeeping
// but scoped to what a single-pass in-memory compaction can report.
type InputStats struct {
	NumInputSegments int
	SmallestKey      []byte
	LargestKey       []byte
	Reason           Reason
}
