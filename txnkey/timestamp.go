// Package txnkey implements the key codec and write-record format that
// the MVCC transaction engine and the GC compaction filter both build on:
// Timestamp, User key, Physical key, and the Write/Value/Lock record
// encodings for the "write", "default", and "lock" column families.
//
// Physical key encoding is grounded on the teacher's internal/dbformat
// InternalKey, which appends an 8-byte trailer packing a sequence number
// so that, compared as raw bytes, higher sequence numbers of the same
// user key sort *before* lower ones (RocksDB needs newest-version-first
// within a user key for its read path). This package produces the same
// newest-first ordering a different way: the timestamp is bitwise
// complemented before being appended, so a plain byte-lexicographic
// comparison already yields the right order without a custom comparator.
//
// Reference: RocksDB v10.7.5 db/dbformat.h (trailer-packing idea only;
// the bit layout here is this project's own).
package txnkey

import (
	"encoding/binary"
	"fmt"
)

// Timestamp is a hybrid logical clock value: a physical millisecond
// component and a logical counter that breaks ties within the same
// millisecond. Timestamps compare numerically as a single uint64 when
// packed, so ordering is just integer ordering.
//
// The zero value (Timestamp{}) means "unset" and must never be assigned
// to a committed write.
type Timestamp struct {
	Physical uint64 // milliseconds since epoch
	Logical  uint32 // tie-breaker within the same millisecond
}

// logicalBits is how many low bits of the packed 64-bit form are given
// to the logical counter.
const logicalBits = 18

// MaxLogical is the largest logical counter value a Timestamp can carry.
const MaxLogical = (1 << logicalBits) - 1

// ZeroTimestamp is the unset timestamp.
var ZeroTimestamp = Timestamp{}

// IsZero reports whether ts is the unset timestamp.
func (ts Timestamp) IsZero() bool {
	return ts.Physical == 0 && ts.Logical == 0
}

// Pack combines the physical and logical components into a single
// monotonically-ordered uint64.
func (ts Timestamp) Pack() uint64 {
	return ts.Physical<<logicalBits | uint64(ts.Logical&MaxLogical)
}

// Unpack reconstructs a Timestamp from its packed uint64 form.
func Unpack(v uint64) Timestamp {
	return Timestamp{
		Physical: v >> logicalBits,
		Logical:  uint32(v & MaxLogical),
	}
}

// Compare returns -1, 0, or 1 as ts is numerically less than, equal to,
// or greater than other.
func (ts Timestamp) Compare(other Timestamp) int {
	a, b := ts.Pack(), other.Pack()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether ts sorts strictly before other.
func (ts Timestamp) Less(other Timestamp) bool { return ts.Compare(other) < 0 }

// After reports whether ts sorts strictly after other.
func (ts Timestamp) After(other Timestamp) bool { return ts.Compare(other) > 0 }

// String renders the timestamp as "physical.logical" for logs and tests.
func (ts Timestamp) String() string {
	return fmt.Sprintf("%d.%d", ts.Physical, ts.Logical)
}

// MaxTimestamp is the largest representable Timestamp, used as the seek
// coordinate for "newest write at or before no particular bound" reads.
var MaxTimestamp = Unpack(^uint64(0))

// Prev returns the timestamp immediately before ts in packed order, used
// when a lookup must continue searching strictly older than a version it
// has already examined (see mvcc's backward seeks).
func (ts Timestamp) Prev() Timestamp {
	if ts.Pack() == 0 {
		return ts
	}
	return Unpack(ts.Pack() - 1)
}

// Max returns the later of ts and other.
func Max(ts, other Timestamp) Timestamp {
	if ts.Less(other) {
		return other
	}
	return ts
}

// encodeDescending appends the bitwise-complemented packed timestamp to
// dst, big-endian, so that ascending byte order corresponds to
// descending Timestamp order (newest first).
func encodeDescending(dst []byte, ts Timestamp) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], ^ts.Pack())
	return append(dst, buf[:]...)
}

// decodeDescending reads a descending-encoded trailer from the tail of
// src (which must be at least 8 bytes) and returns the Timestamp.
func decodeDescending(src []byte) Timestamp {
	v := ^binary.BigEndian.Uint64(src)
	return Unpack(v)
}
