package txnkey

import (
	"errors"

	"github.com/aalhour/txnkv/internal/encoding"
)

// WriteType enumerates the kinds of entries stored in the "write" column
// family.
type WriteType uint8

const (
	WriteTypePut WriteType = iota
	WriteTypeDelete
	WriteTypeLock
	WriteTypeRollback
)

func (wt WriteType) String() string {
	switch wt {
	case WriteTypePut:
		return "Put"
	case WriteTypeDelete:
		return "Delete"
	case WriteTypeLock:
		return "Lock"
	case WriteTypeRollback:
		return "Rollback"
	default:
		return "Unknown"
	}
}

// ShortValueThreshold is the inline-value size above which Prewrite must
// write the value to the default CF instead of inlining it into the
// write record's ShortValue field.
const ShortValueThreshold = 255

// WriteRecord is the value half of a "write" column-family entry whose
// key is EncodeKey(userKey, commitTS). commit_ts is carried in the key,
// not in this struct, since it is also the seek coordinate.
//
// Invariants (see package mvcc for enforcement):
//   - commit_ts > start_ts, except for WriteTypeRollback where
//     commit_ts == start_ts.
//   - A WriteTypePut record has ShortValue set, or exactly one
//     corresponding ValueRecord exists at EncodeKey(userKey, StartTS).
type WriteRecord struct {
	Type                  WriteType
	StartTS               Timestamp
	ShortValue            []byte // nil if not inlined
	HasOverlappedRollback bool
}

// Encode serializes a WriteRecord to bytes for storage in the write CF.
//
// Format: 1 byte type | varint64 start_ts | 1 byte has_overlapped_rollback
// | varint32 len(short_value) | short_value.
func (w WriteRecord) Encode() []byte {
	buf := make([]byte, 0, 24+len(w.ShortValue))
	buf = append(buf, byte(w.Type))
	buf = encoding.AppendVarint64(buf, w.StartTS.Pack())
	if w.HasOverlappedRollback {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = encoding.AppendLengthPrefixedSlice(buf, w.ShortValue)
	return buf
}

// ProtectedRollbackMarker is stored in a WriteTypeRollback record's
// ShortValue field to mark it as protected: GC must never drop it, even
// past the safe-point, because a later pessimistic retry of the same
// start_ts must still observe that the transaction was rolled back.
// Rollback records otherwise have no use for ShortValue, so this reuses
// the field rather than widening WriteRecord with a dedicated flag.
var ProtectedRollbackMarker = []byte{1}

// IsProtectedRollback reports whether w is a Rollback record carrying the
// protection marker.
func (w WriteRecord) IsProtectedRollback() bool {
	return w.Type == WriteTypeRollback && len(w.ShortValue) > 0
}

// ErrCorruptWriteRecord indicates a write-CF value could not be parsed.
var ErrCorruptWriteRecord = errors.New("txnkey: corrupt write record")

// DecodeWriteRecord parses the bytes produced by WriteRecord.Encode.
func DecodeWriteRecord(data []byte) (WriteRecord, error) {
	if len(data) < 2 {
		return WriteRecord{}, ErrCorruptWriteRecord
	}
	wt := WriteType(data[0])
	rest := data[1:]

	packed, n, err := encoding.DecodeVarint64(rest)
	if err != nil {
		return WriteRecord{}, ErrCorruptWriteRecord
	}
	rest = rest[n:]

	if len(rest) < 1 {
		return WriteRecord{}, ErrCorruptWriteRecord
	}
	overlapped := rest[0] != 0
	rest = rest[1:]

	length, n, err := encoding.DecodeVarint32(rest)
	if err != nil {
		return WriteRecord{}, ErrCorruptWriteRecord
	}
	rest = rest[n:]
	if len(rest) < int(length) {
		return WriteRecord{}, ErrCorruptWriteRecord
	}
	var shortValue []byte
	if length > 0 {
		shortValue = append([]byte(nil), rest[:length]...)
	}

	return WriteRecord{
		Type:                  wt,
		StartTS:               Unpack(packed),
		ShortValue:            shortValue,
		HasOverlappedRollback: overlapped,
	}, nil
}

// LockType enumerates the kinds of intent a Lock record can represent.
type LockType uint8

const (
	LockTypePut LockType = iota
	LockTypeDelete
	LockTypeLock
	LockTypePessimistic
)

func (lt LockType) String() string {
	switch lt {
	case LockTypePut:
		return "Put"
	case LockTypeDelete:
		return "Delete"
	case LockTypeLock:
		return "Lock"
	case LockTypePessimistic:
		return "Pessimistic"
	default:
		return "Unknown"
	}
}

// Lock is the value half of a "lock" column-family entry whose key is
// EncodeLockKey(userKey). At most one Lock may exist per user key.
type Lock struct {
	Type        LockType
	Primary     []byte
	TS          Timestamp // start_ts
	TTLMillis   uint64
	ShortValue  []byte // nil if not inlined or not a Put lock
	ForUpdateTS Timestamp
	MinCommitTS Timestamp
}

// Encode serializes a Lock to bytes for storage in the lock CF.
func (l Lock) Encode() []byte {
	buf := make([]byte, 0, 48+len(l.Primary)+len(l.ShortValue))
	buf = append(buf, byte(l.Type))
	buf = encoding.AppendLengthPrefixedSlice(buf, l.Primary)
	buf = encoding.AppendVarint64(buf, l.TS.Pack())
	buf = encoding.AppendVarint64(buf, l.TTLMillis)
	buf = encoding.AppendLengthPrefixedSlice(buf, l.ShortValue)
	buf = encoding.AppendVarint64(buf, l.ForUpdateTS.Pack())
	buf = encoding.AppendVarint64(buf, l.MinCommitTS.Pack())
	return buf
}

// ErrCorruptLock indicates a lock-CF value could not be parsed.
var ErrCorruptLock = errors.New("txnkey: corrupt lock record")

// DecodeLock parses the bytes produced by Lock.Encode.
func DecodeLock(data []byte) (Lock, error) {
	if len(data) < 1 {
		return Lock{}, ErrCorruptLock
	}
	lt := LockType(data[0])
	rest := data[1:]

	primary, n, err := decodeLengthPrefixed(rest)
	if err != nil {
		return Lock{}, err
	}
	rest = rest[n:]

	ts, n, err := decodeVarint64(rest)
	if err != nil {
		return Lock{}, err
	}
	rest = rest[n:]

	ttl, n, err := decodeVarint64(rest)
	if err != nil {
		return Lock{}, err
	}
	rest = rest[n:]

	shortValue, n, err := decodeLengthPrefixed(rest)
	if err != nil {
		return Lock{}, err
	}
	rest = rest[n:]

	forUpdate, n, err := decodeVarint64(rest)
	if err != nil {
		return Lock{}, err
	}
	rest = rest[n:]

	minCommit, _, err := decodeVarint64(rest)
	if err != nil {
		return Lock{}, err
	}

	return Lock{
		Type:        lt,
		Primary:     primary,
		TS:          Unpack(ts),
		TTLMillis:   ttl,
		ShortValue:  shortValue,
		ForUpdateTS: Unpack(forUpdate),
		MinCommitTS: Unpack(minCommit),
	}, nil
}

func decodeVarint64(data []byte) (uint64, int, error) {
	v, n, err := encoding.DecodeVarint64(data)
	if err != nil {
		return 0, 0, ErrCorruptLock
	}
	return v, n, nil
}

func decodeLengthPrefixed(data []byte) ([]byte, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrCorruptLock
	}
	length, n, err := encoding.DecodeVarint32(data)
	if err != nil {
		return nil, 0, ErrCorruptLock
	}
	total := n + int(length)
	if len(data) < total {
		return nil, 0, ErrCorruptLock
	}
	var out []byte
	if length > 0 {
		out = append([]byte(nil), data[n:total]...)
	}
	return out, total, nil
}
