package txnkey

import "bytes"

// TimestampLen is the number of trailer bytes a descending-encoded
// timestamp occupies.
const TimestampLen = 8

// PhysicalKey is a user key with a descending-encoded timestamp
// appended, as stored in the "write" and "default" column families.
// Lock-CF records use the bare user key with no trailer — see
// EncodeLockKey.
type PhysicalKey []byte

// EncodeKey builds the physical key for a given user key and timestamp:
// user_key || complement(pack(ts)), big-endian. Ascending byte order over
// PhysicalKey therefore visits a fixed user key's versions newest first.
func EncodeKey(userKey []byte, ts Timestamp) PhysicalKey {
	dst := make([]byte, 0, len(userKey)+TimestampLen)
	dst = append(dst, userKey...)
	dst = encodeDescending(dst, ts)
	return PhysicalKey(dst)
}

// EncodeLockKey returns the lock-CF physical key for userKey: the bare
// user key, since at most one lock may exist per key at a time (see
// the single-lock-per-key invariant) and no timestamp is needed to
// disambiguate.
func EncodeLockKey(userKey []byte) []byte {
	out := make([]byte, len(userKey))
	copy(out, userKey)
	return out
}

// Split decomposes a physical key into its user-key and timestamp parts.
// It panics if pk is shorter than TimestampLen, which indicates the
// caller handed it a lock-CF key or corrupted data — a bug, not a
// recoverable condition.
func (pk PhysicalKey) Split() ([]byte, Timestamp) {
	if len(pk) < TimestampLen {
		panic("txnkey: physical key shorter than timestamp trailer")
	}
	n := len(pk) - TimestampLen
	return pk[:n], decodeDescending(pk[n:])
}

// UserKey returns just the user-key prefix of pk.
func (pk PhysicalKey) UserKey() []byte {
	uk, _ := pk.Split()
	return uk
}

// Timestamp returns just the timestamp trailer of pk.
func (pk PhysicalKey) Timestamp() Timestamp {
	_, ts := pk.Split()
	return ts
}

// Truncate returns the physical key for the same user key but at the
// earliest possible timestamp that still sorts after every real version
// (i.e. the seek key used to find "the first version of this user key",
// since descending encoding puts the newest version first and the
// all-zero trailer, which complements to all-ones, sorts last).
func Truncate(userKey []byte) PhysicalKey {
	return EncodeKey(userKey, ZeroTimestamp)
}

// SeekKey returns the physical key to Seek() on when looking for the
// newest version of userKey visible at or before ts: encoding ts
// directly works because descending encoding places versions <= ts
// immediately at or after this key in iteration order.
func SeekKey(userKey []byte, ts Timestamp) PhysicalKey {
	return EncodeKey(userKey, ts)
}

// BytewiseCompare is the default comparator: plain lexicographic byte
// comparison, sufficient for PhysicalKey because the descending-timestamp
// encoding already bakes version order into the bytes.
func BytewiseCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// SameUserKey reports whether two physical keys share the same user-key
// prefix (the comparison compaction and the delete-mark walk use to
// detect "still inside the same key's version run").
func SameUserKey(a, b PhysicalKey) bool {
	return bytes.Equal(a.UserKey(), b.UserKey())
}
