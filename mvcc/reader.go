package mvcc

import (
	"github.com/aalhour/txnkv/storage"
	"github.com/aalhour/txnkv/txnkey"
)

// Reader is the snapshot-reader contract every engine operation reads
// through: load the current lock for a key, seek the newest write record
// at or before a given timestamp, and load a (possibly out-of-line) value.
//
// Reference: spec.md §2 "each [operation] implemented against a
// snapshot-reader that can load a current lock, seek a write record
// backward from a version, and load a value."
type Reader interface {
	// CurrentLock returns the lock currently held on key, if any.
	CurrentLock(key []byte) (txnkey.Lock, bool, error)

	// SeekWrite returns the newest write record for key with
	// commit_ts <= ts, along with that commit_ts. found is false if no
	// such record exists.
	SeekWrite(key []byte, ts txnkey.Timestamp) (commitTS txnkey.Timestamp, rec txnkey.WriteRecord, found bool, err error)

	// LoadValue reads the out-of-line value for key written by the
	// transaction that started at startTS.
	LoadValue(key []byte, startTS txnkey.Timestamp) ([]byte, error)
}

// SnapshotReader adapts a storage.Snapshot to the Reader contract.
//
// Grounded on storage.Snapshot (snapshot.go) plus the physical-key
// encoding rules in package txnkey; the "seek backward from a version"
// behavior falls directly out of the descending-timestamp encoding: a
// forward Seek to SeekKey(key, ts) lands on the newest version with
// commit_ts <= ts, if one exists for this key at all.
type SnapshotReader struct {
	Snap *storage.Snapshot
}

func NewSnapshotReader(snap *storage.Snapshot) *SnapshotReader {
	return &SnapshotReader{Snap: snap}
}

func (r *SnapshotReader) CurrentLock(key []byte) (txnkey.Lock, bool, error) {
	data, ok := r.Snap.Get(storage.CFLock, txnkey.EncodeLockKey(key))
	if !ok {
		return txnkey.Lock{}, false, nil
	}
	lock, err := txnkey.DecodeLock(data)
	if err != nil {
		return txnkey.Lock{}, false, err
	}
	return lock, true, nil
}

func (r *SnapshotReader) SeekWrite(key []byte, ts txnkey.Timestamp) (txnkey.Timestamp, txnkey.WriteRecord, bool, error) {
	target := txnkey.SeekKey(key, ts)
	it := r.Snap.NewIterator(storage.CFWrite)
	it.Seek(target)
	if !it.Valid() {
		return txnkey.ZeroTimestamp, txnkey.WriteRecord{}, false, nil
	}
	pk := txnkey.PhysicalKey(it.Key())
	if !txnkey.SameUserKey(pk, target) {
		return txnkey.ZeroTimestamp, txnkey.WriteRecord{}, false, nil
	}
	rec, err := txnkey.DecodeWriteRecord(it.Value())
	if err != nil {
		return txnkey.ZeroTimestamp, txnkey.WriteRecord{}, false, err
	}
	return pk.Timestamp(), rec, true, nil
}

func (r *SnapshotReader) LoadValue(key []byte, startTS txnkey.Timestamp) ([]byte, error) {
	v, ok := r.Snap.Get(storage.CFDefault, txnkey.EncodeKey(key, startTS))
	if !ok {
		return nil, nil
	}
	return v, nil
}

// loadWriteValue resolves the user-visible value of a Put write record,
// whether it was inlined (ShortValue) or stored out-of-line in the
// default CF at (key, rec.StartTS).
func loadWriteValue(r Reader, key []byte, rec txnkey.WriteRecord) ([]byte, error) {
	if rec.ShortValue != nil {
		return rec.ShortValue, nil
	}
	return r.LoadValue(key, rec.StartTS)
}
