package mvcc

import (
	"github.com/aalhour/txnkv/internal/batch"
	"github.com/aalhour/txnkv/storage"
	"github.com/aalhour/txnkv/txnkey"
)

// MutationOp is the kind of change a caller wants prewrite to stage for a
// single key.
type MutationOp int

const (
	MutationPut MutationOp = iota
	MutationDelete
	// MutationLock stages a "Lock" write record with no value change —
	// used for transactions that only need to assert they observed a key
	// (e.g. SELECT FOR UPDATE over a row nobody writes to).
	MutationLock
)

// Mutation is one row of a prewrite request: what to do to a key, and
// (for MutationPut) the value to write.
type Mutation struct {
	Op    MutationOp
	Key   []byte
	Value []byte
}

// Batch is the engine's modification buffer: every operation in this
// package reads through a Reader and accumulates its effects here, rather
// than writing the storage engine directly, so the caller can apply the
// whole operation as one atomic storage write.
//
// Grounded on internal/batch.WriteBatch's accumulate-then-apply idiom,
// kept as a thin per-CF slice buffer instead of that package's
// byte-serialized log format: this buffer is built and consumed entirely
// in-process by one engine operation, so there is nothing to replay from
// disk the way the storage engine's WAL does.
type Batch struct {
	lockPuts       []lockPut
	lockDeletes    [][]byte
	writePuts      []writePut
	writeDeletes   [][]byte
	defaultPuts    []defaultPut
	defaultDeletes [][]byte
}

type lockPut struct {
	key  []byte
	lock txnkey.Lock
}

type writePut struct {
	key      []byte
	commitTS txnkey.Timestamp
	rec      txnkey.WriteRecord
}

type defaultPut struct {
	key     []byte
	startTS txnkey.Timestamp
	value   []byte
}

// NewBatch returns an empty modification buffer.
func NewBatch() *Batch { return &Batch{} }

func (b *Batch) PutLock(key []byte, lock txnkey.Lock) {
	b.lockPuts = append(b.lockPuts, lockPut{key: key, lock: lock})
}

func (b *Batch) DeleteLock(key []byte) {
	b.lockDeletes = append(b.lockDeletes, key)
}

func (b *Batch) PutWrite(key []byte, commitTS txnkey.Timestamp, rec txnkey.WriteRecord) {
	b.writePuts = append(b.writePuts, writePut{key: key, commitTS: commitTS, rec: rec})
}

func (b *Batch) DeleteWrite(key []byte, commitTS txnkey.Timestamp) {
	b.writeDeletes = append(b.writeDeletes, txnkey.EncodeKey(key, commitTS))
}

func (b *Batch) PutDefault(key []byte, startTS txnkey.Timestamp, value []byte) {
	b.defaultPuts = append(b.defaultPuts, defaultPut{key: key, startTS: startTS, value: value})
}

func (b *Batch) DeleteDefault(key []byte, startTS txnkey.Timestamp) {
	b.defaultDeletes = append(b.defaultDeletes, txnkey.EncodeKey(key, startTS))
}

// Empty reports whether the batch has no staged changes.
func (b *Batch) Empty() bool {
	return len(b.lockPuts) == 0 && len(b.lockDeletes) == 0 &&
		len(b.writePuts) == 0 && len(b.writeDeletes) == 0 &&
		len(b.defaultPuts) == 0 && len(b.defaultDeletes) == 0
}

// ToWriteBatch lowers the buffered modifications into the storage
// engine's atomic WriteBatch format so the caller can apply them in one
// Engine.Write call.
func (b *Batch) ToWriteBatch() *batch.WriteBatch {
	wb := batch.New()
	for _, p := range b.lockPuts {
		wb.PutCF(uint32(storage.CFLock), txnkey.EncodeLockKey(p.key), p.lock.Encode())
	}
	for _, k := range b.lockDeletes {
		wb.DeleteCF(uint32(storage.CFLock), txnkey.EncodeLockKey(k))
	}
	for _, p := range b.writePuts {
		wb.PutCF(uint32(storage.CFWrite), txnkey.EncodeKey(p.key, p.commitTS), p.rec.Encode())
	}
	for _, k := range b.writeDeletes {
		wb.DeleteCF(uint32(storage.CFWrite), k)
	}
	for _, p := range b.defaultPuts {
		wb.PutCF(uint32(storage.CFDefault), txnkey.EncodeKey(p.key, p.startTS), p.value)
	}
	for _, k := range b.defaultDeletes {
		wb.DeleteCF(uint32(storage.CFDefault), k)
	}
	return wb
}
