package mvcc

import "github.com/aalhour/txnkv/txnkey"

// Engine is the MVCC transaction engine collaborator: it owns no storage
// of its own, reading through a caller-supplied Reader and accumulating
// every operation's effects into a caller-supplied Batch. The caller
// (typically the request scheduler, out of scope here per spec.md §5)
// converts the batch to a storage.Engine write after acquiring the
// appropriate per-key latches.
//
// Grounded on the teacher's PessimisticTransaction for the
// validate-then-mutate operation shape, generalized from a single
// key-latest-value model to the write/lock/default three-CF MVCC layout
// this spec requires (see the retrieved jackysp-unistore/tikv/mvcc.go
// file for that generalization's precedent).
type Engine struct {
	CM         *ConcurrencyManager
	MaxKeySize int
}

// NewEngine returns an Engine sharing cm and enforcing maxKeySize on every
// key passed to AcquirePessimisticLock/Prewrite.
func NewEngine(cm *ConcurrencyManager, maxKeySize int) *Engine {
	return &Engine{CM: cm, MaxKeySize: maxKeySize}
}

// Get performs the point read spec.md's scenarios exercise directly
// against SeekWrite ("read at 21 returns v; read at 19 returns nothing"):
// the newest write committed at or before ts, resolving through any
// intervening Lock/Rollback records to the Put/Delete beneath them. found
// is false for an absent key or a Delete.
func (e *Engine) Get(r Reader, key []byte, ts txnkey.Timestamp) (value []byte, found bool, err error) {
	return resolveVisibleValueFromWrite(r, key, ts)
}

func (e *Engine) checkKeySize(key []byte) error {
	if e.MaxKeySize > 0 && len(key) > e.MaxKeySize {
		return ErrKeyTooLarge
	}
	return nil
}

// resolveVisibleValueFromWrite implements the "need_value" resolution
// shared by pessimistic-lock acquisition and prewrite's read-before-write
// path, and the Get read path: find the newest write at or before ts,
// returning the Put value, nothing for a Delete, or recursing to the
// version immediately before a Lock/Rollback record (spec.md §4.1.2 step
// 4).
func resolveVisibleValueFromWrite(r Reader, key []byte, ts txnkey.Timestamp) ([]byte, bool, error) {
	cur := ts
	for {
		commitTS, rec, found, err := r.SeekWrite(key, cur)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, nil
		}
		switch rec.Type {
		case txnkey.WriteTypePut:
			v, err := loadWriteValue(r, key, rec)
			if err != nil {
				return nil, false, err
			}
			return v, true, nil
		case txnkey.WriteTypeDelete:
			return nil, false, nil
		case txnkey.WriteTypeLock, txnkey.WriteTypeRollback:
			if commitTS.Pack() == 0 {
				return nil, false, nil
			}
			cur = commitTS.Prev()
		default:
			return nil, false, nil
		}
	}
}
