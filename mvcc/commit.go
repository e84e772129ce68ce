package mvcc

import "github.com/aalhour/txnkv/txnkey"

// CommitRequest carries the inputs of spec.md §4.1.4 commit.
type CommitRequest struct {
	Key      []byte
	StartTS  txnkey.Timestamp
	CommitTS txnkey.Timestamp
}

func lockTypeToWriteType(lt txnkey.LockType) txnkey.WriteType {
	switch lt {
	case txnkey.LockTypePut:
		return txnkey.WriteTypePut
	case txnkey.LockTypeDelete:
		return txnkey.WriteTypeDelete
	default:
		return txnkey.WriteTypeLock
	}
}

// Commit implements spec.md §4.1.4.
func (e *Engine) Commit(r Reader, b *Batch, req CommitRequest) error {
	e.CM.Update(req.StartTS)
	e.CM.Update(req.CommitTS)

	lock, ok, err := r.CurrentLock(req.Key)
	if err != nil {
		return err
	}

	if !ok || lock.TS.Compare(req.StartTS) != 0 {
		// Step 1: lock absent (or held by someone else) — check for an
		// already-applied commit/rollback of this exact start_ts.
		commitTS, rec, found, err := r.SeekWrite(req.Key, txnkey.MaxTimestamp)
		if err != nil {
			return err
		}
		if found && rec.StartTS.Compare(req.StartTS) == 0 {
			if rec.Type == txnkey.WriteTypeRollback {
				return ErrTxnLockNotFound
			}
			return &CommittedError{CommitTS: commitTS}
		}
		return ErrTxnLockNotFound
	}

	// Step 2: lock belongs to this transaction — commit it.
	rec := txnkey.WriteRecord{
		Type:       lockTypeToWriteType(lock.Type),
		StartTS:    req.StartTS,
		ShortValue: lock.ShortValue,
	}
	b.PutWrite(req.Key, req.CommitTS, rec)
	b.DeleteLock(req.Key)
	return nil
}
