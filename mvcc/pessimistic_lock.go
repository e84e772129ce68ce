package mvcc

import "github.com/aalhour/txnkv/txnkey"

// PessimisticLockRequest carries the inputs of spec.md §4.1.2
// acquire_pessimistic_lock.
type PessimisticLockRequest struct {
	Key            []byte
	Primary        []byte
	StartTS        txnkey.Timestamp
	ForUpdateTS    txnkey.Timestamp
	TTLMillis      uint64
	MinCommitTS    txnkey.Timestamp
	ShouldNotExist bool
	NeedValue      bool
}

// AcquirePessimisticLock implements spec.md §4.1.2.
func (e *Engine) AcquirePessimisticLock(r Reader, b *Batch, req PessimisticLockRequest) ([]byte, error) {
	if err := e.checkKeySize(req.Key); err != nil {
		return nil, err
	}
	e.CM.Update(req.StartTS)
	e.CM.Update(req.ForUpdateTS)

	lock, ok, err := r.CurrentLock(req.Key)
	if err != nil {
		return nil, err
	}
	if ok {
		if lock.TS.Compare(req.StartTS) != 0 {
			return nil, &KeyIsLockedError{Key: req.Key, Lock: lock}
		}
		// Step 1: same transaction re-acquiring its own pessimistic lock.
		if lock.Type != txnkey.LockTypePessimistic {
			return nil, ErrLockTypeNotMatch
		}
		var value []byte
		if req.NeedValue {
			value, _, err = resolveVisibleValueFromWrite(r, req.Key, req.ForUpdateTS)
			if err != nil {
				return nil, err
			}
		}
		if req.ForUpdateTS.After(lock.ForUpdateTS) {
			lock.ForUpdateTS = req.ForUpdateTS
			b.PutLock(req.Key, lock)
		}
		// else: duplicate command, nothing to do.
		return value, nil
	}

	// Step 2: seek the newest write, unconditionally.
	commitTS, rec, found, err := r.SeekWrite(req.Key, txnkey.MaxTimestamp)
	if err != nil {
		return nil, err
	}
	if found {
		if commitTS.After(req.ForUpdateTS) {
			return nil, &WriteConflictError{StartTS: req.StartTS, ConflictCommit: commitTS, Key: req.Key}
		}
		if commitTS.Compare(req.StartTS) == 0 && (rec.Type == txnkey.WriteTypeRollback || rec.HasOverlappedRollback) {
			return nil, ErrPessimisticLockRolledBack
		}
		if commitTS.After(req.StartTS) {
			// Re-seek backward from start_ts looking for our own rollback.
			cts2, rec2, found2, err := r.SeekWrite(req.Key, req.StartTS)
			if err != nil {
				return nil, err
			}
			if found2 && cts2.Compare(req.StartTS) == 0 && rec2.Type == txnkey.WriteTypeRollback {
				return nil, ErrPessimisticLockRolledBack
			}
		}

		// Step 3: should_not_exist. Resolve through any Lock/Rollback
		// record masking an older committed Put rather than checking
		// only the newest record's type directly, matching TiKV's
		// check_data_constraint.
		if req.ShouldNotExist {
			_, exists, err := resolveVisibleValueFromWrite(r, req.Key, txnkey.MaxTimestamp)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, ErrAlreadyExist
			}
		}
	}

	// Step 4: need_value.
	var value []byte
	if req.NeedValue {
		value, _, err = resolveVisibleValueFromWrite(r, req.Key, req.ForUpdateTS)
		if err != nil {
			return nil, err
		}
	}

	// Step 5: buffer a fresh Pessimistic lock.
	b.PutLock(req.Key, txnkey.Lock{
		Type:        txnkey.LockTypePessimistic,
		Primary:     req.Primary,
		TS:          req.StartTS,
		TTLMillis:   req.TTLMillis,
		ForUpdateTS: req.ForUpdateTS,
		MinCommitTS: req.MinCommitTS,
	})
	return value, nil
}
