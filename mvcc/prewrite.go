package mvcc

import "github.com/aalhour/txnkv/txnkey"

// PrewriteOptions carries the inputs of spec.md §4.1.3 common to both the
// optimistic and pessimistic prewrite paths. ForUpdateTS distinguishes
// them: zero means optimistic, non-zero means pessimistic.
type PrewriteOptions struct {
	Primary     []byte
	StartTS     txnkey.Timestamp
	TTLMillis   uint64
	MinCommitTS txnkey.Timestamp

	// ForUpdateTS, if non-zero, marks this as a pessimistic-path prewrite
	// row for the freshest for_update_ts the caller observed.
	ForUpdateTS txnkey.Timestamp
	// IsPessimisticLock requires a pre-existing Pessimistic lock of this
	// transaction to already be held on Key (the pessimistic path's extra
	// precondition in spec.md §4.1.3).
	IsPessimisticLock bool

	ShouldNotExist bool

	// Secondaries being non-empty selects async-commit.
	Secondaries [][]byte
	// TryOnePC requests one-phase commit for this row.
	TryOnePC bool
	// MaxTSSynced must be true for async-commit/1PC to proceed; false
	// yields ErrMaxTimestampNotSynced (spec.md §4.1.3 "Async commit").
	MaxTSSynced bool
}

// PrewriteResult is what the caller uses to finish the transaction: either
// a min_commit_ts lower bound for a later separate commit, or (when
// OnePC is true) the commit_ts already applied directly.
type PrewriteResult struct {
	MinCommitTS txnkey.Timestamp
	OnePC       bool
	CommitTS    txnkey.Timestamp
}

func mutationLockType(op MutationOp) txnkey.LockType {
	switch op {
	case MutationPut:
		return txnkey.LockTypePut
	case MutationDelete:
		return txnkey.LockTypeDelete
	default:
		return txnkey.LockTypeLock
	}
}

func mutationWriteType(op MutationOp) txnkey.WriteType {
	switch op {
	case MutationPut:
		return txnkey.WriteTypePut
	case MutationDelete:
		return txnkey.WriteTypeDelete
	default:
		return txnkey.WriteTypeLock
	}
}

// Prewrite implements spec.md §4.1.3 for a single mutation row. Callers
// processing a multi-key transaction call this once per key; 1PC/async
// commit timestamp selection is per-row here, which is sufficient for a
// single-key transaction and composes correctly for multi-key ones
// because every row sees the same ConcurrencyManager.
func (e *Engine) Prewrite(r Reader, b *Batch, mut Mutation, opts PrewriteOptions) (PrewriteResult, error) {
	if err := e.checkKeySize(mut.Key); err != nil {
		return PrewriteResult{}, err
	}
	e.CM.Update(opts.StartTS)
	if !opts.ForUpdateTS.IsZero() {
		e.CM.Update(opts.ForUpdateTS)
	}

	pessimistic := !opts.ForUpdateTS.IsZero()

	lock, hasLock, err := r.CurrentLock(mut.Key)
	if err != nil {
		return PrewriteResult{}, err
	}

	if pessimistic && opts.IsPessimisticLock {
		if !hasLock || lock.TS.Compare(opts.StartTS) != 0 || lock.Type != txnkey.LockTypePessimistic {
			return PrewriteResult{}, ErrPessimisticLockNotFound
		}
	} else if hasLock {
		if lock.TS.Compare(opts.StartTS) != 0 {
			return PrewriteResult{}, &KeyIsLockedError{Key: mut.Key, Lock: lock}
		}
		// Idempotent retry of our own prewrite: report the already-chosen
		// min_commit_ts rather than re-validating conflicts.
		return PrewriteResult{MinCommitTS: lock.MinCommitTS}, nil
	}

	if !pessimistic || !opts.IsPessimisticLock {
		// Write-write conflict check (optimistic rows, and pessimistic
		// rows that were never pessimistically locked).
		commitTS, rec, found, err := r.SeekWrite(mut.Key, txnkey.MaxTimestamp)
		if err != nil {
			return PrewriteResult{}, err
		}
		if found {
			isOwnRollback := commitTS.Compare(opts.StartTS) == 0 && rec.Type == txnkey.WriteTypeRollback
			if !commitTS.Less(opts.StartTS) && !isOwnRollback {
				return PrewriteResult{}, &WriteConflictError{StartTS: opts.StartTS, ConflictCommit: commitTS, Key: mut.Key}
			}
			if opts.ShouldNotExist {
				// Resolve through any Lock/Rollback record masking an
				// older committed Put rather than checking only the
				// newest record's type directly, matching TiKV's
				// check_data_constraint.
				_, exists, err := resolveVisibleValueFromWrite(r, mut.Key, txnkey.MaxTimestamp)
				if err != nil {
					return PrewriteResult{}, err
				}
				if exists {
					return PrewriteResult{}, ErrAlreadyExist
				}
			}
		}
	}

	var inlineValue []byte
	if mut.Op == MutationPut {
		if len(mut.Value) <= txnkey.ShortValueThreshold {
			inlineValue = mut.Value
		} else {
			b.PutDefault(mut.Key, opts.StartTS, mut.Value)
		}
	}

	if opts.TryOnePC {
		onePC := pickOnePCCommitTS(opts, e.CM.MaxTS())
		e.CM.Update(onePC)
		b.PutWrite(mut.Key, onePC, txnkey.WriteRecord{
			Type:       mutationWriteType(mut.Op),
			StartTS:    opts.StartTS,
			ShortValue: inlineValue,
		})
		if hasLock {
			b.DeleteLock(mut.Key)
		}
		return PrewriteResult{OnePC: true, CommitTS: onePC}, nil
	}

	if len(opts.Secondaries) > 0 {
		if !opts.MaxTSSynced {
			return PrewriteResult{}, ErrMaxTimestampNotSynced
		}
		minCommitTS := pickAsyncCommitMinTS(opts, e.CM.MaxTS())
		e.CM.Update(minCommitTS)
		b.PutLock(mut.Key, txnkey.Lock{
			Type:        mutationLockType(mut.Op),
			Primary:     opts.Primary,
			TS:          opts.StartTS,
			TTLMillis:   opts.TTLMillis,
			ShortValue:  inlineValue,
			ForUpdateTS: opts.ForUpdateTS,
			MinCommitTS: minCommitTS,
		})
		return PrewriteResult{MinCommitTS: minCommitTS}, nil
	}

	minCommitTS := opts.MinCommitTS
	b.PutLock(mut.Key, txnkey.Lock{
		Type:        mutationLockType(mut.Op),
		Primary:     opts.Primary,
		TS:          opts.StartTS,
		TTLMillis:   opts.TTLMillis,
		ShortValue:  inlineValue,
		ForUpdateTS: opts.ForUpdateTS,
		MinCommitTS: minCommitTS,
	})
	return PrewriteResult{MinCommitTS: minCommitTS}, nil
}

// pickOnePCCommitTS computes max(for_update_ts, min_commit_ts,
// concurrency_manager.max_ts + 1), per spec.md §4.1.3.
func pickOnePCCommitTS(opts PrewriteOptions, maxTS txnkey.Timestamp) txnkey.Timestamp {
	candidate := txnkey.Max(opts.ForUpdateTS, opts.MinCommitTS)
	return txnkey.Max(candidate, bumpedAfter(maxTS))
}

// pickAsyncCommitMinTS computes max(configured min_commit_ts,
// concurrency_manager.max_ts + 1, for_update_ts + 1), per spec.md §4.1.3.
func pickAsyncCommitMinTS(opts PrewriteOptions, maxTS txnkey.Timestamp) txnkey.Timestamp {
	candidate := txnkey.Max(opts.MinCommitTS, bumpedAfter(maxTS))
	if !opts.ForUpdateTS.IsZero() {
		candidate = txnkey.Max(candidate, bumpedAfter(opts.ForUpdateTS))
	}
	return candidate
}

// bumpedAfter returns the Timestamp whose packed form is ts.Pack()+1.
func bumpedAfter(ts txnkey.Timestamp) txnkey.Timestamp {
	return txnkey.Unpack(ts.Pack() + 1)
}
