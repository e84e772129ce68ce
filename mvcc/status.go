package mvcc

import (
	"errors"

	"github.com/aalhour/txnkv/txnkey"
)

// TxnStatusKind is the outcome of a check_txn_status inquiry.
type TxnStatusKind int

const (
	// TxnStatusLockNotExpired: the lock is still held and has not aged
	// past its TTL at the caller's current_ts.
	TxnStatusLockNotExpired TxnStatusKind = iota
	// TxnStatusRolledBack: the lock (if any) was just rolled back by
	// this inquiry, or had already been rolled back.
	TxnStatusRolledBack
	// TxnStatusCommitted: the transaction already committed.
	TxnStatusCommitted
	// TxnStatusLockNotExist: no trace of the transaction exists on key.
	TxnStatusLockNotExist
)

// TxnStatus is the result of CheckTxnStatus.
type TxnStatus struct {
	Kind     TxnStatusKind
	CommitTS txnkey.Timestamp
}

// CheckTxnStatus implements spec.md §4.1.1's check_txn_status operation:
// inquire about (and, where appropriate, resolve) the status of the
// transaction that started at startTS, from the perspective of key
// (typically the transaction's primary). If the lock has expired per
// currentTS, it is rolled back with protection — check_txn_status is
// conventionally invoked against the primary key, where rollback
// protection is mandatory for pessimistic transactions (spec.md §4.1.5).
func (e *Engine) CheckTxnStatus(r Reader, b *Batch, key []byte, startTS, callerStartTS, currentTS txnkey.Timestamp, rollbackIfNotExist bool) (TxnStatus, error) {
	e.CM.Update(startTS)
	e.CM.Update(callerStartTS)
	if !currentTS.IsZero() {
		e.CM.Update(currentTS)
	}

	lock, ok, err := r.CurrentLock(key)
	if err != nil {
		return TxnStatus{}, err
	}

	if ok && lock.TS.Compare(startTS) == 0 {
		if currentTS.IsZero() || lock.TS.Physical+lock.TTLMillis >= currentTS.Physical {
			return TxnStatus{Kind: TxnStatusLockNotExpired}, nil
		}
		if err := e.recordRollback(r, b, key, startTS, true); err != nil {
			return TxnStatus{}, err
		}
		b.DeleteLock(key)
		return TxnStatus{Kind: TxnStatusRolledBack}, nil
	}

	if !rollbackIfNotExist {
		return TxnStatus{Kind: TxnStatusLockNotExist}, nil
	}

	err = e.checkTxnStatusMissingLock(r, b, key, startTS, true)
	switch {
	case err == nil:
		return TxnStatus{Kind: TxnStatusRolledBack}, nil
	case errors.Is(err, ErrLockNotExist):
		return TxnStatus{Kind: TxnStatusLockNotExist}, nil
	default:
		var committed *CommittedError
		if errors.As(err, &committed) {
			return TxnStatus{Kind: TxnStatusCommitted, CommitTS: committed.CommitTS}, nil
		}
		return TxnStatus{}, err
	}
}
