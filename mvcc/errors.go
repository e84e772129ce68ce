// Package mvcc implements the multi-version concurrency control
// transaction engine: pessimistic lock acquisition, prewrite (optimistic
// and pessimistic, including 1PC and async-commit), commit,
// cleanup/rollback, and check-txn-status, all operating against a
// snapshot Reader and accumulating their effects into a Batch the caller
// writes back to the storage engine.
//
// Grounded on the teacher's PessimisticTransaction (pessimistic_transaction.go,
// since removed from this tree but retained as the grounding reference for
// this package's state-machine shape) for the per-operation locking and
// validation idiom, and on the retrieved jackysp-unistore/tikv/mvcc.go
// reference file for the write-record state machine a single-key-latest-
// value engine like the teacher's does not itself need.
package mvcc

import (
	"errors"
	"fmt"

	"github.com/aalhour/txnkv/txnkey"
)

// Sentinel errors for failure kinds that carry no payload.
//
// Reference: teacher's errors.New-plus-typed-error idiom (e.g.
// ErrTransactionExpired, ErrWriteConflict as bare sentinels in
// pessimistic_transaction.go; *ErrLocked-shaped structs for the
// carries-a-payload cases, mirrored below).
var (
	// ErrLockTypeNotMatch: a lock exists for this transaction but is of
	// the wrong kind (e.g. a non-pessimistic lock where a pessimistic
	// lock was expected).
	ErrLockTypeNotMatch = errors.New("mvcc: lock type does not match")

	// ErrPessimisticLockNotFound: a pessimistic prewrite's required lock
	// is no longer present.
	ErrPessimisticLockNotFound = errors.New("mvcc: pessimistic lock not found")

	// ErrPessimisticLockRolledBack: the transaction was rolled back
	// concurrently; the caller must abandon it.
	ErrPessimisticLockRolledBack = errors.New("mvcc: pessimistic lock rolled back")

	// ErrAlreadyExist: the should_not_exist precondition was violated.
	ErrAlreadyExist = errors.New("mvcc: key already exists")

	// ErrTxnLockNotFound: commit was attempted on a missing lock with no
	// matching commit record either.
	ErrTxnLockNotFound = errors.New("mvcc: transaction lock not found")

	// ErrMaxTimestampNotSynced: async-commit/1PC attempted before the
	// caller's local max-ts is synchronized from the cluster clock.
	ErrMaxTimestampNotSynced = errors.New("mvcc: max timestamp not synced")

	// ErrKeyTooLarge: the key exceeds config.Options.MaxKeySize.
	ErrKeyTooLarge = errors.New("mvcc: key too large")

	// ErrLockNotExist is returned by check-txn-status-missing-lock when no
	// trace of the transaction exists at all (no lock, no write record).
	ErrLockNotExist = errors.New("mvcc: lock does not exist")
)

// KeyIsLockedError reports that key is held by someone else's lock.
// Carries the lock info so the caller can decide whether to resolve it.
type KeyIsLockedError struct {
	Key  []byte
	Lock txnkey.Lock
}

func (e *KeyIsLockedError) Error() string {
	return fmt.Sprintf("mvcc: key %q is locked by start_ts=%s", e.Key, e.Lock.TS)
}

// WriteConflictError reports a write newer than the caller expected.
type WriteConflictError struct {
	StartTS        txnkey.Timestamp
	ConflictCommit txnkey.Timestamp
	Key            []byte
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("mvcc: write conflict on %q: start_ts=%s conflicting_commit_ts=%s",
		e.Key, e.StartTS, e.ConflictCommit)
}

// CommittedError is the idempotent-success signal carrying the
// already-assigned commit_ts.
type CommittedError struct {
	CommitTS txnkey.Timestamp
}

func (e *CommittedError) Error() string {
	return fmt.Sprintf("mvcc: already committed at commit_ts=%s", e.CommitTS)
}
