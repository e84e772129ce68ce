package mvcc

import (
	"errors"

	"github.com/aalhour/txnkv/txnkey"
)

// missingLockScanLimit bounds how far check-txn-status-missing-lock scans
// backward through write history looking for a commit record whose
// start_ts matches the transaction under inquiry. A real commit always
// lands within a handful of versions of its start_ts in practice; this
// engine has no secondary-lock-resolution protocol (out of scope per
// spec.md §1) to fall back on, so the scan is simply bounded rather than
// exhaustive.
const missingLockScanLimit = 64

// Cleanup implements spec.md §4.1.5, with TTL-based expiry: a non-zero
// currentTS causes the call to fail KeyIsLocked if the lock has not yet
// expired. Passing a zero currentTS skips the TTL check (this is what
// Rollback below does).
func (e *Engine) Cleanup(r Reader, b *Batch, key []byte, startTS, currentTS txnkey.Timestamp, protectRollback bool) error {
	e.CM.Update(startTS)
	if !currentTS.IsZero() {
		e.CM.Update(currentTS)
	}

	lock, ok, err := r.CurrentLock(key)
	if err != nil {
		return err
	}

	if ok && lock.TS.Compare(startTS) == 0 {
		if !currentTS.IsZero() && lock.TS.Physical+lock.TTLMillis >= currentTS.Physical {
			return &KeyIsLockedError{Key: key, Lock: lock}
		}
		if err := e.recordRollback(r, b, key, startTS, protectRollback); err != nil {
			return err
		}
		b.DeleteLock(key)
		return nil
	}

	// A transaction's Cleanup/Rollback call believes a lock should exist
	// on key; finding no trace of it at all is a successful no-op here
	// (a defensive rollback marker is still recorded) rather than a
	// failure — spec.md §4.1.1's operations table lists only KeyIsLocked
	// and Committed as cleanup/rollback's failure kinds. LockNotExist is
	// surfaced as a status value only through CheckTxnStatus, which calls
	// checkTxnStatusMissingLock directly.
	if err := e.checkTxnStatusMissingLock(r, b, key, startTS, protectRollback); err != nil && !errors.Is(err, ErrLockNotExist) {
		return err
	}
	return nil
}

// Rollback implements spec.md §4.1.5 for the unconditional case (no TTL
// gate — equivalent to Cleanup with a zero currentTS).
func (e *Engine) Rollback(r Reader, b *Batch, key []byte, startTS txnkey.Timestamp, protectRollback bool) error {
	return e.Cleanup(r, b, key, startTS, txnkey.ZeroTimestamp, protectRollback)
}

// recordRollback writes a Rollback record for startTS, handling the
// overlapped-rollback case: if a write record already occupies the
// physical key (key, start_ts) — i.e. some other transaction happened to
// commit exactly at this transaction's start_ts — a second record cannot
// be written to the same physical key, so the existing record's
// HasOverlappedRollback flag is set instead (spec.md §9
// "Overlapped-rollback flag", demonstrated by scenario S3).
//
// (ADDED, Open-Question resolution) spec.md §4.1.4 step 3 describes this
// same check under "Commit"; scenario S3 shows it is actually a later
// transaction's Rollback that performs it (the rollback's own start_ts
// happening to equal another transaction's commit_ts), so it is
// implemented here rather than in Commit.
func (e *Engine) recordRollback(r Reader, b *Batch, key []byte, startTS txnkey.Timestamp, protectRollback bool) error {
	commitTS, rec, found, err := r.SeekWrite(key, startTS)
	if err != nil {
		return err
	}
	if found && commitTS.Compare(startTS) == 0 && rec.Type != txnkey.WriteTypeRollback {
		rec.HasOverlappedRollback = true
		b.PutWrite(key, commitTS, rec)
		return nil
	}
	rollbackRec := txnkey.WriteRecord{Type: txnkey.WriteTypeRollback, StartTS: startTS}
	if protectRollback {
		rollbackRec.ShortValue = txnkey.ProtectedRollbackMarker
	}
	b.PutWrite(key, startTS, rollbackRec)
	return nil
}

// checkTxnStatusMissingLock implements spec.md §4.1.5's
// "check-txn-status-missing-lock" sub-procedure: no lock of this
// transaction is held on key, so determine whether it was already
// committed, already rolled back, or never touched this key at all.
func (e *Engine) checkTxnStatusMissingLock(r Reader, b *Batch, key []byte, startTS txnkey.Timestamp, protectRollback bool) error {
	cur := txnkey.MaxTimestamp
	for i := 0; i < missingLockScanLimit; i++ {
		commitTS, rec, found, err := r.SeekWrite(key, cur)
		if err != nil {
			return err
		}
		if !found || commitTS.Less(startTS) {
			break
		}
		if rec.StartTS.Compare(startTS) == 0 {
			if rec.Type == txnkey.WriteTypeRollback {
				return nil // already rolled back: idempotent.
			}
			return &CommittedError{CommitTS: commitTS}
		}
		if commitTS.Pack() == 0 {
			break
		}
		cur = commitTS.Prev()
	}

	if err := e.recordRollback(r, b, key, startTS, protectRollback); err != nil {
		return err
	}
	return ErrLockNotExist
}
