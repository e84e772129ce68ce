package mvcc

import (
	"errors"
	"testing"

	"github.com/aalhour/txnkv/config"
	"github.com/aalhour/txnkv/internal/vfs"
	"github.com/aalhour/txnkv/storage"
	"github.com/aalhour/txnkv/txnkey"
)

// ts builds a Timestamp from a plain integer, matching spec.md §8's
// scenario notation ("start 10", "commit 10->20").
func ts(n uint64) txnkey.Timestamp { return txnkey.Timestamp{Physical: n} }

type harness struct {
	t      *testing.T
	engine *storage.Engine
	mvcc   *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	opts := config.DefaultOptions()
	opts.FS = vfs.NewMemFS()
	opts.CreateIfMissing = true
	se, err := storage.Open("/db", opts)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	return &harness{t: t, engine: se, mvcc: NewEngine(NewConcurrencyManager(), 4096)}
}

func (h *harness) reader() Reader {
	return NewSnapshotReader(h.engine.NewSnapshot())
}

func (h *harness) commitBatch(b *Batch) {
	h.t.Helper()
	if err := Apply(h.engine, b, nil); err != nil {
		h.t.Fatalf("Apply: %v", err)
	}
}

// readAt returns the user-visible value for key at read timestamp readTS,
// or (nil, false) if absent, following the newest-write-at-or-before rule.
func (h *harness) readAt(key []byte, readTS txnkey.Timestamp) ([]byte, bool) {
	r := h.reader()
	commitTS, rec, found, err := r.SeekWrite(key, readTS)
	if err != nil {
		h.t.Fatalf("SeekWrite: %v", err)
	}
	if !found {
		return nil, false
	}
	_ = commitTS
	switch rec.Type {
	case txnkey.WriteTypePut:
		v, err := loadWriteValue(r, key, rec)
		if err != nil {
			h.t.Fatalf("loadWriteValue: %v", err)
		}
		return v, true
	default:
		return nil, false
	}
}

func TestS1OptimisticCommit(t *testing.T) {
	h := newHarness(t)
	key := []byte("k")

	b := NewBatch()
	r := h.reader()
	if _, err := h.mvcc.Prewrite(r, b, Mutation{Op: MutationPut, Key: key, Value: []byte("v")}, PrewriteOptions{
		Primary: key, StartTS: ts(10), TTLMillis: 1000,
	}); err != nil {
		t.Fatalf("Prewrite: %v", err)
	}
	h.commitBatch(b)

	b = NewBatch()
	r = h.reader()
	if err := h.mvcc.Commit(r, b, CommitRequest{Key: key, StartTS: ts(10), CommitTS: ts(20)}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	h.commitBatch(b)

	if v, ok := h.readAt(key, ts(21)); !ok || string(v) != "v" {
		t.Fatalf("read at 21 = %q, %v, want v, true", v, ok)
	}
	if _, ok := h.readAt(key, ts(19)); ok {
		t.Fatalf("read at 19 should find nothing")
	}
}

func TestS2WriteWriteConflict(t *testing.T) {
	h := newHarness(t)
	key := []byte("k")

	b := NewBatch()
	r := h.reader()
	if _, err := h.mvcc.Prewrite(r, b, Mutation{Op: MutationPut, Key: key, Value: []byte("v1")}, PrewriteOptions{
		Primary: key, StartTS: ts(10), TTLMillis: 1000,
	}); err != nil {
		t.Fatalf("Prewrite: %v", err)
	}
	h.commitBatch(b)

	b = NewBatch()
	r = h.reader()
	if err := h.mvcc.Commit(r, b, CommitRequest{Key: key, StartTS: ts(10), CommitTS: ts(20)}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	h.commitBatch(b)

	b = NewBatch()
	r = h.reader()
	_, err := h.mvcc.Prewrite(r, b, Mutation{Op: MutationPut, Key: key, Value: []byte("v2")}, PrewriteOptions{
		Primary: key, StartTS: ts(15), TTLMillis: 1000,
	})
	var wc *WriteConflictError
	if !errors.As(err, &wc) {
		t.Fatalf("Prewrite at start=15 should fail WriteConflict, got %v", err)
	}
	if wc.ConflictCommit.Compare(ts(20)) != 0 {
		t.Fatalf("conflict commit_ts = %s, want 20", wc.ConflictCommit)
	}
}

func TestS3PessimisticLockOverlapAndOverlappedRollback(t *testing.T) {
	h := newHarness(t)
	key := []byte("k")

	b := NewBatch()
	r := h.reader()
	if _, err := h.mvcc.AcquirePessimisticLock(r, b, PessimisticLockRequest{
		Key: key, Primary: key, StartTS: ts(35), ForUpdateTS: ts(36), TTLMillis: 1000,
	}); err != nil {
		t.Fatalf("acquire pessimistic lock: %v", err)
	}
	h.commitBatch(b)

	b = NewBatch()
	r = h.reader()
	if _, err := h.mvcc.AcquirePessimisticLock(r, b, PessimisticLockRequest{
		Key: key, Primary: key, StartTS: ts(35), ForUpdateTS: ts(37), TTLMillis: 1000,
	}); err != nil {
		t.Fatalf("re-acquire pessimistic lock: %v", err)
	}
	h.commitBatch(b)

	lock, ok, err := h.reader().CurrentLock(key)
	if err != nil || !ok {
		t.Fatalf("CurrentLock: %v, %v", ok, err)
	}
	if lock.ForUpdateTS.Compare(ts(37)) != 0 {
		t.Fatalf("lock.ForUpdateTS = %s, want 37", lock.ForUpdateTS)
	}

	// Prewrite + commit start=35 at commit_ts=36, which collides with
	// some other transaction's start_ts (36) below.
	b = NewBatch()
	r = h.reader()
	if _, err := h.mvcc.Prewrite(r, b, Mutation{Op: MutationPut, Key: key, Value: []byte("v")}, PrewriteOptions{
		Primary: key, StartTS: ts(35), ForUpdateTS: ts(37), IsPessimisticLock: true, TTLMillis: 1000,
	}); err != nil {
		t.Fatalf("Prewrite: %v", err)
	}
	h.commitBatch(b)

	b = NewBatch()
	r = h.reader()
	if err := h.mvcc.Commit(r, b, CommitRequest{Key: key, StartTS: ts(35), CommitTS: ts(36)}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	h.commitBatch(b)

	// Another transaction, start_ts=36, rolls back — its start_ts equals
	// the commit_ts just written above, so the rollback must set the
	// overlapped flag on that record rather than add a new one.
	b = NewBatch()
	r = h.reader()
	if err := h.mvcc.Rollback(r, b, key, ts(36), false); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	h.commitBatch(b)

	_, rec, found, err := h.reader().SeekWrite(key, ts(36))
	if err != nil || !found {
		t.Fatalf("SeekWrite at 36: found=%v err=%v", found, err)
	}
	if rec.Type != txnkey.WriteTypePut {
		t.Fatalf("record at commit_ts=36 should still be the Put, got %v", rec.Type)
	}
	if !rec.HasOverlappedRollback {
		t.Fatalf("record at commit_ts=36 should have HasOverlappedRollback set")
	}
}

func TestS6ProtectedRollbackPreserved(t *testing.T) {
	h := newHarness(t)
	key := []byte("k")

	b := NewBatch()
	r := h.reader()
	if _, err := h.mvcc.AcquirePessimisticLock(r, b, PessimisticLockRequest{
		Key: key, Primary: key, StartTS: ts(49), ForUpdateTS: ts(49), TTLMillis: 1000,
	}); err != nil {
		t.Fatalf("acquire pessimistic lock: %v", err)
	}
	h.commitBatch(b)

	// Cleanup with protect=true (mandatory for a pessimistic primary).
	b = NewBatch()
	r = h.reader()
	if err := h.mvcc.Cleanup(r, b, key, ts(49), txnkey.ZeroTimestamp, true); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	h.commitBatch(b)

	_, rec49, found, err := h.reader().SeekWrite(key, ts(49))
	if err != nil || !found || !rec49.IsProtectedRollback() {
		t.Fatalf("expected protected rollback at start_ts=49, found=%v rec=%+v err=%v", found, rec49, err)
	}

	// Prewrite then rollback at start_ts=51 (unprotected).
	b = NewBatch()
	r = h.reader()
	if _, err := h.mvcc.Prewrite(r, b, Mutation{Op: MutationPut, Key: key, Value: []byte("v")}, PrewriteOptions{
		Primary: key, StartTS: ts(51), TTLMillis: 1000,
	}); err != nil {
		t.Fatalf("Prewrite: %v", err)
	}
	h.commitBatch(b)

	b = NewBatch()
	r = h.reader()
	if err := h.mvcc.Rollback(r, b, key, ts(51), false); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	h.commitBatch(b)

	// A later pessimistic re-lock attempt for start_ts=49 must still see
	// the protected rollback and fail. Its for_update_ts is 51, so the
	// newer rollback at 51 is not a write conflict and the lookup reaches
	// the record at start_ts=49.
	b = NewBatch()
	r = h.reader()
	_, err = h.mvcc.AcquirePessimisticLock(r, b, PessimisticLockRequest{
		Key: key, Primary: key, StartTS: ts(49), ForUpdateTS: ts(51), TTLMillis: 1000,
	})
	if !errors.Is(err, ErrPessimisticLockRolledBack) {
		t.Fatalf("re-lock at start_ts=49 should fail PessimisticLockRolledBack, got %v", err)
	}
}

// TestPessimisticRelockRaceDocumentedGap pins the ordering spec.md §9
// calls out: a rollback whose start_ts happens to land on another
// transaction's commit_ts must not silently erase the evidence that a
// rollback happened there, so recordRollback folds the rollback into the
// existing record's HasOverlappedRollback flag. The reverse ordering
// (an unprotected rollback record written first, then a conflicting
// commit landing on the same physical key) is not exercised here:
// Commit writes its record over whatever record occupies that key, so
// such a rollback record is lost.
func TestPessimisticRelockRaceDocumentedGap(t *testing.T) {
	h := newHarness(t)
	key := []byte("k")

	// Some other transaction commits first, landing on commit_ts=10.
	b := NewBatch()
	r := h.reader()
	if _, err := h.mvcc.Prewrite(r, b, Mutation{Op: MutationPut, Key: key, Value: []byte("v")}, PrewriteOptions{
		Primary: key, StartTS: ts(9), TTLMillis: 1000,
	}); err != nil {
		t.Fatalf("Prewrite: %v", err)
	}
	h.commitBatch(b)
	b = NewBatch()
	r = h.reader()
	if err := h.mvcc.Commit(r, b, CommitRequest{Key: key, StartTS: ts(9), CommitTS: ts(10)}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	h.commitBatch(b)

	// A pessimistic transaction locks at start_ts=10 — the same value as
	// the commit_ts just written above — then gets cleaned up
	// unprotected, which must overlap rather than clobber.
	b = NewBatch()
	r = h.reader()
	if _, err := h.mvcc.AcquirePessimisticLock(r, b, PessimisticLockRequest{
		Key: key, Primary: key, StartTS: ts(10), ForUpdateTS: ts(10), TTLMillis: 1000,
	}); err != nil {
		t.Fatalf("acquire pessimistic lock: %v", err)
	}
	h.commitBatch(b)

	b = NewBatch()
	r = h.reader()
	if err := h.mvcc.Cleanup(r, b, key, ts(10), txnkey.ZeroTimestamp, false); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	h.commitBatch(b)

	_, rec, found, err := h.reader().SeekWrite(key, ts(10))
	if err != nil || !found {
		t.Fatalf("SeekWrite at 10: found=%v err=%v", found, err)
	}
	if rec.Type != txnkey.WriteTypePut || !rec.HasOverlappedRollback {
		t.Fatalf("expected the start_ts=9 Put at commit_ts=10 to survive with HasOverlappedRollback set, got %+v", rec)
	}

	// A later pessimistic re-lock attempt at start_ts=10 must see the
	// overlapped rollback and fail, rather than silently proceeding as
	// if no rollback had ever happened.
	b = NewBatch()
	r = h.reader()
	_, err = h.mvcc.AcquirePessimisticLock(r, b, PessimisticLockRequest{
		Key: key, Primary: key, StartTS: ts(10), ForUpdateTS: ts(10), TTLMillis: 1000,
	})
	if !errors.Is(err, ErrPessimisticLockRolledBack) {
		t.Fatalf("re-lock at start_ts=10 should fail PessimisticLockRolledBack, got %v", err)
	}
}
