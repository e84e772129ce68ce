package storage

import (
	"testing"

	"github.com/aalhour/txnkv/internal/batch"
	"github.com/aalhour/txnkv/internal/vfs"
	"github.com/aalhour/txnkv/config"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	opts := config.DefaultOptions()
	opts.FS = vfs.NewMemFS()
	opts.CreateIfMissing = true
	e, err := Open("/db", opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

func TestEngineWriteThenGet(t *testing.T) {
	e := openTestEngine(t)
	wb := batch.New()
	wb.PutCF(uint32(CFDefault), []byte("k1"), []byte("v1"))
	if err := e.Write(wb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, ok := e.Get(CFDefault, []byte("k1"))
	if !ok || string(v) != "v1" {
		t.Fatalf("Get = %q, %v, want v1, true", v, ok)
	}
}

func TestEngineDeleteRemovesKey(t *testing.T) {
	e := openTestEngine(t)
	wb := batch.New()
	wb.PutCF(uint32(CFLock), []byte("k1"), []byte("v1"))
	wb.DeleteCF(uint32(CFLock), []byte("k1"))
	if err := e.Write(wb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, ok := e.Get(CFLock, []byte("k1")); ok {
		t.Fatalf("key k1 should have been deleted")
	}
}

func TestEngineWALReplayRestoresState(t *testing.T) {
	fs := vfs.NewMemFS()
	opts := config.DefaultOptions()
	opts.FS = fs
	opts.CreateIfMissing = true

	e, err := Open("/db", opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	wb := batch.New()
	wb.PutCF(uint32(CFWrite), []byte("a"), []byte("1"))
	wb.PutCF(uint32(CFWrite), []byte("b"), []byte("2"))
	if err := e.Write(wb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := Open("/db", opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok := e2.Get(CFWrite, []byte("a"))
	if !ok || string(v) != "1" {
		t.Fatalf("recovered Get(a) = %q, %v, want 1, true", v, ok)
	}
	v, ok = e2.Get(CFWrite, []byte("b"))
	if !ok || string(v) != "2" {
		t.Fatalf("recovered Get(b) = %q, %v, want 2, true", v, ok)
	}
}

func TestEngineIteratorOrdersAscending(t *testing.T) {
	e := openTestEngine(t)
	wb := batch.New()
	wb.PutCF(uint32(CFDefault), []byte("c"), []byte("3"))
	wb.PutCF(uint32(CFDefault), []byte("a"), []byte("1"))
	wb.PutCF(uint32(CFDefault), []byte("b"), []byte("2"))
	if err := e.Write(wb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	it := e.NewIterator(CFDefault)
	it.SeekToFirst()
	var got []string
	for it.Valid() {
		got = append(got, string(it.Key()))
		it.Next()
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

type keepAllFactory struct{}

func (keepAllFactory) Name() string { return "keep-all" }
func (keepAllFactory) CreateCompactionFilter(ctx CompactionFilterContext) (CompactionFilter, bool) {
	return keepAllFilter{}, true
}

type keepAllFilter struct{}

func (keepAllFilter) Name() string { return "keep-all" }
func (keepAllFilter) Filter(key, value []byte) CompactionFilterDecision {
	return FilterKeep
}

type dropAllFactory struct{}

func (dropAllFactory) Name() string { return "drop-all" }
func (dropAllFactory) CreateCompactionFilter(ctx CompactionFilterContext) (CompactionFilter, bool) {
	return dropAllFilter{}, true
}

type dropAllFilter struct{}

func (dropAllFilter) Name() string { return "drop-all" }
func (dropAllFilter) Filter(key, value []byte) CompactionFilterDecision {
	return FilterRemove
}

func TestCompactWithNoFilterIsNoOp(t *testing.T) {
	e := openTestEngine(t)
	wb := batch.New()
	wb.PutCF(uint32(CFWrite), []byte("k"), []byte("v"))
	if err := e.Write(wb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	result, err := e.Compact(CFWrite)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.KeysExamined != 0 || result.KeysRemoved != 0 {
		t.Fatalf("Compact with no filter should be a no-op, got %+v", result)
	}
	if _, ok := e.Get(CFWrite, []byte("k")); !ok {
		t.Fatalf("key should survive a no-op compaction")
	}
}

func TestCompactDropAllRemovesEverything(t *testing.T) {
	e := openTestEngine(t)
	wb := batch.New()
	wb.PutCF(uint32(CFWrite), []byte("k1"), []byte("v1"))
	wb.PutCF(uint32(CFWrite), []byte("k2"), []byte("v2"))
	if err := e.Write(wb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	e.InstallCompactionFilterFactory(dropAllFactory{})

	result, err := e.Compact(CFWrite)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.KeysExamined != 2 || result.KeysRemoved != 2 {
		t.Fatalf("Compact result = %+v, want 2 examined, 2 removed", result)
	}
	if _, ok := e.Get(CFWrite, []byte("k1")); ok {
		t.Fatalf("k1 should have been removed by the drop-all filter")
	}
}

func TestSnapshotReadsLiveEngineState(t *testing.T) {
	e := openTestEngine(t)
	wb := batch.New()
	wb.PutCF(uint32(CFDefault), []byte("k"), []byte("v1"))
	if err := e.Write(wb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	snap := e.NewSnapshot()
	defer snap.Release()

	v, ok := snap.Get(CFDefault, []byte("k"))
	if !ok || string(v) != "v1" {
		t.Fatalf("snap.Get = %q, %v, want v1, true", v, ok)
	}
}
