package batch

import (
	"bytes"
	"testing"
)

type putRecord struct {
	cfID       uint32
	key, value string
}

type deleteRecord struct {
	cfID uint32
	key  string
}

type recordingHandler struct {
	puts    []putRecord
	deletes []deleteRecord
	logs    [][]byte
}

func (h *recordingHandler) PutCF(cfID uint32, key, value []byte) error {
	h.puts = append(h.puts, putRecord{cfID, string(key), string(value)})
	return nil
}

func (h *recordingHandler) DeleteCF(cfID uint32, key []byte) error {
	h.deletes = append(h.deletes, deleteRecord{cfID, string(key)})
	return nil
}

func (h *recordingHandler) LogData(blob []byte) {
	h.logs = append(h.logs, blob)
}

func TestWriteBatchPutDeleteRoundTrip(t *testing.T) {
	wb := New()
	wb.PutCF(1, []byte("k1"), []byte("v1"))
	wb.DeleteCF(2, []byte("k2"))
	wb.PutLogData([]byte("marker"))

	if got := wb.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}

	h := &recordingHandler{}
	if err := wb.Iterate(h); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(h.puts) != 1 || h.puts[0].key != "k1" || h.puts[0].value != "v1" {
		t.Fatalf("unexpected puts: %+v", h.puts)
	}
	if len(h.deletes) != 1 || h.deletes[0].key != "k2" {
		t.Fatalf("unexpected deletes: %+v", h.deletes)
	}
	if len(h.logs) != 1 || !bytes.Equal(h.logs[0], []byte("marker")) {
		t.Fatalf("unexpected log data: %+v", h.logs)
	}
}

func TestWriteBatchAppend(t *testing.T) {
	a := New()
	a.PutCF(0, []byte("a"), []byte("1"))

	b := New()
	b.PutCF(0, []byte("b"), []byte("2"))

	a.Append(b)
	if a.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", a.Count())
	}
}

func TestWriteBatchCloneIsIndependent(t *testing.T) {
	a := New()
	a.PutCF(0, []byte("a"), []byte("1"))
	clone := a.Clone()
	clone.PutCF(0, []byte("b"), []byte("2"))

	if a.Count() != 1 {
		t.Fatalf("original batch mutated by clone: Count() = %d", a.Count())
	}
	if clone.Count() != 2 {
		t.Fatalf("clone.Count() = %d, want 2", clone.Count())
	}
}

func TestNewFromDataRejectsShortInput(t *testing.T) {
	if _, err := NewFromData([]byte{1, 2, 3}); err != ErrTooSmall {
		t.Fatalf("NewFromData short input: err = %v, want ErrTooSmall", err)
	}
}
