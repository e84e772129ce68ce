package txnkey

import (
	"bytes"
	"testing"
)

func TestTimestampOrdering(t *testing.T) {
	a := Timestamp{Physical: 100, Logical: 5}
	b := Timestamp{Physical: 100, Logical: 6}
	c := Timestamp{Physical: 101, Logical: 0}

	if !a.Less(b) {
		t.Fatalf("expected %s < %s", a, b)
	}
	if !b.Less(c) {
		t.Fatalf("expected %s < %s", b, c)
	}
	if !c.After(a) {
		t.Fatalf("expected %s > %s", c, a)
	}
	if ZeroTimestamp.Pack() != 0 {
		t.Fatalf("zero timestamp should pack to 0")
	}
}

func TestPhysicalKeyNewestFirst(t *testing.T) {
	userKey := []byte("foo")
	older := EncodeKey(userKey, Timestamp{Physical: 10})
	newer := EncodeKey(userKey, Timestamp{Physical: 20})

	if bytes.Compare(newer, older) >= 0 {
		t.Fatalf("expected newer physical key to sort before older: newer=%x older=%x", []byte(newer), []byte(older))
	}

	uk, ts := newer.Split()
	if !bytes.Equal(uk, userKey) {
		t.Fatalf("Split() user key = %q, want %q", uk, userKey)
	}
	if ts != (Timestamp{Physical: 20}) {
		t.Fatalf("Split() timestamp = %v, want {20 0}", ts)
	}
}

func TestPhysicalKeyDifferentUserKeysOrderLexicographically(t *testing.T) {
	a := EncodeKey([]byte("a"), Timestamp{Physical: 1})
	b := EncodeKey([]byte("b"), Timestamp{Physical: 1})
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected user key \"a\" to sort before \"b\"")
	}
}

func TestTruncateSortsAfterAllRealVersions(t *testing.T) {
	userKey := []byte("foo")
	v1 := EncodeKey(userKey, Timestamp{Physical: 1})
	truncated := Truncate(userKey)
	if bytes.Compare(v1, truncated) >= 0 {
		t.Fatalf("expected a real version to sort before Truncate's sentinel")
	}
}

func TestWriteRecordEncodeDecodeRoundTrip(t *testing.T) {
	w := WriteRecord{
		Type:                  WriteTypePut,
		StartTS:               Timestamp{Physical: 5, Logical: 1},
		ShortValue:            []byte("bar"),
		HasOverlappedRollback: true,
	}
	decoded, err := DecodeWriteRecord(w.Encode())
	if err != nil {
		t.Fatalf("DecodeWriteRecord: %v", err)
	}
	if decoded.Type != w.Type {
		t.Fatalf("Type = %v, want %v", decoded.Type, w.Type)
	}
	if decoded.StartTS != w.StartTS {
		t.Fatalf("StartTS = %v, want %v", decoded.StartTS, w.StartTS)
	}
	if !bytes.Equal(decoded.ShortValue, w.ShortValue) {
		t.Fatalf("ShortValue = %q, want %q", decoded.ShortValue, w.ShortValue)
	}
	if decoded.HasOverlappedRollback != w.HasOverlappedRollback {
		t.Fatalf("HasOverlappedRollback = %v, want %v", decoded.HasOverlappedRollback, w.HasOverlappedRollback)
	}
}

func TestWriteRecordWithoutShortValue(t *testing.T) {
	w := WriteRecord{Type: WriteTypeDelete, StartTS: Timestamp{Physical: 7}}
	decoded, err := DecodeWriteRecord(w.Encode())
	if err != nil {
		t.Fatalf("DecodeWriteRecord: %v", err)
	}
	if decoded.ShortValue != nil {
		t.Fatalf("ShortValue = %q, want nil", decoded.ShortValue)
	}
}

func TestDecodeWriteRecordRejectsCorruptInput(t *testing.T) {
	if _, err := DecodeWriteRecord([]byte{1}); err != ErrCorruptWriteRecord {
		t.Fatalf("err = %v, want ErrCorruptWriteRecord", err)
	}
}

func TestLockEncodeDecodeRoundTrip(t *testing.T) {
	l := Lock{
		Type:        LockTypePessimistic,
		Primary:     []byte("primary-key"),
		TS:          Timestamp{Physical: 10, Logical: 2},
		TTLMillis:   3000,
		ShortValue:  []byte("v"),
		ForUpdateTS: Timestamp{Physical: 11},
		MinCommitTS: Timestamp{Physical: 12},
	}
	decoded, err := DecodeLock(l.Encode())
	if err != nil {
		t.Fatalf("DecodeLock: %v", err)
	}
	if decoded.Type != l.Type {
		t.Fatalf("Type = %v, want %v", decoded.Type, l.Type)
	}
	if !bytes.Equal(decoded.Primary, l.Primary) {
		t.Fatalf("Primary = %q, want %q", decoded.Primary, l.Primary)
	}
	if decoded.TS != l.TS || decoded.ForUpdateTS != l.ForUpdateTS || decoded.MinCommitTS != l.MinCommitTS {
		t.Fatalf("timestamps round-trip mismatch: %+v vs %+v", decoded, l)
	}
	if decoded.TTLMillis != l.TTLMillis {
		t.Fatalf("TTLMillis = %d, want %d", decoded.TTLMillis, l.TTLMillis)
	}
}

func TestEncodeLockKeyHasNoTimestampTrailer(t *testing.T) {
	userKey := []byte("foo")
	lockKey := EncodeLockKey(userKey)
	if !bytes.Equal(lockKey, userKey) {
		t.Fatalf("lock key = %x, want bare user key %x", lockKey, userKey)
	}
}
