// Package batch implements the on-disk format for an atomic group of
// column-family writes, shared by the storage engine's WAL record format
// and its in-memory write path.
//
// WriteBatch Format:
//
//	Header (12 bytes):
//	  - 8 bytes: sequence number (little-endian uint64)
//	  - 4 bytes: count (little-endian uint32)
//	Records (repeated):
//	  - 1 byte: tag (record type)
//	  - varint32 column_family_id
//	  - length-prefixed key
//	  - (for Put): length-prefixed value
//
// Reference: RocksDB v10.7.5
//   - db/write_batch.cc
//   - db/write_batch_internal.h
//   - db/dbformat.h (ValueType enum)
package batch

import (
	"encoding/binary"
	"errors"

	"github.com/aalhour/txnkv/internal/encoding"
)

// HeaderSize is the size in bytes of the WriteBatch header (8 bytes sequence + 4 bytes count).
const HeaderSize = 12

// Record tags for WriteBatch entries. Column-family id is always present
// (id 0 identifies the default column family) — unlike RocksDB's format,
// there is no separate non-CF tag, since every record this engine writes
// belongs to one of the three fixed column families.
const (
	TypeDeletion byte = 0x00
	TypeValue    byte = 0x01
	TypeLogData  byte = 0x03
)

var (
	// ErrCorrupted indicates a malformed WriteBatch.
	ErrCorrupted = errors.New("batch: corrupted write batch")

	// ErrTooSmall indicates the batch is smaller than the header.
	ErrTooSmall = errors.New("batch: too small")
)

// WriteBatch represents a collection of writes to be applied atomically.
type WriteBatch struct {
	data []byte // The raw batch data including header
}

// New creates a new empty WriteBatch.
func New() *WriteBatch {
	return &WriteBatch{data: make([]byte, HeaderSize)}
}

// NewFromData creates a WriteBatch from existing data.
func NewFromData(data []byte) (*WriteBatch, error) {
	if len(data) < HeaderSize {
		return nil, ErrTooSmall
	}
	return &WriteBatch{data: data}, nil
}

// Clear resets the batch to empty state.
func (wb *WriteBatch) Clear() {
	wb.data = wb.data[:HeaderSize]
	binary.LittleEndian.PutUint32(wb.data[8:12], 0)
}

// Data returns the raw batch data.
func (wb *WriteBatch) Data() []byte {
	return wb.data
}

// Clone creates a deep copy of the WriteBatch.
func (wb *WriteBatch) Clone() *WriteBatch {
	clone := &WriteBatch{data: make([]byte, len(wb.data))}
	copy(clone.data, wb.data)
	return clone
}

// Size returns the size of the batch data in bytes.
func (wb *WriteBatch) Size() int {
	return len(wb.data)
}

// Count returns the number of records in the batch.
func (wb *WriteBatch) Count() uint32 {
	return binary.LittleEndian.Uint32(wb.data[8:12])
}

// SetCount sets the count field.
func (wb *WriteBatch) SetCount(count uint32) {
	binary.LittleEndian.PutUint32(wb.data[8:12], count)
}

// Sequence returns the sequence number of the batch.
func (wb *WriteBatch) Sequence() uint64 {
	return binary.LittleEndian.Uint64(wb.data[0:8])
}

// SetSequence sets the sequence number of the batch.
func (wb *WriteBatch) SetSequence(seq uint64) {
	binary.LittleEndian.PutUint64(wb.data[0:8], seq)
}

// PutCF adds a Put record for the given column family to the batch.
func (wb *WriteBatch) PutCF(cfID uint32, key, value []byte) {
	wb.data = append(wb.data, TypeValue)
	wb.data = encoding.AppendVarint32(wb.data, cfID)
	wb.data = encoding.AppendLengthPrefixedSlice(wb.data, key)
	wb.data = encoding.AppendLengthPrefixedSlice(wb.data, value)
	wb.SetCount(wb.Count() + 1)
}

// DeleteCF adds a Delete record for the given column family to the batch.
func (wb *WriteBatch) DeleteCF(cfID uint32, key []byte) {
	wb.data = append(wb.data, TypeDeletion)
	wb.data = encoding.AppendVarint32(wb.data, cfID)
	wb.data = encoding.AppendLengthPrefixedSlice(wb.data, key)
	wb.SetCount(wb.Count() + 1)
}

// PutLogData adds a log data record to the batch. LogData is not counted
// as a regular operation and carries no column family.
func (wb *WriteBatch) PutLogData(blob []byte) {
	wb.data = append(wb.data, TypeLogData)
	wb.data = encoding.AppendLengthPrefixedSlice(wb.data, blob)
}

// Append appends the contents of another batch to this batch. The
// sequence number of the source batch is ignored.
func (wb *WriteBatch) Append(src *WriteBatch) {
	if src.Count() == 0 {
		return
	}
	wb.data = append(wb.data, src.data[HeaderSize:]...)
	wb.SetCount(wb.Count() + src.Count())
}

// Handler is called for each record in the batch during iteration.
type Handler interface {
	PutCF(cfID uint32, key, value []byte) error
	DeleteCF(cfID uint32, key []byte) error
	LogData(blob []byte)
}

// Iterate calls the handler for each record in the batch.
func (wb *WriteBatch) Iterate(handler Handler) error {
	if len(wb.data) < HeaderSize {
		return ErrTooSmall
	}

	data := wb.data[HeaderSize:]

	for len(data) > 0 {
		tag := data[0]
		data = data[1:]

		switch tag {
		case TypeValue:
			cfID, rest, err := decodeVarint32(data)
			if err != nil {
				return err
			}
			key, rest, err := decodeLengthPrefixed(rest)
			if err != nil {
				return err
			}
			value, rest, err := decodeLengthPrefixed(rest)
			if err != nil {
				return err
			}
			if err := handler.PutCF(cfID, key, value); err != nil {
				return err
			}
			data = rest

		case TypeDeletion:
			cfID, rest, err := decodeVarint32(data)
			if err != nil {
				return err
			}
			key, rest, err := decodeLengthPrefixed(rest)
			if err != nil {
				return err
			}
			if err := handler.DeleteCF(cfID, key); err != nil {
				return err
			}
			data = rest

		case TypeLogData:
			blob, rest, err := decodeLengthPrefixed(data)
			if err != nil {
				return err
			}
			handler.LogData(blob)
			data = rest

		default:
			return ErrCorrupted
		}
	}

	return nil
}

func decodeVarint32(data []byte) (uint32, []byte, error) {
	v, n, err := encoding.DecodeVarint32(data)
	if err != nil {
		return 0, nil, ErrCorrupted
	}
	return v, data[n:], nil
}

func decodeLengthPrefixed(data []byte) ([]byte, []byte, error) {
	if len(data) == 0 {
		return nil, nil, ErrCorrupted
	}
	length, n, err := encoding.DecodeVarint32(data)
	if err != nil {
		return nil, nil, ErrCorrupted
	}
	data = data[n:]
	if len(data) < int(length) {
		return nil, nil, ErrCorrupted
	}
	value := data[:length]
	return value, data[length:], nil
}
