package storage

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/aalhour/txnkv/internal/batch"
	"github.com/aalhour/txnkv/internal/checksum"
	"github.com/aalhour/txnkv/internal/compression"
	"github.com/aalhour/txnkv/internal/vfs"
)

// walFileName is the single WAL segment this simplified engine writes.
// The teacher's internal/wal package rotates numbered segments alongside
// a MANIFEST; with no on-disk SST files to recover against here, one
// append-only segment replayed in full at Open is enough.
const walFileName = "txnkv.wal"

// wal is an append-only log of WriteBatch records. Each record is framed
// as [record length][original length][checksum][compressed payload], so
// a torn write at the tail can be detected and discarded during replay
// and so config.Options' ChecksumType/Compression protect what actually
// hits disk, not just the in-memory WriteBatch.
//
// Reference: RocksDB v10.7.5 db/log_writer.cc / db/log_reader.cc, adapted
// from block-based framing to whole-WriteBatch framing since there is no
// block cache or block format left in this engine; the checksum+
// compression-type header mirrors RocksDB's block trailer layout
// (internal/checksum, internal/compression), just attached to a WAL
// frame instead of a table block.
type wal struct {
	fs   vfs.FS
	path string
	w    vfs.WritableFile

	checksumType checksum.Type
	compression  compression.Type
}

var (
	errWALCorrupt        = errors.New("storage: corrupt WAL record")
	errWALChecksumFailed = errors.New("storage: WAL record failed checksum verification")
)

func openWAL(fs vfs.FS, dir string, checksumType checksum.Type, compressionType compression.Type) (*wal, error) {
	path := dir + "/" + walFileName
	w, err := fs.Create(path)
	if err != nil {
		return nil, err
	}
	return &wal{fs: fs, path: path, w: w, checksumType: checksumType, compression: compressionType}, nil
}

// append writes one length-prefixed, checksummed, (optionally)
// compressed WriteBatch record:
//
//	[4 bytes: length of the rest of the frame, excluding these 4 bytes]
//	[4 bytes: original (pre-compression) payload length]
//	[4 bytes: checksum of the compressed payload]
//	[N bytes: compressed payload]
func (l *wal) append(wb *batch.WriteBatch) error {
	data := wb.Data()
	compressed, err := compression.Compress(l.compression, data)
	if err != nil {
		return err
	}

	sum := checksum.ComputeChecksum(l.checksumType, compressed, byte(l.compression))

	frame := make([]byte, 4+4+4+len(compressed))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(data)))
	binary.LittleEndian.PutUint32(frame[8:12], sum)
	copy(frame[12:], compressed)
	binary.LittleEndian.PutUint32(frame[:4], uint32(len(frame)-4))

	if err := l.w.Append(frame); err != nil {
		return err
	}
	return l.w.Sync()
}

func (l *wal) close() error {
	return l.w.Close()
}

// replay reads every WriteBatch record from the WAL in order, applying fn
// to each. A truncated final record (a torn write from a crash mid-append)
// is treated as the end of the log rather than an error, matching the
// teacher's log_reader.cc tolerance for a short final record. A checksum
// mismatch on a complete record is corruption, not a torn write, and is
// reported as an error.
func replayWAL(fs vfs.FS, dir string, checksumType checksum.Type, compressionType compression.Type, fn func(*batch.WriteBatch) error) error {
	path := dir + "/" + walFileName
	if !fs.Exists(path) {
		return nil
	}
	r, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		frameLen := binary.LittleEndian.Uint32(lenBuf[:])
		if frameLen < 8 {
			return nil
		}
		frame := make([]byte, frameLen)
		if _, err := io.ReadFull(r, frame); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}

		origLen := binary.LittleEndian.Uint32(frame[0:4])
		wantSum := binary.LittleEndian.Uint32(frame[4:8])
		compressed := frame[8:]

		gotSum := checksum.ComputeChecksum(checksumType, compressed, byte(compressionType))
		if checksumType != checksum.TypeNoChecksum && gotSum != wantSum {
			return errWALChecksumFailed
		}

		data, err := compression.DecompressWithSize(compressionType, compressed, int(origLen))
		if err != nil {
			return errWALCorrupt
		}

		wb, err := batch.NewFromData(data)
		if err != nil {
			return errWALCorrupt
		}
		if err := fn(wb); err != nil {
			return err
		}
	}
}
