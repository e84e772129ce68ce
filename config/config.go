// Package config collects the tunables that govern how the storage
// engine, the MVCC transaction engine, and the GC compaction filter
// behave, following the same struct-plus-Default*() idiom the teacher
// repo uses for its Options/ReadOptions/WriteOptions.
//
// Reference: RocksDB v10.7.5 include/rocksdb/options.h (shape only; the
// fields below are this project's own configuration surface).
package config

import (
	"github.com/aalhour/txnkv/internal/checksum"
	"github.com/aalhour/txnkv/internal/compression"
	"github.com/aalhour/txnkv/internal/logging"
	"github.com/aalhour/txnkv/internal/vfs"
)

// Logger is an alias for the logging.Logger interface so callers can
// supply their own implementation without importing internal/logging.
type Logger = logging.Logger

// CompressionType is an alias for the compression type used for value-CF
// and write-CF payloads.
type CompressionType = compression.Type

// Compression type constants.
const (
	CompressionNone   = compression.NoCompression
	CompressionSnappy = compression.SnappyCompression
	CompressionLZ4    = compression.LZ4Compression
	CompressionZstd   = compression.ZstdCompression
)

// ChecksumType is an alias for the checksum type protecting stored
// records.
type ChecksumType = checksum.Type

// Checksum type constants.
const (
	ChecksumNone  = checksum.TypeNoChecksum
	ChecksumCRC32 = checksum.TypeCRC32C
	ChecksumXXH3  = checksum.TypeXXH3
)

// Options configures an open storage engine and the MVCC/GC layers on
// top of it.
type Options struct {
	// CreateIfMissing causes Open to create the database if it does not exist.
	CreateIfMissing bool

	// FS is the filesystem implementation the WAL is written through.
	// If nil, the OS filesystem is used.
	FS vfs.FS

	// WriteBufferSize is not read by any package: the in-memory column
	// family stores have no size bound, and compaction runs only when
	// Engine.Compact is called.
	// Default: 64MB
	WriteBufferSize int

	// ChecksumType is the checksum stored with each WAL frame and verified
	// when the WAL is replayed. The in-memory stores carry no checksum.
	// Default: XXH3
	ChecksumType ChecksumType

	// Compression is applied to the payload of every WAL frame (a whole
	// write batch), whatever its size; there is no minimum size.
	// Default: NoCompression
	Compression CompressionType

	// MaxKeySize bounds the length of a user key accepted by Prewrite.
	// Prewrite of a larger key fails with ErrKeyTooLarge before any lock
	// or write state is touched.
	// Default: 4096
	MaxKeySize int

	// ReserveSpace is bytes of disk space the engine keeps reserved so a
	// GC compaction pass can always make forward progress even when the
	// filesystem is otherwise full.
	// Default: 2GiB
	ReserveSpace int64

	// EnableCompactionFilter turns on the GC compaction filter. When
	// false, compactions never drop obsolete MVCC versions.
	// Default: true (at cluster version >= 5.0.0; see gc.MinClusterVersion)
	EnableCompactionFilter bool

	// CompactionFilterSkipVersionCheck bypasses the cluster-version gate
	// in gc.Context.ShouldRun, so the filter can activate even when the
	// cluster has not finished upgrading past version 5.0.0.
	// Default: false
	CompactionFilterSkipVersionCheck bool

	// RatioThreshold is the stale-to-live MVCC-version ratio a compaction
	// job's input segments must exceed (after the single-SST +0.2 boost,
	// where applicable) before the GC filter activates for that job.
	// Default: 1.1
	RatioThreshold float64

	// EnableAsyncApplyPrewrite is not read by any package; Prewrite takes
	// its async-commit path whenever PrewriteOptions.Secondaries is set.
	// Default: false
	EnableAsyncApplyPrewrite bool

	// Logger receives structured log output from the storage engine and
	// the GC filter (the MVCC engine does not log). If nil, a default logger writing to
	// stderr is used.
	Logger Logger
}

// DefaultOptions returns an Options populated with this project's
// defaults, mirroring the spec's configuration surface.
func DefaultOptions() *Options {
	return &Options{
		CreateIfMissing:                  false,
		FS:                               nil, // resolved to vfs.Default() by storage.Open
		WriteBufferSize:                  64 * 1024 * 1024,
		ChecksumType:                     ChecksumXXH3,
		Compression:                      CompressionNone,
		MaxKeySize:                       4096,
		ReserveSpace:                     2 << 30,
		EnableCompactionFilter:           true,
		CompactionFilterSkipVersionCheck: false,
		RatioThreshold:                   1.1,
		EnableAsyncApplyPrewrite:         false,
		Logger:                           nil, // resolved to logging.NewDefaultLogger by storage.Open
	}
}

// ReadOptions configures a single read or snapshot scan.
type ReadOptions struct {
	// VerifyChecksums is not consulted: no read path in this module takes
	// ReadOptions.
	VerifyChecksums bool

	// FillCache indicates whether hot blocks are retained for later reads.
	// The in-memory engine has no block cache; this field exists so a
	// future on-disk table implementation can honor it without changing
	// the call sites that already set it.
	FillCache bool
}

// DefaultReadOptions returns ReadOptions with default values.
func DefaultReadOptions() *ReadOptions {
	return &ReadOptions{VerifyChecksums: true, FillCache: true}
}

// WriteOptions configures a single write-batch application.
type WriteOptions struct {
	// Sync causes the write to be fsynced to the WAL before returning.
	Sync bool

	// DisableWAL skips the write-ahead log entirely. The write is then held
	// only in memory and does not survive a reopen. Matches the teacher's DisableWAL
	// semantics exactly.
	DisableWAL bool
}

// DefaultWriteOptions returns WriteOptions with default values.
func DefaultWriteOptions() *WriteOptions {
	return &WriteOptions{Sync: false, DisableWAL: false}
}
