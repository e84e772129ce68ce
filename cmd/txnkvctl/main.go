// Package main provides txnkvctl, an inspection and driving tool for a
// txnkv database: point get/put/delete through real MVCC transactions,
// a raw dump of the write/lock column families, and an on-demand GC
// compaction pass.
//
// Usage:
//
//	txnkvctl --db=<path> <command> [options]
//
// Commands:
//
//	get <key>            Read the newest committed value at --ts (default: now)
//	put <key> <value>    Run a single-key optimistic transaction
//	delete <key>         Run a single-key optimistic delete transaction
//	dump                 Dump raw write-CF records (physical key order)
//	locks                Dump raw lock-CF records
//	gc                   Force one compaction pass over the write CF
//	info                 Print basic counts
//
// Reference: RocksDB v10.7.5 tools/ldb_tool.cc, adapted from the
// teacher's cmd/ldb.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aalhour/txnkv/clustertime"
	"github.com/aalhour/txnkv/config"
	"github.com/aalhour/txnkv/gc"
	"github.com/aalhour/txnkv/internal/logging"
	"github.com/aalhour/txnkv/latch"
	"github.com/aalhour/txnkv/mvcc"
	"github.com/aalhour/txnkv/storage"
	"github.com/aalhour/txnkv/txnkey"
)

var (
	dbPath           = flag.String("db", "", "Path to the database (required)")
	createIfMissing  = flag.Bool("create_if_missing", true, "Create database if it doesn't exist")
	hexOutput        = flag.Bool("hex", false, "Output keys and values in hex format")
	limit            = flag.Int("limit", 0, "Limit number of entries (0 = unlimited)")
	help             = flag.Bool("help", false, "Print help")
	tsFlag           = flag.Uint64("ts", 0, "Physical read timestamp for get, and default safe-point for gc (0 = use the wall-clock convenience oracle)")
	safePoint        = flag.Uint64("safe_point", 0, "Safe-point physical timestamp for the gc command")
	clusterVersion   = flag.String("cluster_version", gc.MinClusterVersion, "Cluster version for the gc command's version gate")
	skipVersionCheck = flag.Bool("skip_version_check", false, "Skip the gc command's cluster-version gate")
	gcRatioThreshold = flag.Float64("ratio_threshold", 1.1, "Stale-to-live ratio the gc command requires before it activates")
)

// localOracle is a process-local, wall-clock-seeded timestamp source for
// single-shot CLI transactions. It is deliberately not a placement-driver
// client: spec.md treats cross-shard timestamp allocation as an
// out-of-scope collaborator, and this tool only ever drives one
// transaction at a time against one local database.
var localOracle atomic.Uint64

// latches serializes this process's own prewrite+commit pairs against
// each other, the way a request scheduler would serialize concurrent
// transactions touching the same key before handing them to mvcc.Engine.
// A single CLI invocation only ever drives one transaction, so this
// buys no concurrency safety here by itself; it exists so cmdPut/cmdDelete
// exercise the real collaborator contract (acquire the guard, run the
// prewrite+commit pair, release it) rather than bypassing it.
var latches = latch.NewManager(latch.DefaultOptions())

// cliSchedulerID identifies this process to latches. Callers supply
// their own identity to latch.Manager rather than it minting one.
const cliSchedulerID = 1

func nextTimestamp() txnkey.Timestamp {
	for {
		prev := localOracle.Load()
		now := uint64(time.Now().UnixMilli())
		next := now
		if next <= prev {
			next = prev + 1
		}
		if localOracle.CompareAndSwap(prev, next) {
			return txnkey.Timestamp{Physical: next}
		}
	}
}

func main() {
	flag.Parse()

	if *help || len(flag.Args()) == 0 {
		printUsage()
		return
	}
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --db flag is required")
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "get":
		err = cmdGet(args)
	case "put":
		err = cmdPut(args)
	case "delete":
		err = cmdDelete(args)
	case "dump":
		err = cmdDump()
	case "locks":
		err = cmdLocks()
	case "gc":
		err = cmdGC()
	case "info":
		err = cmdInfo()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("txnkvctl - txnkv database inspection and driving tool")
	fmt.Println()
	fmt.Println("Usage: txnkvctl --db=<path> <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  get <key>            Read the newest committed value at --ts")
	fmt.Println("  put <key> <value>    Run a single-key optimistic transaction")
	fmt.Println("  delete <key>         Run a single-key optimistic delete transaction")
	fmt.Println("  dump                 Dump raw write-CF records")
	fmt.Println("  locks                Dump raw lock-CF records")
	fmt.Println("  gc                   Force one compaction pass over the write CF")
	fmt.Println("  info                 Print basic counts")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}

func openEngine() (*storage.Engine, error) {
	opts := config.DefaultOptions()
	opts.CreateIfMissing = *createIfMissing
	opts.Logger = logging.NewDefaultLogger(logging.LevelWarn)
	return storage.Open(*dbPath, opts)
}

func formatOutput(data []byte) string {
	if data == nil {
		return "<absent>"
	}
	if *hexOutput {
		return hex.EncodeToString(data)
	}
	for _, b := range data {
		if b < 32 || b > 126 {
			return hex.EncodeToString(data)
		}
	}
	return string(data)
}

func parseInput(s string) []byte {
	if strings.HasPrefix(s, "0x") {
		if decoded, err := hex.DecodeString(s[2:]); err == nil {
			return decoded
		}
	}
	return []byte(s)
}

func readTimestamp() txnkey.Timestamp {
	if *tsFlag != 0 {
		return txnkey.Timestamp{Physical: *tsFlag}
	}
	return txnkey.Timestamp{Physical: uint64(time.Now().UnixMilli())}
}

func cmdGet(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: txnkvctl --db=<path> get <key>")
	}
	engine, err := openEngine()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer engine.Close()

	key := parseInput(args[0])
	r := mvcc.NewSnapshotReader(engine.NewSnapshot())
	txns := mvcc.NewEngine(mvcc.NewConcurrencyManager(), 0)

	value, found, err := txns.Get(r, key, readTimestamp())
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}
	if !found {
		fmt.Println("<absent>")
		return nil
	}
	fmt.Println(formatOutput(value))
	return nil
}

func cmdPut(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: txnkvctl --db=<path> put <key> <value>")
	}
	engine, err := openEngine()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer engine.Close()

	key := parseInput(args[0])
	value := parseInput(args[1])
	startTS := nextTimestamp()
	commitTS := nextTimestamp()

	guard, err := latches.Acquire(cliSchedulerID, [][]byte{key}, latch.DefaultOptions().DefaultTimeout)
	if err != nil {
		return fmt.Errorf("latch acquire failed: %w", err)
	}
	defer guard.Release()

	txns := mvcc.NewEngine(mvcc.NewConcurrencyManager(), 0)

	b := mvcc.NewBatch()
	r := mvcc.NewSnapshotReader(engine.NewSnapshot())
	if _, err := txns.Prewrite(r, b, mvcc.Mutation{Op: mvcc.MutationPut, Key: key, Value: value}, mvcc.PrewriteOptions{
		Primary: key, StartTS: startTS, TTLMillis: 10000,
	}); err != nil {
		return fmt.Errorf("prewrite failed: %w", err)
	}
	if err := mvcc.Apply(engine, b, &config.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("apply prewrite failed: %w", err)
	}

	b = mvcc.NewBatch()
	r = mvcc.NewSnapshotReader(engine.NewSnapshot())
	if err := txns.Commit(r, b, mvcc.CommitRequest{Key: key, StartTS: startTS, CommitTS: commitTS}); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	if err := mvcc.Apply(engine, b, &config.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("apply commit failed: %w", err)
	}

	fmt.Printf("OK (start_ts=%s commit_ts=%s)\n", startTS, commitTS)
	return nil
}

func cmdDelete(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: txnkvctl --db=<path> delete <key>")
	}
	engine, err := openEngine()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer engine.Close()

	key := parseInput(args[0])
	startTS := nextTimestamp()
	commitTS := nextTimestamp()

	guard, err := latches.Acquire(cliSchedulerID, [][]byte{key}, latch.DefaultOptions().DefaultTimeout)
	if err != nil {
		return fmt.Errorf("latch acquire failed: %w", err)
	}
	defer guard.Release()

	txns := mvcc.NewEngine(mvcc.NewConcurrencyManager(), 0)

	b := mvcc.NewBatch()
	r := mvcc.NewSnapshotReader(engine.NewSnapshot())
	if _, err := txns.Prewrite(r, b, mvcc.Mutation{Op: mvcc.MutationDelete, Key: key}, mvcc.PrewriteOptions{
		Primary: key, StartTS: startTS, TTLMillis: 10000,
	}); err != nil {
		return fmt.Errorf("prewrite failed: %w", err)
	}
	if err := mvcc.Apply(engine, b, &config.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("apply prewrite failed: %w", err)
	}

	b = mvcc.NewBatch()
	r = mvcc.NewSnapshotReader(engine.NewSnapshot())
	if err := txns.Commit(r, b, mvcc.CommitRequest{Key: key, StartTS: startTS, CommitTS: commitTS}); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	if err := mvcc.Apply(engine, b, &config.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("apply commit failed: %w", err)
	}

	fmt.Printf("OK (start_ts=%s commit_ts=%s)\n", startTS, commitTS)
	return nil
}

func cmdDump() error {
	engine, err := openEngine()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer engine.Close()

	it := engine.NewIterator(storage.CFWrite)
	count := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		userKey, commitTS := txnkey.PhysicalKey(it.Key()).Split()
		rec, err := txnkey.DecodeWriteRecord(it.Value())
		if err != nil {
			fmt.Printf("  %s @ %s: decode error: %v\n", formatOutput(userKey), commitTS, err)
			continue
		}
		fmt.Printf("  %s @ commit_ts=%s: %s start_ts=%s\n", formatOutput(userKey), commitTS, writeTypeName(rec.Type), rec.StartTS)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}
	fmt.Printf("\n(%d write records dumped)\n", count)
	return nil
}

func cmdLocks() error {
	engine, err := openEngine()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer engine.Close()

	it := engine.NewIterator(storage.CFLock)
	count := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		lock, err := txnkey.DecodeLock(it.Value())
		if err != nil {
			fmt.Printf("  %s: decode error: %v\n", formatOutput(it.Key()), err)
			continue
		}
		fmt.Printf("  %s: primary=%s ts=%s for_update_ts=%s ttl=%dms\n",
			formatOutput(it.Key()), formatOutput(lock.Primary), lock.TS, lock.ForUpdateTS, lock.TTLMillis)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}
	fmt.Printf("\n(%d locks dumped)\n", count)
	return nil
}

func cmdGC() error {
	engine, err := openEngine()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer engine.Close()

	tracker := clustertime.NewTracker(*clusterVersion)
	if *safePoint != 0 {
		tracker.PublishSafePoint(txnkey.Timestamp{Physical: *safePoint})
	} else {
		tracker.PublishSafePoint(readTimestamp())
	}

	gcCtx := gc.NewContext(tracker, true, *skipVersionCheck, *gcRatioThreshold)
	engine.InstallCompactionFilterFactory(gc.NewFilterFactory(gcCtx, engine))

	result, err := engine.Compact(storage.CFWrite)
	if err != nil {
		return fmt.Errorf("compact failed: %w", err)
	}
	fmt.Printf("examined=%d removed=%d\n", result.KeysExamined, result.KeysRemoved)
	return nil
}

func cmdInfo() error {
	engine, err := openEngine()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer engine.Close()

	fmt.Printf("Database: %s\n", *dbPath)
	fmt.Println("---")
	for _, cf := range []storage.ColumnFamily{storage.CFDefault, storage.CFLock, storage.CFWrite} {
		n := 0
		it := engine.NewIterator(cf)
		for it.SeekToFirst(); it.Valid(); it.Next() {
			n++
		}
		fmt.Printf("%s: %d records\n", cf, n)
	}
	return nil
}

func writeTypeName(t txnkey.WriteType) string {
	switch t {
	case txnkey.WriteTypePut:
		return "Put"
	case txnkey.WriteTypeDelete:
		return "Delete"
	case txnkey.WriteTypeLock:
		return "Lock"
	case txnkey.WriteTypeRollback:
		return "Rollback"
	default:
		return "Unknown"
	}
}
