package mvcc

import (
	"github.com/aalhour/txnkv/config"
	"github.com/aalhour/txnkv/storage"
)

// Apply writes a Batch's buffered modifications to the storage engine
// atomically, as spec.md §2 describes: the engine "returns [modifications]
// as an atomic batch that the caller writes to the storage engine."
func Apply(engine *storage.Engine, b *Batch, wo *config.WriteOptions) error {
	if b.Empty() {
		return nil
	}
	return engine.Write(b.ToWriteBatch(), wo)
}
