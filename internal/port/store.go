package port

import (
	"context"

	"github.com/rl1809/container-inventory/internal/core/domain"
)

// Store is the storage engine the inventory engine is built on. Implementations
// must evaluate every write guard server-side, atomically with the write.
type Store interface {
	// Get returns the record under key. found is false when it does not exist.
	Get(ctx context.Context, key domain.Key) (rec domain.Record, found bool, err error)

	// Put applies one guarded write. A failed guard returns a *domain.TransactionCanceledError.
	Put(ctx context.Context, write domain.Write) error

	// Transact applies all writes or none. A failed guard returns a
	// *domain.TransactionCanceledError naming the first failing write.
	Transact(ctx context.Context, writes []domain.Write) error

	// BatchGet returns the records that exist among keys.
	BatchGet(ctx context.Context, keys []domain.Key) (map[domain.Key]domain.Record, error)
}
