package queue

import (
	"context"

	"queueforge/pkg/types"
)

// CompletionPort applies the game effect of a finished item. Building and
// research ports receive the resulting level, the ship port a quantity delta.
// Returning an error leaves the item at the head of its queue.
type CompletionPort interface {
	Apply(ctx context.Context, planetID int64, targetKind string, levelOrQuantity int) error
}

// CompletionFunc adapts a plain function to CompletionPort.
type CompletionFunc func(ctx context.Context, planetID int64, targetKind string, levelOrQuantity int) error

func (f CompletionFunc) Apply(ctx context.Context, planetID int64, targetKind string, levelOrQuantity int) error {
	return f(ctx, planetID, targetKind, levelOrQuantity)
}

// Ports selects the completion port for a category.
type Ports map[types.Category]CompletionPort

// Snapshot is the persisted state of one (planet, category) queue.
// Version is opaque to the engine and handed back on Save.
type Snapshot struct {
	Items   []types.QueueItem
	Version int64
}

// Repository persists queues. Load fails with ErrNotFound for unknown planets.
// Save fails with ErrConcurrencyConflict when the stored version is not expectedVersion.
type Repository interface {
	Load(ctx context.Context, planetID int64, category types.Category) (Snapshot, error)
	Save(ctx context.Context, planetID int64, category types.Category, items []types.QueueItem, expectedVersion int64) error
}

// Transactor is implemented by repositories that can commit completion effects
// together with the queue save. Store calls made with the context handed to fn
// join the transaction, and an error from fn rolls all of them back.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
