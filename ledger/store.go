/*
store.go - Persistence interfaces for the stock ledger

PURPOSE:
  Defines the boundary between the engine and the database. The movements
  table is append-only: implementations expose InsertMovement and reads,
  never an update or delete.

TRANSACTION SCOPE:
  All balance mutation goes through WithItemTx. An implementation must
  guarantee that within one WithItemTx call for an item:
    - ItemForUpdate holds a write-intent lock (or equivalent) so no
      concurrent writer for the same item can interleave
    - InsertMovement and UpdateCachedBalance commit together or not at all
    - failure to commit due to contention surfaces as ConcurrencyError
  Calls for different items must not block each other beyond what the
  storage engine requires.

SEQUENCES:
  InsertMovement assigns a monotonically increasing sequence. Per item,
  sequence order matches commit order.

IMPLEMENTATIONS:
  - store/sqlite:   immediate write transactions, busy => ConcurrencyError
  - store/postgres: SELECT ... FOR UPDATE row locks
  - ledger/store:   in-memory, per-item mutex (tests/dev)
*/
package ledger

import "context"

// =============================================================================
// TRANSACTION SCOPE
// =============================================================================

// Tx is the write scope for a single item, opened by Store.WithItemTx.
// All methods operate inside one storage transaction.
type Tx interface {
	// ItemForUpdate reads the item with a write-intent lock.
	// Returns NotFoundError if the item doesn't exist.
	ItemForUpdate(ctx context.Context, id ItemID) (StockedItem, error)

	// InsertMovement appends a movement and returns it with its assigned
	// sequence. The movements table is append-only. A nonempty
	// (SourceType, SourceID) pair is unique across the ledger; inserting
	// it twice returns DuplicateSourceError.
	InsertMovement(ctx context.Context, m Movement) (Movement, error)

	// UpdateCachedBalance sets the item's cached balance.
	// Only the Recorder calls this, inside the same transaction as the
	// movement insert.
	UpdateCachedBalance(ctx context.Context, id ItemID, balance int64) error

	// InsertCount appends an inventory count record.
	InsertCount(ctx context.Context, c InventoryCount) error
}

// =============================================================================
// STORE
// =============================================================================

// Page bounds list queries. Zero Limit means the implementation default.
type Page struct {
	Limit  int
	Offset int
}

// MovementFilter selects ledger history. Empty ItemID means all items.
type MovementFilter struct {
	ItemID ItemID
	Page   Page
}

// CountFilter selects inventory count history. Empty ItemID means all items.
type CountFilter struct {
	ItemID ItemID
	Page   Page
}

// Store handles persistence for items, movements, and counts.
type Store interface {
	// WithItemTx runs fn inside a transaction scoped to one item's balance.
	// If fn returns an error the transaction is rolled back and nothing
	// becomes visible. Commit conflicts surface as ConcurrencyError.
	WithItemTx(ctx context.Context, id ItemID, fn func(Tx) error) error

	// Item returns the item, including its cached balance.
	// Returns NotFoundError if it doesn't exist.
	Item(ctx context.Context, id ItemID) (StockedItem, error)

	// PutItem creates or updates an item's identity fields (SKU, name,
	// prices, active flag). This is the catalog collaborator's surface;
	// it never touches CachedBalance on existing items.
	PutItem(ctx context.Context, item StockedItem) error

	// Items lists active items ordered by SKU.
	Items(ctx context.Context, page Page) ([]StockedItem, error)

	// LowStock returns active items with cached balance <= threshold.
	LowStock(ctx context.Context, threshold int64) ([]StockedItem, error)

	// Movements returns ledger history ordered by sequence descending.
	Movements(ctx context.Context, f MovementFilter) ([]Movement, error)

	// MovementBySource looks up a movement by its causal source reference.
	// Used by workflow adapters for replay detection.
	MovementBySource(ctx context.Context, sourceType, sourceID string) (Movement, bool, error)

	// Counts returns inventory count records, newest first.
	Counts(ctx context.Context, f CountFilter) ([]InventoryCount, error)
}
