/*
Package ledger is the core stock-keeping engine.

PURPOSE:
  Tracks quantity-on-hand per stocked item as an append-only ledger of
  signed movements, each with a causal source (purchase, return, sale,
  adjustment, count reconciliation). A denormalized cached balance per
  item is kept in lockstep with the ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - StockedItem: a SKU-identified item carrying the cached balance
  - Movement: one immutable, signed quantity-change record
  - InventoryCount: a physical count snapshot and its discrepancy

CRITICAL INVARIANTS:
  1. APPEND-ONLY: movements are never updated or deleted
  2. CACHE CONSISTENCY: CachedBalance always equals the sum of the item's
     committed movement quantities
  3. RUNNING BALANCE: every movement captures the balance after it applied,
     at write time; it is never recomputed
  4. SINGLE WRITER: only the Recorder mutates CachedBalance, and all
     mutations for one item are serialized

Corrections are made via new compensating movements, never edits.

SEE ALSO:
  - recorder.go: the only write path into the ledger
  - reconcile.go: physical count reconciliation
  - store.go: persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type MovementID string
type CountID string

// =============================================================================
// CHANGE TYPES
// =============================================================================

// ChangeType classifies the causal source of a movement.
type ChangeType string

const (
	ChangePurchase            ChangeType = "purchase"
	ChangeReturn              ChangeType = "return"
	ChangeSale                ChangeType = "sale"
	ChangeAdjustment          ChangeType = "adjustment"
	ChangeCountReconciliation ChangeType = "count_reconciliation"
)

// Valid reports whether t is a known change type.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangePurchase, ChangeReturn, ChangeSale, ChangeAdjustment, ChangeCountReconciliation:
		return true
	}
	return false
}

// =============================================================================
// STOCKED ITEM
// =============================================================================

// StockedItem is a single SKU-identified stock position.
//
// The catalog collaborator owns identity and descriptive fields.
// CachedBalance is owned exclusively by the Recorder; it must equal the
// sum of all committed movements for the item.
type StockedItem struct {
	ID            ItemID
	SKU           string
	Name          string
	CachedBalance int64
	IsActive      bool

	// Prices are carried for stock valuation only. Monetary math uses
	// decimals, never floats.
	SellingPrice  decimal.Decimal
	PurchasePrice decimal.Decimal

	CreatedAt time.Time
}

// =============================================================================
// MOVEMENT - Atomic change to an item's balance
// =============================================================================

// Movement is one immutable ledger entry.
//
// Sequence is assigned by the store at insert and totally orders movements
// per item. RunningBalance is the cached balance after this movement was
// applied, captured inside the same transaction that committed it.
type Movement struct {
	ID             MovementID
	Sequence       int64
	ItemID         ItemID
	Type           ChangeType
	QuantityChange int64 // signed, never zero
	RunningBalance int64

	// Optional reference to the business document that caused the change,
	// e.g. ("PurchaseLine", line id) or ("InventoryCount", count id).
	SourceType string
	SourceID   string

	ActorID    string
	Notes      string
	RecordedAt time.Time
}

// =============================================================================
// INVENTORY COUNT - Physical count snapshot
// =============================================================================

// InventoryCount records one physical count against the system balance.
//
// Immutable once created. AdjustmentID is set only when Difference != 0 and
// points at the compensating count_reconciliation movement.
type InventoryCount struct {
	ID              CountID
	ItemID          ItemID
	CountedQuantity int64
	SystemBalance   int64 // cached balance at count time
	Difference      int64 // CountedQuantity - SystemBalance
	AdjustmentID    MovementID
	OperatorID      string
	Notes           string
	CountedAt       time.Time
}
