/*
Package workflow translates business events into ledger movements.

PURPOSE:
  The purchase, return, and sale collaborators own their own documents and
  state machines; this package is the seam where their events become calls
  into the Movement Recorder. Adapters never write to storage directly.

SOURCE REFERENCES:
  Every movement an adapter records carries the causal document as
  (SourceType, SourceID), which is also how the purchase adapter detects
  and ignores replayed receipt events.
*/
package workflow

import (
	"github.com/shopspring/decimal"

	"github.com/warp/stock-engine/ledger"
)

// Source types stamped on adapter-recorded movements.
const (
	SourcePurchaseLine   = "PurchaseLine"
	SourcePurchaseReturn = "PurchaseReturn"
	SourceSaleLine       = "SaleLine"
)

// PurchaseLine is one line item on a received purchase.
type PurchaseLine struct {
	LineID    string
	ItemID    ledger.ItemID
	Quantity  int64
	UnitPrice decimal.Decimal
}

// PurchaseReceipt is the event emitted when a purchase transitions into
// RECEIVED. The transition is one-way; the workflow may still deliver it
// more than once.
type PurchaseReceipt struct {
	PurchaseID        string
	SupplierReference string
	Lines             []PurchaseLine
}

// ReturnEvent is emitted when a customer return is filed.
type ReturnEvent struct {
	ReturnID string
	ItemID   ledger.ItemID
	Quantity int64
	Reason   string
}

// SaleEvent is emitted when a sale line is committed.
type SaleEvent struct {
	SaleLineID string
	ItemID     ledger.ItemID
	Quantity   int64
}
