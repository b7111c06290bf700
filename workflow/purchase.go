/*
purchase.go - Purchase-receipt adapter

Applies one PURCHASE movement per line when a purchase is received.

IDEMPOTENCE:
  The RECEIVED transition may be observed more than once. A line whose
  movement already exists (by SourceType/SourceID) is skipped, so a
  replayed receipt is a no-op and never double-counts. Lines are keyed on
  their own id, so a partially applied receipt resumes where it stopped.
  The lookup is a fast path only: the store's unique source index is what
  rules out double-counting when two deliveries race.
*/
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/stock-engine/ledger"
)

// PurchaseAdapter turns purchase receipts into PURCHASE movements.
type PurchaseAdapter struct {
	recorder *ledger.Recorder
	store    ledger.Store
}

func NewPurchaseAdapter(recorder *ledger.Recorder, store ledger.Store) *PurchaseAdapter {
	return &PurchaseAdapter{recorder: recorder, store: store}
}

// Receive applies the receipt's lines to stock. It returns the movements
// recorded by this call; already-applied lines contribute nothing.
func (a *PurchaseAdapter) Receive(ctx context.Context, receipt PurchaseReceipt, actorID string) ([]ledger.Movement, error) {
	if receipt.PurchaseID == "" {
		return nil, &ledger.ValidationError{Field: "purchase_id", Reason: "must not be empty"}
	}
	for _, line := range receipt.Lines {
		if line.LineID == "" {
			return nil, &ledger.ValidationError{Field: "line_id", Reason: "must not be empty"}
		}
		if line.Quantity <= 0 {
			return nil, &ledger.ValidationError{Field: "quantity", Reason: "must be positive"}
		}
	}

	reference := receipt.SupplierReference
	if reference == "" {
		reference = receipt.PurchaseID
	}

	var applied []ledger.Movement
	for _, line := range receipt.Lines {
		_, exists, err := a.store.MovementBySource(ctx, SourcePurchaseLine, line.LineID)
		if err != nil {
			return applied, err
		}
		if exists {
			continue // replayed transition
		}

		m, err := a.recorder.Record(ctx, ledger.MovementRequest{
			ItemID:         line.ItemID,
			Type:           ledger.ChangePurchase,
			QuantityChange: line.Quantity,
			SourceType:     SourcePurchaseLine,
			SourceID:       line.LineID,
			ActorID:        actorID,
			Notes:          fmt.Sprintf("purchase received: %s", reference),
		})
		if errors.Is(err, ledger.ErrDuplicateSource) {
			// A concurrent delivery of the same transition won the race
			// between our lookup and the insert. The store's unique
			// source index guarantees only one movement committed.
			continue
		}
		if err != nil {
			return applied, err
		}
		applied = append(applied, m)
	}
	return applied, nil
}
