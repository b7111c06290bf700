/*
reconcile.go - Reconciliation Engine

PURPOSE:
  Compares a physically counted quantity against the cached balance,
  records the discrepancy as an InventoryCount, and closes any nonzero
  gap with a compensating count_reconciliation movement.

GUARANTEE:
  After Reconcile returns successfully, CachedBalance == CountedQuantity.

TRANSACTION SHAPE:
  The snapshot, the count record, and the compensating movement all commit
  in one item transaction. The count is never written against a stale
  balance, and a count with a nonzero difference is never visible without
  its adjustment movement.
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceInventoryCount is the SourceType carried by movements created
// through reconciliation.
const SourceInventoryCount = "InventoryCount"

// CountRequest describes one physical count to reconcile.
type CountRequest struct {
	ItemID          ItemID
	CountedQuantity int64 // must be >= 0
	OperatorID      string
	Notes           string
}

func (r CountRequest) validate() error {
	if r.ItemID == "" {
		return &ValidationError{Field: "item_id", Reason: "must not be empty"}
	}
	if r.CountedQuantity < 0 {
		return &ValidationError{Field: "counted_quantity", Reason: "must not be negative"}
	}
	if r.OperatorID == "" {
		return &ValidationError{Field: "operator_id", Reason: "must not be empty"}
	}
	return nil
}

// Reconciler turns physical counts into count records and compensating
// movements.
type Reconciler struct {
	store    Store
	recorder *Recorder

	now   func() time.Time
	newID func() string
}

// NewReconciler creates a reconciler sharing the recorder's store.
func NewReconciler(store Store, recorder *Recorder) *Reconciler {
	return &Reconciler{
		store:    store,
		recorder: recorder,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Reconcile records a physical count for an item.
//
// difference = countedQuantity - systemBalanceAtCountTime. When nonzero,
// a compensating movement of exactly that difference is recorded through
// the Recorder, and its id is linked on the returned count record. When
// zero, no movement is created and AdjustmentID stays empty.
func (rc *Reconciler) Reconcile(ctx context.Context, req CountRequest) (InventoryCount, error) {
	if err := req.validate(); err != nil {
		return InventoryCount{}, err
	}

	var out InventoryCount
	err := rc.store.WithItemTx(ctx, req.ItemID, func(tx Tx) error {
		item, err := tx.ItemForUpdate(ctx, req.ItemID)
		if err != nil {
			return err
		}

		count := InventoryCount{
			ID:              CountID(rc.newID()),
			ItemID:          item.ID,
			CountedQuantity: req.CountedQuantity,
			SystemBalance:   item.CachedBalance,
			Difference:      req.CountedQuantity - item.CachedBalance,
			OperatorID:      req.OperatorID,
			Notes:           req.Notes,
			CountedAt:       rc.now().UTC(),
		}

		if count.Difference != 0 {
			m, err := rc.recorder.apply(ctx, tx, MovementRequest{
				ItemID:         item.ID,
				Type:           ChangeCountReconciliation,
				QuantityChange: count.Difference,
				SourceType:     SourceInventoryCount,
				SourceID:       string(count.ID),
				ActorID:        req.OperatorID,
				Notes:          fmt.Sprintf("inventory count adjustment: %+d", count.Difference),
			})
			if err != nil {
				return err
			}
			count.AdjustmentID = m.ID
		}

		if err := tx.InsertCount(ctx, count); err != nil {
			return err
		}
		out = count
		return nil
	})
	if err != nil {
		return InventoryCount{}, err
	}
	return out, nil
}
