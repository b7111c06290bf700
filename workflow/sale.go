/*
sale.go - Sale adapter

Records SALE movements of -quantity. Under the recorder's default
no-oversell policy, a sale that would drive the balance negative fails
with InsufficientStockError instead of silently overselling.
*/
package workflow

import (
	"context"

	"github.com/warp/stock-engine/ledger"
)

// SaleAdapter turns committed sale lines into SALE movements.
type SaleAdapter struct {
	recorder *ledger.Recorder
}

func NewSaleAdapter(recorder *ledger.Recorder) *SaleAdapter {
	return &SaleAdapter{recorder: recorder}
}

// Sell deducts the sold quantity from stock.
func (a *SaleAdapter) Sell(ctx context.Context, ev SaleEvent, actorID string) (ledger.Movement, error) {
	if ev.SaleLineID == "" {
		return ledger.Movement{}, &ledger.ValidationError{Field: "sale_line_id", Reason: "must not be empty"}
	}
	if ev.Quantity <= 0 {
		return ledger.Movement{}, &ledger.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	return a.recorder.Record(ctx, ledger.MovementRequest{
		ItemID:         ev.ItemID,
		Type:           ledger.ChangeSale,
		QuantityChange: -ev.Quantity,
		SourceType:     SourceSaleLine,
		SourceID:       ev.SaleLineID,
		ActorID:        actorID,
	})
}
