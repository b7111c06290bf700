/*
returns.go - Return adapter

Returns restock by default: a RETURN movement of +quantity. Reasons
configured as non-restocking (e.g. damaged goods) accept the event
without touching stock.
*/
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/stock-engine/ledger"
)

// ReturnAdapter turns return-creation events into RETURN movements.
type ReturnAdapter struct {
	recorder        *ledger.Recorder
	nonRestockables map[string]bool
}

// ReturnOption configures a ReturnAdapter.
type ReturnOption func(*ReturnAdapter)

// WithNonRestockingReasons marks return reasons that must not restock.
// Matching is case-insensitive.
func WithNonRestockingReasons(reasons ...string) ReturnOption {
	return func(a *ReturnAdapter) {
		for _, r := range reasons {
			a.nonRestockables[strings.ToLower(r)] = true
		}
	}
}

func NewReturnAdapter(recorder *ledger.Recorder, opts ...ReturnOption) *ReturnAdapter {
	a := &ReturnAdapter{
		recorder:        recorder,
		nonRestockables: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Create handles a filed return. The returned movement is nil when the
// reason is non-restocking.
func (a *ReturnAdapter) Create(ctx context.Context, ev ReturnEvent, actorID string) (*ledger.Movement, error) {
	if ev.ReturnID == "" {
		return nil, &ledger.ValidationError{Field: "return_id", Reason: "must not be empty"}
	}
	if ev.Quantity <= 0 {
		return nil, &ledger.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	if a.nonRestockables[strings.ToLower(ev.Reason)] {
		return nil, nil
	}

	m, err := a.recorder.Record(ctx, ledger.MovementRequest{
		ItemID:         ev.ItemID,
		Type:           ledger.ChangeReturn,
		QuantityChange: ev.Quantity,
		SourceType:     SourcePurchaseReturn,
		SourceID:       ev.ReturnID,
		ActorID:        actorID,
		Notes:          fmt.Sprintf("return restocked: %s", ev.Reason),
	})
	if errors.Is(err, ledger.ErrDuplicateSource) {
		// Replayed event: the return was already restocked.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
