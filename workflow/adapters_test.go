package workflow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warp/stock-engine/ledger"
	memstore "github.com/warp/stock-engine/ledger/store"
	"github.com/warp/stock-engine/workflow"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newFixture(t *testing.T) (*ledger.Recorder, *memstore.Memory) {
	t.Helper()
	s := memstore.NewMemory()
	for _, id := range []string{"item-1", "item-2"} {
		require.NoError(t, s.PutItem(context.Background(), ledger.StockedItem{
			ID:       ledger.ItemID(id),
			SKU:      "SKU-" + id,
			Name:     "widget " + id,
			IsActive: true,
		}))
	}
	return ledger.NewRecorder(s), s
}

func balance(t *testing.T, s ledger.Store, id ledger.ItemID) int64 {
	t.Helper()
	item, err := s.Item(context.Background(), id)
	require.NoError(t, err)
	return item.CachedBalance
}

// =============================================================================
// PURCHASE RECEIPT
// =============================================================================

func TestPurchaseAdapter_Receive(t *testing.T) {
	rec, s := newFixture(t)
	adapter := workflow.NewPurchaseAdapter(rec, s)
	ctx := context.Background()

	receipt := workflow.PurchaseReceipt{
		PurchaseID:        "po-1",
		SupplierReference: "ACME-2031",
		Lines: []workflow.PurchaseLine{
			{LineID: "po-1-l1", ItemID: "item-1", Quantity: 50},
			{LineID: "po-1-l2", ItemID: "item-2", Quantity: 7},
		},
	}

	movements, err := adapter.Receive(ctx, receipt, "buyer-1")
	require.NoError(t, err)
	require.Len(t, movements, 2)

	assert.Equal(t, ledger.ChangePurchase, movements[0].Type)
	assert.Equal(t, workflow.SourcePurchaseLine, movements[0].SourceType)
	assert.Equal(t, "po-1-l1", movements[0].SourceID)
	assert.Contains(t, movements[0].Notes, "ACME-2031")

	assert.Equal(t, int64(50), balance(t, s, "item-1"))
	assert.Equal(t, int64(7), balance(t, s, "item-2"))
}

func TestPurchaseAdapter_ReplayedReceipt_NoDoubleCount(t *testing.T) {
	// The RECEIVED transition may be delivered twice; the second apply
	// must be a no-op.

	rec, s := newFixture(t)
	adapter := workflow.NewPurchaseAdapter(rec, s)
	ctx := context.Background()

	receipt := workflow.PurchaseReceipt{
		PurchaseID: "po-1",
		Lines:      []workflow.PurchaseLine{{LineID: "po-1-l1", ItemID: "item-1", Quantity: 50}},
	}

	_, err := adapter.Receive(ctx, receipt, "buyer-1")
	require.NoError(t, err)

	replayed, err := adapter.Receive(ctx, receipt, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, replayed, "replay must not record movements")
	assert.Equal(t, int64(50), balance(t, s, "item-1"))
}

func TestPurchaseAdapter_ConcurrentReplays_NoDoubleCount(t *testing.T) {
	// Simultaneous deliveries of the same RECEIVED transition all pass
	// the pre-insert lookup; the store's unique source index lets exactly
	// one movement commit.

	rec, s := newFixture(t)
	adapter := workflow.NewPurchaseAdapter(rec, s)
	ctx := context.Background()

	receipt := workflow.PurchaseReceipt{
		PurchaseID: "po-1",
		Lines:      []workflow.PurchaseLine{{LineID: "po-1-l1", ItemID: "item-1", Quantity: 10}},
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			movements, err := adapter.Receive(ctx, receipt, "buyer-1")
			if err != nil {
				return err
			}
			mu.Lock()
			applied += len(movements)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, applied, "exactly one delivery may record the line")
	assert.Equal(t, int64(10), balance(t, s, "item-1"))

	movements, err := s.Movements(ctx, ledger.MovementFilter{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestPurchaseAdapter_PartialReceipt_Resumes(t *testing.T) {
	// A receipt that failed halfway applies only the missing lines when
	// retried.

	rec, s := newFixture(t)
	adapter := workflow.NewPurchaseAdapter(rec, s)
	ctx := context.Background()

	// First line already applied by an earlier, interrupted delivery.
	first, err := adapter.Receive(ctx, workflow.PurchaseReceipt{
		PurchaseID: "po-1",
		Lines:      []workflow.PurchaseLine{{LineID: "po-1-l1", ItemID: "item-1", Quantity: 10}},
	}, "buyer-1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	retried, err := adapter.Receive(ctx, workflow.PurchaseReceipt{
		PurchaseID: "po-1",
		Lines: []workflow.PurchaseLine{
			{LineID: "po-1-l1", ItemID: "item-1", Quantity: 10},
			{LineID: "po-1-l2", ItemID: "item-2", Quantity: 5},
		},
	}, "buyer-1")
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, "po-1-l2", retried[0].SourceID)

	assert.Equal(t, int64(10), balance(t, s, "item-1"))
	assert.Equal(t, int64(5), balance(t, s, "item-2"))
}

func TestPurchaseAdapter_InvalidLine_Rejected(t *testing.T) {
	rec, s := newFixture(t)
	adapter := workflow.NewPurchaseAdapter(rec, s)

	_, err := adapter.Receive(context.Background(), workflow.PurchaseReceipt{
		PurchaseID: "po-1",
		Lines:      []workflow.PurchaseLine{{LineID: "po-1-l1", ItemID: "item-1", Quantity: 0}},
	}, "buyer-1")

	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.Equal(t, int64(0), balance(t, s, "item-1"))
}

// =============================================================================
// RETURNS
// =============================================================================

func TestReturnAdapter_RestocksByDefault(t *testing.T) {
	rec, s := newFixture(t)
	adapter := workflow.NewReturnAdapter(rec)

	m, err := adapter.Create(context.Background(), workflow.ReturnEvent{
		ReturnID: "ret-1",
		ItemID:   "item-1",
		Quantity: 3,
		Reason:   "wrong size",
	}, "clerk-1")

	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, ledger.ChangeReturn, m.Type)
	assert.Equal(t, int64(3), m.QuantityChange)
	assert.Equal(t, int64(3), balance(t, s, "item-1"))
}

func TestReturnAdapter_NonRestockingReason_NoMovement(t *testing.T) {
	rec, s := newFixture(t)
	adapter := workflow.NewReturnAdapter(rec, workflow.WithNonRestockingReasons("damaged"))

	m, err := adapter.Create(context.Background(), workflow.ReturnEvent{
		ReturnID: "ret-1",
		ItemID:   "item-1",
		Quantity: 3,
		Reason:   "Damaged",
	}, "clerk-1")

	require.NoError(t, err)
	assert.Nil(t, m, "damaged goods must not restock")
	assert.Equal(t, int64(0), balance(t, s, "item-1"))
}

func TestReturnAdapter_ReplayedEvent_NoDoubleRestock(t *testing.T) {
	rec, s := newFixture(t)
	adapter := workflow.NewReturnAdapter(rec)
	ev := workflow.ReturnEvent{
		ReturnID: "ret-1",
		ItemID:   "item-1",
		Quantity: 3,
		Reason:   "wrong size",
	}

	first, err := adapter.Create(context.Background(), ev, "clerk-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	replayed, err := adapter.Create(context.Background(), ev, "clerk-1")
	require.NoError(t, err)
	assert.Nil(t, replayed, "replay must not restock again")
	assert.Equal(t, int64(3), balance(t, s, "item-1"))
}

// =============================================================================
// SALES
// =============================================================================

func TestSaleAdapter_DeductsStock(t *testing.T) {
	rec, s := newFixture(t)
	ctx := context.Background()

	_, err := rec.Record(ctx, ledger.MovementRequest{
		ItemID: "item-1", Type: ledger.ChangePurchase, QuantityChange: 20, ActorID: "seed",
	})
	require.NoError(t, err)

	adapter := workflow.NewSaleAdapter(rec)
	m, err := adapter.Sell(ctx, workflow.SaleEvent{
		SaleLineID: "sale-1-l1", ItemID: "item-1", Quantity: 12,
	}, "pos-1")

	require.NoError(t, err)
	assert.Equal(t, int64(-12), m.QuantityChange)
	assert.Equal(t, ledger.ChangeSale, m.Type)
	assert.Equal(t, int64(8), balance(t, s, "item-1"))
}

func TestSaleAdapter_Oversell_Rejected(t *testing.T) {
	rec, s := newFixture(t)
	adapter := workflow.NewSaleAdapter(rec)

	_, err := adapter.Sell(context.Background(), workflow.SaleEvent{
		SaleLineID: "sale-1-l1", ItemID: "item-1", Quantity: 1,
	}, "pos-1")

	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	assert.Equal(t, int64(0), balance(t, s, "item-1"))
}
