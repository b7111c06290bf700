package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-engine/ledger"
)

func newTestReconciler(t *testing.T) (*ledger.Reconciler, *ledger.Recorder, ledger.Store) {
	t.Helper()
	s := newTestStore(t, testItem("item-1", "SKU-1"))
	rec := ledger.NewRecorder(s)
	return ledger.NewReconciler(s, rec), rec, s
}

func TestReconciler_ClosesGap(t *testing.T) {
	// GIVEN: +50 purchase, -12 sale (balance 38)
	// WHEN:  a physical count finds 35
	// THEN:  difference -3, a compensating movement of -3, balance 35

	rc, rec, s := newTestReconciler(t)
	ctx := context.Background()

	_, err := rec.Record(ctx, purchase("item-1", 50))
	require.NoError(t, err)
	_, err = rec.Record(ctx, sale("item-1", 12))
	require.NoError(t, err)

	count, err := rc.Reconcile(ctx, ledger.CountRequest{
		ItemID:          "item-1",
		CountedQuantity: 35,
		OperatorID:      "op-1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(38), count.SystemBalance)
	assert.Equal(t, int64(-3), count.Difference)
	assert.NotEmpty(t, count.AdjustmentID)

	item, err := s.Item(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, int64(35), item.CachedBalance)

	// The compensating movement is linked and classified correctly.
	history, err := s.Movements(ctx, ledger.MovementFilter{ItemID: "item-1"})
	require.NoError(t, err)
	require.Len(t, history, 3)
	adj := history[0]
	assert.Equal(t, count.AdjustmentID, adj.ID)
	assert.Equal(t, ledger.ChangeCountReconciliation, adj.Type)
	assert.Equal(t, int64(-3), adj.QuantityChange)
	assert.Equal(t, ledger.SourceInventoryCount, adj.SourceType)
	assert.Equal(t, string(count.ID), adj.SourceID)
}

func TestReconciler_NoDifference_NoMovement(t *testing.T) {
	rc, rec, s := newTestReconciler(t)
	ctx := context.Background()

	_, err := rec.Record(ctx, purchase("item-1", 20))
	require.NoError(t, err)

	count, err := rc.Reconcile(ctx, ledger.CountRequest{
		ItemID:          "item-1",
		CountedQuantity: 20,
		OperatorID:      "op-1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), count.Difference)
	assert.Empty(t, count.AdjustmentID)

	history, err := s.Movements(ctx, ledger.MovementFilter{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Len(t, history, 1, "no adjustment movement for a zero difference")
}

func TestReconciler_Convergence(t *testing.T) {
	// After a successful reconcile, cachedBalance == countedQuantity,
	// whatever the prior movement history was.

	rc, rec, s := newTestReconciler(t)
	ctx := context.Background()

	_, err := rec.Record(ctx, purchase("item-1", 17))
	require.NoError(t, err)
	_, err = rec.Record(ctx, sale("item-1", 4))
	require.NoError(t, err)

	for _, counted := range []int64{40, 0, 3} {
		count, err := rc.Reconcile(ctx, ledger.CountRequest{
			ItemID:          "item-1",
			CountedQuantity: counted,
			OperatorID:      "op-1",
		})
		require.NoError(t, err)
		assert.Equal(t, counted-count.SystemBalance, count.Difference)

		item, err := s.Item(ctx, "item-1")
		require.NoError(t, err)
		assert.Equal(t, counted, item.CachedBalance)
		assert.Equal(t, sumOfMovements(t, s, "item-1"), item.CachedBalance)
	}
}

func TestReconciler_TwiceInQuickSuccession(t *testing.T) {
	// A second count matching the (now corrected) balance records a
	// zero-difference count with no movement.

	rc, rec, s := newTestReconciler(t)
	ctx := context.Background()

	_, err := rec.Record(ctx, purchase("item-1", 10))
	require.NoError(t, err)

	first, err := rc.Reconcile(ctx, ledger.CountRequest{
		ItemID: "item-1", CountedQuantity: 8, OperatorID: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-2), first.Difference)

	second, err := rc.Reconcile(ctx, ledger.CountRequest{
		ItemID: "item-1", CountedQuantity: 8, OperatorID: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Difference)
	assert.Empty(t, second.AdjustmentID)

	counts, err := s.Counts(ctx, ledger.CountFilter{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Len(t, counts, 2)
}

func TestReconciler_NegativeCount_Rejected(t *testing.T) {
	rc, _, s := newTestReconciler(t)
	ctx := context.Background()

	_, err := rc.Reconcile(ctx, ledger.CountRequest{
		ItemID: "item-1", CountedQuantity: -1, OperatorID: "op-1",
	})

	assert.ErrorIs(t, err, ledger.ErrValidation)

	counts, err := s.Counts(ctx, ledger.CountFilter{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestReconciler_UnknownItem_NotFound(t *testing.T) {
	rc, _, _ := newTestReconciler(t)

	_, err := rc.Reconcile(context.Background(), ledger.CountRequest{
		ItemID: "ghost", CountedQuantity: 5, OperatorID: "op-1",
	})

	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
