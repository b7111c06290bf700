package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-engine/ledger"
	"github.com/warp/stock-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func putItem(t *testing.T, s *sqlite.Store, id, sku string) {
	t.Helper()
	require.NoError(t, s.PutItem(context.Background(), ledger.StockedItem{
		ID:           ledger.ItemID(id),
		SKU:          sku,
		Name:         "widget " + sku,
		IsActive:     true,
		SellingPrice: decimal.RequireFromString("9.99"),
	}))
}

func movement(itemID string, qty, running int64) ledger.Movement {
	return ledger.Movement{
		ID:             ledger.MovementID(uuid.NewString()),
		ItemID:         ledger.ItemID(itemID),
		Type:           ledger.ChangePurchase,
		QuantityChange: qty,
		RunningBalance: running,
		ActorID:        "tester",
		RecordedAt:     time.Now().UTC(),
	}
}

// =============================================================================
// ITEMS
// =============================================================================

func TestStore_PutItem_Roundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putItem(t, s, "item-1", "SKU-1")

	item, err := s.Item(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", item.SKU)
	assert.True(t, item.IsActive)
	assert.True(t, item.SellingPrice.Equal(decimal.RequireFromString("9.99")))
	assert.False(t, item.CreatedAt.IsZero())
}

func TestStore_PutItem_UpdateKeepsBalance(t *testing.T) {
	// Re-upserting identity fields must not reset the cached balance:
	// only the recorder path owns that column.

	s := newTestStore(t)
	ctx := context.Background()
	putItem(t, s, "item-1", "SKU-1")

	err := s.WithItemTx(ctx, "item-1", func(tx ledger.Tx) error {
		if _, err := tx.InsertMovement(ctx, movement("item-1", 5, 5)); err != nil {
			return err
		}
		return tx.UpdateCachedBalance(ctx, "item-1", 5)
	})
	require.NoError(t, err)

	require.NoError(t, s.PutItem(ctx, ledger.StockedItem{
		ID: "item-1", SKU: "SKU-1", Name: "renamed widget", IsActive: true,
		SellingPrice: decimal.NewFromInt(12),
	}))

	item, err := s.Item(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed widget", item.Name)
	assert.Equal(t, int64(5), item.CachedBalance)
}

func TestStore_Item_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Item(context.Background(), "ghost")

	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// TRANSACTION SCOPE
// =============================================================================

func TestStore_WithItemTx_RollsBackOnError(t *testing.T) {
	// Either both the movement and the balance land, or neither does.

	s := newTestStore(t)
	ctx := context.Background()
	putItem(t, s, "item-1", "SKU-1")

	boom := errors.New("boom")
	err := s.WithItemTx(ctx, "item-1", func(tx ledger.Tx) error {
		if _, err := tx.InsertMovement(ctx, movement("item-1", 5, 5)); err != nil {
			return err
		}
		if err := tx.UpdateCachedBalance(ctx, "item-1", 5); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	item, err := s.Item(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), item.CachedBalance)

	movements, err := s.Movements(ctx, ledger.MovementFilter{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Empty(t, movements, "rolled-back movement must not be visible")
}

func TestStore_InsertMovement_AssignsIncreasingSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putItem(t, s, "item-1", "SKU-1")

	var sequences []int64
	for i := int64(1); i <= 3; i++ {
		err := s.WithItemTx(ctx, "item-1", func(tx ledger.Tx) error {
			m, err := tx.InsertMovement(ctx, movement("item-1", i, i))
			if err != nil {
				return err
			}
			sequences = append(sequences, m.Sequence)
			return tx.UpdateCachedBalance(ctx, "item-1", i)
		})
		require.NoError(t, err)
	}

	require.Len(t, sequences, 3)
	assert.Less(t, sequences[0], sequences[1])
	assert.Less(t, sequences[1], sequences[2])
}

func TestStore_ItemForUpdate_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.WithItemTx(context.Background(), "ghost", func(tx ledger.Tx) error {
		_, err := tx.ItemForUpdate(context.Background(), "ghost")
		return err
	})

	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestStore_MovementBySource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putItem(t, s, "item-1", "SKU-1")

	m := movement("item-1", 5, 5)
	m.SourceType = "PurchaseLine"
	m.SourceID = "po-1-l1"
	err := s.WithItemTx(ctx, "item-1", func(tx ledger.Tx) error {
		if _, err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}
		return tx.UpdateCachedBalance(ctx, "item-1", 5)
	})
	require.NoError(t, err)

	found, ok, err := s.MovementBySource(ctx, "PurchaseLine", "po-1-l1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m.ID, found.ID)

	_, ok, err = s.MovementBySource(ctx, "PurchaseLine", "po-1-l2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_InsertMovement_DuplicateSource(t *testing.T) {
	// The unique source index rejects a second movement for the same
	// workflow event, whatever the caller saw before writing.

	s := newTestStore(t)
	ctx := context.Background()
	putItem(t, s, "item-1", "SKU-1")

	record := func(running int64) error {
		m := movement("item-1", 5, running)
		m.SourceType = "PurchaseLine"
		m.SourceID = "po-1-l1"
		return s.WithItemTx(ctx, "item-1", func(tx ledger.Tx) error {
			if _, err := tx.InsertMovement(ctx, m); err != nil {
				return err
			}
			return tx.UpdateCachedBalance(ctx, "item-1", running)
		})
	}

	require.NoError(t, record(5))

	err := record(10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrDuplicateSource)

	item, err := s.Item(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), item.CachedBalance, "the losing write must roll back whole")

	movements, err := s.Movements(ctx, ledger.MovementFilter{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestStore_EndToEndThroughEngine(t *testing.T) {
	// The whole engine over SQLite: purchase, sale, reconcile.

	s := newTestStore(t)
	ctx := context.Background()
	putItem(t, s, "item-1", "SKU-1")

	rec := ledger.NewRecorder(s)
	rc := ledger.NewReconciler(s, rec)

	_, err := rec.Record(ctx, ledger.MovementRequest{
		ItemID: "item-1", Type: ledger.ChangePurchase, QuantityChange: 50, ActorID: "tester",
	})
	require.NoError(t, err)
	_, err = rec.Record(ctx, ledger.MovementRequest{
		ItemID: "item-1", Type: ledger.ChangeSale, QuantityChange: -12, ActorID: "tester",
	})
	require.NoError(t, err)

	count, err := rc.Reconcile(ctx, ledger.CountRequest{
		ItemID: "item-1", CountedQuantity: 35, OperatorID: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-3), count.Difference)

	item, err := s.Item(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, int64(35), item.CachedBalance)

	movements, err := s.Movements(ctx, ledger.MovementFilter{ItemID: "item-1"})
	require.NoError(t, err)
	require.Len(t, movements, 3)
	assert.Equal(t, int64(35), movements[0].RunningBalance)

	counts, err := s.Counts(ctx, ledger.CountFilter{ItemID: "item-1"})
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, count.AdjustmentID, counts[0].AdjustmentID)
}

func TestStore_LowStock_ExcludesInactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putItem(t, s, "item-1", "SKU-1")

	require.NoError(t, s.PutItem(ctx, ledger.StockedItem{
		ID: "item-2", SKU: "SKU-2", Name: "retired widget", IsActive: false,
	}))

	items, err := s.LowStock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ledger.ItemID("item-1"), items[0].ID)
}
