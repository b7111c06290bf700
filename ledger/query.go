/*
query.go - Read-side balance and history queries

Read-only. Everything here is served from the cached balance and the
movement/count tables; nothing in this file writes.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// DefaultPageLimit bounds list queries when the caller doesn't.
const DefaultPageLimit = 100

// Queries exposes the read side of the engine.
type Queries struct {
	store Store
}

// NewQueries creates the read-side facade.
func NewQueries(store Store) *Queries {
	return &Queries{store: store}
}

// CurrentBalance returns the cached balance for an item.
func (q *Queries) CurrentBalance(ctx context.Context, id ItemID) (int64, error) {
	item, err := q.store.Item(ctx, id)
	if err != nil {
		return 0, err
	}
	return item.CachedBalance, nil
}

// History returns ledger movements ordered by sequence descending.
// Restartable via the filter's limit/offset.
func (q *Queries) History(ctx context.Context, f MovementFilter) ([]Movement, error) {
	f.Page = f.Page.orDefault()
	return q.store.Movements(ctx, f)
}

// LowStock returns active items whose balance is at or below threshold.
func (q *Queries) LowStock(ctx context.Context, threshold int64) ([]StockedItem, error) {
	return q.store.LowStock(ctx, threshold)
}

// Counts returns inventory count records, newest first.
func (q *Queries) Counts(ctx context.Context, f CountFilter) ([]InventoryCount, error) {
	f.Page = f.Page.orDefault()
	return q.store.Counts(ctx, f)
}

func (p Page) orDefault() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// =============================================================================
// STOCK SUMMARY
// =============================================================================

// StockSummary is one row of the valuation overview.
type StockSummary struct {
	ItemID        ItemID
	SKU           string
	Name          string
	CurrentStock  int64
	SellingPrice  decimal.Decimal
	PurchasePrice decimal.Decimal
	TotalValue    decimal.Decimal // CurrentStock * SellingPrice
	IsLowStock    bool
}

// Summary returns a valuation row per active item. Items at or below
// lowStockThreshold are flagged.
func (q *Queries) Summary(ctx context.Context, page Page, lowStockThreshold int64) ([]StockSummary, error) {
	items, err := q.store.Items(ctx, page.orDefault())
	if err != nil {
		return nil, err
	}

	rows := make([]StockSummary, len(items))
	for i, item := range items {
		rows[i] = StockSummary{
			ItemID:        item.ID,
			SKU:           item.SKU,
			Name:          item.Name,
			CurrentStock:  item.CachedBalance,
			SellingPrice:  item.SellingPrice,
			PurchasePrice: item.PurchasePrice,
			TotalValue:    decimal.NewFromInt(item.CachedBalance).Mul(item.SellingPrice),
			IsLowStock:    item.CachedBalance <= lowStockThreshold,
		}
	}
	return rows, nil
}
