// Package store provides an in-memory ledger.Store (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/stock-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation
// =============================================================================

// Memory keeps items, movements, and counts in process memory.
//
// Per-item serialization uses one mutex per item, held for the whole
// WithItemTx scope. Writes are staged inside the transaction and applied
// on commit, so a failed fn leaves no trace.
type Memory struct {
	mu        sync.Mutex
	items     map[ledger.ItemID]ledger.StockedItem
	movements []ledger.Movement
	counts    []ledger.InventoryCount
	locks     map[ledger.ItemID]*sync.Mutex
	seq       int64
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[ledger.ItemID]ledger.StockedItem),
		locks: make(map[ledger.ItemID]*sync.Mutex),
	}
}

func (m *Memory) itemLock(id ledger.ItemID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// WithItemTx serializes all balance mutation for one item.
func (m *Memory) WithItemTx(ctx context.Context, id ledger.ItemID, fn func(ledger.Tx) error) error {
	lock := m.itemLock(id)
	lock.Lock()
	defer lock.Unlock()

	tx := &memTx{store: m, balances: make(map[ledger.ItemID]int64)}
	if err := fn(tx); err != nil {
		return err
	}

	// Commit staged writes.
	m.mu.Lock()
	defer m.mu.Unlock()
	for itemID, balance := range tx.balances {
		item := m.items[itemID]
		item.CachedBalance = balance
		m.items[itemID] = item
	}
	m.movements = append(m.movements, tx.movements...)
	m.counts = append(m.counts, tx.counts...)
	return nil
}

type memTx struct {
	store     *Memory
	balances  map[ledger.ItemID]int64
	movements []ledger.Movement
	counts    []ledger.InventoryCount
}

func (t *memTx) ItemForUpdate(_ context.Context, id ledger.ItemID) (ledger.StockedItem, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	item, ok := t.store.items[id]
	if !ok {
		return ledger.StockedItem{}, &ledger.NotFoundError{ItemID: id}
	}
	if balance, staged := t.balances[id]; staged {
		item.CachedBalance = balance
	}
	return item, nil
}

func (t *memTx) InsertMovement(_ context.Context, m ledger.Movement) (ledger.Movement, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	// Same uniqueness the SQL stores enforce with idx_movements_source.
	if m.SourceType != "" {
		for _, prev := range t.store.movements {
			if prev.SourceType == m.SourceType && prev.SourceID == m.SourceID {
				return ledger.Movement{}, &ledger.DuplicateSourceError{
					SourceType: m.SourceType,
					SourceID:   m.SourceID,
				}
			}
		}
		for _, prev := range t.movements {
			if prev.SourceType == m.SourceType && prev.SourceID == m.SourceID {
				return ledger.Movement{}, &ledger.DuplicateSourceError{
					SourceType: m.SourceType,
					SourceID:   m.SourceID,
				}
			}
		}
	}

	t.store.seq++
	m.Sequence = t.store.seq
	t.movements = append(t.movements, m)
	return m, nil
}

func (t *memTx) UpdateCachedBalance(_ context.Context, id ledger.ItemID, balance int64) error {
	t.balances[id] = balance
	return nil
}

func (t *memTx) InsertCount(_ context.Context, c ledger.InventoryCount) error {
	t.counts = append(t.counts, c)
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) Item(_ context.Context, id ledger.ItemID) (ledger.StockedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return ledger.StockedItem{}, &ledger.NotFoundError{ItemID: id}
	}
	return item, nil
}

func (m *Memory) PutItem(_ context.Context, item ledger.StockedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Identity fields only: an existing item keeps its cached balance.
	if existing, ok := m.items[item.ID]; ok {
		item.CachedBalance = existing.CachedBalance
	}
	m.items[item.ID] = item
	return nil
}

func (m *Memory) Items(_ context.Context, page ledger.Page) ([]ledger.StockedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []ledger.StockedItem
	for _, item := range m.items {
		if item.IsActive {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	return paginate(items, page), nil
}

func (m *Memory) LowStock(_ context.Context, threshold int64) ([]ledger.StockedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []ledger.StockedItem
	for _, item := range m.items {
		if item.IsActive && item.CachedBalance <= threshold {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	return items, nil
}

func (m *Memory) Movements(_ context.Context, f ledger.MovementFilter) ([]ledger.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ledger.Movement
	for _, mv := range m.movements {
		if f.ItemID != "" && mv.ItemID != f.ItemID {
			continue
		}
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	return paginate(out, f.Page), nil
}

func (m *Memory) MovementBySource(_ context.Context, sourceType, sourceID string) (ledger.Movement, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mv := range m.movements {
		if mv.SourceType == sourceType && mv.SourceID == sourceID {
			return mv, true, nil
		}
	}
	return ledger.Movement{}, false, nil
}

func (m *Memory) Counts(_ context.Context, f ledger.CountFilter) ([]ledger.InventoryCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ledger.InventoryCount
	// Newest first: counts are appended in commit order.
	for i := len(m.counts) - 1; i >= 0; i-- {
		c := m.counts[i]
		if f.ItemID != "" && c.ItemID != f.ItemID {
			continue
		}
		out = append(out, c)
	}
	return paginate(out, f.Page), nil
}

func paginate[T any](in []T, page ledger.Page) []T {
	if page.Offset > 0 {
		if page.Offset >= len(in) {
			return nil
		}
		in = in[page.Offset:]
	}
	limit := page.Limit
	if limit <= 0 {
		// Same default cap the SQL stores apply.
		limit = ledger.DefaultPageLimit
	}
	if limit < len(in) {
		in = in[:limit]
	}
	return in
}
