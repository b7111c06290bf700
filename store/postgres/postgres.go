/*
Package postgres provides the PostgreSQL-backed ledger.Store.

Per-item serialization uses row-level locks: ItemForUpdate runs
SELECT ... FOR UPDATE, so two recorders for the same item queue on the
row while different items proceed in parallel. Serialization failures,
deadlocks, and lock timeouts surface as ledger.ConcurrencyError.

Same contracts as store/sqlite; only the locking mechanism differs.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/stock-engine/ledger"
)

// Store implements ledger.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and migrates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stocked_items (
		id TEXT PRIMARY KEY,
		sku TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		cached_balance BIGINT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		selling_price NUMERIC(12,2) NOT NULL DEFAULT 0,
		purchase_price NUMERIC(12,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stock_movements (
		sequence BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		item_id TEXT NOT NULL REFERENCES stocked_items(id),
		change_type TEXT NOT NULL,
		quantity_change BIGINT NOT NULL CHECK (quantity_change <> 0),
		running_balance BIGINT NOT NULL,
		source_type TEXT,
		source_id TEXT,
		actor_id TEXT NOT NULL,
		notes TEXT,
		recorded_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_item_sequence
		ON stock_movements(item_id, sequence DESC);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_movements_source
		ON stock_movements(source_type, source_id)
		WHERE source_type IS NOT NULL;

	CREATE TABLE IF NOT EXISTS inventory_counts (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES stocked_items(id),
		counted_quantity BIGINT NOT NULL,
		system_balance BIGINT NOT NULL,
		difference BIGINT NOT NULL,
		adjustment_movement_id TEXT REFERENCES stock_movements(id),
		operator_id TEXT NOT NULL,
		notes TEXT,
		counted_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_counts_item_date
		ON inventory_counts(item_id, counted_at DESC);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// mapErr translates pg failures into the engine's taxonomy.
func mapErr(itemID ledger.ItemID, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization failure, deadlock, lock not available
			return &ledger.ConcurrencyError{ItemID: itemID, Cause: err}
		}
	}
	return err
}

// isDuplicateSource reports whether err is a unique violation on the
// (source_type, source_id) index.
func isDuplicateSource(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == "idx_movements_source"
}

// =============================================================================
// TRANSACTION SCOPE
// =============================================================================

func (s *Store) WithItemTx(ctx context.Context, id ledger.ItemID, fn func(ledger.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapErr(id, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx, itemID: id}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(id, fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

type pgTx struct {
	tx     pgx.Tx
	itemID ledger.ItemID
}

// ItemForUpdate takes the row lock that serializes this item's writers.
func (t *pgTx) ItemForUpdate(ctx context.Context, id ledger.ItemID) (ledger.StockedItem, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, sku, name, cached_balance, is_active, selling_price, purchase_price, created_at
		FROM stocked_items WHERE id = $1
		FOR UPDATE`, string(id))

	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.StockedItem{}, &ledger.NotFoundError{ItemID: id}
	}
	if err != nil {
		return ledger.StockedItem{}, mapErr(id, fmt.Errorf("select item for update: %w", err))
	}
	return item, nil
}

func (t *pgTx) InsertMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_movements
			(id, item_id, change_type, quantity_change, running_balance,
			 source_type, source_id, actor_id, notes, recorded_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, NULLIF($9, ''), $10)
		RETURNING sequence`,
		string(m.ID), string(m.ItemID), string(m.Type), m.QuantityChange, m.RunningBalance,
		m.SourceType, m.SourceID, m.ActorID, m.Notes, m.RecordedAt,
	).Scan(&m.Sequence)
	if err != nil {
		if isDuplicateSource(err) {
			return ledger.Movement{}, &ledger.DuplicateSourceError{
				SourceType: m.SourceType,
				SourceID:   m.SourceID,
			}
		}
		return ledger.Movement{}, mapErr(t.itemID, fmt.Errorf("insert movement: %w", err))
	}
	return m, nil
}

func (t *pgTx) UpdateCachedBalance(ctx context.Context, id ledger.ItemID, balance int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE stocked_items SET cached_balance = $1 WHERE id = $2`, balance, string(id))
	if err != nil {
		return mapErr(id, fmt.Errorf("update cached balance: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return &ledger.NotFoundError{ItemID: id}
	}
	return nil
}

func (t *pgTx) InsertCount(ctx context.Context, c ledger.InventoryCount) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory_counts
			(id, item_id, counted_quantity, system_balance, difference,
			 adjustment_movement_id, operator_id, notes, counted_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9)`,
		string(c.ID), string(c.ItemID), c.CountedQuantity, c.SystemBalance, c.Difference,
		string(c.AdjustmentID), c.OperatorID, c.Notes, c.CountedAt,
	)
	if err != nil {
		return mapErr(c.ItemID, fmt.Errorf("insert count: %w", err))
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) Item(ctx context.Context, id ledger.ItemID) (ledger.StockedItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, sku, name, cached_balance, is_active, selling_price, purchase_price, created_at
		FROM stocked_items WHERE id = $1`, string(id))
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.StockedItem{}, &ledger.NotFoundError{ItemID: id}
	}
	if err != nil {
		return ledger.StockedItem{}, fmt.Errorf("select item: %w", err)
	}
	return item, nil
}

func (s *Store) PutItem(ctx context.Context, item ledger.StockedItem) error {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stocked_items
			(id, sku, name, cached_balance, is_active, selling_price, purchase_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku,
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			selling_price = EXCLUDED.selling_price,
			purchase_price = EXCLUDED.purchase_price`,
		string(item.ID), item.SKU, item.Name, item.CachedBalance, item.IsActive,
		item.SellingPrice, item.PurchasePrice, createdAt,
	)
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (s *Store) Items(ctx context.Context, page ledger.Page) ([]ledger.StockedItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sku, name, cached_balance, is_active, selling_price, purchase_price, created_at
		FROM stocked_items WHERE is_active
		ORDER BY sku
		LIMIT $1 OFFSET $2`, pageLimit(page), page.Offset)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *Store) LowStock(ctx context.Context, threshold int64) ([]ledger.StockedItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sku, name, cached_balance, is_active, selling_price, purchase_price, created_at
		FROM stocked_items
		WHERE is_active AND cached_balance <= $1
		ORDER BY sku`, threshold)
	if err != nil {
		return nil, fmt.Errorf("select low stock: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *Store) Movements(ctx context.Context, f ledger.MovementFilter) ([]ledger.Movement, error) {
	query := `
		SELECT sequence, id, item_id, change_type, quantity_change, running_balance,
		       COALESCE(source_type, ''), COALESCE(source_id, ''), actor_id,
		       COALESCE(notes, ''), recorded_at
		FROM stock_movements`
	args := []any{}
	if f.ItemID != "" {
		query += ` WHERE item_id = $3`
		args = append(args, string(f.ItemID))
	}
	query += ` ORDER BY sequence DESC LIMIT $1 OFFSET $2`
	args = append([]any{pageLimit(f.Page), f.Page.Offset}, args...)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	defer rows.Close()

	var out []ledger.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) MovementBySource(ctx context.Context, sourceType, sourceID string) (ledger.Movement, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT sequence, id, item_id, change_type, quantity_change, running_balance,
		       COALESCE(source_type, ''), COALESCE(source_id, ''), actor_id,
		       COALESCE(notes, ''), recorded_at
		FROM stock_movements
		WHERE source_type = $1 AND source_id = $2
		LIMIT 1`, sourceType, sourceID)
	m, err := scanMovement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Movement{}, false, nil
	}
	if err != nil {
		return ledger.Movement{}, false, fmt.Errorf("select movement by source: %w", err)
	}
	return m, true, nil
}

func (s *Store) Counts(ctx context.Context, f ledger.CountFilter) ([]ledger.InventoryCount, error) {
	query := `
		SELECT id, item_id, counted_quantity, system_balance, difference,
		       COALESCE(adjustment_movement_id, ''), operator_id, COALESCE(notes, ''), counted_at
		FROM inventory_counts`
	args := []any{}
	if f.ItemID != "" {
		query += ` WHERE item_id = $3`
		args = append(args, string(f.ItemID))
	}
	query += ` ORDER BY counted_at DESC, id DESC LIMIT $1 OFFSET $2`
	args = append([]any{pageLimit(f.Page), f.Page.Offset}, args...)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select counts: %w", err)
	}
	defer rows.Close()

	var out []ledger.InventoryCount
	for rows.Next() {
		var (
			c            ledger.InventoryCount
			id, itemID   string
			adjustmentID string
		)
		if err := rows.Scan(&id, &itemID, &c.CountedQuantity, &c.SystemBalance, &c.Difference,
			&adjustmentID, &c.OperatorID, &c.Notes, &c.CountedAt); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		c.ID = ledger.CountID(id)
		c.ItemID = ledger.ItemID(itemID)
		c.AdjustmentID = ledger.MovementID(adjustmentID)
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func scanItem(row pgx.Row) (ledger.StockedItem, error) {
	var (
		item ledger.StockedItem
		id   string
	)
	if err := row.Scan(&id, &item.SKU, &item.Name, &item.CachedBalance, &item.IsActive,
		&item.SellingPrice, &item.PurchasePrice, &item.CreatedAt); err != nil {
		return ledger.StockedItem{}, err
	}
	item.ID = ledger.ItemID(id)
	return item, nil
}

func scanMovement(row pgx.Row) (ledger.Movement, error) {
	var (
		m                  ledger.Movement
		id, itemID, change string
	)
	if err := row.Scan(&m.Sequence, &id, &itemID, &change, &m.QuantityChange, &m.RunningBalance,
		&m.SourceType, &m.SourceID, &m.ActorID, &m.Notes, &m.RecordedAt); err != nil {
		return ledger.Movement{}, err
	}
	m.ID = ledger.MovementID(id)
	m.ItemID = ledger.ItemID(itemID)
	m.Type = ledger.ChangeType(change)
	return m, nil
}

func collectItems(rows pgx.Rows) ([]ledger.StockedItem, error) {
	var out []ledger.StockedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func pageLimit(p ledger.Page) int {
	if p.Limit <= 0 {
		return ledger.DefaultPageLimit
	}
	return p.Limit
}
