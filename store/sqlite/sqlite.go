/*
Package sqlite provides the SQLite-backed ledger.Store.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE touches stock_movements or inventory_counts.
  The only mutable column in the whole schema is
  stocked_items.cached_balance.

CONCURRENCY:
  The database is opened with _txlock=immediate, so every WithItemTx
  acquires the write lock at BEGIN. Concurrent writers queue on the
  busy timeout; a writer that still cannot acquire the lock surfaces
  ledger.ConcurrencyError and the caller decides whether to retry.

WAL MODE:
  Readers don't block the single writer, so balance and history queries
  stay fast while movements are being recorded.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a versioned
  migration tool instead.

SEE ALSO:
  - ledger/store.go: interface contracts
  - store/postgres: the same patterns on row-level FOR UPDATE locks
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/stock-engine/ledger"
)

// Store implements ledger.Store on SQLite.
type Store struct {
	db *sql.DB
}

// New creates a SQLite store at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stocked_items (
		id TEXT PRIMARY KEY,
		sku TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		cached_balance INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		selling_price TEXT NOT NULL DEFAULT '0',
		purchase_price TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	-- Append-only ledger. sequence is the commit order per item.
	CREATE TABLE IF NOT EXISTS stock_movements (
		sequence INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		item_id TEXT NOT NULL REFERENCES stocked_items(id),
		change_type TEXT NOT NULL,
		quantity_change INTEGER NOT NULL CHECK (quantity_change != 0),
		running_balance INTEGER NOT NULL,
		source_type TEXT,
		source_id TEXT,
		actor_id TEXT NOT NULL,
		notes TEXT,
		recorded_at TEXT NOT NULL
	);

	-- History per item (hot path)
	CREATE INDEX IF NOT EXISTS idx_movements_item_sequence
		ON stock_movements(item_id, sequence DESC);

	-- Workflow replay detection. UNIQUE so two racing deliveries of the
	-- same event cannot both commit a movement.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_movements_source
		ON stock_movements(source_type, source_id)
		WHERE source_type IS NOT NULL;

	CREATE TABLE IF NOT EXISTS inventory_counts (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES stocked_items(id),
		counted_quantity INTEGER NOT NULL,
		system_balance INTEGER NOT NULL,
		difference INTEGER NOT NULL,
		adjustment_movement_id TEXT REFERENCES stock_movements(id),
		operator_id TEXT NOT NULL,
		notes TEXT,
		counted_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_counts_item_date
		ON inventory_counts(item_id, counted_at DESC);

	-- Low-stock scans
	CREATE INDEX IF NOT EXISTS idx_items_active_balance
		ON stocked_items(is_active, cached_balance);
	`
	_, err := s.db.Exec(schema)
	return err
}

// mapErr translates driver-level failures into the engine's taxonomy.
func mapErr(itemID ledger.ItemID, err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		if sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked {
			return &ledger.ConcurrencyError{ItemID: itemID, Cause: err}
		}
	}
	return err
}

// isDuplicateSource reports whether err is a unique violation on the
// (source_type, source_id) index.
func isDuplicateSource(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
		strings.Contains(sqlErr.Error(), "stock_movements.source_type")
}

// =============================================================================
// TRANSACTION SCOPE
// =============================================================================

// WithItemTx opens an immediate transaction. The write lock is held from
// BEGIN, so no concurrent recorder for any item can interleave.
func (s *Store) WithItemTx(ctx context.Context, id ledger.ItemID, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(id, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, itemID: id}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(id, fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

type sqlTx struct {
	tx     *sql.Tx
	itemID ledger.ItemID
}

func (t *sqlTx) ItemForUpdate(ctx context.Context, id ledger.ItemID) (ledger.StockedItem, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, sku, name, cached_balance, is_active, selling_price, purchase_price, created_at
		FROM stocked_items WHERE id = ?`, string(id))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.StockedItem{}, &ledger.NotFoundError{ItemID: id}
	}
	if err != nil {
		return ledger.StockedItem{}, mapErr(id, fmt.Errorf("select item: %w", err))
	}
	return item, nil
}

func (t *sqlTx) InsertMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_movements
			(id, item_id, change_type, quantity_change, running_balance,
			 source_type, source_id, actor_id, notes, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), string(m.ItemID), string(m.Type), m.QuantityChange, m.RunningBalance,
		nullable(m.SourceType), nullable(m.SourceID), m.ActorID, nullable(m.Notes),
		m.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isDuplicateSource(err) {
			return ledger.Movement{}, &ledger.DuplicateSourceError{
				SourceType: m.SourceType,
				SourceID:   m.SourceID,
			}
		}
		return ledger.Movement{}, mapErr(t.itemID, fmt.Errorf("insert movement: %w", err))
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return ledger.Movement{}, fmt.Errorf("movement sequence: %w", err)
	}
	m.Sequence = seq
	return m, nil
}

func (t *sqlTx) UpdateCachedBalance(ctx context.Context, id ledger.ItemID, balance int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE stocked_items SET cached_balance = ? WHERE id = ?`, balance, string(id))
	if err != nil {
		return mapErr(id, fmt.Errorf("update cached balance: %w", err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &ledger.NotFoundError{ItemID: id}
	}
	return nil
}

func (t *sqlTx) InsertCount(ctx context.Context, c ledger.InventoryCount) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_counts
			(id, item_id, counted_quantity, system_balance, difference,
			 adjustment_movement_id, operator_id, notes, counted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), string(c.ItemID), c.CountedQuantity, c.SystemBalance, c.Difference,
		nullable(string(c.AdjustmentID)), c.OperatorID, nullable(c.Notes),
		c.CountedAt.Format(time.RFC3339Nano),
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
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, cached_balance, is_active, selling_price, purchase_price, created_at
		FROM stocked_items WHERE id = ?`, string(id))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.StockedItem{}, &ledger.NotFoundError{ItemID: id}
	}
	if err != nil {
		return ledger.StockedItem{}, fmt.Errorf("select item: %w", err)
	}
	return item, nil
}

// PutItem upserts identity fields. cached_balance is untouched on update;
// only the recorder path mutates it.
func (s *Store) PutItem(ctx context.Context, item ledger.StockedItem) error {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stocked_items
			(id, sku, name, cached_balance, is_active, selling_price, purchase_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sku = excluded.sku,
			name = excluded.name,
			is_active = excluded.is_active,
			selling_price = excluded.selling_price,
			purchase_price = excluded.purchase_price`,
		string(item.ID), item.SKU, item.Name, item.CachedBalance, boolToInt(item.IsActive),
		item.SellingPrice.String(), item.PurchasePrice.String(),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (s *Store) Items(ctx context.Context, page ledger.Page) ([]ledger.StockedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, cached_balance, is_active, selling_price, purchase_price, created_at
		FROM stocked_items WHERE is_active = 1
		ORDER BY sku
		LIMIT ? OFFSET ?`, pageLimit(page), page.Offset)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *Store) LowStock(ctx context.Context, threshold int64) ([]ledger.StockedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, cached_balance, is_active, selling_price, purchase_price, created_at
		FROM stocked_items
		WHERE is_active = 1 AND cached_balance <= ?
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
		       source_type, source_id, actor_id, notes, recorded_at
		FROM stock_movements`
	args := []any{}
	if f.ItemID != "" {
		query += ` WHERE item_id = ?`
		args = append(args, string(f.ItemID))
	}
	query += ` ORDER BY sequence DESC LIMIT ? OFFSET ?`
	args = append(args, pageLimit(f.Page), f.Page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	row := s.db.QueryRowContext(ctx, `
		SELECT sequence, id, item_id, change_type, quantity_change, running_balance,
		       source_type, source_id, actor_id, notes, recorded_at
		FROM stock_movements
		WHERE source_type = ? AND source_id = ?
		LIMIT 1`, sourceType, sourceID)
	m, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
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
		       adjustment_movement_id, operator_id, notes, counted_at
		FROM inventory_counts`
	args := []any{}
	if f.ItemID != "" {
		query += ` WHERE item_id = ?`
		args = append(args, string(f.ItemID))
	}
	query += ` ORDER BY counted_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, pageLimit(f.Page), f.Page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select counts: %w", err)
	}
	defer rows.Close()

	var out []ledger.InventoryCount
	for rows.Next() {
		var (
			c            ledger.InventoryCount
			id, itemID   string
			adjustmentID sql.NullString
			notes        sql.NullString
			countedAt    string
		)
		if err := rows.Scan(&id, &itemID, &c.CountedQuantity, &c.SystemBalance, &c.Difference,
			&adjustmentID, &c.OperatorID, &notes, &countedAt); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		c.ID = ledger.CountID(id)
		c.ItemID = ledger.ItemID(itemID)
		c.AdjustmentID = ledger.MovementID(adjustmentID.String)
		c.Notes = notes.String
		c.CountedAt, err = time.Parse(time.RFC3339Nano, countedAt)
		if err != nil {
			return nil, fmt.Errorf("parse counted_at: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (ledger.StockedItem, error) {
	var (
		item                   ledger.StockedItem
		id                     string
		active                 int
		selling, buying, crtAt string
	)
	if err := row.Scan(&id, &item.SKU, &item.Name, &item.CachedBalance, &active,
		&selling, &buying, &crtAt); err != nil {
		return ledger.StockedItem{}, err
	}
	item.ID = ledger.ItemID(id)
	item.IsActive = active != 0

	var err error
	if item.SellingPrice, err = decimal.NewFromString(selling); err != nil {
		return ledger.StockedItem{}, fmt.Errorf("parse selling_price: %w", err)
	}
	if item.PurchasePrice, err = decimal.NewFromString(buying); err != nil {
		return ledger.StockedItem{}, fmt.Errorf("parse purchase_price: %w", err)
	}
	if item.CreatedAt, err = time.Parse(time.RFC3339Nano, crtAt); err != nil {
		return ledger.StockedItem{}, fmt.Errorf("parse created_at: %w", err)
	}
	return item, nil
}

func scanMovement(row rowScanner) (ledger.Movement, error) {
	var (
		m                  ledger.Movement
		id, itemID, change string
		srcType, srcID     sql.NullString
		notes              sql.NullString
		recordedAt         string
	)
	if err := row.Scan(&m.Sequence, &id, &itemID, &change, &m.QuantityChange, &m.RunningBalance,
		&srcType, &srcID, &m.ActorID, &notes, &recordedAt); err != nil {
		return ledger.Movement{}, err
	}
	m.ID = ledger.MovementID(id)
	m.ItemID = ledger.ItemID(itemID)
	m.Type = ledger.ChangeType(change)
	m.SourceType = srcType.String
	m.SourceID = srcID.String
	m.Notes = notes.String

	var err error
	if m.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
		return ledger.Movement{}, fmt.Errorf("parse recorded_at: %w", err)
	}
	return m, nil
}

func collectItems(rows *sql.Rows) ([]ledger.StockedItem, error) {
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

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
