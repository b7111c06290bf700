/*
recorder.go - Movement Recorder: the only write path into the ledger

PURPOSE:
  Records one signed quantity movement and updates the cached balance in a
  single atomic unit. Either both the ledger row and the cache update land,
  or neither does.

ALGORITHM (inside one item transaction):
  1. read the item's cached balance with a write-intent lock
  2. newBalance = cachedBalance + quantityChange
  3. insert the movement with RunningBalance = newBalance
  4. update CachedBalance = newBalance
  5. commit both together

FAILURE MODES:
  - NotFoundError:          unknown item (no write)
  - ValidationError:        zero quantity, bad change type (no write)
  - InsufficientStockError: newBalance < 0 under a no-oversell policy
  - ConcurrencyError:       commit conflict; caller may retry. The recorder
    never retries on its own - a silent retry could double-apply a movement
    from an idempotent-looking caller.
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MOVEMENT REQUEST
// =============================================================================

// MovementRequest describes one movement to record.
type MovementRequest struct {
	ItemID         ItemID
	Type           ChangeType
	QuantityChange int64 // signed, must be nonzero

	// Optional causal source reference.
	SourceType string
	SourceID   string

	ActorID string
	Notes   string
}

func (r MovementRequest) validate() error {
	if r.ItemID == "" {
		return &ValidationError{Field: "item_id", Reason: "must not be empty"}
	}
	if !r.Type.Valid() {
		return &ValidationError{Field: "change_type", Reason: "unknown change type"}
	}
	if r.QuantityChange == 0 {
		return &ValidationError{Field: "quantity_change", Reason: "must be nonzero"}
	}
	if r.ActorID == "" {
		return &ValidationError{Field: "actor_id", Reason: "must not be empty"}
	}
	return nil
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder is the sole writer of movements and cached balances.
type Recorder struct {
	store Store

	// allowNegative permits the cached balance to go below zero.
	// When false, any movement that would drive the balance negative is
	// rejected with InsufficientStockError.
	allowNegative bool

	now   func() time.Time
	newID func() string
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// AllowNegativeBalance permits overselling: movements may drive the cached
// balance below zero.
func AllowNegativeBalance() RecorderOption {
	return func(r *Recorder) { r.allowNegative = true }
}

// WithClock overrides the recorder's time source.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder over the given store.
// The default policy rejects negative balances.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates the request and applies it in its own item transaction.
func (r *Recorder) Record(ctx context.Context, req MovementRequest) (Movement, error) {
	if err := req.validate(); err != nil {
		return Movement{}, err
	}

	var out Movement
	err := r.store.WithItemTx(ctx, req.ItemID, func(tx Tx) error {
		m, err := r.apply(ctx, tx, req)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	return out, nil
}

// apply runs steps 1-4 inside an already-open item transaction.
// The Reconciler uses this to commit a count record and its compensating
// movement together.
func (r *Recorder) apply(ctx context.Context, tx Tx, req MovementRequest) (Movement, error) {
	item, err := tx.ItemForUpdate(ctx, req.ItemID)
	if err != nil {
		return Movement{}, err
	}

	newBalance := item.CachedBalance + req.QuantityChange
	if newBalance < 0 && !r.allowNegative {
		return Movement{}, &InsufficientStockError{
			ItemID:    item.ID,
			Available: item.CachedBalance,
			Requested: -req.QuantityChange,
		}
	}

	m := Movement{
		ID:             MovementID(r.newID()),
		ItemID:         item.ID,
		Type:           req.Type,
		QuantityChange: req.QuantityChange,
		RunningBalance: newBalance,
		SourceType:     req.SourceType,
		SourceID:       req.SourceID,
		ActorID:        req.ActorID,
		Notes:          req.Notes,
		RecordedAt:     r.now().UTC(),
	}

	m, err = tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	if err := tx.UpdateCachedBalance(ctx, item.ID, newBalance); err != nil {
		return Movement{}, err
	}
	return m, nil
}
