/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO:     response types returned to clients
  - *Request: request body types from clients

Validation happens in handlers and the domain layer; DTOs are pure data
carriers.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/stock-engine/ledger"
)

// =============================================================================
// MOVEMENTS
// =============================================================================

// RecordMovementRequest records a manual movement (adjustments, mostly).
type RecordMovementRequest struct {
	ItemID         string `json:"item_id"`
	ChangeType     string `json:"change_type"`
	QuantityChange int64  `json:"quantity_change"`
	SourceType     string `json:"source_type,omitempty"`
	SourceID       string `json:"source_id,omitempty"`
	ActorID        string `json:"actor_id"`
	Notes          string `json:"notes,omitempty"`
}

// MovementDTO is one ledger entry.
type MovementDTO struct {
	ID             string    `json:"id"`
	Sequence       int64     `json:"sequence"`
	ItemID         string    `json:"item_id"`
	ChangeType     string    `json:"change_type"`
	QuantityChange int64     `json:"quantity_change"`
	RunningBalance int64     `json:"running_balance"`
	SourceType     string    `json:"source_type,omitempty"`
	SourceID       string    `json:"source_id,omitempty"`
	ActorID        string    `json:"actor_id"`
	Notes          string    `json:"notes,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

func toMovementDTO(m ledger.Movement) MovementDTO {
	return MovementDTO{
		ID:             string(m.ID),
		Sequence:       m.Sequence,
		ItemID:         string(m.ItemID),
		ChangeType:     string(m.Type),
		QuantityChange: m.QuantityChange,
		RunningBalance: m.RunningBalance,
		SourceType:     m.SourceType,
		SourceID:       m.SourceID,
		ActorID:        m.ActorID,
		Notes:          m.Notes,
		RecordedAt:     m.RecordedAt,
	}
}

func toMovementDTOs(ms []ledger.Movement) []MovementDTO {
	out := make([]MovementDTO, len(ms))
	for i, m := range ms {
		out[i] = toMovementDTO(m)
	}
	return out
}

// =============================================================================
// COUNTS
// =============================================================================

// ReconcileRequest submits one physical count.
type ReconcileRequest struct {
	ItemID          string `json:"item_id"`
	CountedQuantity int64  `json:"counted_quantity"`
	OperatorID      string `json:"operator_id"`
	Notes           string `json:"notes,omitempty"`
}

// CountDTO is one inventory count record.
type CountDTO struct {
	ID              string    `json:"id"`
	ItemID          string    `json:"item_id"`
	CountedQuantity int64     `json:"counted_quantity"`
	SystemBalance   int64     `json:"system_balance"`
	Difference      int64     `json:"difference"`
	AdjustmentID    string    `json:"adjustment_movement_id,omitempty"`
	OperatorID      string    `json:"operator_id"`
	Notes           string    `json:"notes,omitempty"`
	CountedAt       time.Time `json:"counted_at"`
}

func toCountDTO(c ledger.InventoryCount) CountDTO {
	return CountDTO{
		ID:              string(c.ID),
		ItemID:          string(c.ItemID),
		CountedQuantity: c.CountedQuantity,
		SystemBalance:   c.SystemBalance,
		Difference:      c.Difference,
		AdjustmentID:    string(c.AdjustmentID),
		OperatorID:      c.OperatorID,
		Notes:           c.Notes,
		CountedAt:       c.CountedAt,
	}
}

// =============================================================================
// ITEMS AND SUMMARIES
// =============================================================================

// PutItemRequest is the catalog collaborator's ingestion surface.
type PutItemRequest struct {
	ID            string          `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	IsActive      bool            `json:"is_active"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
}

// BalanceDTO is the current cached balance for one item.
type BalanceDTO struct {
	ItemID  string `json:"item_id"`
	Balance int64  `json:"balance"`
}

// ItemDTO is one stocked item.
type ItemDTO struct {
	ID            string          `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	CurrentStock  int64           `json:"current_stock"`
	IsActive      bool            `json:"is_active"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
}

func toItemDTO(item ledger.StockedItem) ItemDTO {
	return ItemDTO{
		ID:            string(item.ID),
		SKU:           item.SKU,
		Name:          item.Name,
		CurrentStock:  item.CachedBalance,
		IsActive:      item.IsActive,
		SellingPrice:  item.SellingPrice,
		PurchasePrice: item.PurchasePrice,
	}
}

// SummaryDTO is one stock valuation row.
type SummaryDTO struct {
	ItemID        string          `json:"item_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	CurrentStock  int64           `json:"current_stock"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	TotalValue    decimal.Decimal `json:"total_value"`
	IsLowStock    bool            `json:"is_low_stock"`
}

// =============================================================================
// WORKFLOW EVENTS
// =============================================================================

// PurchaseLineRequest is one line on a received purchase.
type PurchaseLineRequest struct {
	LineID    string          `json:"line_id"`
	ItemID    string          `json:"item_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PurchaseReceivedRequest is the purchase-received workflow event.
type PurchaseReceivedRequest struct {
	PurchaseID        string                `json:"purchase_id"`
	SupplierReference string                `json:"supplier_reference,omitempty"`
	ActorID           string                `json:"actor_id"`
	Lines             []PurchaseLineRequest `json:"lines"`
}

// ReturnCreatedRequest is the return-created workflow event.
type ReturnCreatedRequest struct {
	ReturnID string `json:"return_id"`
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
	ActorID  string `json:"actor_id"`
}

// SaleRequest is the sale workflow event.
type SaleRequest struct {
	SaleLineID string `json:"sale_line_id"`
	ItemID     string `json:"item_id"`
	Quantity   int64  `json:"quantity"`
	ActorID    string `json:"actor_id"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
