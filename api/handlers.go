/*
handlers.go - HTTP handlers for the stock engine

ENDPOINTS:
  Stock:
    GET  /api/stock/items              Stock summary (valuation rows)
    GET  /api/stock/items/{id}/balance Current cached balance
    GET  /api/stock/ledger             Movement history (?item_id, limit, offset)
    GET  /api/stock/low                Low-stock items (?threshold)
    POST /api/stock/movements          Record a manual movement
    POST /api/stock/counts             Reconcile a physical count
    GET  /api/stock/counts             Count history (?item_id, limit, offset)

  Workflow events:
    POST /api/events/purchase-received Purchase-receipt adapter
    POST /api/events/return-created    Return adapter
    POST /api/events/sale              Sale adapter

  Catalog surface:
    POST /api/items                    Upsert item identity

ERROR HANDLING:
  Domain errors map to HTTP status:
    NotFoundError          -> 404
    ValidationError        -> 400
    ConcurrencyError       -> 409 (caller should retry with backoff)
    DuplicateSourceError   -> 409 (source reference already recorded)
    InsufficientStockError -> 422
    anything else          -> 500

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/stock-engine/ledger"
	"github.com/warp/stock-engine/workflow"
)

// DefaultLowStockThreshold applies when the caller doesn't pass one.
const DefaultLowStockThreshold = 10

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      ledger.Store
	Recorder   *ledger.Recorder
	Reconciler *ledger.Reconciler
	Queries    *ledger.Queries
	Purchases  *workflow.PurchaseAdapter
	Returns    *workflow.ReturnAdapter
	Sales      *workflow.SaleAdapter
}

// NewHandler wires the engine and adapters over one store.
func NewHandler(store ledger.Store, recorderOpts ...ledger.RecorderOption) *Handler {
	recorder := ledger.NewRecorder(store, recorderOpts...)
	return &Handler{
		Store:      store,
		Recorder:   recorder,
		Reconciler: ledger.NewReconciler(store, recorder),
		Queries:    ledger.NewQueries(store),
		Purchases:  workflow.NewPurchaseAdapter(recorder, store),
		Returns:    workflow.NewReturnAdapter(recorder, workflow.WithNonRestockingReasons("damaged")),
		Sales:      workflow.NewSaleAdapter(recorder),
	}
}

// =============================================================================
// STOCK HANDLERS
// =============================================================================

// GetBalance returns the cached balance for one item.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	itemID := ledger.ItemID(chi.URLParam(r, "id"))

	balance, err := h.Queries.CurrentBalance(r.Context(), itemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{ItemID: string(itemID), Balance: balance})
}

// GetLedger returns movement history, newest first.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	f := ledger.MovementFilter{
		ItemID: ledger.ItemID(r.URL.Query().Get("item_id")),
		Page:   pageFromQuery(r),
	}
	movements, err := h.Queries.History(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(movements))
}

// GetSummary returns the stock valuation overview.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Queries.Summary(r.Context(), pageFromQuery(r), thresholdFromQuery(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]SummaryDTO, len(rows))
	for i, row := range rows {
		dtos[i] = SummaryDTO{
			ItemID:        string(row.ItemID),
			SKU:           row.SKU,
			Name:          row.Name,
			CurrentStock:  row.CurrentStock,
			SellingPrice:  row.SellingPrice,
			PurchasePrice: row.PurchasePrice,
			TotalValue:    row.TotalValue,
			IsLowStock:    row.IsLowStock,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLowStock returns active items at or below the threshold.
func (h *Handler) GetLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.Queries.LowStock(r.Context(), thresholdFromQuery(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordMovement records a manual movement through the recorder.
func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var req RecordMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	m, err := h.Recorder.Record(r.Context(), ledger.MovementRequest{
		ItemID:         ledger.ItemID(req.ItemID),
		Type:           ledger.ChangeType(req.ChangeType),
		QuantityChange: req.QuantityChange,
		SourceType:     req.SourceType,
		SourceID:       req.SourceID,
		ActorID:        req.ActorID,
		Notes:          req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

// Reconcile records a physical count.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	count, err := h.Reconciler.Reconcile(r.Context(), ledger.CountRequest{
		ItemID:          ledger.ItemID(req.ItemID),
		CountedQuantity: req.CountedQuantity,
		OperatorID:      req.OperatorID,
		Notes:           req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCountDTO(count))
}

// GetCounts returns inventory count history, newest first.
func (h *Handler) GetCounts(w http.ResponseWriter, r *http.Request) {
	f := ledger.CountFilter{
		ItemID: ledger.ItemID(r.URL.Query().Get("item_id")),
		Page:   pageFromQuery(r),
	}
	counts, err := h.Queries.Counts(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]CountDTO, len(counts))
	for i, c := range counts {
		dtos[i] = toCountDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// WORKFLOW EVENT HANDLERS
// =============================================================================

// PurchaseReceived applies a purchase-received event.
func (h *Handler) PurchaseReceived(w http.ResponseWriter, r *http.Request) {
	var req PurchaseReceivedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	lines := make([]workflow.PurchaseLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = workflow.PurchaseLine{
			LineID:    l.LineID,
			ItemID:    ledger.ItemID(l.ItemID),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}

	movements, err := h.Purchases.Receive(r.Context(), workflow.PurchaseReceipt{
		PurchaseID:        req.PurchaseID,
		SupplierReference: req.SupplierReference,
		Lines:             lines,
	}, req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(movements))
}

// ReturnCreated applies a return-created event.
func (h *Handler) ReturnCreated(w http.ResponseWriter, r *http.Request) {
	var req ReturnCreatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	m, err := h.Returns.Create(r.Context(), workflow.ReturnEvent{
		ReturnID: req.ReturnID,
		ItemID:   ledger.ItemID(req.ItemID),
		Quantity: req.Quantity,
		Reason:   req.Reason,
	}, req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if m == nil {
		// Non-restocking reason: accepted, no movement.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(*m))
}

// Sale applies a sale event.
func (h *Handler) Sale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	m, err := h.Sales.Sell(r.Context(), workflow.SaleEvent{
		SaleLineID: req.SaleLineID,
		ItemID:     ledger.ItemID(req.ItemID),
		Quantity:   req.Quantity,
	}, req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(m))
}

// =============================================================================
// CATALOG SURFACE
// =============================================================================

// PutItem upserts an item's identity fields. Balances are untouched.
func (h *Handler) PutItem(w http.ResponseWriter, r *http.Request) {
	var req PutItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.SKU == "" {
		writeError(w, http.StatusBadRequest, "sku is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	item := ledger.StockedItem{
		ID:            ledger.ItemID(req.ID),
		SKU:           req.SKU,
		Name:          req.Name,
		IsActive:      req.IsActive,
		SellingPrice:  req.SellingPrice,
		PurchasePrice: req.PurchasePrice,
	}
	if err := h.Store.PutItem(r.Context(), item); err != nil {
		writeDomainError(w, err)
		return
	}

	stored, err := h.Store.Item(r.Context(), item.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(stored))
}

// =============================================================================
// HELPERS
// =============================================================================

func pageFromQuery(r *http.Request) ledger.Page {
	var page ledger.Page
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.Offset = n
		}
	}
	return page
}

func thresholdFromQuery(r *http.Request) int64 {
	if v := r.URL.Query().Get("threshold"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return DefaultLowStockThreshold
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the engine's error taxonomy to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "stocked item not found", err)
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation failed", err)
	case errors.Is(err, ledger.ErrConcurrency):
		writeError(w, http.StatusConflict, "write conflict, retry", err)
	case errors.Is(err, ledger.ErrDuplicateSource):
		writeError(w, http.StatusConflict, "source reference already recorded", err)
	case errors.Is(err, ledger.ErrInsufficientStock):
		writeError(w, http.StatusUnprocessableEntity, "insufficient stock", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
