/*
handlers.go - HTTP handlers for ingestion, backfills and reads

PURPOSE:
  Thin transport layer over the engine. The webhook ingestion path and the
  backfill path both go through engine.Pipeline.ProcessEvent, so live and
  replayed events can never diverge.

TENANCY:
  The handler is configured with a default tenant/provider pair; requests may
  override both via ?tenant= and ?provider= query parameters.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerline/revenue-engine/engine"
)

// Handler carries the dependencies for all routes.
type Handler struct {
	Store    engine.Store
	Tenant   string
	Provider string
	PageSize int
	Logger   *zap.Logger
}

func NewHandler(store engine.Store, tenant, provider string, logger *zap.Logger) *Handler {
	return &Handler{
		Store:    store,
		Tenant:   tenant,
		Provider: provider,
		PageSize: 100,
		Logger:   logger,
	}
}

func (h *Handler) tenant(r *http.Request) string {
	if t := r.URL.Query().Get("tenant"); t != "" {
		return t
	}
	return h.Tenant
}

func (h *Handler) provider(r *http.Request) string {
	if p := r.URL.Query().Get("provider"); p != "" {
		return p
	}
	return h.Provider
}

// =============================================================================
// INGESTION
// =============================================================================

// IngestEvent records one provider notification and runs it through the live
// pipeline. A replayed delivery is marked duplicate but still processed - the
// downstream writes are idempotent, and finishing a half-processed event is
// exactly what a webhook retry is for.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req IngestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProviderEventID == "" || req.Kind == "" {
		h.writeError(w, http.StatusBadRequest, "provider_event_id and kind are required")
		return
	}

	payload, err := engine.ParsePayload(req.Payload)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload JSON")
		return
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}
	event := engine.RawEvent{
		ID:              uuid.NewString(),
		Tenant:          h.tenant(r),
		Provider:        h.provider(r),
		ProviderEventID: req.ProviderEventID,
		Kind:            engine.EventKind(req.Kind),
		Payload:         payload,
		ReceivedAt:      receivedAt,
	}

	resp := IngestEventResponse{}
	err = h.Store.AppendEvent(r.Context(), event)
	switch {
	case errors.Is(err, engine.ErrDuplicateEvent):
		resp.Duplicate = true
	case err != nil:
		h.Logger.Error("failed to record raw event", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	pipeline := engine.NewPipeline(h.Store, h.Logger)
	out, err := pipeline.ProcessEvent(r.Context(), event)
	if err != nil {
		if errors.Is(err, engine.ErrUnresolvableOrder) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.Logger.Error("failed to process event",
			zap.String("event", event.ProviderEventID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	resp.OrderKey = out.OrderKey
	resp.ItemType = string(out.ItemType)
	resp.Relevant = out.Relevant
	resp.Created = out.Ledger.Created
	resp.Skipped = out.Ledger.Skipped
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// BACKFILLS
// =============================================================================

// StartBackfill runs one backfill synchronously and returns the result.
func (h *Handler) StartBackfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	windowEnd := time.Now().UTC()
	if req.WindowEnd != nil {
		windowEnd = req.WindowEnd.UTC()
	}
	var windowStart time.Time
	switch {
	case req.WindowStart != nil:
		windowStart = req.WindowStart.UTC()
	case req.DaysBack > 0:
		windowStart = windowEnd.AddDate(0, 0, -req.DaysBack)
	default:
		h.writeError(w, http.StatusBadRequest, "window_start or days_back is required")
		return
	}
	if !windowEnd.After(windowStart) {
		h.writeError(w, http.StatusBadRequest, "window end must be after window start")
		return
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = h.PageSize
	}

	orchestrator := engine.NewOrchestrator(h.Store, h.Logger)
	result, err := orchestrator.Run(r.Context(), engine.BackfillRequest{
		Tenant:      h.tenant(r),
		Provider:    h.provider(r),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		PageSize:    pageSize,
		Order:       engine.ReadOrder(req.Order),
		DryRun:      req.DryRun,
	})

	status := "completed"
	code := http.StatusOK
	if err != nil {
		status = "failed"
		code = http.StatusInternalServerError
		h.Logger.Error("backfill failed", zap.Error(err))
	}
	h.writeJSON(w, code, BackfillResponse{Status: status, Result: result})
}

// ListBackfills returns persisted runs, newest first.
func (h *Handler) ListBackfills(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context(), h.tenant(r), 50)
	if err != nil {
		h.Logger.Error("failed to list runs", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// READS
// =============================================================================

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Store.ListOrders(r.Context(), h.tenant(r), h.provider(r), 100)
	if err != nil {
		h.Logger.Error("failed to list orders", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o, nil))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderKey := chi.URLParam(r, "orderKey")
	order, err := h.Store.GetOrder(r.Context(), h.tenant(r), h.provider(r), orderKey)
	if err != nil {
		h.Logger.Error("failed to get order", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}
	items, err := h.Store.ListLineItems(r.Context(), order.ID)
	if err != nil {
		h.Logger.Error("failed to list line items", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list line items")
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(*order, items))
}

func (h *Handler) GetOrderLedger(w http.ResponseWriter, r *http.Request) {
	orderKey := chi.URLParam(r, "orderKey")
	entries, err := h.Store.ListEntriesByOrderKey(r.Context(), h.tenant(r), h.provider(r), orderKey)
	if err != nil {
		h.Logger.Error("failed to list ledger entries", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list ledger entries")
		return
	}
	resp := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toLedgerEntryResponse(e))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetRevenueHistory(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txID")
	versions, err := h.Store.ListVersions(r.Context(), h.tenant(r), h.provider(r), txID)
	if err != nil {
		h.Logger.Error("failed to list snapshot versions", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list snapshot versions")
		return
	}
	resp := make([]SnapshotResponse, 0, len(versions))
	for _, s := range versions {
		resp = append(resp, toSnapshotResponse(s))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}
