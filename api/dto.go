/*
dto.go - Request/response shapes for the HTTP API

All monetary values serialize as strings to keep decimal precision intact
on the wire.
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/ledgerline/revenue-engine/engine"
)

// =============================================================================
// REQUESTS
// =============================================================================

// IngestEventRequest is the webhook-shaped single-event ingestion body.
type IngestEventRequest struct {
	ProviderEventID string          `json:"provider_event_id"`
	Kind            string          `json:"kind"`
	ReceivedAt      *time.Time      `json:"received_at,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// BackfillRequest starts one orchestrator run. Either days_back or an
// explicit window may be given; an explicit window wins.
type BackfillRequest struct {
	DaysBack    int        `json:"days_back,omitempty"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
	PageSize    int        `json:"page_size,omitempty"`
	Order       string     `json:"order,omitempty"`
	DryRun      bool       `json:"dry_run,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type IngestEventResponse struct {
	Duplicate bool   `json:"duplicate"`
	OrderKey  string `json:"order_key,omitempty"`
	ItemType  string `json:"item_type,omitempty"`
	Relevant  bool   `json:"relevant"`
	Created   int    `json:"entries_created"`
	Skipped   int    `json:"entries_skipped"`
}

type BackfillResponse struct {
	Status string        `json:"status"`
	Result engine.Result `json:"result"`
}

type OrderResponse struct {
	OrderKey    string             `json:"order_key"`
	Provider    string             `json:"provider"`
	BuyerName   string             `json:"buyer_name,omitempty"`
	BuyerEmail  string             `json:"buyer_email,omitempty"`
	Status      string             `json:"status"`
	Currency    string             `json:"currency,omitempty"`
	PaidTotal   string             `json:"paid_total"`
	GrossTotal  string             `json:"gross_total"`
	SellerNet   string             `json:"seller_net"`
	UTMSource   string             `json:"utm_source,omitempty"`
	Src         string             `json:"src,omitempty"`
	Sck         string             `json:"sck,omitempty"`
	FirstSeenAt time.Time          `json:"first_seen_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Items       []LineItemResponse `json:"items,omitempty"`
}

type LineItemResponse struct {
	ProductID string `json:"product_id"`
	OfferID   string `json:"offer_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Type      string `json:"type"`
	BasePrice string `json:"base_price"`
	Quantity  int    `json:"quantity"`
}

type LedgerEntryResponse struct {
	TransactionID string    `json:"transaction_id"`
	EntryType     string    `json:"entry_type"`
	Actor         string    `json:"actor"`
	ActorName     string    `json:"actor_name,omitempty"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type SnapshotResponse struct {
	TransactionID string    `json:"transaction_id"`
	Gross         string    `json:"gross"`
	Net           string    `json:"net"`
	Currency      string    `json:"currency,omitempty"`
	Version       int       `json:"version"`
	IsCurrent     bool      `json:"is_current"`
	ObservedAt    time.Time `json:"observed_at"`
}

type RunResponse struct {
	ID          string        `json:"id"`
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	PageSize    int           `json:"page_size"`
	DryRun      bool          `json:"dry_run"`
	Status      string        `json:"status"`
	Result      engine.Result `json:"result"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toOrderResponse(o engine.Order, items []engine.LineItem) OrderResponse {
	resp := OrderResponse{
		OrderKey:    o.OrderKey,
		Provider:    o.Provider,
		BuyerName:   o.BuyerName,
		BuyerEmail:  o.BuyerEmail,
		Status:      string(o.Status),
		Currency:    o.Currency,
		PaidTotal:   o.PaidTotal.String(),
		GrossTotal:  o.GrossTotal.String(),
		SellerNet:   o.SellerNet.String(),
		UTMSource:   o.Attribution.UTMSource,
		Src:         o.Attribution.Src,
		Sck:         o.Attribution.Sck,
		FirstSeenAt: o.FirstSeenAt,
		UpdatedAt:   o.UpdatedAt,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, LineItemResponse{
			ProductID: item.ProductID,
			OfferID:   item.OfferID,
			Name:      item.Name,
			Type:      string(item.Type),
			BasePrice: item.BasePrice.String(),
			Quantity:  item.Quantity,
		})
	}
	return resp
}

func toLedgerEntryResponse(e engine.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		TransactionID: e.TransactionID,
		EntryType:     string(e.EntryType),
		Actor:         string(e.Actor),
		ActorName:     e.ActorName,
		Amount:        e.Amount.String(),
		Currency:      e.Currency,
		OccurredAt:    e.OccurredAt,
	}
}

func toSnapshotResponse(s engine.RevenueSnapshot) SnapshotResponse {
	return SnapshotResponse{
		TransactionID: s.TransactionID,
		Gross:         s.Gross.String(),
		Net:           s.Net.String(),
		Currency:      s.Currency,
		Version:       s.Version,
		IsCurrent:     s.IsCurrent,
		ObservedAt:    s.ObservedAt,
	}
}

func toRunResponse(r engine.BackfillRun) RunResponse {
	resp := RunResponse{
		ID:          r.ID,
		WindowStart: r.WindowStart,
		WindowEnd:   r.WindowEnd,
		PageSize:    r.PageSize,
		DryRun:      r.DryRun,
		Status:      string(r.Status),
		Result:      r.Result,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
	}
	if !r.CompletedAt.IsZero() {
		t := r.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}
