/*
projector.go - Canonical order projection

PURPOSE:
  Maintains one mutable order aggregate per canonical order key. Each event
  contributes at most one line item; totals accumulate exactly once per
  distinct (order, product) pair, so replaying the same raw event never
  double-counts revenue.

STATUS MACHINE:
  pending -> approved -> completed, with side transitions to cancelled,
  refunded and chargeback. Transitions are monotone on rank: a chargeback
  lands on a refunded order, but a stale approved event never downgrades a
  terminal state.

ATTRIBUTION:
  Traffic-source markers are captured once. A later event only fills fields
  the order is still missing; it never overwrites what an earlier event set.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// statusFor maps an event kind to the order status it implies.
func statusFor(kind EventKind) OrderStatus {
	switch kind {
	case KindPurchaseApproved, KindSubscriptionStarted:
		return StatusApproved
	case KindPurchaseCompleted:
		return StatusCompleted
	case KindPurchaseCanceled, KindSubscriptionStopped:
		return StatusCancelled
	case KindPurchaseRefunded:
		return StatusRefunded
	case KindPurchaseChargeback:
		return StatusChargeback
	}
	return StatusPending
}

// upgradeStatus applies the monotone transition rule.
func upgradeStatus(current, incoming OrderStatus) OrderStatus {
	if incoming.rank() > current.rank() {
		return incoming
	}
	return current
}

// ProjectionOutcome reports what one event did to the aggregate.
type ProjectionOutcome struct {
	OrderCreated bool
	OrderUpdated bool
	ItemCreated  bool
}

// Projector folds events into canonical orders.
type Projector struct {
	Orders OrderStore
	Logger *zap.Logger
	Now    func() time.Time
}

func NewProjector(orders OrderStore, logger *zap.Logger) *Projector {
	return &Projector{Orders: orders, Logger: logger, Now: time.Now}
}

// Apply projects one event onto its order. The order is created on first
// sight of the key; later events add their line item (once) and upgrade
// status. bd may carry a nil SellerNet when the provider reported none.
func (pr *Projector) Apply(ctx context.Context, e RawEvent, orderKey string, itemType ItemType, bd Breakdown) (ProjectionOutcome, error) {
	var out ProjectionOutcome

	order, err := pr.Orders.GetOrder(ctx, e.Tenant, e.Provider, orderKey)
	if err != nil {
		return out, fmt.Errorf("load order %s: %w", orderKey, err)
	}

	now := pr.Now().UTC()
	if order == nil {
		order = pr.newOrder(e, orderKey, now)
		if err := pr.Orders.CreateOrder(ctx, *order); err != nil {
			return out, fmt.Errorf("create order %s: %w", orderKey, err)
		}
		out.OrderCreated = true
	}

	created, err := pr.projectLineItem(ctx, e, order, itemType, bd)
	if err != nil {
		return out, err
	}
	out.ItemCreated = created

	order.Status = upgradeStatus(order.Status, statusFor(e.Kind))
	pr.backfillIdentity(e, order)
	order.UpdatedAt = now

	if err := pr.Orders.UpdateOrder(ctx, *order); err != nil {
		return out, fmt.Errorf("update order %s: %w", orderKey, err)
	}
	out.OrderUpdated = !out.OrderCreated
	return out, nil
}

func (pr *Projector) newOrder(e RawEvent, orderKey string, now time.Time) *Order {
	buyerName, _ := e.Payload.BuyerName()
	buyerEmail, _ := e.Payload.BuyerEmail()
	currency, _ := e.Payload.Currency()
	return &Order{
		ID:          uuid.NewString(),
		Tenant:      e.Tenant,
		Provider:    e.Provider,
		OrderKey:    orderKey,
		BuyerName:   buyerName,
		BuyerEmail:  buyerEmail,
		Status:      statusFor(e.Kind),
		Currency:    currency,
		Attribution: e.Payload.Attribution(),
		FirstSeenAt: now,
		UpdatedAt:   now,
	}
}

// projectLineItem inserts the event's item and, only when the insert actually
// happened, adds its contribution to the order totals. The duplicate-item
// error from the store is the single idempotency gate - no check-then-write.
func (pr *Projector) projectLineItem(ctx context.Context, e RawEvent, order *Order, itemType ItemType, bd Breakdown) (bool, error) {
	productID, ok := e.Payload.ProductID()
	if !ok {
		// No product means nothing to itemize (subscription lifecycle events).
		return false, nil
	}

	name, _ := e.Payload.ProductName()
	if offerName, ok := e.Payload.OfferName(); ok {
		name = offerName
	}
	offerID, _ := e.Payload.OfferCode()
	basePrice, _ := e.Payload.BasePrice()

	item := LineItem{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		ProductID: productID,
		OfferID:   offerID,
		Name:      name,
		Type:      itemType,
		BasePrice: basePrice,
		Quantity:  e.Payload.Quantity(),
		CreatedAt: pr.Now().UTC(),
	}

	err := pr.Orders.InsertLineItem(ctx, item)
	if errors.Is(err, ErrDuplicateLineItem) {
		pr.Logger.Debug("line item already projected",
			zap.String("order_key", order.OrderKey),
			zap.String("product_id", productID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert line item %s/%s: %w", order.OrderKey, productID, err)
	}

	if paid, ok := e.Payload.Price(); ok {
		order.PaidTotal = order.PaidTotal.Add(paid)
	}
	order.GrossTotal = order.GrossTotal.Add(basePrice)
	if bd.SellerNet != nil {
		order.SellerNet = order.SellerNet.Add(*bd.SellerNet)
	}
	return true, nil
}

// backfillIdentity fills buyer and attribution fields the order is missing.
// Existing values are never overwritten.
func (pr *Projector) backfillIdentity(e RawEvent, order *Order) {
	if order.BuyerName == "" {
		order.BuyerName, _ = e.Payload.BuyerName()
	}
	if order.BuyerEmail == "" {
		order.BuyerEmail, _ = e.Payload.BuyerEmail()
	}
	if order.Currency == "" {
		order.Currency, _ = e.Payload.Currency()
	}
	attr := e.Payload.Attribution()
	if order.Attribution.UTMSource == "" {
		order.Attribution.UTMSource = attr.UTMSource
	}
	if order.Attribution.Src == "" {
		order.Attribution.Src = attr.Src
	}
	if order.Attribution.Sck == "" {
		order.Attribution.Sck = attr.Sck
	}
}
