/*
ledger.go - Commission-to-entry translation and idempotent writes

PURPOSE:
  Turns an extracted commission breakdown into candidate ledger entries and
  persists them. The ledger is the immutable source of truth for who is owed
  what; every entry is one signed fact for one actor.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: no update, no delete. Corrections are offsetting entries.
  2. IDEMPOTENT: key = tenant:provider:transaction:entryType:actor.
     A second write with the same key is a skip, not an error.
  3. SIGNED: refund/cancellation/chargeback events invert the commission sign
     before writing - money leaving, not arriving.
  4. ZERO-FREE: zero-value commissions are dropped before persistence; a zero
     fact carries no information.
*/
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IdempotencyKey derives the globally unique write key for one entry.
func IdempotencyKey(tenant, provider, transactionID string, entryType EntryType, actor ActorType) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", tenant, provider, transactionID, entryType, actor)
}

// entryTypeFor maps (event kind, actor) to the entry type. On reversals every
// actor's entry takes the reversal type so its idempotency key can never
// collide with the original sale-side entry for the same actor.
func entryTypeFor(kind EventKind, actor ActorType) EntryType {
	switch kind {
	case KindPurchaseRefunded, KindPurchaseCanceled:
		return EntryRefund
	case KindPurchaseChargeback:
		return EntryChargeback
	}
	switch actor {
	case ActorPlatform:
		return EntryPlatformFee
	case ActorCoProducer:
		return EntryCoProducer
	case ActorAffiliate:
		return EntryAffiliate
	}
	return EntrySale
}

// BuildEntries translates one event's breakdown into candidate ledger entries.
// Zero-value commissions produce no entry. Reversal kinds invert every sign.
func BuildEntries(e RawEvent, orderKey string, bd Breakdown) []LedgerEntry {
	tx, _ := e.Payload.TransactionID()
	if tx == "" {
		tx = orderKey
	}
	invert := e.Kind.IsReversal()

	var entries []LedgerEntry
	add := func(amount *decimal.Decimal, actor ActorType) {
		if amount == nil || amount.IsZero() {
			return
		}
		v := *amount
		if invert {
			v = v.Neg()
		}
		entryType := entryTypeFor(e.Kind, actor)
		entries = append(entries, LedgerEntry{
			ID:             uuid.NewString(),
			Tenant:         e.Tenant,
			Provider:       e.Provider,
			OrderKey:       orderKey,
			TransactionID:  tx,
			EntryType:      entryType,
			Actor:          actor,
			Amount:         v,
			Currency:       bd.Currency,
			OccurredAt:     e.ReceivedAt,
			IdempotencyKey: IdempotencyKey(e.Tenant, e.Provider, tx, entryType, actor),
		})
	}

	add(bd.SellerNet, ActorSeller)
	add(bd.PlatformFee, ActorPlatform)
	add(bd.CoProducer, ActorCoProducer)
	add(bd.Affiliate, ActorAffiliate)
	return entries
}

// =============================================================================
// WRITER - Conflict-aware persistence
// =============================================================================

// WriteResult reports what one batch write actually did.
type WriteResult struct {
	Created int
	Skipped int
}

// Writer persists candidate entries with first-class idempotency: duplicates
// are an expected outcome, not a caller-side existence check.
type Writer struct {
	Store  LedgerStore
	Logger *zap.Logger
}

func NewWriter(store LedgerStore, logger *zap.Logger) *Writer {
	return &Writer{Store: store, Logger: logger}
}

// Write persists candidates one by one. An idempotency collision counts as
// skipped and never aborts the batch; any other store failure does.
func (w *Writer) Write(ctx context.Context, entries []LedgerEntry) (WriteResult, error) {
	var res WriteResult
	for _, entry := range entries {
		err := w.Store.InsertEntry(ctx, entry)
		switch {
		case err == nil:
			res.Created++
		case IsDuplicate(err):
			res.Skipped++
		default:
			return res, fmt.Errorf("ledger write %s: %w", entry.IdempotencyKey, err)
		}
	}
	return res, nil
}
