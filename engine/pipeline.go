/*
pipeline.go - Single-event processing path

PURPOSE:
  One event flows resolver -> classifier -> extractor -> {projector, ledger
  writer, versioner}. The webhook receiver and the backfill orchestrator both
  call ProcessEvent, so live ingestion and replay can never drift apart.

DRY RUN:
  With DryRun set, the pipeline resolves, classifies and prices the event but
  touches no store. Used to preview what a backfill window would do.
*/
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// EventOutcome reports what one event contributed.
type EventOutcome struct {
	OrderKey   string
	ItemType   ItemType
	Relevant   bool
	Projection ProjectionOutcome
	Ledger     WriteResult
	Candidates int
	Snapshot   UpsertOutcome
}

// Pipeline wires the engine components for one tenant stream.
type Pipeline struct {
	Projector *Projector
	Writer    *Writer
	Versioner *Versioner
	Logger    *zap.Logger
	DryRun    bool
}

func NewPipeline(store Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		Projector: NewProjector(store, logger),
		Writer:    NewWriter(store, logger),
		Versioner: NewVersioner(store, logger),
		Logger:    logger,
	}
}

// financiallyRelevant reports whether the event carries monetary information
// worth projecting into the ledger and snapshots.
func financiallyRelevant(p Payload, bd Breakdown) bool {
	if _, ok := p.Price(); ok {
		return true
	}
	return bd.PlatformFee != nil || bd.SellerNet != nil ||
		bd.CoProducer != nil || bd.Affiliate != nil
}

// ProcessEvent runs one raw event through the full pipeline.
// An unresolvable order key is the only hard per-event failure.
func (pl *Pipeline) ProcessEvent(ctx context.Context, e RawEvent) (EventOutcome, error) {
	var out EventOutcome

	orderKey, err := ResolveOrderKey(e.Payload)
	if err != nil {
		return out, fmt.Errorf("event %s: %w", e.ProviderEventID, err)
	}
	out.OrderKey = orderKey
	out.ItemType = ClassifyLineItem(e.Payload)

	bd := ExtractBreakdown(e.Payload, pl.Logger)
	out.Relevant = financiallyRelevant(e.Payload, bd)

	candidates := BuildEntries(e, orderKey, bd)
	out.Candidates = len(candidates)

	if pl.DryRun {
		pl.Logger.Info("dry run: event classified",
			zap.String("event", e.ProviderEventID),
			zap.String("order_key", orderKey),
			zap.String("item_type", string(out.ItemType)),
			zap.Int("ledger_candidates", len(candidates)))
		return out, nil
	}

	out.Projection, err = pl.Projector.Apply(ctx, e, orderKey, out.ItemType, bd)
	if err != nil {
		return out, err
	}

	out.Ledger, err = pl.Writer.Write(ctx, candidates)
	if err != nil {
		return out, err
	}

	out.Snapshot, err = pl.upsertSnapshot(ctx, e, bd)
	if err != nil {
		return out, err
	}
	return out, nil
}

// upsertSnapshot records the transaction's current truth. Reversal events do
// not rewrite the snapshot: the original transaction value stands, and the
// correction lives in the ledger as an offsetting entry.
func (pl *Pipeline) upsertSnapshot(ctx context.Context, e RawEvent, bd Breakdown) (UpsertOutcome, error) {
	if e.Kind.IsReversal() {
		return SnapshotUnchanged, nil
	}
	tx, ok := e.Payload.TransactionID()
	if !ok {
		return SnapshotUnchanged, nil
	}
	gross, ok := e.Payload.Price()
	if !ok {
		return SnapshotUnchanged, nil
	}

	net := gross
	if bd.SellerNet != nil {
		net = *bd.SellerNet
	}
	currency, _ := e.Payload.Currency()

	return pl.Versioner.Upsert(ctx, RevenueSnapshot{
		Tenant:        e.Tenant,
		Provider:      e.Provider,
		TransactionID: tx,
		Gross:         gross,
		Net:           net,
		Currency:      currency,
		Attribution:   e.Payload.Attribution(),
		RawPayload:    e.Payload.Raw(),
		ObservedAt:    e.ReceivedAt,
	})
}
